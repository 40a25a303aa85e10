package display

import (
	"image"
	"image/color"
	"image/draw"
	"strings"

	"github.com/juju/errors"
	"github.com/skip2/go-qrcode"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// Empty draws nothing, placeholder for reserved scene slot.
type Empty struct{}

func (Empty) Draw(draw.Image) {}

// Sprite is image placed with top-left corner at At.
type Sprite struct {
	Image image.Image
	At    image.Point
}

func (self *Sprite) Draw(dst draw.Image) {
	if self.Image == nil {
		return
	}
	b := self.Image.Bounds()
	r := image.Rectangle{Min: self.At, Max: self.At.Add(b.Size())}
	draw.Draw(dst, r, self.Image, b.Min, draw.Over)
}

// Label is multiline text, At is top-left corner of the first line.
type Label struct {
	Text  string
	Face  font.Face
	Color color.Color
	At    image.Point
}

func (self *Label) Lines() []string {
	if self.Text == "" {
		return nil
	}
	return strings.Split(self.Text, "\n")
}

func (self *Label) Draw(dst draw.Image) {
	if self.Face == nil {
		return
	}
	m := self.Face.Metrics()
	lineHeight := m.Height.Ceil()
	if lineHeight == 0 {
		lineHeight = (m.Ascent + m.Descent).Ceil()
	}
	c := self.Color
	if c == nil {
		c = color.White
	}
	d := font.Drawer{Dst: dst, Src: image.NewUniform(c), Face: self.Face}
	for i, line := range self.Lines() {
		d.Dot = fixed.P(self.At.X, self.At.Y+m.Ascent.Ceil()+i*lineHeight)
		d.DrawString(line)
	}
}

// NewQR renders text as QR code of exactly size x size pixels.
// Dark modules are black on white.
func NewQR(text string, level qrcode.RecoveryLevel, size int, border bool, at image.Point) (*Sprite, error) {
	if size <= 0 {
		return nil, errors.NotValidf("QR size=%d", size)
	}
	qr, err := qrcode.New(text, level)
	if err != nil {
		return nil, errors.Annotate(err, "QR")
	}
	qr.DisableBorder = !border
	img := qr.Image(size)
	if got := img.Bounds().Size(); got.X > size {
		return nil, errors.NotValidf("QR size=%d too small for data, need=%d", size, got.X)
	}
	return &Sprite{Image: img, At: at}, nil
}
