// Package display composites the scene into an RGBA frame
// and pushes it to framebuffer.
package display

import (
	"image"
	"image/color"
	"image/draw"
	"strings"
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/portal/hardware/display/framebuffer"
)

type Display struct {
	mu    sync.Mutex
	fb    *framebuffer.Framebuffer
	frame *image.RGBA
	scene *Scene
	Fill  color.RGBA
}

func NewFb(dev string) (*Display, error) {
	fb, err := framebuffer.New(dev)
	if err != nil {
		return nil, errors.Annotatef(err, "framebuffer device=%s", dev)
	}
	d := NewMock(fb.Size())
	d.fb = fb
	return d, nil
}

// NewMock is display without hardware, frame is kept in memory.
func NewMock(size image.Point) *Display {
	return &Display{
		frame: image.NewRGBA(image.Rectangle{Max: size}),
		scene: NewScene(),
		Fill:  color.RGBA{0, 0, 0, 0xff},
	}
}

func (self *Display) Scene() *Scene      { return self.scene }
func (self *Display) Size() image.Point  { return self.frame.Bounds().Size() }
func (self *Display) Image() *image.RGBA { return self.frame }

// Refresh renders whole scene and writes frame to hardware.
func (self *Display) Refresh() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	draw.Draw(self.frame, self.frame.Bounds(), image.NewUniform(self.Fill), image.Point{}, draw.Src)
	self.scene.Draw(self.frame)
	return self.flush()
}

// Clear blanks the screen, scene is kept.
func (self *Display) Clear() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	draw.Draw(self.frame, self.frame.Bounds(), image.NewUniform(self.Fill), image.Point{}, draw.Src)
	return self.flush()
}

func (self *Display) Close() error {
	if self.fb != nil {
		return self.fb.Close()
	}
	return nil
}

// String2 draws frame with two characters per pixel, black is blank.
func (self *Display) String2() string {
	self.mu.Lock()
	defer self.mu.Unlock()
	size := self.frame.Bounds().Size()
	b := strings.Builder{}
	b.Grow((size.X*2 + 1) * size.Y)
	for y := 0; y < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			c := self.frame.RGBAAt(x, y)
			if c.R == 0 && c.G == 0 && c.B == 0 {
				b.WriteString("  ")
			} else {
				b.WriteString("██")
			}
		}
		b.WriteRune('\n')
	}
	return b.String()
}

func (self *Display) flush() error {
	if self.fb == nil {
		return nil
	}
	if err := self.fb.Update(self.frame); err != nil {
		return errors.Annotate(err, "display update")
	}
	return self.fb.Flush()
}
