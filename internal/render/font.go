package render

import (
	"image/color"
	"io/ioutil"
	"strconv"
	"strings"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"github.com/juju/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

const DefaultGlyphs = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ-!,. \"'?!"

const DefaultFontSize = 12

// LoadFont returns built-in 7x13 face for empty path, else TrueType face.
func LoadFont(path string, size float64) (font.Face, error) {
	if path == "" {
		return basicfont.Face7x13, nil
	}
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Annotatef(err, "font %s", path)
	}
	f, err := freetype.ParseFont(b)
	if err != nil {
		return nil, errors.Annotatef(err, "font %s", path)
	}
	if size <= 0 {
		size = DefaultFontSize
	}
	return truetype.NewFace(f, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	}), nil
}

// ParseColor accepts "808080", "#808080" and "0x808080".
func ParseColor(s string) (color.RGBA, error) {
	h := strings.TrimPrefix(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "#"), "0x")
	if len(h) != 6 {
		return color.RGBA{}, errors.NotValidf("color=%q", s)
	}
	x, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, errors.NotValidf("color=%q", s)
	}
	return color.RGBA{R: uint8(x >> 16), G: uint8(x >> 8), B: uint8(x), A: 0xff}, nil
}
