// Package render owns indexed text slots and the caption on the scene.
package render

import (
	"image"
	"image/color"
	"strings"
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/portal/hardware/display"
	"github.com/temoto/portal/log2"
	"golang.org/x/image/font"
)

// Slot without Position never appears on screen.
type Slot struct {
	Position *image.Point
	Face     font.Face // nil = renderer face
	Color    color.Color
	Wrap     int
	MaxLen   int

	handle display.Handle
}

type Renderer struct {
	mu          sync.Mutex
	log         *log2.Log
	scene       *display.Scene
	face        font.Face
	slots       []Slot
	captionFace font.Face
	caption     display.Handle
}

// NewRenderer with nil face disables text slots entirely.
func NewRenderer(scene *display.Scene, face font.Face, slots []Slot, log *log2.Log) *Renderer {
	return &Renderer{
		log:   log,
		scene: scene,
		face:  face,
		slots: append([]Slot(nil), slots...),
	}
}

func (self *Renderer) SetCaptionFont(face font.Face) {
	self.mu.Lock()
	self.captionFace = face
	self.mu.Unlock()
}

func (self *Renderer) NumSlots() int { return len(self.slots) }

// Render formats and wraps value, then SetText.
func (self *Renderer) Render(index int, value interface{}) error {
	s := FormatValue(value)
	if index >= 0 && index < len(self.slots) && self.slots[index].Wrap > 0 {
		s = strings.Join(WrapNicely(s, self.slots[index].Wrap), "\n")
	}
	return self.SetText(index, s)
}

// SetText truncates to slot MaxLen and updates slot label in place.
func (self *Renderer) SetText(index int, s string) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if index < 0 || index >= len(self.slots) {
		return errors.NotValidf("text slot index=%d of %d", index, len(self.slots))
	}
	slot := &self.slots[index]
	if self.face == nil && slot.Face == nil {
		return nil
	}
	s = Truncate(s, slot.MaxLen)

	if slot.handle != 0 {
		if err := self.scene.Replace(slot.handle, self.label(slot, s)); err == nil {
			return nil
		}
		// label was removed from scene behind our back
		slot.handle = 0
	}
	if slot.Position == nil || s == "" {
		return nil
	}
	self.log.Debugf("making text area index=%d text=%q", index, s)
	slot.handle = self.scene.Append(self.label(slot, s))
	return nil
}

// Text returns current slot content, empty for never rendered slot.
func (self *Renderer) Text(index int) string {
	self.mu.Lock()
	defer self.mu.Unlock()
	if index < 0 || index >= len(self.slots) || self.slots[index].handle == 0 {
		return ""
	}
	if el, ok := self.scene.Get(self.slots[index].handle); ok {
		if l, ok := el.(*display.Label); ok {
			return l.Text
		}
	}
	return ""
}

// SetCaption is no-op without text, caption font or position.
func (self *Renderer) SetCaption(text string, at *image.Point, c color.Color) {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.log.Debugf("setting caption to %q", text)
	if text == "" || self.captionFace == nil || at == nil {
		return
	}
	l := &display.Label{Text: text, Face: self.captionFace, Color: c, At: *at}
	if self.caption != 0 {
		if err := self.scene.Replace(self.caption, l); err == nil {
			return
		}
	}
	self.caption = self.scene.Append(l)
}

// PreloadFont warms glyph cache, returns number of glyphs present in font.
func (self *Renderer) PreloadFont(glyphs string) int {
	if glyphs == "" {
		glyphs = DefaultGlyphs
	}
	self.log.Debugf("preloading font glyphs: %s", glyphs)
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.face == nil {
		return 0
	}
	n := 0
	for _, r := range glyphs {
		if _, ok := self.face.GlyphAdvance(r); ok {
			n++
		}
	}
	return n
}

func (self *Renderer) label(slot *Slot, s string) *display.Label {
	l := &display.Label{Text: s, Face: self.face, Color: slot.Color}
	if slot.Face != nil {
		l.Face = slot.Face
	}
	if slot.Position != nil {
		l.At = *slot.Position
	}
	return l
}
