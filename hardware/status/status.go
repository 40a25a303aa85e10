// Package status drives the single RGB status light.
// Colors are the coarse pipeline phase signals, see Connecting..Off.
package status

import (
	"fmt"
	"sync"

	"github.com/temoto/portal/log2"
)

type Color struct{ R, G, B uint8 }

func (c Color) String() string { return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B) }
func (c Color) IsOff() bool    { return c == Off }

// Pipeline phase signals.
var (
	Off          = Color{0, 0, 0}
	Connecting   = Color{0, 0, 100}
	NotConnected = Color{100, 0, 0}
	Fetching     = Color{100, 100, 0}
	Received     = Color{0, 100, 100}
	Reading      = Fetching
	Writing      = Received
)

// Pixel is hardware able to show one color.
type Pixel interface {
	Fill(Color) error
}

// Signaler is what pipeline components need from the status light.
type Signaler interface {
	Set(Color)
}

// Indicator remembers last color and never fails upstream,
// hardware errors are only logged.
type Indicator struct {
	mu    sync.Mutex
	log   *log2.Log
	pixel Pixel
	last  Color
}

var _ Signaler = new(Indicator)

func NewIndicator(pixel Pixel, log *log2.Log) *Indicator {
	return &Indicator{pixel: pixel, log: log}
}

func (self *Indicator) Set(c Color) {
	if self == nil {
		return
	}
	self.mu.Lock()
	defer self.mu.Unlock()
	self.last = c
	if self.pixel == nil {
		return
	}
	if err := self.pixel.Fill(c); err != nil {
		self.log.Debugf("status fill color=%s err=%v", c, err)
	}
}

func (self *Indicator) Last() Color {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.last
}
