// Package touch reads resistive touchscreen through evdev
// and maps raw readings to screen coordinates.
package touch

import (
	"image"
	"io"
	"os"
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/inputevent-go"
	"github.com/temoto/portal/log2"
)

// linux/input-event-codes.h
const (
	evSyn       = 0x00
	evKey       = 0x01
	evAbs       = 0x03
	absX        = 0x00
	absY        = 0x01
	absPressure = 0x18
	btnTouch    = 0x14a
)

// Calibration is raw reading range per axis.
type Calibration struct {
	XMin, XMax int32
	YMin, YMax int32
}

var DefaultCalibration = Calibration{5200, 59000, 5800, 57000}
var DefaultSize = image.Point{X: 320, Y: 240}

type Point struct {
	X, Y     int
	Pressure int
}

type Touchscreen struct {
	log   *log2.Log
	alive *alive.Alive
	r     io.ReadCloser
	cal   Calibration
	size  image.Point

	mu       sync.Mutex
	pending  Point
	current  Point
	touching bool
	hasKey   bool
}

func Open(device string, cal Calibration, size image.Point, log *log2.Log) (*Touchscreen, error) {
	f, err := os.Open(device)
	if err != nil {
		return nil, errors.Annotatef(err, "touch device=%s", device)
	}
	return New(f, cal, size, log), nil
}

// New starts background reader, call Close to stop it.
func New(r io.ReadCloser, cal Calibration, size image.Point, log *log2.Log) *Touchscreen {
	if size.X <= 0 || size.Y <= 0 {
		size = DefaultSize
	}
	self := &Touchscreen{
		log:   log,
		alive: alive.NewAlive(),
		r:     r,
		cal:   cal,
		size:  size,
	}
	self.alive.Add(1)
	go self.readLoop()
	return self
}

// TouchPoint returns current touch in screen coordinates, false when not touched.
func (self *Touchscreen) TouchPoint() (Point, bool) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if !self.touching {
		return Point{}, false
	}
	return self.current, true
}

func (self *Touchscreen) Close() error {
	self.alive.Stop()
	err := self.r.Close()
	self.alive.Wait()
	return errors.Annotate(err, "touch close")
}

func (self *Touchscreen) readLoop() {
	defer self.alive.Done()
	for {
		ev, err := inputevent.ReadOne(self.r)
		if err != nil {
			if self.alive.IsRunning() && errors.Cause(err) != io.EOF {
				self.log.Errorf("touch read err=%v", err)
			}
			return
		}
		self.handle(ev)
	}
}

func (self *Touchscreen) handle(ev inputevent.InputEvent) {
	self.mu.Lock()
	defer self.mu.Unlock()
	switch ev.Type {
	case evAbs:
		switch ev.Code {
		case absX:
			self.pending.X = scale(ev.Value, self.cal.XMin, self.cal.XMax, self.size.X)
		case absY:
			self.pending.Y = scale(ev.Value, self.cal.YMin, self.cal.YMax, self.size.Y)
		case absPressure:
			self.pending.Pressure = int(ev.Value)
			if !self.hasKey {
				self.touching = ev.Value > 0
			}
		}
	case evKey:
		if ev.Code == btnTouch {
			self.hasKey = true
			self.touching = ev.Value != int32(inputevent.KeyStateUp)
		}
	case evSyn:
		self.current = self.pending
	}
}

func scale(raw, min, max int32, size int) int {
	if max <= min {
		return 0
	}
	v := int(int64(raw-min) * int64(size) / int64(max-min))
	return clamp(v, 0, size-1)
}

func clamp(v, low, high int) int {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}
