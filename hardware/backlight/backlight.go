// Package backlight controls display brightness.
package backlight

import (
	"io/ioutil"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/host"
)

type Backlight interface {
	// Set brightness, value is clamped to [0,1].
	Set(v float64) error
}

func Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

// Pin drives backlight with PWM duty cycle.
type Pin struct {
	pin  gpio.PinIO
	freq physic.Frequency
}

func NewPin(name string) (*Pin, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Annotate(err, "periph/init")
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, errors.NotFoundf("backlight pin=%s", name)
	}
	return &Pin{pin: pin, freq: 10 * physic.KiloHertz}, nil
}

func (self *Pin) Set(v float64) error {
	v = Clamp(v)
	duty := gpio.Duty(v * float64(gpio.DutyMax))
	err := self.pin.PWM(duty, self.freq)
	return errors.Annotatef(err, "backlight pin=%s duty=%s", self.pin.Name(), duty)
}

// Sysfs is /sys/class/backlight/<name> device.
type Sysfs struct {
	dir string
	max int
}

func NewSysfs(dir string) (*Sysfs, error) {
	b, err := ioutil.ReadFile(filepath.Join(dir, "max_brightness"))
	if err != nil {
		return nil, errors.Annotate(err, "backlight sysfs")
	}
	max, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || max <= 0 {
		return nil, errors.NotValidf("backlight %s max_brightness=%q", dir, b)
	}
	return &Sysfs{dir: dir, max: max}, nil
}

func (self *Sysfs) Set(v float64) error {
	level := int(math.Round(Clamp(v) * float64(self.max)))
	err := ioutil.WriteFile(filepath.Join(self.dir, "brightness"), []byte(strconv.Itoa(level)), 0644)
	return errors.Annotate(err, "backlight sysfs")
}

// Mock remembers last value.
type Mock struct{ Value float64 }

func (self *Mock) Set(v float64) error {
	self.Value = Clamp(v)
	return nil
}
