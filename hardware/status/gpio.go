package status

import (
	"github.com/juju/errors"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/host"
)

const pwmFrequency = 1 * physic.KiloHertz

// GpioPixel is RGB LED wired to three GPIO pins (common cathode).
// Channels are PWM dimmed where the pin supports it, otherwise on/off.
type GpioPixel struct {
	pins       [3]gpio.PinIO
	brightness float32
}

func NewGpioPixel(red, green, blue string, brightness float32) (*GpioPixel, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Annotate(err, "periph host init")
	}
	if brightness <= 0 || brightness > 1 {
		brightness = 1
	}
	p := &GpioPixel{brightness: brightness}
	for i, name := range []string{red, green, blue} {
		pin := gpioreg.ByName(name)
		if pin == nil {
			return nil, errors.NotFoundf("status pin=%s", name)
		}
		p.pins[i] = pin
	}
	return p, nil
}

func (self *GpioPixel) Fill(c Color) error {
	for i, v := range [3]uint8{c.R, c.G, c.B} {
		if err := self.channel(self.pins[i], v); err != nil {
			return errors.Annotatef(err, "pin=%s", self.pins[i].Name())
		}
	}
	return nil
}

func (self *GpioPixel) channel(pin gpio.PinIO, v uint8) error {
	if v == 0 {
		return pin.Out(gpio.Low)
	}
	duty := gpio.Duty(float32(gpio.DutyMax) * self.brightness * float32(v) / 255)
	if err := pin.PWM(duty, pwmFrequency); err != nil {
		return pin.Out(gpio.High)
	}
	return nil
}
