package portal

import (
	"context"
	"image"
	"image/color"
	"time"

	"github.com/juju/errors"
	"github.com/skip2/go-qrcode"
	"github.com/temoto/portal/hardware/audio"
	"github.com/temoto/portal/hardware/backlight"
	"github.com/temoto/portal/hardware/display"
	"github.com/temoto/portal/hardware/status"
	"github.com/temoto/portal/hardware/touch"
	"github.com/temoto/portal/hardware/wifi"
)

const qrModuleGrid = 32

// SetBackground shows image file at position, empty name removes background.
func (self *Portal) SetBackground(name string, at image.Point) error {
	if err := self.setBackground(name, at); err != nil {
		return err
	}
	return self.Display.Refresh()
}

func (self *Portal) setBackground(name string, at image.Point) error {
	self.Log.Debugf("set background to %q", name)
	return errors.Annotate(self.Background.SetAt(name, at), "background")
}

// SetBacklight brightness 0..1, out of range values are clamped.
func (self *Portal) SetBacklight(v float64) error {
	if self.Backlight == nil {
		return errors.NotSupportedf("backlight is not configured")
	}
	return errors.Annotate(self.Backlight.Set(backlight.Clamp(v)), "backlight")
}

func (self *Portal) SetCaption(text string, at *image.Point, c color.Color) error {
	self.Renderer.SetCaption(text, at, c)
	return self.Display.Refresh()
}

func (self *Portal) SetText(index int, s string) error {
	if err := self.Renderer.SetText(index, s); err != nil {
		return err
	}
	return self.Display.Refresh()
}

// PreloadFont returns number of glyphs found in text font.
func (self *Portal) PreloadFont(glyphs string) int {
	return self.Renderer.PreloadFont(glyphs)
}

// ShowQR draws QR code of size x size pixels, empty data removes it.
func (self *Portal) ShowQR(data string, size int, at image.Point) error {
	scene := self.Display.Scene()
	if data == "" {
		if self.qrHandle != 0 {
			scene.Remove(self.qrHandle)
			self.qrHandle = 0
		}
		return self.Display.Refresh()
	}
	if size <= 0 || size%qrModuleGrid != 0 {
		return errors.NotValidf("QR size=%d must be positive multiple of %d", size, qrModuleGrid)
	}
	sprite, err := display.NewQR(data, qrcode.Medium, size, true, at)
	if err != nil {
		return err
	}
	if self.qrHandle == 0 || scene.Replace(self.qrHandle, sprite) != nil {
		self.qrHandle = scene.Append(sprite)
	}
	return self.Display.Refresh()
}

// PlayFile blocks until WAV file is played.
func (self *Portal) PlayFile(ctx context.Context, name string) error {
	self.lk.Lock()
	if self.Player == nil {
		self.Player = audio.NewPlayer(self.Config.Audio.Command, self.Log)
	}
	player := self.Player
	self.lk.Unlock()
	return player.Play(ctx, name)
}

// NeoStatus sets status LED color directly.
func (self *Portal) NeoStatus(c status.Color) { self.Status.Set(c) }

// Touchscreen opens configured touch device on first call.
func (self *Portal) Touchscreen() (*touch.Touchscreen, error) {
	self.lk.Lock()
	defer self.lk.Unlock()
	if self.Touch != nil {
		return self.Touch, nil
	}
	cfg := &self.Config.Touch
	if cfg.Device == "" {
		return nil, errors.NotSupportedf("touch.device is not configured")
	}
	cal := touch.DefaultCalibration
	if len(cfg.Calibration) == 4 {
		cal = touch.Calibration{
			XMin: int32(cfg.Calibration[0]), XMax: int32(cfg.Calibration[1]),
			YMin: int32(cfg.Calibration[2]), YMax: int32(cfg.Calibration[3]),
		}
	}
	size := touch.DefaultSize
	if cfg.Width > 0 && cfg.Height > 0 {
		size = image.Point{X: cfg.Width, Y: cfg.Height}
	}
	ts, err := touch.Open(cfg.Device, cal, size, self.Log)
	if err != nil {
		return nil, errors.Annotatef(err, "config: touch.device=%s", cfg.Device)
	}
	self.Touch = ts
	return ts, nil
}

// Run calls Fetch every interval until Stop or ctx is done.
// Fetch errors are logged, only adapter loss stops the loop.
func (self *Portal) Run(ctx context.Context) error {
	if !self.Alive.Add(1) {
		return nil
	}
	defer self.Alive.Done()

	stopCh := self.Alive.StopChan()
	for {
		if _, err := self.Fetch(ctx); err != nil {
			if errors.Cause(err) == wifi.ErrAdapterNotFound {
				return err
			}
			self.Log.Errorf("run: %s", errors.ErrorStack(err))
		}
		tmr := time.NewTimer(self.fetchInterval)
		select {
		case <-tmr.C:
		case <-stopCh:
			tmr.Stop()
			return nil
		case <-ctx.Done():
			tmr.Stop()
			return ctx.Err()
		}
	}
}
