// Package framebuffer writes RGBA frames to a Linux fbdev.
package framebuffer

import (
	"encoding/binary"
	"image"
	"image/color"
	"os"
	"unsafe"

	"github.com/juju/errors"
	"golang.org/x/sys/unix"
)

type Framebuffer struct {
	buf    []byte
	dev    *os.File
	finfo  fixedScreenInfo
	vinfo  variableScreenInfo
	stride int
}

func New(dev string) (*Framebuffer, error) {
	devFile, err := os.OpenFile(dev, os.O_RDWR, os.ModeDevice)
	if err != nil {
		return nil, errors.Annotate(err, "open")
	}
	fb := &Framebuffer{dev: devFile}
	fd := fb.dev.Fd()

	if err = ioctl(fd, getFixedScreenInfo, uintptr(unsafe.Pointer(&fb.finfo))); err != nil {
		fb.dev.Close()
		return nil, errors.Annotate(err, "getFixedScreenInfo")
	}
	if err = ioctl(fd, getVariableScreenInfo, uintptr(unsafe.Pointer(&fb.vinfo))); err != nil {
		fb.dev.Close()
		return nil, errors.Annotate(err, "getVariableScreenInfo")
	}

	fb.stride = int(fb.finfo.Line_length)
	if fb.stride == 0 {
		fb.stride = int(fb.vinfo.Xres * fb.vinfo.Bits_per_pixel / 8)
	}
	fb.buf = make([]byte, fb.stride*int(fb.vinfo.Yres))
	return fb, nil
}

func (fb *Framebuffer) Close() error {
	return fb.dev.Close()
}

func (fb *Framebuffer) Flush() error {
	_, err := fb.dev.WriteAt(fb.buf, 0)
	return errors.Annotate(err, "framebuffer write")
}

func (fb *Framebuffer) Size() image.Point {
	return image.Point{X: int(fb.vinfo.Xres), Y: int(fb.vinfo.Yres)}
}

// Update converts frame into internal buffer, call Flush() to write to hardware.
// Pixels outside of framebuffer are ignored.
func (fb *Framebuffer) Update(frame *image.RGBA) error {
	size := fb.Size()
	r := frame.Bounds().Intersect(image.Rectangle{Max: size})
	switch {
	case fb.vinfo.Bits_per_pixel == 16 && fb.isModel(rgb565):
		for y := r.Min.Y; y < r.Max.Y; y++ {
			row := fb.buf[y*fb.stride:]
			for x := r.Min.X; x < r.Max.X; x++ {
				binary.LittleEndian.PutUint16(row[x*2:], encode565(frame.RGBAAt(x, y)))
			}
		}
		return nil

	case fb.vinfo.Bits_per_pixel == 32 && fb.isModel(xrgb8888):
		for y := r.Min.Y; y < r.Max.Y; y++ {
			row := fb.buf[y*fb.stride:]
			for x := r.Min.X; x < r.Max.X; x++ {
				c := frame.RGBAAt(x, y)
				row[x*4+0] = c.B
				row[x*4+1] = c.G
				row[x*4+2] = c.R
				row[x*4+3] = 0xff
			}
		}
		return nil

	default:
		return errors.NotSupportedf("color model bpp=%d", fb.vinfo.Bits_per_pixel)
	}
}

func (fb *Framebuffer) isModel(m variableScreenInfo) bool {
	return fb.vinfo.Red == m.Red && fb.vinfo.Green == m.Green && fb.vinfo.Blue == m.Blue
}

var rgb565 = variableScreenInfo{
	Red:   bitField{Offset: 11, Length: 5},
	Green: bitField{Offset: 5, Length: 6},
	Blue:  bitField{Offset: 0, Length: 5},
}

var xrgb8888 = variableScreenInfo{
	Red:   bitField{Offset: 16, Length: 8},
	Green: bitField{Offset: 8, Length: 8},
	Blue:  bitField{Offset: 0, Length: 8},
}

func encode565(c color.RGBA) uint16 {
	return (uint16(c.R) & 0xf8 << 8) | (uint16(c.G) & 0xfc << 3) | (uint16(c.B) & 0xf8 >> 3)
}

func ioctl(fd uintptr, cmd uintptr, data uintptr) error {
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, cmd, data); errno != 0 {
		return os.NewSyscallError("ioctl", errno)
	}
	return nil
}
