package display

import (
	"image"
	_ "image/png"
	"io"
	"os"
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/portal/log2"
	_ "golang.org/x/image/bmp"
)

type Opener func(name string) (io.ReadCloser, error)

func OsOpener(name string) (io.ReadCloser, error) { return os.Open(name) }

// Background keeps at most one background sprite at the bottom of scene
// and at most one open image file.
type Background struct {
	mu     sync.Mutex
	log    *log2.Log
	scene  *Scene
	open   Opener
	file   io.Closer
	handle Handle
}

func NewBackground(scene *Scene, open Opener, log *log2.Log) *Background {
	if open == nil {
		open = OsOpener
	}
	return &Background{scene: scene, open: open, log: log}
}

// Set replaces background with image file (BMP or PNG).
// Empty name only removes current background.
func (self *Background) Set(name string) error { return self.SetAt(name, image.Point{}) }

// SetAt is Set with image top-left corner at given point.
func (self *Background) SetAt(name string, at image.Point) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.log.Debugf("set background to %q", name)

	if self.handle != 0 {
		self.scene.Remove(self.handle)
		self.handle = 0
	}
	if err := self.closeFile(); err != nil {
		self.log.Errorf("background close err=%v", err)
	}
	if name == "" {
		return nil
	}

	f, err := self.open(name)
	if err != nil {
		return errors.Annotatef(err, "background open %s", name)
	}
	self.file = f
	img, _, err := image.Decode(f)
	if err != nil {
		_ = self.closeFile()
		return errors.Annotatef(err, "background decode %s", name)
	}
	self.handle = self.scene.Insert(0, &Sprite{Image: img, At: at})
	return nil
}

func (self *Background) Handle() Handle {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.handle
}

func (self *Background) Close() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.closeFile()
}

func (self *Background) closeFile() error {
	if self.file == nil {
		return nil
	}
	err := self.file.Close()
	self.file = nil
	return err
}
