package display

import (
	"image/draw"
	"sync"

	"github.com/juju/errors"
)

// Element is anything the scene can composite.
type Element interface {
	Draw(dst draw.Image)
}

// Handle identifies scene element independent of its position.
// Zero Handle is never issued.
type Handle uint64

type sceneItem struct {
	h  Handle
	el Element
}

// Scene is ordered drawable collection, later elements draw on top.
type Scene struct {
	mu    sync.Mutex
	last  Handle
	items []sceneItem
}

func NewScene() *Scene { return &Scene{} }

func (self *Scene) Append(el Element) Handle {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.last++
	self.items = append(self.items, sceneItem{h: self.last, el: el})
	return self.last
}

// Insert places element at position i, clamped to [0,Len].
func (self *Scene) Insert(i int, el Element) Handle {
	self.mu.Lock()
	defer self.mu.Unlock()
	if i < 0 {
		i = 0
	}
	if i > len(self.items) {
		i = len(self.items)
	}
	self.last++
	self.items = append(self.items, sceneItem{})
	copy(self.items[i+1:], self.items[i:])
	self.items[i] = sceneItem{h: self.last, el: el}
	return self.last
}

// Replace swaps element in place, order of all elements is preserved.
func (self *Scene) Replace(h Handle, el Element) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	i := self.index(h)
	if i < 0 {
		return errors.NotFoundf("scene handle=%d", h)
	}
	self.items[i].el = el
	return nil
}

// Remove returns false if handle is absent, that is not an error.
func (self *Scene) Remove(h Handle) bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	i := self.index(h)
	if i < 0 {
		return false
	}
	self.items = append(self.items[:i], self.items[i+1:]...)
	return true
}

func (self *Scene) Get(h Handle) (Element, bool) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if i := self.index(h); i >= 0 {
		return self.items[i].el, true
	}
	return nil, false
}

func (self *Scene) Index(h Handle) int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.index(h)
}

func (self *Scene) Len() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return len(self.items)
}

func (self *Scene) Elements() []Element {
	self.mu.Lock()
	defer self.mu.Unlock()
	els := make([]Element, len(self.items))
	for i, item := range self.items {
		els[i] = item.el
	}
	return els
}

func (self *Scene) Draw(dst draw.Image) {
	for _, el := range self.Elements() {
		if el != nil {
			el.Draw(dst)
		}
	}
}

func (self *Scene) index(h Handle) int {
	for i, item := range self.items {
		if item.h == h {
			return i
		}
	}
	return -1
}
