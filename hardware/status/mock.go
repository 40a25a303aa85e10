package status

import "sync"

// MockPixel records every color, for tests.
type MockPixel struct {
	mu     sync.Mutex
	colors []Color
	Err    error
}

func (self *MockPixel) Fill(c Color) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.colors = append(self.colors, c)
	return self.Err
}

func (self *MockPixel) Colors() []Color {
	self.mu.Lock()
	defer self.mu.Unlock()
	return append([]Color(nil), self.colors...)
}

func (self *MockPixel) Reset() {
	self.mu.Lock()
	self.colors = nil
	self.mu.Unlock()
}
