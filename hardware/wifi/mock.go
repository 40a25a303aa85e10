package wifi

import (
	"context"
	"fmt"
	"sync"
)

// MockAdapter for tests. Probe fails ProbeFailures times,
// connection succeeds on ConnectAfter-th Connect call.
type MockAdapter struct {
	mu            sync.Mutex
	ProbeFailures int
	ConnectAfter  int
	ConnectErr    error
	Connected     bool

	Probes   int
	Resets   int
	Connects int
}

func (self *MockAdapter) FirmwareVersion(context.Context) (string, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.Probes++
	if self.Probes <= self.ProbeFailures {
		return "", fmt.Errorf("no response from adapter")
	}
	return "mock-1.0", nil
}

func (self *MockAdapter) Reset(context.Context) error {
	self.mu.Lock()
	self.Resets++
	self.mu.Unlock()
	return nil
}

func (self *MockAdapter) IsConnected(context.Context) bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.Connected
}

func (self *MockAdapter) Connect(_ context.Context, _ Credentials) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.Connects++
	if self.Connects >= self.ConnectAfter {
		self.Connected = true
		return nil
	}
	if self.ConnectErr != nil {
		return self.ConnectErr
	}
	return nil
}
