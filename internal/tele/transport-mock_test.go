package tele_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	tele_config "github.com/temoto/portal/internal/tele/config"
	"github.com/temoto/portal/log2"
)

type transportMock struct {
	t              testing.TB
	networkTimeout time.Duration
	outBuffer      int
	fail           int32 // number of Send* calls to fail
	outState       chan []byte
	outValues      chan []byte
	outError       chan []byte
	will           []byte
	closed         int32
}

func (self *transportMock) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, willPayload []byte) error {
	if self.networkTimeout == 0 {
		self.networkTimeout = 5 * time.Second
	}
	self.will = copyBytes(willPayload)
	self.outState = make(chan []byte, self.outBuffer)
	self.outValues = make(chan []byte, self.outBuffer)
	self.outError = make(chan []byte, self.outBuffer)
	return nil
}

func (self *transportMock) Close() { atomic.StoreInt32(&self.closed, 1) }

func (self *transportMock) SendState(payload []byte) bool {
	return self.send(self.outState, "state", payload)
}

func (self *transportMock) SendValues(payload []byte) bool {
	return self.send(self.outValues, "values", payload)
}

func (self *transportMock) SendError(payload []byte) bool {
	return self.send(self.outError, "error", payload)
}

func (self *transportMock) send(ch chan<- []byte, tag string, payload []byte) bool {
	if atomic.AddInt32(&self.fail, -1) >= 0 {
		self.t.Logf("mock network failure %s=%x", tag, payload)
		return false
	}
	select {
	case ch <- copyBytes(payload):
		self.t.Logf("mock delivered %s=%x", tag, payload)
	case <-time.After(self.networkTimeout):
		self.t.Logf("mock network timeout")
		return false
	}
	return true
}

// split send/receive buffer identity for safe concurrent access
func copyBytes(b []byte) []byte {
	new := make([]byte, len(b))
	copy(new, b)
	return new
}
