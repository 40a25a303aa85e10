// Package platform is the memory budget and device restart.
package platform

import (
	"runtime"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/juju/errors"
	"github.com/temoto/portal/log2"
	"golang.org/x/sys/unix"
)

// ErrOutOfMemory is the single memory exhaustion signal,
// recovered by restarting device.
var ErrOutOfMemory = errors.New("out of memory")

func IsOutOfMemory(err error) bool { return errors.Cause(err) == ErrOutOfMemory }

// Budget caps heap usage. Zero Limit disables checks.
type Budget struct {
	Limit    uint64
	ReadHeap func() uint64 // nil = runtime heap in use
}

// Reserve checks that n more bytes fit into budget.
func (self *Budget) Reserve(n int) error {
	if self == nil || self.Limit == 0 {
		return nil
	}
	read := self.ReadHeap
	if read == nil {
		read = HeapInUse
	}
	heap := read()
	if heap+uint64(n) > self.Limit {
		return errors.Annotatef(ErrOutOfMemory, "heap=%s need=%s limit=%s",
			humanize.IBytes(heap), humanize.IBytes(uint64(n)), humanize.IBytes(self.Limit))
	}
	return nil
}

func HeapInUse() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}

type Restarter interface {
	Restart(reason error) error
}

const ExitCodeRestart = 75

// NewRestarter mode: "reboot" or "exit" (service manager restarts process).
func NewRestarter(mode string, log *log2.Log) (Restarter, error) {
	switch mode {
	case "", "reboot":
		return &Reboot{log: log}, nil
	case "exit":
		return &Exit{log: log}, nil
	default:
		return nil, errors.NotValidf("restart mode=%q", mode)
	}
}

type Reboot struct{ log *log2.Log }

func (self *Reboot) Restart(reason error) error {
	self.log.Errorf("restarting device, reason: %v", reason)
	unix.Sync()
	return errors.Annotate(unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART), "reboot")
}

type Exit struct {
	log  *log2.Log
	exit func(int)
}

func (self *Exit) Restart(reason error) error {
	self.log.Errorf("restarting process, reason: %v", reason)
	if self.exit != nil {
		self.exit(ExitCodeRestart)
		return nil
	}
	unix.Exit(ExitCodeRestart)
	return nil
}

// MockRestarter records reasons, for tests.
type MockRestarter struct {
	mu      sync.Mutex
	Reasons []error
	Err     error
}

func (self *MockRestarter) Restart(reason error) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.Reasons = append(self.Reasons, reason)
	return self.Err
}
