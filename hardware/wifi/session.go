package wifi

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/portal/hardware/status"
	"github.com/temoto/portal/helpers"
	"github.com/temoto/portal/log2"
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

type Config struct {
	ConnectBackoff helpers.Backoff // first for 64-bit atomic alignment
	InitRetries    int
	InitBackoff    time.Duration
	Timeout        time.Duration
	Transport      http.RoundTripper // nil = http.DefaultTransport
}

// Session is the only owner of connection state.
// Not safe for concurrent use, same as the pipeline driving it.
type Session struct {
	config  Config
	log     *log2.Log
	adapter Adapter
	creds   Credentials
	status  status.Signaler
	client  *http.Client
	state   int32
}

func NewSession(adapter Adapter, creds Credentials, sig status.Signaler, config Config, log *log2.Log) *Session {
	if config.InitRetries <= 0 {
		config.InitRetries = 3
	}
	if sig == nil {
		sig = status.NewIndicator(nil, log)
	}
	if config.ConnectBackoff.Max == 0 {
		config.ConnectBackoff = helpers.Backoff{Min: time.Second, Max: 30 * time.Second, K: 2}
	}
	return &Session{
		log:     log,
		adapter: adapter,
		creds:   creds,
		status:  sig,
		config:  config,
		client:  &http.Client{Transport: config.Transport, Timeout: config.Timeout},
	}
}

func (self *Session) Adapter() Adapter { return self.adapter }
func (self *Session) State() State     { return State(atomic.LoadInt32(&self.state)) }

func (self *Session) IsConnected(ctx context.Context) bool {
	ok := self.adapter.IsConnected(ctx)
	if !ok && self.State() == StateConnected {
		self.setState(StateDisconnected)
	}
	return ok
}

// Init probes adapter, resetting it between failed attempts.
func (self *Session) Init(ctx context.Context) error {
	bo := helpers.Backoff{Min: self.config.InitBackoff, Max: self.config.InitBackoff, K: 1}
	var lastErr error
	for i := 1; i <= self.config.InitRetries; i++ {
		fw, err := self.adapter.FirmwareVersion(ctx)
		if err == nil {
			self.log.Infof("network adapter firmware: %s", fw)
			return nil
		}
		lastErr = err
		self.log.Infof("network adapter probe attempt=%d/%d err=%v, retrying", i, self.config.InitRetries, err)
		if err := bo.Sleep(ctx, false); err != nil {
			return errors.Annotate(err, "network adapter init")
		}
		if err := self.adapter.Reset(ctx); err != nil {
			self.log.Debugf("network adapter reset err=%v", err)
		}
	}
	err := errors.Annotatef(ErrAdapterNotFound, "after %d attempts, last error: %v", self.config.InitRetries, lastErr)
	self.log.Error(err)
	return err
}

// EnsureConnected returns when adapter is connected or ctx is done.
func (self *Session) EnsureConnected(ctx context.Context) error {
	self.status.Set(status.Connecting)
	bo := &self.config.ConnectBackoff
	for !self.adapter.IsConnected(ctx) {
		if err := ctx.Err(); err != nil {
			self.setState(StateDisconnected)
			return errors.Annotate(err, "wifi connect")
		}
		self.setState(StateConnecting)
		self.status.Set(status.NotConnected)
		self.log.Infof("connecting to AP %s", self.creds)
		if err := self.adapter.Connect(ctx, self.creds); err != nil {
			self.log.Infof("could not connect to AP, retrying: %v", err)
			if err := bo.Sleep(ctx, false); err != nil {
				self.setState(StateDisconnected)
				return errors.Annotate(err, "wifi connect")
			}
			continue
		}
		bo.Reset()
	}
	self.setState(StateConnected)
	return nil
}

// Get reads whole body.
func (self *Session) Get(ctx context.Context, url string) (*Response, error) {
	r, err := self.GetStream(ctx, url)
	if err != nil {
		return nil, err
	}
	if _, err := r.Bytes(); err != nil {
		return nil, errors.Annotatef(err, "GET %s", url)
	}
	return r, nil
}

// GetStream leaves body unread, caller must Close response.
func (self *Session) GetStream(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Annotatef(err, "GET %s", url)
	}
	resp, err := self.client.Do(req)
	if err != nil {
		return nil, errors.Annotatef(err, "GET %s", url)
	}
	self.log.Debugf("GET %s status=%d length=%d", url, resp.StatusCode, resp.ContentLength)
	return newHTTPResponse(resp), nil
}

func (self *Session) setState(s State) { atomic.StoreInt32(&self.state, int32(s)) }
