package tele

import (
	"context"
	"time"

	"github.com/golang/protobuf/proto"
	structpb "github.com/golang/protobuf/ptypes/struct"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/portal/helpers"
	tele_config "github.com/temoto/portal/internal/tele/config"
	"github.com/temoto/portal/log2"
	"github.com/temoto/spq"
)

const DefaultNetworkTimeout = 30 * time.Second

// State is the single byte retained in `<client_id>/state`.
type State byte

const (
	StateDisconnected State = 0
	StateOnline       State = 1
)

// Teler publishes board values and errors.
type Teler interface {
	Values([]interface{})
	Error(error)
	Close()
}

type Noop struct{}

var _ Teler = Noop{} // compile-time interface test

func (Noop) Values([]interface{}) {}
func (Noop) Error(error)          {}
func (Noop) Close()               {}

// Tele contract:
// - Init() fails only with invalid config, network issues ignored
// - Values/Error block at most for disk write,
//   network may be slow or absent, messages will be delivered in background
// - Values/Error messages delivered at least once
// - State messages may be lost
type Tele struct { //nolint:maligned
	enabled   bool
	log       *log2.Log
	transport Transporter
	q         *spq.Queue
	alive     *alive.Alive
	backoff   helpers.Backoff
}

var _ Teler = &Tele{} // compile-time interface test

func New() *Tele { return &Tele{} }

func NewWithTransporter(t Transporter) *Tele { return &Tele{transport: t} }

func (self *Tele) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config) error {
	self.enabled = teleConfig.Enabled
	self.log = log.Clone(log2.LInfo)
	// queue failures must not loop back into Error()
	self.log.SetErrorFunc(nil)
	if teleConfig.LogDebug {
		self.log.SetLevel(log2.LDebug)
	}
	if !self.enabled {
		return nil
	}
	if teleConfig.ClientID == "" {
		return errors.NotValidf("tele client_id=empty")
	}
	if teleConfig.PersistPath == "" {
		return errors.NotValidf("tele persist path=empty")
	}

	self.backoff = helpers.Backoff{
		Min: time.Second,
		Max: helpers.IntSecondDefault(teleConfig.NetworkTimeoutSec, DefaultNetworkTimeout),
		K:   2,
	}
	var err error
	self.q, err = spq.Open(teleConfig.PersistPath)
	if err != nil {
		return errors.Annotate(err, "tele queue")
	}

	willPayload := []byte{byte(StateDisconnected)}
	// test code sets .transport
	if self.transport == nil { // production path
		self.transport = &transportMqtt{}
	}
	if err := self.transport.Init(ctx, self.log, teleConfig, willPayload); err != nil {
		_ = self.q.Close()
		return errors.Annotate(err, "tele transport")
	}

	self.alive = alive.NewAlive()
	self.alive.Add(1)
	go self.qworker()
	self.transport.SendState([]byte{byte(StateOnline)})
	return nil
}

// Close stops the queue worker. Undelivered messages stay on disk until next start.
func (self *Tele) Close() {
	if !self.enabled || self.alive == nil {
		return
	}
	self.alive.Stop()
	if err := self.q.Close(); err != nil {
		self.log.Errorf("tele queue close err=%v", err)
	}
	self.alive.Wait()
	self.transport.Close()
}

func (self *Tele) Values(values []interface{}) {
	if !self.enabled {
		return
	}
	list, err := ListValue(values)
	if err != nil {
		self.log.Errorf("tele values=%v err=%v", values, err)
		return
	}
	if err := self.qpushTagProto(qValues, list); err != nil {
		self.log.Errorf("CRITICAL tele values err=%v", err)
	}
}

// Error must not be called from log2 error hook with the same Log,
// queue failures are reported through it.
func (self *Tele) Error(e error) {
	if !self.enabled || e == nil {
		return
	}
	self.log.Debugf("tele.Error: %s", errors.ErrorStack(e))
	s := &structpb.Struct{Fields: map[string]*structpb.Value{
		"message": {Kind: &structpb.Value_StringValue{StringValue: e.Error()}},
		"time":    {Kind: &structpb.Value_NumberValue{NumberValue: float64(time.Now().Unix())}},
	}}
	if err := self.qpushTagProto(qError, s); err != nil {
		self.log.Infof("CRITICAL tele error=%v push err=%v", e, err)
	}
}

// denote value type in persistent queue bytes form
const (
	qValues byte = 1
	qError  byte = 2
)

func (self *Tele) qworker() {
	defer self.alive.Done()
	stopCh := self.alive.StopChan()
	for {
		box, err := self.q.Peek()
		switch err {
		case nil:
			// success path
			b := box.Bytes()
			var del bool
			del, err = self.qhandle(b)
			if err != nil {
				self.log.Errorf("tele qhandle b=%x err=%v", b, err)
			}
			if del {
				if err = self.q.Delete(box); err != nil {
					self.log.Errorf("tele qhandle Delete b=%x err=%v", b, err)
				}
				self.backoff.Reset()
				continue
			}
			if err = self.q.DeletePush(box); err != nil {
				self.log.Errorf("tele qhandle DeletePush b=%x err=%v", b, err)
			}
			tmr := time.NewTimer(self.backoff.DelayAfter(false))
			select {
			case <-tmr.C:
			case <-stopCh:
				tmr.Stop()
				return
			}

		case spq.ErrClosed:
			select {
			case <-stopCh: // success path
			default:
				self.log.Errorf("CRITICAL tele spq closed unexpectedly")
			}
			return

		default:
			self.log.Errorf("CRITICAL tele spq err=%v", err)
			select {
			case <-time.After(self.backoff.DelayAfter(false)):
			case <-stopCh:
				return
			}
		}
	}
}

// qhandle returns true when item should be removed from queue.
func (self *Tele) qhandle(b []byte) (bool, error) {
	if len(b) == 0 {
		return true, errors.Errorf("tele spq peek=empty")
	}

	switch b[0] {
	case qValues:
		var list structpb.ListValue
		if err := proto.Unmarshal(b[1:], &list); err != nil {
			return true, err
		}
		return self.transport.SendValues(b[1:]), nil

	case qError:
		var s structpb.Struct
		if err := proto.Unmarshal(b[1:], &s); err != nil {
			return true, err
		}
		return self.transport.SendError(b[1:]), nil

	default:
		err := errors.Errorf("unknown kind=%d", b[0])
		return true, err
	}
}

func (self *Tele) qpushTagProto(tag byte, pb proto.Message) error {
	buf := proto.NewBuffer(make([]byte, 0, 1024))
	if err := buf.EncodeVarint(uint64(tag)); err != nil {
		return err
	}
	if err := buf.Marshal(pb); err != nil {
		return err
	}
	return self.q.Push(buf.Bytes())
}
