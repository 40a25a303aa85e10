// Package rtc commits wall clock time to the system clock.
package rtc

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/juju/errors"
	"golang.org/x/sys/unix"
)

// LocalTime is broken down wall clock time as reported by time service.
type LocalTime struct {
	Year, Month, Day     int
	Hour, Minute, Second int
	WeekDay, YearDay     int
	DST                  bool
}

func (t LocalTime) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d wday=%d yday=%d dst=%t",
		t.Year, t.Month, t.Day, t.Hour, t.Minute, t.Second, t.WeekDay, t.YearDay, t.DST)
}

func (t LocalTime) Time(loc *time.Location) time.Time {
	return time.Date(t.Year, time.Month(t.Month), t.Day, t.Hour, t.Minute, t.Second, 0, loc)
}

// ParseDatetime splits "2019-03-01T12:34:56.123456+01:00" by 'T', '-', ':', '.'
// and takes first six integer components, fraction and offset are dropped.
func ParseDatetime(s string) (LocalTime, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == 'T' || r == '-' || r == ':' || r == '.'
	})
	if len(fields) < 6 {
		return LocalTime{}, errors.NotValidf("datetime=%q", s)
	}
	var xs [6]int
	for i := range xs {
		x, err := strconv.Atoi(fields[i])
		if err != nil {
			return LocalTime{}, errors.NotValidf("datetime=%q component=%q", s, fields[i])
		}
		xs[i] = x
	}
	return LocalTime{Year: xs[0], Month: xs[1], Day: xs[2], Hour: xs[3], Minute: xs[4], Second: xs[5]}, nil
}

type Clock interface {
	Set(LocalTime) error
}

// System sets kernel clock, requires CAP_SYS_TIME.
type System struct{ Location *time.Location }

func (self System) Set(t LocalTime) error {
	loc := self.Location
	if loc == nil {
		loc = time.Local
	}
	tv := unix.NsecToTimeval(t.Time(loc).UnixNano())
	return errors.Annotatef(unix.Settimeofday(&tv), "settimeofday %s", t)
}

// Mock remembers last set time.
type Mock struct {
	mu   sync.Mutex
	Last *LocalTime
	Err  error
}

func (self *Mock) Set(t LocalTime) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.Err != nil {
		return self.Err
	}
	self.Last = &t
	return nil
}
