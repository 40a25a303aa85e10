// Package wifi owns network adapter bring-up, access point connection
// with retries and HTTP requests over it.
package wifi

import (
	"context"
	"fmt"

	"github.com/juju/errors"
)

var ErrAdapterNotFound = fmt.Errorf("network adapter not found")

type Credentials struct {
	SSID     string
	Password string
}

func (c Credentials) String() string { return fmt.Sprintf("ssid=%q", c.SSID) }

// Adapter is network coprocessor or OS network stack.
type Adapter interface {
	FirmwareVersion(ctx context.Context) (string, error)
	Reset(ctx context.Context) error
	IsConnected(ctx context.Context) bool
	Connect(ctx context.Context, creds Credentials) error
}

// NewAdapter by kind: "nmcli", "none" (wired or externally managed link).
func NewAdapter(kind string, iface string) (Adapter, error) {
	switch kind {
	case "", "nmcli":
		return NewNmcli(iface, nil), nil
	case "none":
		return Wired{}, nil
	default:
		return nil, errors.NotValidf("network adapter=%q", kind)
	}
}

// Wired reports always connected.
type Wired struct{}

func (Wired) FirmwareVersion(context.Context) (string, error) { return "wired", nil }
func (Wired) Reset(context.Context) error                     { return nil }
func (Wired) IsConnected(context.Context) bool                { return true }
func (Wired) Connect(context.Context, Credentials) error      { return nil }
