package wifi

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/juju/errors"
)

const nmcliTimeout = 30 * time.Second

// Runner executes command and returns trimmed combined output.
type Runner func(ctx context.Context, name string, args ...string) (string, error)

func ExecRunner(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, nmcliTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	s := strings.TrimSpace(string(out))
	if ctx.Err() == context.DeadlineExceeded {
		return s, errors.Timeoutf("%s %v", name, redactArgs(args))
	}
	if err != nil {
		if s != "" {
			return s, errors.Annotatef(err, "%s %v: %s", name, redactArgs(args), s)
		}
		return s, errors.Annotatef(err, "%s %v", name, redactArgs(args))
	}
	return s, nil
}

func redactArgs(args []string) []string {
	out := append([]string(nil), args...)
	for i := 1; i < len(out); i++ {
		if out[i-1] == "password" {
			out[i] = "***"
		}
	}
	return out
}

// Nmcli drives NetworkManager through its command line tool.
type Nmcli struct {
	Iface string
	run   Runner
}

func NewNmcli(iface string, run Runner) *Nmcli {
	if run == nil {
		run = ExecRunner
	}
	return &Nmcli{Iface: iface, run: run}
}

func (self *Nmcli) FirmwareVersion(ctx context.Context) (string, error) {
	out, err := self.run(ctx, "nmcli", "--version")
	if err != nil {
		return "", err
	}
	if self.Iface != "" {
		if _, ok := self.deviceStates(ctx)[self.Iface]; !ok {
			return "", errors.NotFoundf("nmcli device=%s", self.Iface)
		}
	}
	return out, nil
}

func (self *Nmcli) Reset(ctx context.Context) error {
	if _, err := self.run(ctx, "nmcli", "radio", "wifi", "off"); err != nil {
		return err
	}
	_, err := self.run(ctx, "nmcli", "radio", "wifi", "on")
	return err
}

func (self *Nmcli) IsConnected(ctx context.Context) bool {
	for dev, state := range self.deviceStates(ctx) {
		if (self.Iface == "" || dev == self.Iface) && state == "connected" {
			return true
		}
	}
	return false
}

func (self *Nmcli) Connect(ctx context.Context, creds Credentials) error {
	// nmcli dev wifi connect <ssid> [password <password>] [ifname <iface>]
	args := []string{"dev", "wifi", "connect", creds.SSID}
	if strings.TrimSpace(creds.Password) != "" {
		args = append(args, "password", creds.Password)
	}
	if self.Iface != "" {
		args = append(args, "ifname", self.Iface)
	}
	_, err := self.run(ctx, "nmcli", args...)
	return errors.Annotatef(err, "wifi connect %s", creds)
}

// deviceStates parses `nmcli -t -f DEVICE,TYPE,STATE dev` wifi lines.
func (self *Nmcli) deviceStates(ctx context.Context) map[string]string {
	out, err := self.run(ctx, "nmcli", "-t", "-f", "DEVICE,TYPE,STATE", "dev")
	if err != nil {
		return nil
	}
	m := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		parts := strings.Split(strings.TrimSpace(line), ":")
		if len(parts) < 3 || parts[1] != "wifi" {
			continue
		}
		m[parts[0]] = parts[2]
	}
	return m
}
