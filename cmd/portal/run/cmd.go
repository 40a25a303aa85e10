package run

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/temoto/portal/cmd/portal/subcmd"
	"github.com/temoto/portal/internal/portal"
	"github.com/temoto/portal/internal/state"
)

var Mod = subcmd.Mod{Name: "run", Main: Main}

func Main(ctx context.Context, config *state.Config) error {
	p := portal.GetPortal(ctx)
	p.MustInit(ctx, config)
	defer func() {
		if err := p.Close(); err != nil {
			p.Log.Errorf("close: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		if s, ok := <-sigCh; ok {
			p.Log.Infof("signal=%v stopping", s)
			p.Stop()
		}
	}()

	if config.Time.Location != "" || config.Time.ServiceURL != "" {
		if _, err := p.GetLocalTime(ctx, config.Time.Location); err != nil {
			p.Log.Errorf("time sync: %v", err)
		}
	}

	subcmd.SdNotify(daemon.SdNotifyReady)
	p.Log.Debugf("portal init complete, running")
	if err := p.Run(ctx); err != nil {
		return errors.Annotate(err, "run")
	}
	return nil
}
