// Interactive access to portal operations, one command per line.
package console

import (
	"context"
	"image"
	"image/color"
	"strconv"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/temoto/portal/cmd/portal/subcmd"
	"github.com/temoto/portal/hardware/status"
	"github.com/temoto/portal/helpers/cli"
	"github.com/temoto/portal/internal/portal"
	"github.com/temoto/portal/internal/render"
	"github.com/temoto/portal/internal/state"
)

const modName = "console"

var Mod = subcmd.Mod{Name: modName, Main: Main}

type command struct {
	name  string
	usage string
	nargs int // minimum
	run   func(ctx context.Context, p *portal.Portal, args []string) error
}

var commands = []command{
	{"fetch", "fetch", 0, func(ctx context.Context, p *portal.Portal, _ []string) error {
		values, err := p.Fetch(ctx)
		if err == nil {
			p.Log.Infof("values=%v", values)
		}
		return err
	}},
	{"time", "time [location]", 0, func(ctx context.Context, p *portal.Portal, args []string) error {
		location := ""
		if len(args) > 0 {
			location = args[0]
		}
		_, err := p.GetLocalTime(ctx, location)
		return err
	}},
	{"text", "text INDEX STRING...", 2, func(_ context.Context, p *portal.Portal, args []string) error {
		index, err := strconv.Atoi(args[0])
		if err != nil {
			return errors.NotValidf("index=%s", args[0])
		}
		return p.SetText(index, strings.Join(args[1:], " "))
	}},
	{"caption", "caption X Y STRING...", 3, func(_ context.Context, p *portal.Portal, args []string) error {
		x, errx := strconv.Atoi(args[0])
		y, erry := strconv.Atoi(args[1])
		if errx != nil || erry != nil {
			return errors.NotValidf("position=%s,%s", args[0], args[1])
		}
		return p.SetCaption(strings.Join(args[2:], " "), &image.Point{X: x, Y: y}, color.White)
	}},
	{"bg", "bg FILE|-", 1, func(_ context.Context, p *portal.Portal, args []string) error {
		name := args[0]
		if name == "-" {
			name = ""
		}
		return p.SetBackground(name, image.Point{})
	}},
	{"backlight", "backlight 0..1", 1, func(_ context.Context, p *portal.Portal, args []string) error {
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return errors.NotValidf("backlight=%s", args[0])
		}
		return p.SetBacklight(v)
	}},
	{"qr", "qr SIZE [DATA]", 1, func(_ context.Context, p *portal.Portal, args []string) error {
		size, err := strconv.Atoi(args[0])
		if err != nil {
			return errors.NotValidf("size=%s", args[0])
		}
		return p.ShowQR(strings.Join(args[1:], " "), size, image.Point{})
	}},
	{"play", "play FILE", 1, func(ctx context.Context, p *portal.Portal, args []string) error {
		return p.PlayFile(ctx, args[0])
	}},
	{"neo", "neo RRGGBB", 1, func(_ context.Context, p *portal.Portal, args []string) error {
		c, err := render.ParseColor(args[0])
		if err != nil {
			return err
		}
		p.NeoStatus(status.Color{R: c.R, G: c.G, B: c.B})
		return nil
	}},
	{"wget", "wget URL FILE", 2, func(ctx context.Context, p *portal.Portal, args []string) error {
		return p.Wget(ctx, args[0], args[1])
	}},
	{"touch", "touch", 0, func(_ context.Context, p *portal.Portal, _ []string) error {
		ts, err := p.Touchscreen()
		if err != nil {
			return err
		}
		if pt, ok := ts.TouchPoint(); ok {
			p.Log.Infof("touch=%v", pt)
		} else {
			p.Log.Infof("touch none")
		}
		return nil
	}},
}

func Main(ctx context.Context, config *state.Config) error {
	p := portal.GetPortal(ctx)
	p.MustInit(ctx, config)
	defer func() {
		if err := p.Close(); err != nil {
			p.Log.Errorf("close: %v", err)
		}
	}()

	p.Log.Debugf("console init complete")
	return cli.MainLoop(modName, newExecutor(ctx), newCompleter(), func() {
		if err := p.Close(); err != nil {
			p.Log.Errorf("close: %v", err)
		}
	})
}

func newCompleter() cli.Completer {
	suggests := make([]prompt.Suggest, 0, len(commands))
	for _, c := range commands {
		suggests = append(suggests, prompt.Suggest{Text: c.name, Description: c.usage})
	}
	return func(d prompt.Document) []prompt.Suggest {
		return prompt.FilterHasPrefix(suggests, d.GetWordBeforeCursor(), true)
	}
}

func newExecutor(ctx context.Context) cli.Executor {
	p := portal.GetPortal(ctx)
	return func(line string) {
		if err := execLine(ctx, p, line); err != nil {
			p.Log.Error(errors.ErrorStack(err))
		}
	}
}

func execLine(ctx context.Context, p *portal.Portal, line string) error {
	words := strings.Fields(line)
	if len(words) == 0 {
		return nil
	}
	for _, c := range commands {
		if c.name != words[0] {
			continue
		}
		args := words[1:]
		if len(args) < c.nargs {
			return errors.NotValidf("usage: %s", c.usage)
		}
		return c.run(ctx, p, args)
	}
	return errors.NotFoundf("command=%s", words[0])
}
