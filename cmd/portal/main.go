package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/juju/errors"
	"github.com/temoto/portal/cmd/portal/console"
	"github.com/temoto/portal/cmd/portal/run"
	"github.com/temoto/portal/cmd/portal/subcmd"
	"github.com/temoto/portal/internal/portal"
	"github.com/temoto/portal/internal/state"
	"github.com/temoto/portal/log2"
)

var log = log2.NewStderr(log2.LDebug)

var modules = []subcmd.Mod{
	run.Mod,
	console.Mod,
}

func main() {
	flagset := flag.NewFlagSet("portal", flag.ContinueOnError)
	flagConfig := flagset.String("config", "portal.hcl", "")
	flagset.Usage = func() {
		fmt.Fprintf(flagset.Output(), "Usage: %s [option...] command\n\nCommands: %s\n\nOptions:\n", os.Args[0], subcmd.Names(modules))
		flagset.PrintDefaults()
	}

	err := flagset.Parse(os.Args[1:])
	if err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		log.Fatal(err)
	}

	command := flagset.Arg(0)
	if command == "" {
		command = run.Mod.Name
	}
	mod, err := subcmd.Parse(command, modules)
	if err != nil {
		flagset.Usage()
		log.Fatal(err)
	}

	if subcmd.SdNotify("start") {
		// under systemd assume journal logging, remove timestamp
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LInteractiveFlags)
	}

	p := portal.NewPortal(log)
	ctx := p.ContextWith(context.Background())

	fs, err := state.NewOsFullReader(".")
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	config := state.MustReadConfig(log, fs, *flagConfig)
	log.Debugf("config source=%s", *flagConfig)

	if err := mod.Main(ctx, config); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
}
