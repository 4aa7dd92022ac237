package main

import (
	"context"
	"flag"
	"os"

	"github.com/airq/airnode/internal/state"
	"github.com/airq/airnode/log2"
	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/mattn/go-isatty"
)

var log = log2.NewStderr(log2.LDebug)

func main() {
	flagConfig := flag.String("config", state.DefaultConfigPath, "")
	flag.Parse()

	if sdnotify("STATUS=start") || !isatty.IsTerminal(os.Stderr.Fd()) {
		// systemd journal adds timestamps
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LInteractiveFlags)
	}
	log.Infof("airnode start")

	config := state.MustReadConfig(log, state.NewOsFullReader(), *flagConfig)
	if !config.Log.Debug {
		log.SetLevel(log2.LInfo)
	}

	g := state.NewGlobal(config, log)
	g.Init()
	sdnotify(daemon.SdNotifyReady)

	// production Restarter reboots, Run returns only if that failed
	err := g.Run(context.Background())
	log.Fatal(errors.ErrorStack(err))
}

func sdnotify(s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		log.Errorf("sdnotify err=%v", err)
	}
	return ok
}
