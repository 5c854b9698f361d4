package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/aps-lab/actuator/cmd/actuator/manual"
	"github.com/aps-lab/actuator/cmd/actuator/plan"
	"github.com/aps-lab/actuator/cmd/actuator/run"
	"github.com/aps-lab/actuator/cmd/actuator/subcmd"
	"github.com/aps-lab/actuator/helpers/cli"
	"github.com/aps-lab/actuator/internal/controller"
	"github.com/aps-lab/actuator/internal/state"
	"github.com/aps-lab/actuator/internal/tele"
	"github.com/aps-lab/actuator/log2"
	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"golang.org/x/sys/unix"
)

const haltMessage = "Script halted. Press ENTER to exit."

var modules = []subcmd.Mod{
	run.Mod,
	plan.Mod,
	manual.Mod,
}

func main() {
	flagConfig := flag.String("config", state.DefaultConfigName, "config file, .yaml/.yml or .hcl")
	flagNoPause := flag.Bool("no-pause", false, "do not wait for ENTER before exit on a terminal")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [options] [command]\n\nCommands:\n", os.Args[0])
		for _, m := range modules {
			fmt.Fprintf(flag.CommandLine.Output(), "  %-6s %s\n", m.Name, m.Usage)
		}
		fmt.Fprintf(flag.CommandLine.Output(), "\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		command = run.Mod.Name
	}
	mod, err := subcmd.Parse(command, modules)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		flag.Usage()
		os.Exit(controller.ExitConfig)
	}

	log := log2.NewStderr(log2.LInfo)
	if subcmd.SdNotify("start") {
		// under systemd assume journal logging, remove timestamp
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LInteractiveFlags)
	}

	code := runMod(log, mod, *flagConfig)
	if mod.Name == run.Mod.Name && !*flagNoPause {
		cli.WaitEnter(os.Stdout, haltMessage)
	}
	os.Exit(code)
}

func runMod(log *log2.Log, mod *subcmd.Mod, configPath string) int {
	ctx, g := state.NewContext(log, tele.New())

	config, err := state.ReadConfig(log, state.NewOsFullReader(), configPath)
	if err != nil {
		log.Error(errors.ErrorStack(err))
		return controller.ExitCode(err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, unix.SIGINT, unix.SIGTERM, unix.SIGHUP)
	defer signal.Stop(sigCh)
	go func() {
		s, ok := <-sigCh
		if !ok {
			return
		}
		log.Infof("signal=%v, halting", s)
		g.Stop()
	}()

	err = mod.Main(ctx, config)
	subcmd.SdNotify(daemon.SdNotifyStopping)
	if err != nil {
		log.Error(errors.ErrorStack(err))
	}
	return controller.ExitCode(err)
}
