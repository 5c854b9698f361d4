// Package manual is interactive positioning for setup and diagnostics.
package manual

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/aps-lab/actuator/cmd/actuator/subcmd"
	"github.com/aps-lab/actuator/hardware/actuator"
	"github.com/aps-lab/actuator/helpers/cli"
	"github.com/aps-lab/actuator/internal/state"
	"github.com/c-bata/go-prompt"
	"github.com/juju/errors"
)

const modName = "cli"

var Mod = subcmd.Mod{Name: modName, Usage: "manual positioning prompt", Main: Main}

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	if g.Actuator == nil {
		g.Actuator = actuator.NewSerial(g.Log, config.SerialPort, actuator.OpenSerial)
	}
	finish := func() {
		if err := g.Actuator.Close(); err != nil {
			g.Log.Error(errors.Annotate(err, "actuator close"))
		}
	}
	cli.MainLoop(modName, NewExecutor(g.Actuator, os.Stdout), newCompleter(), IsExit, finish)
	return nil
}

func IsExit(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "exit", "quit", "q":
		return true
	}
	return false
}

var suggests = []prompt.Suggest{
	{Text: "go", Description: "go <1-10> move to position"},
	{Text: "close", Description: "release serial port"},
	{Text: "help"},
	{Text: "exit"},
}

func newCompleter() func(d prompt.Document) []prompt.Suggest {
	return func(d prompt.Document) []prompt.Suggest {
		return prompt.FilterHasPrefix(suggests, d.GetWordBeforeCursor(), true)
	}
}

// NewExecutor accepts `go <p>`, `GO<p>`, bare `<p>`, `close` and `help`.
func NewExecutor(a actuator.Actuator, w io.Writer) func(string) {
	reply := func(format string, args ...interface{}) {
		_, _ = fmt.Fprintf(w, format+"\n", args...)
	}
	return func(line string) {
		line = strings.TrimSpace(line)
		word := strings.ToLower(line)
		switch {
		case word == "":
			return
		case word == "help":
			for _, s := range suggests {
				reply("%s\t%s", s.Text, s.Description)
			}
			return
		case word == "close":
			if err := a.Close(); err != nil {
				reply("error: %v", err)
			}
			return
		}

		arg := strings.TrimSpace(strings.TrimPrefix(word, "go"))
		pos, err := strconv.Atoi(arg)
		if err != nil {
			reply("error: unknown command=%q, try help", line)
			return
		}
		if err := a.SetPosition(pos); err != nil {
			reply("error: %v", err)
			return
		}
		reply("set position: %d", pos)
	}
}
