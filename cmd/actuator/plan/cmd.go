// Package plan prints the schedule without touching the device.
package plan

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aps-lab/actuator/cmd/actuator/subcmd"
	"github.com/aps-lab/actuator/helpers"
	"github.com/aps-lab/actuator/internal/cycle"
	"github.com/aps-lab/actuator/internal/state"
)

const modName = "plan"

// preview length when cycles are unbounded
const defaultPreviewCycles = 2

var Mod = subcmd.Mod{Name: modName, Usage: "validate config and print the schedule", Main: Main}

func Main(ctx context.Context, config *state.Config) error {
	cycles := defaultPreviewCycles
	if n, err := parseCycles(flag.Args()); err != nil {
		return err
	} else if n > 0 {
		cycles = n
	}
	return Print(os.Stdout, config, time.Now(), cycles)
}

// `actuator plan [N]`
func parseCycles(args []string) (int, error) {
	if len(args) < 2 {
		return 0, nil
	}
	var n int
	if _, err := fmt.Sscan(args[1], &n); err != nil || n < 1 {
		return 0, fmt.Errorf("plan cycles=%q expected positive integer", args[1])
	}
	return n, nil
}

// Print writes expected deadlines as if the run started at start.
// Polling overshoot is not included.
func Print(w io.Writer, config *state.Config, start time.Time, cycles int) error {
	plan := config.Plan()
	if plan.Bounded() && plan.Cycles < cycles {
		cycles = plan.Cycles
	}
	b := &strings.Builder{}
	fmt.Fprintf(b, "serial=%s check_interval=%s cycles=%s starting_position=%d\n",
		config.SerialPort, config.CheckIntervalDuration(), cyclesString(plan), plan.StartingPosition)
	now := start
	for c := 1; c <= cycles; c++ {
		fmt.Fprintf(b, "cycle %d (%s)\n", c, helpers.FormatClock(plan.CycleDuration(c)))
		for _, pos := range plan.Sequence(c) {
			deadline, delta := plan.Resolve(pos, c, now)
			fmt.Fprintf(b, "  %s position=%d collection=%s\n", config.DatetimeFmt.Format(now), pos, helpers.FormatClock(delta))
			now = deadline
		}
	}
	fmt.Fprintf(b, "end %s\n", config.DatetimeFmt.Format(now))
	return helpers.WriteAll(w, []byte(b.String()))
}

func cyclesString(plan *cycle.Plan) string {
	if !plan.Bounded() {
		return "unbounded"
	}
	return fmt.Sprint(plan.Cycles)
}
