// Package controller runs the cycle driver between Starting and Exiting banners
// and owns cleanup of the serial port.
package controller

import (
	"context"

	"github.com/aps-lab/actuator/internal/cycle"
	"github.com/aps-lab/actuator/internal/state"
	"github.com/aps-lab/actuator/internal/status"
	tele_api "github.com/aps-lab/actuator/tele"
	"github.com/juju/errors"
	"golang.org/x/sync/errgroup"
)

const (
	ConsoleHint = "Press CTRL+C to safely halt the script."

	BannerStarting = "Starting"
	BannerExiting  = "Exiting"
)

const (
	ExitOK      = 0
	ExitFailure = 1
	ExitConfig  = 2
)

// ExitCode maps run result to process status. Halt and completion are both success.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case state.IsConfigError(err):
		return ExitConfig
	}
	return ExitFailure
}

// Run blocks until plan completes, g.Alive is stopped or transport fails.
// Interruption is not an error.
func Run(ctx context.Context) (result cycle.State, err error) {
	g := state.GetGlobal(ctx)
	g.Alive.Add(1)
	defer g.Alive.Done()

	if prev := g.Run.Last(); prev.Position != 0 {
		g.Log.Infof("previous run stopped at %s, starting from cycle 1", prev.String())
	}

	plan := g.Config.Plan()
	driver := cycle.NewDriver(plan, g.Config.CheckIntervalDuration(), g.Actuator, g.Journal, g.Clock, g.Log)
	driver.Observe(g.Tele.Transition)
	driver.Observe(func(v cycle.Visit) {
		if err := g.Run.Record(v); err != nil {
			g.Error(err)
		}
	})
	var srv *status.Server
	if listen := g.Config.Status.Listen; listen != "" {
		srv = status.NewServer(g.Log, listen, plan, g.Clock)
		srv.Attach(driver)
	}

	g.Journal.Console(ConsoleHint)
	if err = g.Journal.Banner(BannerStarting, g.Clock.Now()); err != nil {
		return cycle.StateIdle, errors.Annotate(err, "starting banner")
	}
	g.Tele.State(tele_api.StateRunning)

	defer func() {
		if g.Actuator.Opened() {
			if cerr := g.Actuator.Close(); cerr != nil {
				g.Error(cerr, "actuator close")
			}
		}
		if berr := g.Journal.Banner(BannerExiting, g.Clock.Now()); berr != nil && err == nil {
			err = errors.Annotate(berr, "exiting banner")
		}
		if err != nil {
			g.Error(err)
			g.Tele.State(tele_api.StateProblem)
		} else {
			g.Tele.State(tele_api.StateFromCycle(result))
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-g.Alive.StopChan():
			g.Log.Debugf("controller stop requested")
			cancel()
		case <-runCtx.Done():
		}
	}()

	group, gctx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		// status server lives while driver runs
		defer cancel()
		var derr error
		result, derr = driver.Run(gctx)
		return derr
	})
	if srv != nil {
		group.Go(func() error { return srv.Run(gctx) })
	}
	err = group.Wait()
	return result, err
}
