package run

import (
	"context"

	"github.com/aps-lab/actuator/cmd/actuator/subcmd"
	"github.com/aps-lab/actuator/internal/controller"
	"github.com/aps-lab/actuator/internal/state"
	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
)

const modName = "run"

var Mod = subcmd.Mod{Name: modName, Usage: "drive the actuator through configured cycles (default)", Main: Main}

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	if err := g.Init(ctx, config); err != nil {
		g.Close()
		return errors.Annotate(err, "init")
	}
	defer g.Close()
	g.Log.Debugf("init complete, running serial=%s", config.SerialPort)
	subcmd.SdNotify(daemon.SdNotifyReady)

	result, err := controller.Run(ctx)
	g.Log.Debugf("run finished state=%s", result.String())
	return err
}
