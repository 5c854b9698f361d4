package state

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aps-lab/actuator/hardware/actuator"
	"github.com/aps-lab/actuator/helpers"
	"github.com/aps-lab/actuator/internal/cycle"
	"github.com/aps-lab/actuator/internal/journal"
	"github.com/aps-lab/actuator/internal/persist"
	"github.com/aps-lab/actuator/log2"
	tele_api "github.com/aps-lab/actuator/tele"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
)

type Global struct {
	Alive    *alive.Alive
	Config   *Config
	Log      *log2.Log
	Clock    cycle.Clock
	Console  io.Writer
	Journal  *journal.Journal
	Actuator actuator.Actuator
	Tele     tele_api.Teler
	Run      persist.RunStore
}

const ContextKey = "run/state-global"

func NewContext(log *log2.Log, teler tele_api.Teler) (context.Context, *Global) {
	if log == nil {
		panic("code error NewContext() log=nil")
	}

	g := &Global{
		Alive:   alive.NewAlive(),
		Log:     log,
		Clock:   cycle.SystemClock{},
		Console: os.Stdout,
		Tele:    teler,
	}
	ctx := context.Background()
	ctx = context.WithValue(ctx, log2.ContextKey, log)
	ctx = context.WithValue(ctx, ContextKey, g)

	return ctx, g
}

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

// If `Init` fails, consider `Global` is in broken state.
// Fields set before Init (Actuator, Clock, Console) are kept, tests use that.
func (g *Global) Init(ctx context.Context, cfg *Config) error {
	g.Config = cfg
	if cfg.LogDebug {
		g.Log.SetLevel(log2.LDebug)
	}

	if g.Config.Persist.Root == "" {
		g.Config.Persist.Root = DefaultPersistDir
	}
	g.Log.Debugf("config: persist.root=%s", g.Config.Persist.Root)

	// Since tele is remote error reporting mechanism, it must be inited before anything else
	if g.Config.Tele.PersistPath == "" {
		g.Config.Tele.PersistPath = filepath.Join(g.Config.Persist.Root, "tele")
	}
	// Tele.Init gets g.Log clone before SetErrorFunc, so Tele.Log.Error doesn't recurse on itself
	if err := g.Tele.Init(ctx, g.Log.Clone(log2.LInfo), g.Config.Tele); err != nil {
		// run without telemetry rather than not run
		g.Log.Errorf("tele init err=%v, telemetry disabled", err)
		g.Tele = tele_api.NewStub()
	}
	g.Log.SetErrorFunc(g.Tele.Error)

	errs := make([]error, 0)
	if err := g.Run.Init(g.Config.Persist.Root, g.Config.Persist.Enable, g.Log); err != nil {
		errs = append(errs, errors.Annotate(err, "persist init"))
	}

	if g.Actuator == nil {
		g.Actuator = actuator.NewSerial(g.Log, g.Config.SerialPort, actuator.OpenSerial)
	}

	j, err := journal.Open(g.Log, g.Config.LogDir, g.Config.DateFmt, g.Config.DatetimeFmt, g.Clock.Now(), g.Console)
	if err != nil {
		errs = append(errs, errors.Annotate(err, "journal open"))
	} else {
		g.Journal = j
	}

	return helpers.FoldErrors(errs)
}

func (g *Global) MustInit(ctx context.Context, cfg *Config) {
	err := g.Init(ctx, cfg)
	if err != nil {
		g.Fatal(err)
	}
}

func (g *Global) Error(err error, args ...interface{}) {
	if err != nil {
		if len(args) != 0 {
			msg := args[0].(string)
			args = args[1:]
			err = errors.Annotatef(err, msg, args...)
		}
		// log error func forwards to tele
		g.Log.Error(err)
	}
}

func (g *Global) Fatal(err error, args ...interface{}) {
	if err != nil {
		g.Error(err, args...)
		g.StopWait(5 * time.Second)
		g.Log.Fatal(errors.ErrorStack(err))
	}
}

func (g *Global) Stop() {
	g.Alive.Stop()
}

func (g *Global) StopWait(timeout time.Duration) bool {
	g.Alive.Stop()
	select {
	case <-g.Alive.WaitChan():
		return true
	case <-time.After(timeout):
		return false
	}
}

// Close releases sinks owned by Global. Actuator is closed by the run controller.
func (g *Global) Close() {
	if g.Journal != nil {
		if err := g.Journal.Close(); err != nil {
			g.Log.Errorf("journal close err=%v", err)
		}
	}
	g.Tele.Close()
}
