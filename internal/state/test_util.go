package state

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/aps-lab/actuator/hardware/actuator"
	"github.com/aps-lab/actuator/internal/cycle"
	"github.com/aps-lab/actuator/log2"
	tele_api "github.com/aps-lab/actuator/tele"
)

// TestBaseConfig has all required keys. Tests append their own.
const TestBaseConfig = `
SERIAL_PORT: /dev/ttyTEST
CHECK_INTERVAL: 1
DATETIME_FORMAT: "2006-01-02 15:04:05"
DATE_FORMAT: "2006-01-02"
COLLECTION_TIME_DEFAULT: 1
`

type TestEnv struct {
	Ctx     context.Context
	G       *Global
	Mock    *actuator.Mock
	Clock   *cycle.FakeClock
	Console *bytes.Buffer
}

// NewTestContext builds Global on mock hardware, fake clock and temp dirs.
// confString is yaml appended after TestBaseConfig.
func NewTestContext(t testing.TB, confString string) *TestEnv {
	fs := NewMockFullReader(map[string]string{
		"test-inline.yaml": TestBaseConfig + confString,
	})

	var log *log2.Log
	if os.Getenv("actuator_test_log_stderr") == "1" {
		log = log2.NewStderr(log2.LDebug) // useful with panics
	} else {
		log = log2.NewTest(t, log2.LDebug)
	}
	log.SetFlags(log2.LTestFlags)
	ctx, g := NewContext(log, tele_api.NewStub())
	env := &TestEnv{
		Ctx:     ctx,
		G:       g,
		Mock:    actuator.NewMock(),
		Clock:   cycle.NewFakeClock(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)),
		Console: bytes.NewBuffer(nil),
	}
	g.Actuator = env.Mock
	g.Clock = env.Clock
	g.Console = env.Console

	cfg := MustReadConfig(log, fs, "test-inline.yaml")
	dir := t.TempDir()
	cfg.LogDir = dir + "/logs"
	cfg.Persist.Root = dir + "/db"
	g.MustInit(ctx, cfg)
	return env
}
