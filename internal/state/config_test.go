package state

import (
	"bytes"
	"testing"
	"time"

	"github.com/aps-lab/actuator/internal/cycle"
	"github.com/aps-lab/actuator/log2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadConfig(t *testing.T) {
	t.Parallel()

	type Case struct {
		name      string
		file      string
		input     string
		check     func(testing.TB, *Config)
		expectErr string
	}
	cases := []Case{
		{"yaml-minimal", "config.yaml", TestBaseConfig, func(t testing.TB, c *Config) {
			assert.Equal(t, "/dev/ttyTEST", c.SerialPort)
			assert.Equal(t, 1, c.StartingPosition, "default starting position")
			assert.Equal(t, 0, c.NumberOfCycles)
			assert.Equal(t, DefaultLogDir, c.LogDir)
			assert.True(t, c.Overrides.Empty())
			assert.Equal(t, "2006-01-02", c.DateFmt.String())
		}, ""},

		{"yaml-full", "config.yml", `
SERIAL_PORT: COM3
CHECK_INTERVAL: 0.5
DATETIME_FORMAT: YYYY-MM-DD HH:mm:ss
DATE_FORMAT: YYYY-MM-DD
COLLECTION_TIME_DEFAULT: 1.5
NUMBER_OF_CYCLES: 2
STARTING_POSITION: 4
LOG_DIR: /var/log/actuator
optional:
  CYCLE_ALL:
    COLLECTION_TIME_POS_5: 3
  CYCLE_1:
    COLLECTION_TIME_POS_5: 2
    COLLECTION_TIME_POS_10: 0.25
  CYCLE_3: {}
status:
  listen: 127.0.0.1:8510
tele:
  enable: true
  transport: influx
  influx_server: http://localhost:8086
`, func(t testing.TB, c *Config) {
			assert.Equal(t, "COM3", c.SerialPort)
			assert.Equal(t, 500*time.Millisecond, c.CheckIntervalDuration())
			ts := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
			assert.Equal(t, "2024-02-03 04:05:06", c.DatetimeFmt.Format(ts))
			assert.Equal(t, "2024-02-03", c.DateFmt.Format(ts))
			assert.Equal(t, "/var/log/actuator", c.LogDir)
			assert.Equal(t, "127.0.0.1:8510", c.Status.Listen)
			assert.True(t, c.Tele.Enabled)
			assert.Equal(t, "influx", c.Tele.Transport)
			plan := c.Plan()
			assert.Equal(t, 4, plan.StartingPosition)
			assert.Equal(t, 2, plan.Cycles)
			assert.Equal(t, 2.0, plan.Minutes(5, 1))
			assert.Equal(t, 0.25, plan.Minutes(10, 1))
			assert.Equal(t, 3.0, plan.Minutes(5, 2))
			assert.Equal(t, 1.5, plan.Minutes(5, 3), "empty exact table shadows CYCLE_ALL")
			assert.Equal(t, []int{cycle.AllCycles, 1, 3}, c.Overrides.Cycles())
		}, ""},

		{"hcl", "actuator.hcl", `
SERIAL_PORT = "/dev/ttyUSB0"
CHECK_INTERVAL = 1
DATETIME_FORMAT = "2006-01-02 15:04:05"
DATE_FORMAT = "2006-01-02"
COLLECTION_TIME_DEFAULT = 10
NUMBER_OF_CYCLES = 3
optional {
  CYCLE_2 { COLLECTION_TIME_POS_1 = 7 }
  CYCLE_ALL { COLLECTION_TIME_POS_1 = 0.5 }
}
persist { enable = true root = "/var/lib/actuator" }
tele { enable = true mqtt_broker = "tcp://localhost:1883" client_id = "rotator1" }
`, func(t testing.TB, c *Config) {
			assert.Equal(t, "/dev/ttyUSB0", c.SerialPort)
			assert.Equal(t, 3, c.NumberOfCycles)
			assert.True(t, c.Persist.Enable)
			assert.Equal(t, "/var/lib/actuator", c.Persist.Root)
			assert.Equal(t, "rotator1", c.Tele.ClientId)
			plan := c.Plan()
			assert.Equal(t, 7.0, plan.Minutes(1, 2))
			assert.Equal(t, 0.5, plan.Minutes(1, 1))
			assert.Equal(t, 10.0, plan.Minutes(2, 2))
		}, ""},

		{"legacy-single-table", "config.yaml", TestBaseConfig + `
optional:
  COLLECTION_TIME_POS_3: 9
  CYCLE_ALL:
    COLLECTION_TIME_POS_4: 8
`, func(t testing.TB, c *Config) {
			plan := c.Plan()
			assert.Equal(t, 9.0, plan.Minutes(3, 1))
			assert.Equal(t, 9.0, plan.Minutes(3, 99))
			assert.Equal(t, 8.0, plan.Minutes(4, 5))
		}, ""},

		{"missing-key", "config.yaml", `
SERIAL_PORT: /dev/ttyTEST
CHECK_INTERVAL: 1
DATETIME_FORMAT: "2006"
COLLECTION_TIME_DEFAULT: 1
`, nil, "missing required configuration key=DATE_FORMAT"},

		{"bad-check-interval", "config.yaml", `
SERIAL_PORT: /dev/ttyTEST
CHECK_INTERVAL: 0
DATETIME_FORMAT: "2006"
DATE_FORMAT: "2006"
COLLECTION_TIME_DEFAULT: 1
`, nil, "CHECK_INTERVAL=0 must be > 0"},

		{"bad-starting-position", "config.yaml", TestBaseConfig + "STARTING_POSITION: 11\n", nil, "starting position=11 out of range"},
		{"negative-default", "config.yaml", `
SERIAL_PORT: /dev/ttyTEST
CHECK_INTERVAL: 1
DATETIME_FORMAT: "2006"
DATE_FORMAT: "2006"
COLLECTION_TIME_DEFAULT: -1
`, nil, "default collection time=-1 must be >= 0"},
		{"bad-cycle-key", "config.yaml", TestBaseConfig + "optional:\n  CYCLE_0:\n    COLLECTION_TIME_POS_1: 1\n", nil, "cycle key=CYCLE_0"},
		{"bad-position-key", "config.yaml", TestBaseConfig + "optional:\n  CYCLE_1:\n    COLLECTION_TIME_POS_11: 1\n", nil, "position key=COLLECTION_TIME_POS_11"},
		{"negative-override", "config.yaml", TestBaseConfig + "optional:\n  CYCLE_1:\n    COLLECTION_TIME_POS_2: -3\n", nil, "minutes=-3 must be >= 0"},
		{"non-numeric-override", "config.yaml", TestBaseConfig + "optional:\n  CYCLE_1:\n    COLLECTION_TIME_POS_2: soon\n", nil, "expected number"},
		{"syntax", "config.yaml", "SERIAL_PORT: [", nil, "config unmarshal source=config.yaml"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			log := log2.NewTest(t, log2.LDebug)
			fs := NewMockFullReader(map[string]string{c.file: c.input})
			cfg, err := ReadConfig(log, fs, c.file)
			if c.expectErr == "" {
				require.NoError(t, err)
				c.check(t, cfg)
			} else {
				require.Error(t, err)
				assert.True(t, IsConfigError(err))
				assert.Contains(t, err.Error(), c.expectErr)
			}
		})
	}
}

func TestReadConfigNotFound(t *testing.T) {
	t.Parallel()

	log := log2.NewTest(t, log2.LDebug)
	_, err := ReadConfig(log, NewMockFullReader(nil), "config.yaml")
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
	assert.Contains(t, err.Error(), "cannot find config file=config.yaml")
}

func TestReadConfigDefaultsLogged(t *testing.T) {
	t.Parallel()

	buf := bytes.NewBuffer(nil)
	log := log2.NewWriter(buf, log2.LDebug)
	log.SetFlags(0)
	c, err := ReadConfig(log, NewMockFullReader(map[string]string{"config.yaml": TestBaseConfig}), "config.yaml")
	require.NoError(t, err)
	assert.Equal(t, 1, c.StartingPosition)
	assert.Contains(t, buf.String(), "debug: config NUMBER_OF_CYCLES absent, default=0 unbounded\n")
	assert.Contains(t, buf.String(), "debug: config STARTING_POSITION absent, default=1\n")

	buf.Reset()
	_, err = ReadConfig(log, NewMockFullReader(map[string]string{
		"config.yaml": TestBaseConfig + "NUMBER_OF_CYCLES: 3\nSTARTING_POSITION: 2\n",
	}), "config.yaml")
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "absent")
}

func TestReadConfigInclude(t *testing.T) {
	t.Parallel()

	log := log2.NewTest(t, log2.LDebug)
	fs := NewMockFullReader(map[string]string{
		"main.hcl": `include "site.hcl" {}
include "missing.hcl" { optional = true }
SERIAL_PORT = "/dev/ttyS1"`,
		"site.hcl": `CHECK_INTERVAL = 2
DATETIME_FORMAT = "15:04"
DATE_FORMAT = "2006"
COLLECTION_TIME_DEFAULT = 3`,
	})
	cfg, err := ReadConfig(log, fs, "main.hcl")
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyS1", cfg.SerialPort)
	assert.Equal(t, 3.0, cfg.CollectionTimeDefault)

	fs.Map["loop.hcl"] = `include "loop.hcl" {}`
	_, err = ReadConfig(log, fs, "loop.hcl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "include loop")
}

func TestGlobalInit(t *testing.T) {
	t.Parallel()

	env := NewTestContext(t, "NUMBER_OF_CYCLES: 1\n")
	g := GetGlobal(env.Ctx)
	assert.Equal(t, env.G, g)
	require.NotNil(t, g.Journal)
	assert.Contains(t, g.Journal.Path(), "actuator_2024-01-02.log")
	assert.Equal(t, env.Mock, g.Actuator)
	g.Close()
}
