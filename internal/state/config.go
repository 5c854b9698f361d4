package state

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aps-lab/actuator/helpers"
	"github.com/aps-lab/actuator/internal/cycle"
	"github.com/aps-lab/actuator/log2"
	tele_config "github.com/aps-lab/actuator/tele/config"
	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"gopkg.in/yaml.v2"
)

const (
	DefaultConfigName = "config.yaml"
	DefaultLogDir     = "logs"
	DefaultPersistDir = "./tmp-actuator-db"

	KeySerialPort            = "SERIAL_PORT"
	KeyCheckInterval         = "CHECK_INTERVAL"
	KeyDatetimeFormat        = "DATETIME_FORMAT"
	KeyDateFormat            = "DATE_FORMAT"
	KeyCollectionTimeDefault = "COLLECTION_TIME_DEFAULT"
	KeyNumberOfCycles        = "NUMBER_OF_CYCLES"
	KeyStartingPosition      = "STARTING_POSITION"
	KeyOptional              = "optional"
)

var RequiredKeys = []string{
	KeySerialPort,
	KeyCheckInterval,
	KeyDatetimeFormat,
	KeyDateFormat,
	KeyCollectionTimeDefault,
}

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include" yaml:"include"`

	SerialPort            string  `hcl:"SERIAL_PORT" yaml:"SERIAL_PORT"`
	CheckInterval         float64 `hcl:"CHECK_INTERVAL" yaml:"CHECK_INTERVAL"` // seconds
	DatetimeFormat        string  `hcl:"DATETIME_FORMAT" yaml:"DATETIME_FORMAT"`
	DateFormat            string  `hcl:"DATE_FORMAT" yaml:"DATE_FORMAT"`
	CollectionTimeDefault float64 `hcl:"COLLECTION_TIME_DEFAULT" yaml:"COLLECTION_TIME_DEFAULT"` // minutes
	NumberOfCycles        int     `hcl:"NUMBER_OF_CYCLES" yaml:"NUMBER_OF_CYCLES"`
	StartingPosition      int     `hcl:"STARTING_POSITION" yaml:"STARTING_POSITION"`
	LogDir                string  `hcl:"LOG_DIR" yaml:"LOG_DIR"`
	LogDebug              bool    `hcl:"LOG_DEBUG" yaml:"LOG_DEBUG"`

	Persist struct {
		Enable bool   `hcl:"enable" yaml:"enable"`
		Root   string `hcl:"root" yaml:"root"`
	} `hcl:"persist" yaml:"persist"`
	Status struct {
		Listen string `hcl:"listen" yaml:"listen"`
	} `hcl:"status" yaml:"status"`
	Tele tele_config.Config `hcl:"tele" yaml:"tele"`

	// Derived at load time.
	Overrides   *cycle.Overrides   `hcl:"-" yaml:"-"`
	DateFmt     helpers.TimeFormat `hcl:"-" yaml:"-"`
	DatetimeFmt helpers.TimeFormat `hcl:"-" yaml:"-"`

	// keys seen in any source, for required key check
	seen      map[string]struct{}
	optionals []interface{}
}

type ConfigSource struct {
	Name     string `hcl:"name,key" yaml:"name"`
	Optional bool   `hcl:"optional" yaml:"optional"`
}

// ConfigError means the process must not start. Main maps it to a distinct exit code.
type ConfigError struct {
	Err error
}

func (self *ConfigError) Error() string { return "config: " + self.Err.Error() }

func IsConfigError(err error) bool {
	_, ok := errors.Cause(err).(*ConfigError)
	return ok
}

func (c *Config) Plan() *cycle.Plan {
	return &cycle.Plan{
		DefaultMinutes:   c.CollectionTimeDefault,
		StartingPosition: c.StartingPosition,
		Cycles:           c.NumberOfCycles,
		Overrides:        c.Overrides,
	}
}

func (c *Config) CheckIntervalDuration() time.Duration { return helpers.SecondsDuration(c.CheckInterval) }

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			*errs = append(*errs, errors.NewNotFound(nil, fmt.Sprintf("cannot find config file=%s", norm)))
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	raw := make(map[string]interface{})
	if isYaml(source.Name) {
		err = yaml.Unmarshal(bs, c)
		if err == nil {
			err = yaml.Unmarshal(bs, &raw)
		}
	} else {
		err = hcl.Unmarshal(bs, c)
		if err == nil {
			err = hcl.Unmarshal(bs, &raw)
		}
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config unmarshal source=%s", source.Name))
		return
	}
	for k, v := range raw {
		if v != nil {
			c.seen[k] = struct{}{}
		}
	}
	if v, ok := raw[KeyOptional]; ok && v != nil {
		c.optionals = append(c.optionals, v)
	}

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			*errs = append(*errs, errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name))
			continue
		}
		c.read(log, fs, include, errs)
	}
}

// finish checks required keys, applies defaults and derives typed values.
func (c *Config) finish(log *log2.Log) []error {
	errs := make([]error, 0)
	for _, k := range RequiredKeys {
		if _, ok := c.seen[k]; !ok {
			errs = append(errs, errors.NewNotValid(nil, fmt.Sprintf("missing required configuration key=%s", k)))
		}
	}
	if len(errs) != 0 {
		return errs
	}

	if _, ok := c.seen[KeyNumberOfCycles]; !ok {
		log.Debugf("config %s absent, default=0 unbounded", KeyNumberOfCycles)
	}
	if _, ok := c.seen[KeyStartingPosition]; !ok {
		c.StartingPosition = cycle.MinPosition
		log.Debugf("config %s absent, default=%d", KeyStartingPosition, c.StartingPosition)
	}
	if c.LogDir == "" {
		c.LogDir = DefaultLogDir
	}
	if c.CheckInterval <= 0 {
		errs = append(errs, errors.NotValidf("%s=%v must be > 0", KeyCheckInterval, c.CheckInterval))
	}
	if c.SerialPort == "" {
		errs = append(errs, errors.NotValidf("%s empty", KeySerialPort))
	}
	c.DateFmt = helpers.NewTimeFormat(c.DateFormat)
	c.DatetimeFmt = helpers.NewTimeFormat(c.DatetimeFormat)

	c.Overrides = cycle.NewOverrides()
	for _, v := range c.optionals {
		if err := parseOverrides(c.Overrides, v); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.Plan().Validate(); err != nil {
		errs = append(errs, err)
	}
	return errs
}

func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		log.Fatal("code error [Must]ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		osfs.SetBase(dir)
		names[0] = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
		seen:        make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	if len(errs) == 0 {
		errs = c.finish(log)
	}
	if err := helpers.FoldErrors(errs); err != nil {
		return c, &ConfigError{Err: err}
	}
	return c, nil
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}

func isYaml(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// parseOverrides accepts both CYCLE_<n>/CYCLE_ALL tables and legacy
// COLLECTION_TIME_POS_<p> keys directly under optional, which mean CYCLE_ALL.
// Explicit CYCLE_ALL entries win over legacy keys.
func parseOverrides(o *cycle.Overrides, v interface{}) error {
	m, err := stringMap(v)
	if err != nil {
		return errors.Annotate(err, KeyOptional)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		// legacy keys first, so tables override them
		li, lj := cycle.IsPositionKey(keys[i]), cycle.IsPositionKey(keys[j])
		if li != lj {
			return li
		}
		return keys[i] < keys[j]
	})

	errs := make([]error, 0)
	for _, k := range keys {
		if cycle.IsPositionKey(k) {
			if err := setPosition(o, cycle.AllCycles, k, m[k]); err != nil {
				errs = append(errs, errors.Annotatef(err, "%s.%s", KeyOptional, k))
			}
			continue
		}
		n, err := cycle.ParseCycleKey(k)
		if err != nil {
			errs = append(errs, errors.Annotate(err, KeyOptional))
			continue
		}
		table, err := stringMap(m[k])
		if err != nil {
			errs = append(errs, errors.Annotatef(err, "%s.%s", KeyOptional, k))
			continue
		}
		o.AddTable(n)
		for pk, pv := range table {
			if err := setPosition(o, n, pk, pv); err != nil {
				errs = append(errs, errors.Annotatef(err, "%s.%s.%s", KeyOptional, k, pk))
			}
		}
	}
	return helpers.FoldErrors(errs)
}

func setPosition(o *cycle.Overrides, n int, key string, v interface{}) error {
	pos, err := cycle.ParsePositionKey(key)
	if err != nil {
		return err
	}
	minutes, err := toFloat(v)
	if err != nil {
		return err
	}
	if minutes < 0 {
		return errors.NotValidf("minutes=%v must be >= 0", minutes)
	}
	o.Set(n, pos, minutes)
	return nil
}

// stringMap normalizes hcl and yaml decoded objects.
// hcl v1 decodes blocks into []map[string]interface{}, yaml.v2 into map[interface{}]interface{}.
func stringMap(v interface{}) (map[string]interface{}, error) {
	switch x := v.(type) {
	case nil:
		return map[string]interface{}{}, nil
	case map[string]interface{}:
		return x, nil
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = v
		}
		return m, nil
	case []map[string]interface{}:
		m := make(map[string]interface{})
		for _, item := range x {
			for k, v := range item {
				m[k] = v
			}
		}
		return m, nil
	case []interface{}:
		m := make(map[string]interface{})
		for _, item := range x {
			sub, err := stringMap(item)
			if err != nil {
				return nil, err
			}
			for k, v := range sub {
				m[k] = v
			}
		}
		return m, nil
	}
	return nil, errors.NotValidf("expected mapping, got %T", v)
}

func toFloat(v interface{}) (float64, error) {
	switch x := v.(type) {
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	}
	return 0, errors.NotValidf("value=%v (%T) expected number", v, v)
}
