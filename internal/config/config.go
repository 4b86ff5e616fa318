package config

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/opstrack/internal/errors"
	"codeberg.org/mutker/opstrack/internal/logger"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel       = string(LogLevelInfo)
	DefaultMaxHistory     = 100
	DefaultReportInterval = 10
	DefaultReportFormat   = string(ReportTable)
	DefaultWorkers        = 4
	DefaultRate           = 5
	MaxRate               = 1000

	defaultConfigPath = "/etc/opstrack.toml"
	defaultEnvPrefix  = "OPSTRACK"
	configEnvSuffix   = "_CONFIG"
)

type Config struct {
	LogLevel       string `mapstructure:"log_level"`
	MaxHistory     int    `mapstructure:"max_history"`
	ReportInterval int    `mapstructure:"report_interval"`
	ReportFormat   string `mapstructure:"report_format"`
	Workers        int    `mapstructure:"workers"`
	Rate           int    `mapstructure:"rate"`
	Duration       int    `mapstructure:"duration"`
	SampleMemory   bool   `mapstructure:"sample_memory"`
	PIDDir         string `mapstructure:"pid_dir"`
}

// ReportEvery returns the report interval as a duration.
func (c *Config) ReportEvery() time.Duration {
	return time.Duration(c.ReportInterval) * time.Second
}

// RunFor returns how long the workload runs; 0 means until cancelled.
func (c *Config) RunFor() time.Duration {
	return time.Duration(c.Duration) * time.Second
}

// Level returns the parsed log level. Validate guarantees it parses.
func (c *Config) Level() logger.LogLevel {
	level, _ := logger.ParseLevel(c.LogLevel)
	return level
}

// Validate checks the configuration for values the daemon cannot run with
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(strings.ToLower(c.LogLevel)).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if c.MaxHistory < 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "max_history must not be negative").WithData(c.MaxHistory)
	}
	if c.ReportInterval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.ReportInterval)
	}
	if !ReportFormat(c.ReportFormat).IsValid() {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "unknown report_format").WithData(c.ReportFormat)
	}
	if c.Workers < 1 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "workers must be at least 1").WithData(c.Workers)
	}
	if c.Rate < 1 || c.Rate > MaxRate {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "rate must be between 1 and "+strconv.Itoa(MaxRate)).WithData(c.Rate)
	}
	if c.Duration < 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "duration must not be negative").WithData(c.Duration)
	}

	return nil
}

// Loader reads configuration from defaults, a TOML file, the environment
// and the command line, in increasing order of precedence.
type Loader struct {
	v     *viper.Viper
	flags *pflag.FlagSet
	opts  options
}

func NewLoader(opts ...Option) (*Loader, error) {
	o := options{envPrefix: defaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, errors.New().Wrap(errors.ErrInvalidConfig, err)
		}
	}
	if !o.argsSet {
		o.args = os.Args[1:]
	}

	return &Loader{
		v:     viper.New(),
		flags: newFlagSet(),
		opts:  o,
	}, nil
}

// Load is a shorthand for NewLoader followed by Loader.Load.
func Load(ctx context.Context, opts ...Option) (*Config, error) {
	l, err := NewLoader(opts...)
	if err != nil {
		return nil, err
	}

	return l.Load(ctx)
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("opstrack", pflag.ContinueOnError)

	fs.String("config", "", "Path to the TOML configuration file")
	fs.String("log-level", DefaultLogLevel, "Log level: debug, info, warn, error")
	fs.Int("max-history", DefaultMaxHistory, "Number of recent errors to retain")
	fs.Int("report-interval", DefaultReportInterval, "Seconds between summary reports")
	fs.String("report-format", DefaultReportFormat, "Report format: table, log, prometheus")
	fs.Int("workers", DefaultWorkers, "Number of concurrent workload workers")
	fs.Int("rate", DefaultRate, "Operations per second per worker, at most 1000")
	fs.Int("duration", 0, "Seconds to run before exiting, 0 runs until signalled")
	fs.Bool("sample-memory", false, "Sample heap growth per operation")
	fs.String("pid-dir", os.TempDir(), "Directory for the PID file")

	return fs
}

// Load parses flags, reads the config file if present and returns a
// validated Config.
func (l *Loader) Load(ctx context.Context) (*Config, error) {
	errFactory := errors.New()

	if err := ctx.Err(); err != nil {
		return nil, errFactory.Wrap(errors.ErrTimeout, err)
	}

	if err := l.flags.Parse(l.opts.args); err != nil {
		return nil, errFactory.Wrap(errors.ErrParseFlags, err)
	}

	l.flags.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		// viper keys use underscores, flags use dashes
		if err := l.v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); err != nil {
			logger.Debug().Err(err).Str("flag", f.Name).Msg("Failed to bind flag")
		}
	})

	l.v.SetEnvPrefix(l.opts.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	l.v.AutomaticEnv()

	if err := l.readFile(); err != nil {
		return nil, err
	}

	return l.decode()
}

func (l *Loader) configPath() (string, bool) {
	if l.opts.configPath != "" {
		return l.opts.configPath, true
	}
	if path, _ := l.flags.GetString("config"); path != "" {
		return path, true
	}
	if path, ok := os.LookupEnv(l.opts.envPrefix + configEnvSuffix); ok {
		// an empty value disables the config file entirely
		return path, path != ""
	}

	return defaultConfigPath, false
}

func (l *Loader) readFile() error {
	errFactory := errors.New()

	path, explicit := l.configPath()
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if !explicit && os.IsNotExist(err) {
			logger.Debug().Str("path", path).Msg("No config file, using defaults")
			return nil
		}
		return errFactory.Wrap(errors.ErrReadConfig, err)
	}

	l.v.SetConfigFile(path)
	l.v.SetConfigType("toml")
	if err := l.v.ReadInConfig(); err != nil {
		return errFactory.Wrap(errors.ErrReadConfig, err)
	}

	logger.Debug().Str("path", path).Msg("Config file loaded")

	return nil
}

func (l *Loader) decode() (*Config, error) {
	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, errors.New().Wrap(errors.ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ConfigFileUsed returns the path of the file that was read, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Watch re-reads the config file whenever it changes and passes the new,
// validated configuration to callback. Invalid edits are logged and skipped.
// Callbacks stop once ctx is done.
func (l *Loader) Watch(ctx context.Context, callback func(*Config)) error {
	if l.v.ConfigFileUsed() == "" {
		return errors.New().WithMessage(errors.ErrMissingConfig, "no config file to watch")
	}

	l.v.OnConfigChange(func(e fsnotify.Event) {
		if ctx.Err() != nil {
			return
		}

		logger.Debug().
			Str("path", e.Name).
			Str("op", e.Op.String()).
			Msg("Config file changed")

		cfg, err := l.decode()
		if err != nil {
			logger.Warn().Err(err).Str("path", e.Name).Msg("Ignoring invalid config change")
			return
		}
		callback(cfg)
	})
	l.v.WatchConfig()

	return nil
}
