// Package config loads runbeat settings from a YAML file, RUNBEAT_* environment variables
// and command line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/lowaak/smart-trainer/runbeat/internal/announce"
	"github.com/lowaak/smart-trainer/runbeat/internal/logger"
	"github.com/lowaak/smart-trainer/runbeat/internal/sensor"
	"github.com/lowaak/smart-trainer/runbeat/internal/store"
	"github.com/lowaak/smart-trainer/runbeat/internal/zones"
)

const (
	// DefaultConfigName is the settings file name searched for when no path is given.
	DefaultConfigName = "runbeat"
	// EnvPrefix prefixes environment overrides, e.g. RUNBEAT_MQTT_BROKER.
	EnvPrefix = "RUNBEAT"

	// DefaultSimulatorInterval is the time between simulated notifications.
	DefaultSimulatorInterval = time.Second
	// DefaultSimulatorProfile is the built-in profile used by the simulator.
	DefaultSimulatorProfile = "intervals"
)

// Settings is the effective configuration.
type Settings struct {
	Log         LogSettings       `mapstructure:"log" yaml:"log"`
	Preferences string            `mapstructure:"preferences" yaml:"preferences"`
	MQTT        MQTTSettings      `mapstructure:"mqtt" yaml:"mqtt"`
	Zones       ZoneSettings      `mapstructure:"zones" yaml:"zones"`
	Simulator   SimulatorSettings `mapstructure:"simulator" yaml:"simulator"`
}

// LogSettings configures the logger.
type LogSettings struct {
	Level      string `mapstructure:"level" yaml:"level"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Console    bool   `mapstructure:"console" yaml:"console"`
}

// MQTTSettings configures the MQTT announcement sink.
type MQTTSettings struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Broker   string `mapstructure:"broker" yaml:"broker"`
	Topic    string `mapstructure:"topic" yaml:"topic"`
	ClientID string `mapstructure:"client_id" yaml:"client_id"`
	QoS      int    `mapstructure:"qos" yaml:"qos"`
}

// ZoneSettings seeds the zone configuration when no preference has been saved yet.
type ZoneSettings struct {
	RestingHR    int   `mapstructure:"resting_hr" yaml:"resting_hr"`
	MaxHR        int   `mapstructure:"max_hr" yaml:"max_hr"`
	UseAutoZones bool  `mapstructure:"use_auto" yaml:"use_auto"`
	Manual       []int `mapstructure:"manual" yaml:"manual,flow"`
}

// SimulatorSettings configures the simulated heart rate source.
type SimulatorSettings struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	Profile  string        `mapstructure:"profile" yaml:"profile"`
}

var (
	// errUnknownLogLevel is returned for a level ParseLevel does not know.
	errUnknownLogLevel = errors.New("unknown log level")
	// errBrokerRequired is returned when MQTT is enabled without a broker.
	errBrokerRequired = errors.New("mqtt broker must be provided when mqtt is enabled")
	// errInvalidQoS is returned for a QoS outside 0..2.
	errInvalidQoS = errors.New("mqtt qos must be 0, 1 or 2")
	// errManualBoundaryCount is returned when the manual list is not six values long.
	errManualBoundaryCount = errors.New("zones.manual must hold six boundaries")
	// errInvalidInterval is returned for a non-positive simulator interval.
	errInvalidInterval = errors.New("simulator interval must be positive")
	// errNegativeRotation is returned for negative log rotation values.
	errNegativeRotation = errors.New("log rotation values must not be negative")
)

// flagKeys maps settings keys to the flag names RegisterFlags defines.
var flagKeys = map[string]string{
	"log.level":          "log-level",
	"log.file":           "log-file",
	"log.console":        "log-console",
	"preferences":        "preferences",
	"mqtt.enabled":       "mqtt",
	"mqtt.broker":        "mqtt-broker",
	"mqtt.topic":         "mqtt-topic",
	"zones.resting_hr":   "resting-hr",
	"zones.max_hr":       "max-hr",
	"zones.use_auto":     "auto-zones",
	"simulator.enabled":  "simulate",
	"simulator.interval": "simulator-interval",
	"simulator.profile":  "simulator-profile",
}

// Default returns the settings used when nothing overrides them.
func Default() Settings {
	z := zones.DefaultConfig()
	return Settings{
		Log: LogSettings{
			Level:      "info",
			MaxSizeMB:  logger.DefaultMaxSizeMB,
			MaxBackups: logger.DefaultMaxBackups,
			MaxAgeDays: logger.DefaultMaxAgeDays,
			Console:    true,
		},
		Preferences: store.DefaultPath(),
		MQTT: MQTTSettings{
			Topic:    announce.DefaultTopic,
			ClientID: "runbeat",
		},
		Zones: ZoneSettings{
			RestingHR:    z.RestingHR,
			MaxHR:        z.MaxHR,
			UseAutoZones: z.UseAutoZones,
			Manual:       z.Manual[:],
		},
		Simulator: SimulatorSettings{
			Enabled:  true,
			Interval: DefaultSimulatorInterval,
			Profile:  DefaultSimulatorProfile,
		},
	}
}

// RegisterFlags defines the command line overrides on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String(flagKeys["log.level"], d.Log.Level, "log level (debug, info, warn, error)")
	fs.String(flagKeys["log.file"], d.Log.File, "rotated log file, empty for none")
	fs.Bool(flagKeys["log.console"], d.Log.Console, "write logs to stderr")
	fs.String(flagKeys["preferences"], d.Preferences, "preferences file")
	fs.Bool(flagKeys["mqtt.enabled"], d.MQTT.Enabled, "publish announcements over MQTT")
	fs.String(flagKeys["mqtt.broker"], d.MQTT.Broker, "MQTT broker URL, e.g. tcp://localhost:1883")
	fs.String(flagKeys["mqtt.topic"], d.MQTT.Topic, "MQTT announcement topic")
	fs.Int(flagKeys["zones.resting_hr"], d.Zones.RestingHR, "resting heart rate")
	fs.Int(flagKeys["zones.max_hr"], d.Zones.MaxHR, "maximum heart rate")
	fs.Bool(flagKeys["zones.use_auto"], d.Zones.UseAutoZones, "derive zones from resting and max heart rate")
	fs.Bool(flagKeys["simulator.enabled"], d.Simulator.Enabled, "drive the session from the simulated sensor")
	fs.Duration(flagKeys["simulator.interval"], d.Simulator.Interval, "time between simulated samples")
	fs.String(flagKeys["simulator.profile"], d.Simulator.Profile,
		fmt.Sprintf("simulated BPM profile: one of %s or a comma-separated list", strings.Join(sensor.ProfileNames(), ", ")))
}

// Loader owns a viper instance and the last successfully loaded settings.
type Loader struct {
	mu       sync.Mutex
	v        *viper.Viper
	current  *Settings
	watching bool
}

// NewLoader prepares a loader. An empty path searches for runbeat.yaml in the working
// directory and ~/.runbeat; a missing file is then not an error. flags may be nil.
func NewLoader(fs afero.Fs, path string, flags *pflag.FlagSet) (*Loader, error) {
	v := viper.New()
	v.SetFs(fs)
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.runbeat")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, Default())

	if flags != nil {
		for key, name := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	return &Loader{v: v}, nil
}

func setDefaults(v *viper.Viper, d Settings) {
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("log.console", d.Log.Console)
	v.SetDefault("preferences", d.Preferences)
	v.SetDefault("mqtt.enabled", d.MQTT.Enabled)
	v.SetDefault("mqtt.broker", d.MQTT.Broker)
	v.SetDefault("mqtt.topic", d.MQTT.Topic)
	v.SetDefault("mqtt.client_id", d.MQTT.ClientID)
	v.SetDefault("mqtt.qos", d.MQTT.QoS)
	v.SetDefault("zones.resting_hr", d.Zones.RestingHR)
	v.SetDefault("zones.max_hr", d.Zones.MaxHR)
	v.SetDefault("zones.use_auto", d.Zones.UseAutoZones)
	v.SetDefault("zones.manual", d.Zones.Manual)
	v.SetDefault("simulator.enabled", d.Simulator.Enabled)
	v.SetDefault("simulator.interval", d.Simulator.Interval)
	v.SetDefault("simulator.profile", d.Simulator.Profile)
}

// Load reads the settings file (if any), applies overrides and validates the result.
func (l *Loader) Load() (*Settings, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read settings: %w", err)
		}
	}
	return l.decodeLocked()
}

// ConfigFile returns the settings file in use, or "" when none was found.
func (l *Loader) ConfigFile() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.v.ConfigFileUsed()
}

// Current returns the last settings Load or a reload accepted.
func (l *Loader) Current() *Settings {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Watch re-reads the settings file whenever it changes and hands valid settings to onChange.
// Invalid edits are logged and the previous settings stay current. Watching starts at most once
// and only when a settings file is in use.
func (l *Loader) Watch(log *zap.SugaredLogger, onChange func(*Settings)) bool {
	if log == nil {
		panic("Loader: logger cannot be nil")
	}
	if onChange == nil {
		panic("Loader: onChange cannot be nil")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.watching || l.v.ConfigFileUsed() == "" {
		return false
	}
	l.watching = true

	l.v.OnConfigChange(func(e fsnotify.Event) {
		l.handleChange(e, log, onChange)
	})
	l.v.WatchConfig()
	log.Infow("Config: watching settings file", "file", l.v.ConfigFileUsed())
	return true
}

func (l *Loader) handleChange(e fsnotify.Event, log *zap.SugaredLogger, onChange func(*Settings)) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}

	l.mu.Lock()
	err := l.v.ReadInConfig()
	var s *Settings
	if err == nil {
		s, err = l.decodeLocked()
	}
	l.mu.Unlock()

	if err != nil {
		log.Warnw("Config: reload rejected", "file", e.Name, "error", err)
		return
	}
	log.Infow("Config: reloaded", "file", e.Name)
	onChange(s)
}

// decodeLocked must be called with mu held.
func (l *Loader) decodeLocked() (*Settings, error) {
	var s Settings
	if err := l.v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	l.current = &s
	return &s, nil
}

// Validate reports the first inconsistent setting.
func (s *Settings) Validate() error {
	if _, ok := logger.ParseLevel(s.Log.Level); !ok {
		return fmt.Errorf("%w: %q", errUnknownLogLevel, s.Log.Level)
	}
	if s.Log.MaxSizeMB < 0 || s.Log.MaxBackups < 0 || s.Log.MaxAgeDays < 0 {
		return errNegativeRotation
	}
	if s.MQTT.Enabled && strings.TrimSpace(s.MQTT.Broker) == "" {
		return errBrokerRequired
	}
	if s.MQTT.QoS < 0 || s.MQTT.QoS > 2 {
		return fmt.Errorf("%w: %d", errInvalidQoS, s.MQTT.QoS)
	}
	if len(s.Zones.Manual) != zones.BoundaryCount {
		return fmt.Errorf("%w: got %d", errManualBoundaryCount, len(s.Zones.Manual))
	}
	if err := s.ZoneConfig().Validate(); err != nil {
		return fmt.Errorf("zones: %w", err)
	}
	if s.Simulator.Interval <= 0 {
		return errInvalidInterval
	}
	if _, err := sensor.ParseProfile(s.Simulator.Profile); err != nil {
		return fmt.Errorf("simulator profile: %w", err)
	}
	return nil
}

// ZoneConfig converts the zone settings. Call after Validate.
func (s *Settings) ZoneConfig() zones.Config {
	cfg := zones.Config{
		RestingHR:    s.Zones.RestingHR,
		MaxHR:        s.Zones.MaxHR,
		UseAutoZones: s.Zones.UseAutoZones,
	}
	copy(cfg.Manual[:], s.Zones.Manual)
	return cfg
}

// LoggerOptions converts the log settings.
func (s *Settings) LoggerOptions() logger.Options {
	return logger.Options{
		Level:      s.Log.Level,
		File:       s.Log.File,
		MaxSizeMB:  s.Log.MaxSizeMB,
		MaxBackups: s.Log.MaxBackups,
		MaxAgeDays: s.Log.MaxAgeDays,
		Console:    s.Log.Console,
	}
}

// MQTTOptions converts the MQTT settings.
func (s *Settings) MQTTOptions() announce.MQTTOptions {
	return announce.MQTTOptions{
		Broker:   s.MQTT.Broker,
		ClientID: s.MQTT.ClientID,
		Topic:    s.MQTT.Topic,
		QoS:      byte(s.MQTT.QoS),
	}
}

// SimulatorProfile parses the simulator profile. Call after Validate.
func (s *Settings) SimulatorProfile() sensor.Profile {
	p, err := sensor.ParseProfile(s.Simulator.Profile)
	if err != nil {
		return nil
	}
	return p
}

// Dump renders settings as YAML.
func Dump(s *Settings) ([]byte, error) {
	out, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal settings: %w", err)
	}
	return out, nil
}
