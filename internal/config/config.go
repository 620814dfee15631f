package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dkeye/tempvoice/internal/app"
)

type RoomsConfig struct {
	app.LayoutConfig `mapstructure:",squash"`
	NameFormat       string        `mapstructure:"name_format"`
	DeletionDelay    time.Duration `mapstructure:"deletion_delay"`
}

type ProposalsConfig struct {
	InviteTTL      time.Duration `mapstructure:"invite_ttl"`
	AutoMoveWindow time.Duration `mapstructure:"auto_move_window"`
}

type LimitsConfig struct {
	Proposals        int           `mapstructure:"proposals"`
	ProposalInterval time.Duration `mapstructure:"proposal_interval"`
	SlowStrikes      int           `mapstructure:"slow_strikes"`
}

type TracingConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Service  string `mapstructure:"service"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`
	ICEServers []string      `mapstructure:"ice_servers"`

	Rooms     RoomsConfig         `mapstructure:"rooms"`
	Proposals ProposalsConfig     `mapstructure:"proposals"`
	Authority app.AuthorityConfig `mapstructure:"authority"`
	Limits    LimitsConfig        `mapstructure:"limits"`
	Tracing   TracingConfig       `mapstructure:"tracing"`

	// AdminTokenTTL, when set from --issue-admin-token, asks the server to
	// print a signed admin token and exit.
	AdminTokenTTL time.Duration `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "change-me")
	v.SetDefault("log_level", "info")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})

	v.SetDefault("rooms.category", "Voice")
	v.SetDefault("rooms.static", []string{"Lobby"})
	v.SetDefault("rooms.trigger", "+ New room")
	v.SetDefault("rooms.waiting", "")
	v.SetDefault("rooms.name_format", "%s's room")
	v.SetDefault("rooms.deletion_delay", "0s")

	v.SetDefault("proposals.invite_ttl", "5m")
	v.SetDefault("proposals.auto_move_window", "10m")

	v.SetDefault("authority.trigger_roles", []string{})
	v.SetDefault("authority.elevated_roles", []string{"admin"})
	v.SetDefault("authority.excluded_role", "")

	v.SetDefault("limits.proposals", 5)
	v.SetDefault("limits.proposal_interval", "1m")
	v.SetDefault("limits.slow_strikes", 16)

	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service", "tempvoice")
}

// Flags declares the command-line overrides Load understands.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("tempvoice", pflag.ContinueOnError)
	fs.String("config-env", "", "config file suffix, config/config.<env>.yaml (default $CONFIG_ENV or dev)")
	fs.Int("port", 0, "HTTP listen port")
	fs.String("log-level", "", "zerolog level: debug, info, warn, error")
	fs.String("mode", "", "gin mode: debug or release")
	fs.Duration("issue-admin-token", 0, "print an admin API token valid for this long and exit")
	return fs
}

// Load reads .env, then config/config.<env>.yaml, then TEMPVOICE_* env
// vars, then flags. Later sources win.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load()

	fs := Flags()
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("TEMPVOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, flag := range map[string]string{"port": "port", "log_level": "log-level", "mode": "mode"} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	env, _ := fs.GetString("config-env")
	if env == "" {
		env = os.Getenv("CONFIG_ENV")
	}
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", fileName, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.AdminTokenTTL, _ = fs.GetDuration("issue-admin-token")
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("static", cfg.StaticPath).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("port %d out of range", c.Port)
	case c.Proposals.InviteTTL <= 0:
		return errors.New("proposals.invite_ttl must be positive")
	case c.Proposals.AutoMoveWindow <= 0:
		return errors.New("proposals.auto_move_window must be positive")
	case c.Rooms.DeletionDelay < 0:
		return errors.New("rooms.deletion_delay must not be negative")
	case !strings.Contains(c.Rooms.NameFormat, "%s"):
		return errors.New("rooms.name_format must contain %s")
	}
	return nil
}
