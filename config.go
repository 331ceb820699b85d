package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/qianlnk/werewolf-companion/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config 命令行配置，每个参数都可以用 WEREWOLF_ 前缀的环境变量设置
type Config struct {
	bind           string
	port           int
	storage        string
	sqlitePath     string
	redisAddr      string
	redisPassword  string
	redisDB        int
	postgresDSN    string
	sessionTimeout time.Duration
	sweepSchedule  string
	allowOrigins   []string
	verbose        bool
}

func (c *Config) validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	switch c.storage {
	case "memory", "redis":
	case "sqlite":
		if c.sqlitePath == "" {
			return errors.New("--sqlite-path is required when --storage=sqlite")
		}
	case "postgres":
		if c.postgresDSN == "" {
			return errors.New("--postgres-dsn is required when --storage=postgres")
		}
	default:
		return fmt.Errorf("unknown storage backend: %s", c.storage)
	}
	if c.sessionTimeout <= 0 {
		return errors.New("--session-timeout must be positive")
	}
	return nil
}

func (c *Config) storageOptions() storage.Options {
	return storage.Options{
		Backend:       c.storage,
		SQLitePath:    c.sqlitePath,
		RedisAddr:     c.redisAddr,
		RedisPassword: c.redisPassword,
		RedisDB:       c.redisDB,
		PostgresDSN:   c.postgresDSN,
	}
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("WEREWOLF")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "werewolf-companion",
		Short: "Game-state companion for face-to-face werewolf games.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "127.0.0.1", "address to bind to (env: WEREWOLF_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: WEREWOLF_PORT)")
	fs.StringVar(&cfg.storage, "storage", "memory", "session storage backend: memory, sqlite, redis or postgres (env: WEREWOLF_STORAGE)")
	fs.StringVar(&cfg.sqlitePath, "sqlite-path", "werewolf.db", "sqlite database file (env: WEREWOLF_SQLITE_PATH)")
	fs.StringVar(&cfg.redisAddr, "redis-addr", "localhost:6379", "redis address (env: WEREWOLF_REDIS_ADDR)")
	fs.StringVar(&cfg.redisPassword, "redis-password", "", "redis password (env: WEREWOLF_REDIS_PASSWORD)")
	fs.IntVar(&cfg.redisDB, "redis-db", 0, "redis database number (env: WEREWOLF_REDIS_DB)")
	fs.StringVar(&cfg.postgresDSN, "postgres-dsn", "", "postgres connection string (env: WEREWOLF_POSTGRES_DSN)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 12*time.Hour, "time before idle sessions are ended (env: WEREWOLF_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.sweepSchedule, "sweep-schedule", "@every 10m", "cron schedule for the idle session sweep (env: WEREWOLF_SWEEP_SCHEDULE)")
	fs.StringSliceVar(&cfg.allowOrigins, "allow-origin", nil, "allowed CORS origins, all when empty (env: WEREWOLF_ALLOW_ORIGIN)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: WEREWOLF_VERBOSE)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
