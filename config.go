package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind    string
	port    int
	prefix  string
	profile bool
	tlsCert string
	tlsKey  string
	verbose bool
	version bool

	speakTime time.Duration
	voteTime  time.Duration

	minPlayers int
	maxPlayers int

	roomIdleTimeout  time.Duration
	emptyRoomTimeout time.Duration
	cleanupInterval  time.Duration

	statsDir  string
	statsKey  string
	redisAddr string
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.minPlayers < 3 {
		return fmt.Errorf("invalid minimum player count (must be at least 3): %d", c.minPlayers)
	}
	if c.maxPlayers < c.minPlayers {
		return fmt.Errorf("invalid maximum player count (must be at least %d): %d", c.minPlayers, c.maxPlayers)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("UNDERCOVER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "undercover",
		Short:         "A turn-based social deduction word game, served over HTTP and WebSockets.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: UNDERCOVER_BIND)")
	fs.DurationVar(&cfg.cleanupInterval, "cleanup-interval", time.Hour, "how often idle rooms are swept (env: UNDERCOVER_CLEANUP_INTERVAL)")
	fs.DurationVar(&cfg.emptyRoomTimeout, "empty-room-timeout", time.Hour, "time before waiting rooms holding only their owner are reclaimed (env: UNDERCOVER_EMPTY_ROOM_TIMEOUT)")
	fs.IntVar(&cfg.maxPlayers, "max-players", 10, "maximum players per room (env: UNDERCOVER_MAX_PLAYERS)")
	fs.IntVar(&cfg.minPlayers, "min-players", 3, "minimum players to start a game (env: UNDERCOVER_MIN_PLAYERS)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: UNDERCOVER_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: UNDERCOVER_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: UNDERCOVER_PROFILE)")
	fs.StringVar(&cfg.redisAddr, "redis", "", "redis address for statistics persistence, e.g. localhost:6379 (env: UNDERCOVER_REDIS)")
	fs.DurationVar(&cfg.roomIdleTimeout, "room-idle-timeout", 24*time.Hour, "time before inactive rooms are reclaimed (env: UNDERCOVER_ROOM_IDLE_TIMEOUT)")
	fs.DurationVar(&cfg.speakTime, "speak-time", time.Minute, "base speaking time per player per round (env: UNDERCOVER_SPEAK_TIME)")
	fs.StringVar(&cfg.statsDir, "stats-dir", "stats", "directory for file-based statistics persistence (env: UNDERCOVER_STATS_DIR)")
	fs.StringVar(&cfg.statsKey, "stats-key", "undercover_stats", "key under which statistics are persisted (env: UNDERCOVER_STATS_KEY)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: UNDERCOVER_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: UNDERCOVER_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: UNDERCOVER_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: UNDERCOVER_VERSION)")
	fs.DurationVar(&cfg.voteTime, "vote-time", 30*time.Second, "base voting time per round (env: UNDERCOVER_VOTE_TIME)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("undercover v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
