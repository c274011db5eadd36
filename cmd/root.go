package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	service "github.com/okian/pokeget/internal/app"
	"github.com/okian/pokeget/internal/config"
)

// flags mirrors the command line. Only flags the user actually set override
// the file and environment layers.
type flags struct {
	config       string
	server       string
	port         int
	pokedex      string
	delay        int
	logFile      string
	logLevel     string
	logFormat    string
	fetchTimeout time.Duration
	metricsAddr  string
}

// newRootCmd builds the pokeget command. code receives the process exit
// status; run is invoked once flags are parsed.
func newRootCmd(code *int, run func(cmd *cobra.Command, f *flags) (int, error)) *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:   "pokeget",
		Short: "Poll a map server for spawns and log new ones to a daily file",
		Long: `pokeget polls <server>:<port>/map-data every <delay> seconds, keeps the
spawns it has not seen before and appends them, one JSON object per line,
to <pokedex>/pokemon_<day>-<month>.json.

It exits with status 40 after too many consecutive fetch failures and 50
after too many consecutive write failures.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().NFlag() == 0 {
				return cmd.Help()
			}
			c, err := run(cmd, f)
			*code = c
			return err
		},
	}

	defaultHelp := cmd.HelpFunc()
	cmd.SetHelpFunc(func(c *cobra.Command, args []string) {
		defaultHelp(c, args)
		*code = service.ExitHelp
	})

	defaults := config.New(context.Background())
	fl := cmd.Flags()
	fl.StringVarP(&f.config, "config", "c", "", "config file (YAML or JSON); also "+config.EnvConfigPath)
	fl.StringVarP(&f.server, "server", "s", defaults.Server, "map server host or URL")
	fl.IntVarP(&f.port, "port", "p", defaults.Port, "map server port")
	fl.StringVarP(&f.pokedex, "pokedex-library", "l", defaults.Pokedex, "directory for the daily spawn logs")
	fl.IntVarP(&f.delay, "delay", "d", defaults.Delay, "seconds to sleep between polls")
	fl.StringVarP(&f.logFile, "logfile", "f", defaults.LogFile, "diagnostic log file (default stderr)")
	fl.StringVarP(&f.logLevel, "loglevel", "v", defaults.LogLevel, "debug, info, warn or error; info also logs every new encounter")
	fl.StringVar(&f.logFormat, "log-format", defaults.LogFormat, "text or json")
	fl.DurationVar(&f.fetchTimeout, "fetch-timeout", defaults.FetchTimeout, "per-request timeout, 0 waits forever")
	fl.StringVar(&f.metricsAddr, "metrics-addr", defaults.MetricsAddr, "serve /metrics, /healthz and /stats on this address")

	return cmd
}

// apply copies the flags the user set onto cfg.
func (f *flags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("server") {
		cfg.Server = f.server
	}
	if changed("port") {
		cfg.Port = f.port
	}
	if changed("pokedex-library") {
		cfg.Pokedex = f.pokedex
	}
	if changed("delay") {
		cfg.Delay = f.delay
	}
	if changed("logfile") {
		cfg.LogFile = f.logFile
	}
	if changed("loglevel") {
		cfg.LogLevel = f.logLevel
	}
	if changed("log-format") {
		cfg.LogFormat = f.logFormat
	}
	if changed("fetch-timeout") {
		cfg.FetchTimeout = f.fetchTimeout
	}
	if changed("metrics-addr") {
		cfg.MetricsAddr = f.metricsAddr
	}
}
