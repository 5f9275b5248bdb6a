// Package commands implements the availctl command line.
package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/alex-user-go/hutavail/internal/app"
	"github.com/alex-user-go/hutavail/internal/availability/types"
	"github.com/alex-user-go/hutavail/internal/config"
	"github.com/alex-user-go/hutavail/internal/logging"
)

// env carries what every subcommand needs after flags and config are resolved.
type env struct {
	cfgFile string
	v       *viper.Viper
	cfg     config.Config
	logger  *slog.Logger
}

// NewRootCmd builds the availctl command tree.
func NewRootCmd() *cobra.Command {
	e := &env{v: viper.New()}

	root := &cobra.Command{
		Use:   "availctl",
		Short: "Hut availability aggregation",
		Long: `availctl asks hut booking systems which rooms are free and
reports beds and rooms by size for every night of a date range.

Configuration comes from defaults, .env, HUTAVAIL_* variables,
an optional config file and flags, in increasing precedence.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.load(cmd.Flags())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&e.cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("roster", "data/huts.csv", "hut roster (.csv or .yaml)")
	flags.Int("concurrency", 4, "huts processed in parallel")

	root.AddCommand(newDailyCmd(e), newCheckCmd(e), newServeCmd(e))
	return root
}

var flagKeys = map[string]string{
	"log-level":   "log_level",
	"roster":      "roster_path",
	"concurrency": "concurrency",
	"addr":        "http_addr",
}

func (e *env) load(flags *pflag.FlagSet) error {
	if err := config.ReadInto(e.v, e.cfgFile); err != nil {
		return err
	}
	for name, key := range flagKeys {
		if f := flags.Lookup(name); f != nil {
			if err := e.v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	cfg, err := config.Decode(e.v)
	if err != nil {
		return err
	}
	e.cfg = cfg
	e.logger = logging.New("availctl", cfg.LogLevel, os.Stderr)
	return nil
}

func (e *env) app() (*app.App, error) {
	return app.New(e.cfg, e.logger)
}

// dateRange reads --start and --end. A missing end means the same day as start.
func dateRange(cmd *cobra.Command) (types.Date, types.Date, error) {
	startFlag, _ := cmd.Flags().GetString("start")
	endFlag, _ := cmd.Flags().GetString("end")

	start, err := types.ParseDate(startFlag)
	if err != nil {
		return types.Date{}, types.Date{}, fmt.Errorf("--start: %w", err)
	}
	if endFlag == "" {
		return start, start, nil
	}
	end, err := types.ParseDate(endFlag)
	if err != nil {
		return types.Date{}, types.Date{}, fmt.Errorf("--end: %w", err)
	}
	if end.Before(start) {
		return types.Date{}, types.Date{}, fmt.Errorf("--end %s is before --start %s", end, start)
	}
	return start, end, nil
}

func addRangeFlags(cmd *cobra.Command) {
	cmd.Flags().String("start", types.Today().String(), "first night, YYYY-MM-DD")
	cmd.Flags().String("end", "", "last night, YYYY-MM-DD (default: start)")
}
