package main

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	harvest "github.com/jamesprial/go-reddit-harvest"
	"github.com/jamesprial/go-reddit-harvest/internal/config"
	"github.com/jamesprial/go-reddit-harvest/internal/logging"
	"github.com/jamesprial/go-reddit-harvest/metrics"
	"github.com/jamesprial/go-reddit-harvest/postgres"
	"github.com/jamesprial/go-reddit-harvest/reddit"
	"github.com/jamesprial/go-reddit-harvest/sqlite"
)

// app is the state shared by every subcommand.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	log     *logrus.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func newRootCmd() *cobra.Command {
	return newApp(time.Now).rootCmd()
}

func newApp(now func() time.Time) *app {
	return &app{v: config.New(), now: now}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "reddit-harvest",
		Short: "Harvest subreddit listings into CSV files and databases",
		Long: `reddit-harvest pulls submissions, comments and moderation data from Reddit
and appends what is new since the previous run to CSV files or a database.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.v, a.cfgFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.log = logging.New(cmd.ErrOrStderr(), cfg.Verbose)
			a.metrics = metrics.New()
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "YAML config file")
	flags.CountP("verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	flags.String("metrics-file", "", "Write run metrics to this node-exporter textfile")
	flags.String("data-dir", ".", "Directory for SQLite databases and CSV output")
	flags.String("storage", "sqlite", "Storage backend: sqlite or postgres")
	flags.String("dsn", "", "Postgres connection string (defaults to DATABASE_URL)")
	flags.String("backend", "json", "Reddit client: json or graw")
	flags.Float64("rate", 1, "Reddit requests per second")

	for key, name := range map[string]string{
		"verbose":          "verbose",
		"metrics_file":     "metrics-file",
		"storage.data_dir": "data-dir",
		"storage.type":     "storage",
		"storage.dsn":      "dsn",
		"reddit.backend":   "backend",
		"reddit.rate":      "rate",
	} {
		// BindPFlag only fails for a nil flag.
		_ = a.v.BindPFlag(key, flags.Lookup(name))
	}

	root.AddCommand(
		a.syncCmd(),
		a.dumpCmd(),
		a.statsCmd(),
		a.gildedCmd(),
		a.bestCmd(),
		a.modlogCmd(),
		a.yearCmd(),
		a.usersCmd(),
		a.approvedCmd(),
		a.threadCmd(),
		a.notifyCmd(),
		a.exportCmd(),
		a.historyCmd(),
		a.configCmd(),
	)
	return root
}

// runE wraps a command body so the metrics textfile is written however the
// command ends.
func (a *app) runE(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd, args)
		if werr := a.metrics.WriteTextfile(a.cfg.MetricsFile); werr != nil {
			err = errors.Join(err, werr)
		}
		return err
	}
}

func (a *app) client(ctx context.Context) (*reddit.Client, error) {
	return reddit.NewClient(ctx, reddit.Config{
		ClientID:          a.cfg.Reddit.ClientID,
		ClientSecret:      a.cfg.Reddit.ClientSecret,
		Username:          a.cfg.Reddit.Username,
		Password:          a.cfg.Reddit.Password,
		UserAgent:         a.cfg.Reddit.UserAgent,
		RequestsPerSecond: a.cfg.Reddit.Rate,
		BaseURL:           a.cfg.Reddit.BaseURL,
		Logger:            a.log,
	})
}

// source picks the client the sync job reads submissions through. Traffic is
// only available from the JSON client.
func (a *app) source(ctx context.Context) (harvest.SubmissionSource, error) {
	if a.cfg.Reddit.Backend == "graw" {
		return reddit.NewGraw(a.cfg.Reddit.ClientID, a.cfg.Reddit.ClientSecret, a.cfg.Reddit.UserAgent)
	}
	return a.client(ctx)
}

// openStore opens and migrates the database called name. SQLite databases
// live in the data directory; Postgres uses the configured DSN for every name.
func (a *app) openStore(ctx context.Context, name string) (harvest.Store, error) {
	var (
		store harvest.Store
		err   error
	)
	switch a.cfg.Storage.Type {
	case "postgres":
		store, err = postgres.New(a.cfg.Storage.DSN)
	default:
		if err := os.MkdirAll(a.cfg.Storage.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		store, err = sqlite.New(filepath.Join(a.cfg.Storage.DataDir, name+".db"))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	if err := store.RunMigrations(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// output resolves a file name against the data directory unless it is already
// a path.
func (a *app) output(name string) string {
	if filepath.IsAbs(name) || filepath.Base(name) != name {
		return name
	}
	return filepath.Join(a.cfg.Storage.DataDir, name)
}

// view is the VIEW argument of dump and stats: a number of days back on the
// new listing or a top period.
type view struct {
	days   int
	period string
}

func parseView(s string) (view, error) {
	if slices.Contains(reddit.Periods, s) {
		return view{period: s}, nil
	}
	days, err := strconv.Atoi(s)
	if err != nil || days <= 0 {
		return view{}, fmt.Errorf("view must be a positive number of days or one of %v, got %q", reddit.Periods, s)
	}
	return view{days: days}, nil
}

// fetch reads the submissions a view selects, oldest first.
func (v view) fetch(ctx context.Context, c *reddit.Client, subreddit string, now time.Time) ([]*harvest.Submission, error) {
	var seq iter.Seq2[*harvest.Submission, error]
	if v.period != "" {
		// top is ordered by score so no lower bound can stop it early
		seq = c.Top(ctx, subreddit, v.period)
	} else {
		seq = harvest.Fetch(c.New(ctx, subreddit), harvest.DaysBack(now, v.days))
	}
	subs, err := harvest.Collect(ctx, seq)
	if err != nil {
		return nil, err
	}
	harvest.SortByCreated(subs)
	return subs, nil
}

// take stops seq after n items.
func take[R any](seq iter.Seq2[R, error], n int) iter.Seq2[R, error] {
	return func(yield func(R, error) bool) {
		if n <= 0 {
			return
		}
		i := 0
		for r, err := range seq {
			if !yield(r, err) || err != nil {
				return
			}
			i++
			if i >= n {
				return
			}
		}
	}
}
