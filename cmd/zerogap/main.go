package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/hugh/zerogap/internal/client"
	"github.com/hugh/zerogap/internal/notify"
	"github.com/hugh/zerogap/internal/reports"
	"github.com/hugh/zerogap/internal/session"
	"github.com/hugh/zerogap/pkg/config"
	"github.com/hugh/zerogap/pkg/util"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const usage = `Usage: zerogap [flags] <command> [args]

Commands:
  scan <url>        start a scan and follow it until it finishes
  view <id>         show a scan from history
  history           list recent scans
  stats             show aggregate statistics
  delete <id>       remove a scan from history
  reset --yes       clear the whole history
  report <id>       download a report (--format html|json, --out dir)
  explain <text>    explain a finding

Flags:
`

// errUsage makes main print usage and exit 2.
var errUsage = errors.New("usage")

type options struct {
	threads int
	limit   int
	format  string
	out     string
	yes     bool
}

func main() {
	_ = godotenv.Load()
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("zerogap", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() {
		fmt.Fprint(stderr, usage)
		flags.PrintDefaults()
	}

	var opts options
	flags.String("backend", "", "backend API base URL (BACKEND_URL)")
	flags.String("log-level", "", "log level: debug, info, warn, error (LOG_LEVEL)")
	flags.Bool("notify-failures", false, "print a notification when a scan fails (NOTIFY_FAILURES)")
	flags.IntVarP(&opts.threads, "threads", "t", 0, "scanner threads for scan")
	flags.IntVarP(&opts.limit, "limit", "n", 0, "number of history entries to load")
	flags.StringVarP(&opts.format, "format", "f", "html", "report format: html or json")
	flags.StringVarP(&opts.out, "out", "o", "", "directory reports are written to (REPORTS_DIR)")
	flags.BoolVar(&opts.yes, "yes", false, "confirm destructive commands")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	v := viper.New()
	_ = v.BindPFlag("BACKEND_URL", flags.Lookup("backend"))
	_ = v.BindPFlag("LOG_LEVEL", flags.Lookup("log-level"))
	_ = v.BindPFlag("NOTIFY_FAILURES", flags.Lookup("notify-failures"))
	_ = v.BindPFlag("REPORTS_DIR", flags.Lookup("out"))
	if opts.limit > 0 {
		v.Set("HISTORY_LIMIT", opts.limit)
	}

	cfg, err := config.LoadFrom(v)
	if err != nil {
		fmt.Fprintf(stderr, "zerogap: %v\n", err)
		return 1
	}

	level := cfg.Server.LogLevel
	if level == "" {
		level = "warn"
	}
	logger := util.NewLoggerTo(stderr, cfg.Server.Env, level)

	backend := client.New(cfg.Backend.URL, cfg.Backend.Timeout(), logger)
	sess := session.New(session.Config{
		PollInterval:   cfg.Poll.Interval(),
		HistoryDelay:   cfg.Poll.HistoryDelay(),
		HistoryLimit:   cfg.Poll.HistoryLimit,
		DismissAfter:   cfg.Notify.DismissAfter(),
		NotifyFailures: cfg.Notify.Failures,
	}, session.Deps{
		Backend: backend,
		Sinks:   []notify.Sink{notify.NewWriterSink(stdout)},
		Logger:  logger,
	})
	defer sess.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &app{
		sess:    sess,
		backend: backend,
		fetcher: reports.NewFetcher(backend, nil, logger),
		opts:    opts,
		dir:     cfg.Reports.Dir,
		out:     stdout,

		notifyFailures: cfg.Notify.Failures,
	}

	if err := app.dispatch(ctx, flags.Args()); err != nil {
		if errors.Is(err, errUsage) {
			flags.Usage()
			return 2
		}
		fmt.Fprintf(stderr, "zerogap: %v\n", err)
		return 1
	}
	return 0
}
