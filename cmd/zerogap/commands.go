package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hugh/zerogap/internal/client"
	"github.com/hugh/zerogap/internal/models"
	"github.com/hugh/zerogap/internal/reports"
	"github.com/hugh/zerogap/internal/session"
	"github.com/hugh/zerogap/internal/severity"
)

var errScanFailed = errors.New("scan failed")

type app struct {
	sess    *session.Session
	backend *client.Client
	fetcher *reports.Fetcher
	opts    options
	dir     string
	out     io.Writer

	// failures are already printed by the notification sink
	notifyFailures bool
}

func (a *app) dispatch(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "scan":
		if len(rest) != 1 {
			return errUsage
		}
		return a.scan(ctx, rest[0])
	case "view":
		if len(rest) != 1 {
			return errUsage
		}
		return a.view(ctx, rest[0])
	case "history":
		return a.history(ctx)
	case "stats":
		return a.stats(ctx)
	case "delete":
		if len(rest) != 1 {
			return errUsage
		}
		return a.delete(ctx, rest[0])
	case "reset":
		return a.reset(ctx)
	case "report":
		if len(rest) != 1 {
			return errUsage
		}
		return a.report(ctx, rest[0])
	case "explain":
		if len(rest) == 0 {
			return errUsage
		}
		return a.explain(ctx, strings.Join(rest, " "))
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

// scan starts a scan and blocks until the backend reports it finished.
func (a *app) scan(ctx context.Context, target string) error {
	done := make(chan models.ScanRecord, 1)
	var last models.ScanRecord
	a.sess.Controller.Subscribe(func(rec models.ScanRecord) {
		if rec.Status != last.Status || rec.Progress != last.Progress {
			printProgress(a.out, rec)
		}
		last = rec
		if rec.Status.IsTerminal() {
			select {
			case done <- rec:
			default:
			}
		}
	})

	rec, err := a.sess.Controller.StartScan(ctx, target, a.opts.threads)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("interrupted while scan %s was running", rec.ScanID)
	case rec = <-done:
	}

	if rec.Status == models.ScanStatusFailed {
		if !a.notifyFailures {
			fmt.Fprintf(a.out, "[!] %s\n", session.FailedMessage(rec))
		}
		return errScanFailed
	}

	a.printScan(rec)
	return nil
}

func (a *app) view(ctx context.Context, id string) error {
	rec, err := a.sess.Controller.ViewScan(ctx, id)
	if err != nil {
		return err
	}
	a.printScan(rec)
	return nil
}

func (a *app) printScan(rec models.ScanRecord) {
	reportURL := ""
	if rec.Status == models.ScanStatusCompleted {
		reportURL = a.backend.ReportURL(rec.ScanID, a.opts.format)
	}
	printRecord(a.out, rec, reportURL)
	printChart(a.out, session.SeverityChart(rec, severity.DefaultRadius))
	printFindings(a.out, rec.Vulnerabilities)
}

func (a *app) history(ctx context.Context) error {
	if err := a.sess.History.Reload(ctx); err != nil {
		return err
	}
	printHistory(a.out, a.sess.History.Store().Entries())
	return nil
}

func (a *app) stats(ctx context.Context) error {
	if err := a.sess.History.Reload(ctx); err != nil {
		return err
	}
	printStats(a.out, a.sess.History.Store().Stats())
	return nil
}

func (a *app) delete(ctx context.Context, id string) error {
	if err := a.sess.History.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "deleted %s\n", id)
	return nil
}

func (a *app) reset(ctx context.Context) error {
	if !a.opts.yes {
		return errors.New("refusing to clear history without --yes")
	}
	if err := a.sess.History.Reset(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "history cleared")
	return nil
}

func (a *app) report(ctx context.Context, id string) error {
	dl, err := a.fetcher.Download(ctx, id, a.opts.format, a.dir)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "saved %s report to %s (%d bytes)\n", dl.Format, dl.Path, dl.Bytes)
	return nil
}

func (a *app) explain(ctx context.Context, text string) error {
	exp, err := a.sess.Explainer.Explain(ctx, text)
	if err != nil {
		return err
	}
	printExplanation(a.out, exp)
	return nil
}
