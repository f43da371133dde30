// Package reports downloads generated scan reports and optionally archives
// them to object storage.
package reports

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrUnknownFormat   = errors.New("unknown report format")
	ErrArchiveDisabled = errors.New("report archiving is not configured")
)

type Format string

const (
	FormatHTML Format = "html"
	FormatJSON Format = "json"
)

// ParseFormat accepts html (the default when empty) and json.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatHTML:
		return FormatHTML, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/html; charset=utf-8"
}

// Source streams a report from the backend. *client.Client satisfies it.
type Source interface {
	Report(ctx context.Context, scanID, format string) (io.ReadCloser, string, error)
}

// Archiver copies a downloaded report somewhere durable and returns where it
// went.
type Archiver interface {
	Archive(ctx context.Context, scanID, path string) (string, error)
}

// Download describes a report written to disk.
type Download struct {
	ScanID   string `json:"scan_id"`
	Format   Format `json:"format"`
	Path     string `json:"path"`
	Bytes    int64  `json:"bytes"`
	Location string `json:"location,omitempty"`
}

type Fetcher struct {
	source   Source
	archiver Archiver
	logger   *slog.Logger
}

// NewFetcher builds a fetcher. archiver may be nil.
func NewFetcher(source Source, archiver Archiver, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		source:   source,
		archiver: archiver,
		logger:   logger.With("component", "reports"),
	}
}

func (f *Fetcher) CanArchive() bool {
	return f.archiver != nil
}

// Open streams a report without touching disk. The filename is the one the
// backend suggested, or a default built from the scan id.
func (f *Fetcher) Open(ctx context.Context, scanID string, format Format) (io.ReadCloser, string, error) {
	body, name, err := f.source.Report(ctx, scanID, string(format))
	if err != nil {
		return nil, "", fmt.Errorf("fetching %s report for %s: %w", format, scanID, err)
	}
	return body, reportName(scanID, name, format), nil
}

// Download writes the report to dir/<scanID>/<filename>.
func (f *Fetcher) Download(ctx context.Context, scanID, format, dir string) (*Download, error) {
	fmtv, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}

	body, name, err := f.Open(ctx, scanID, fmtv)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	destDir := filepath.Join(dir, safeName(scanID))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating report directory: %w", err)
	}

	tmp, err := os.CreateTemp(destDir, ".report-*")
	if err != nil {
		return nil, fmt.Errorf("creating report file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, fmt.Errorf("writing report: %w", err)
	}

	dest := filepath.Join(destDir, name)
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return nil, fmt.Errorf("saving report: %w", err)
	}

	f.logger.Info("report downloaded", "scan_id", scanID, "format", fmtv, "path", dest, "bytes", n)
	return &Download{ScanID: scanID, Format: fmtv, Path: dest, Bytes: n}, nil
}

// Archive downloads the report and hands it to the archiver.
func (f *Fetcher) Archive(ctx context.Context, scanID, format, dir string) (*Download, error) {
	if f.archiver == nil {
		return nil, ErrArchiveDisabled
	}

	dl, err := f.Download(ctx, scanID, format, dir)
	if err != nil {
		return nil, err
	}

	loc, err := f.archiver.Archive(ctx, scanID, dl.Path)
	if err != nil {
		f.logger.Warn("report archive failed", "scan_id", scanID, "error", err)
		return dl, fmt.Errorf("archiving report: %w", err)
	}
	dl.Location = loc

	f.logger.Info("report archived", "scan_id", scanID, "location", loc)
	return dl, nil
}

func reportName(scanID, suggested string, format Format) string {
	if name := safeName(filepath.Base(suggested)); name != "" && name != "." {
		return name
	}
	return safeName(scanID) + "." + string(format)
}

// safeName keeps a single path element: separators and parent references
// are replaced.
func safeName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(s)
	return s
}
