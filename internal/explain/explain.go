// Package explain asks the backend for a plain-language explanation of a
// finding and always hands back something displayable.
package explain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hugh/zerogap/internal/client"
	"github.com/hugh/zerogap/internal/models"
	"github.com/hugh/zerogap/internal/scan"
)

const (
	defaultTitle       = "Untitled"
	defaultSummary     = "No summary available"
	defaultRemediation = "No remediation provided"

	errorTitle        = "Error"
	connectionTitle   = "Connection error"
	connectionSummary = "Unable to reach the backend."
)

type Backend interface {
	Explain(ctx context.Context, text string) (*models.Explanation, error)
}

type Explainer struct {
	backend Backend
	logger  *slog.Logger
}

func New(backend Backend, logger *slog.Logger) *Explainer {
	return &Explainer{backend: backend, logger: logger.With("component", "explain")}
}

// Explain only fails on empty input. Backend errors become an explanation
// titled "Error" carrying the backend's message; transport failures become a
// connection-error explanation. Neither carries a remediation.
func (e *Explainer) Explain(ctx context.Context, text string) (models.Explanation, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Explanation{}, fmt.Errorf("%w: nothing to explain", scan.ErrInvalidInput)
	}

	result, err := e.backend.Explain(ctx, text)
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			e.logger.Warn("explain rejected", "status", apiErr.StatusCode, "error", apiErr.Message)
			return models.Explanation{Title: errorTitle, Summary: apiErr.Message}, nil
		}
		e.logger.Warn("explain request failed", "error", err)
		return models.Explanation{Title: connectionTitle, Summary: connectionSummary}, nil
	}

	return withDefaults(*result), nil
}

// Finding explains a single vulnerability from a scan record.
func (e *Explainer) Finding(ctx context.Context, v models.Vulnerability) (models.Explanation, error) {
	return e.Explain(ctx, v.ExplainText())
}

func withDefaults(exp models.Explanation) models.Explanation {
	if strings.TrimSpace(exp.Title) == "" {
		exp.Title = defaultTitle
	}
	if strings.TrimSpace(exp.Summary) == "" {
		exp.Summary = defaultSummary
	}
	if strings.TrimSpace(exp.RemediationShort) == "" {
		exp.RemediationShort = defaultRemediation
	}
	return exp
}
