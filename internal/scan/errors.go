package scan

import (
	"errors"
	"fmt"

	"github.com/hugh/zerogap/internal/client"
)

// ErrInvalidInput is returned before any request is issued when the caller
// supplied an empty target.
var ErrInvalidInput = errors.New("invalid input: url is required")

// StartError means the backend refused (or never answered) a scan start. The
// canonical record is left untouched when it is returned.
type StartError struct {
	URL string
	Err error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("starting scan of %s: %s", e.URL, e.Message())
}

// Message is the text to show the user: the backend's own error message when
// there is one, otherwise the underlying error.
func (e *StartError) Message() string {
	var apiErr *client.APIError
	if errors.As(e.Err, &apiErr) {
		return apiErr.Message
	}
	return e.Err.Error()
}

func (e *StartError) Unwrap() error {
	return e.Err
}
