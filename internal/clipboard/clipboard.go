package clipboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/atotto/clipboard"
)

var ErrUnavailable = errors.New("clipboard unavailable")

// Writer copies text to the system clipboard.
type Writer interface {
	WriteAll(text string) error
}

type systemWriter struct{}

func (systemWriter) WriteAll(text string) error {
	return clipboard.WriteAll(text)
}

// System is the clipboard of the running desktop session.
var System Writer = systemWriter{}

// Copy writes text through w, giving up when ctx ends first.
func Copy(ctx context.Context, w Writer, text string) error {
	if w == nil || (w == System && clipboard.Unsupported) {
		return ErrUnavailable
	}
	done := make(chan error, 1)
	go func() { done <- w.WriteAll(text) }()

	select {
	case <-ctx.Done():
		return fmt.Errorf("copy to clipboard: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("copy to clipboard: %w", err)
		}
		return nil
	}
}
