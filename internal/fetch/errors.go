package fetch

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// ExhaustedError reports that every fetch attempt for a URL failed.
type ExhaustedError struct {
	URL      string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("fetch exhausted after %d attempts for %s: %v", e.Attempts, e.URL, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// isConnectionError distinguishes transport-level failures (which indict the
// proxy tunnel) from HTTP status failures (which do not).
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
