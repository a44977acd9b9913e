package interfaces

import "context"

// RequestOptions selects method and path for a remote API call.
type RequestOptions struct {
	Method string
	Path   string
}

// RemoteClient is the wire transport to the mail service. Implementations
// must surface context cancellation as context.Canceled (or a wrapper
// satisfying errors.Is) so callers can distinguish aborts from failures.
type RemoteClient interface {
	Request(ctx context.Context, resource string, params map[string]string, opts *RequestOptions) ([]byte, error)
}
