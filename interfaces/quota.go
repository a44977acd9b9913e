package interfaces

import "context"

// QuotaProbe reports storage usage against the configured budget.
type QuotaProbe interface {
	Usage(ctx context.Context) (used uint64, quota uint64, err error)
}
