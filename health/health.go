package health

import "context"

// ReadinessCheck is implemented by dependencies that gate the /readyz endpoint.
type ReadinessCheck interface {
	IsReady(ctx context.Context) error
	Name() string
}
