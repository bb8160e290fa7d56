package observability

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// FlushTelemetry flushes buffered telemetry before exit. Metrics are
// pull-based so nothing remains to push; the last refresh and shutdown log
// lines are what this actually saves. main calls it after the in-flight
// drain and before closing the memcached client.
func FlushTelemetry(ctx context.Context, logger *zap.Logger) error {
	if logger != nil {
		if err := logger.Sync(); err != nil {
			return fmt.Errorf("flush logs: %w", err)
		}
	}
	return nil
}
