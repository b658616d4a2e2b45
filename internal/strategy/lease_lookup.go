package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/crudebot/internal/domain"
)

// findLease polls the lease list until a lease for ticker shows up, waiting
// backoff, 2*backoff, ... between attempts. It gives up after attempts tries
// with domain.ErrLeaseNotFound.
func findLease(ctx context.Context, m Market, ticker string, attempts int, backoff time.Duration) (domain.Lease, error) {
	if attempts < 1 {
		attempts = 1
	}
	wait := backoff
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		leases, err := m.Leases(ctx)
		if err == nil {
			if l, ok := domain.FindLease(leases, ticker); ok {
				return l, nil
			}
		} else {
			lastErr = err
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.Lease{}, fmt.Errorf("find lease %s: %w", ticker, ctx.Err())
		case <-timer.C:
		}
		wait *= 2
	}

	if lastErr != nil {
		return domain.Lease{}, fmt.Errorf("%w: %s after %d attempts (last error: %w)", domain.ErrLeaseNotFound, ticker, attempts, lastErr)
	}
	return domain.Lease{}, fmt.Errorf("%w: %s after %d attempts", domain.ErrLeaseNotFound, ticker, attempts)
}
