package provider

import (
	"context"
	"errors"
	"time"

	"github.com/getkayan/mentorship/core/logger"
	"go.uber.org/zap"
)

// Refresher is a provider that can rotate its own tokens. Local and Remote
// implement it.
type Refresher interface {
	CurrentSession(ctx context.Context) (*Session, error)
	Refresh(ctx context.Context) (*Session, error)
}

// AutoRefresh checks the current session every interval and refreshes it
// once its access token expires within margin. It returns when ctx is done.
func AutoRefresh(ctx context.Context, r Refresher, interval, margin time.Duration) {
	log := logger.Named("provider.refresh")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cur, err := r.CurrentSession(ctx)
		if err != nil {
			log.Warn("session check failed", zap.Error(err))
			continue
		}
		if cur == nil || cur.ExpiresAt.IsZero() || time.Until(cur.ExpiresAt) > margin {
			continue
		}
		if _, err := r.Refresh(ctx); err != nil && !errors.Is(err, ErrNoSession) {
			log.Warn("token refresh failed", zap.String("principal_id", cur.PrincipalID), zap.Error(err))
		}
	}
}
