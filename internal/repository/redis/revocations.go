package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/splax/todo/internal/repository"
)

const defaultPrefix = "todo:session:revoked:"

// Revocations stores signed-out session ids with an expiry matching the token.
type Revocations struct {
	client goredis.UniversalClient
	prefix string
}

var _ repository.SessionRevocations = (*Revocations)(nil)

// NewRevocations wraps an existing client.
func NewRevocations(client goredis.UniversalClient) *Revocations {
	return &Revocations{client: client, prefix: defaultPrefix}
}

// Revoke marks sessionID revoked for ttl. Non-positive ttl is a no-op since
// the token has already expired.
func (r *Revocations) Revoke(ctx context.Context, sessionID string, ttl time.Duration) error {
	if sessionID == "" || ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, r.prefix+sessionID, "1", ttl).Err()
}

// IsRevoked reports whether sessionID was revoked.
func (r *Revocations) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, nil
	}
	err := r.client.Get(ctx, r.prefix+sessionID).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, goredis.Nil):
		return false, nil
	default:
		return false, err
	}
}
