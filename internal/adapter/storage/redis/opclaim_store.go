package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// OpClaimStore implements ports.OpClaimStore using Redis SET NX. A claim
// marks an operation id as in flight so a storm of identical submissions is
// cut down to one before it reaches the row locks.
type OpClaimStore struct {
	client *goredis.Client
	prefix string
}

// NewOpClaimStore creates a new Redis-backed claim store.
func NewOpClaimStore(client *goredis.Client) *OpClaimStore {
	return &OpClaimStore{
		client: client,
		prefix: "opclaim:",
	}
}

// TryClaim atomically claims an operation id if nobody holds it.
// Returns true if the claim is ours, false if another attempt is in flight.
func (s *OpClaimStore) TryClaim(ctx context.Context, operationID string, ttl time.Duration) (bool, error) {
	result, err := s.client.SetArgs(ctx, s.prefix+operationID, 1, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if err == goredis.Nil {
			// Key already exists, the operation is already in flight
			return false, nil
		}
		return false, fmt.Errorf("redis opclaim set: %w", err)
	}
	return result == "OK", nil
}

// Release drops a claim so a retry of a failed operation can proceed
// immediately instead of waiting out the TTL.
func (s *OpClaimStore) Release(ctx context.Context, operationID string) error {
	if err := s.client.Del(ctx, s.prefix+operationID).Err(); err != nil {
		return fmt.Errorf("redis opclaim release: %w", err)
	}
	return nil
}
