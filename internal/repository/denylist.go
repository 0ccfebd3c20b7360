package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DenyList records revoked token IDs until the tokens would have expired
// anyway.
type DenyList interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// NewRedisClient creates a Redis client and checks the connection.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("repository: redis ping: %w", err)
	}
	return client, nil
}

// RedisDenyList stores revoked token IDs as keys that expire with the token.
type RedisDenyList struct {
	client *redis.Client
}

// NewRedisDenyList creates a RedisDenyList.
func NewRedisDenyList(client *redis.Client) *RedisDenyList {
	return &RedisDenyList{client: client}
}

func revokedKey(tokenID string) string {
	return fmt.Sprintf("access_token:revoked:%s", tokenID)
}

// Revoke marks tokenID as revoked. Tokens that already expired are ignored.
func (d *RedisDenyList) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := d.client.Set(ctx, revokedKey(tokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

func (d *RedisDenyList) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := d.client.Exists(ctx, revokedKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}
	return n > 0, nil
}

// MemoryDenyList is a process-local DenyList.
type MemoryDenyList struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

// NewMemoryDenyList creates an empty MemoryDenyList.
func NewMemoryDenyList() *MemoryDenyList {
	return &MemoryDenyList{revoked: make(map[string]time.Time), now: time.Now}
}

func (d *MemoryDenyList) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if !expiresAt.After(now) {
		return nil
	}
	// Drop entries whose tokens have expired on the way in.
	for id, exp := range d.revoked {
		if !exp.After(now) {
			delete(d.revoked, id)
		}
	}
	d.revoked[tokenID] = expiresAt
	return nil
}

func (d *MemoryDenyList) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	exp, ok := d.revoked[tokenID]
	return ok && exp.After(d.now()), nil
}
