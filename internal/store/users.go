// Package store persists subscriber profiles in Redis. Records are stored
// as JSON documents under per-user keys, with a companion set tracking which
// keys belong to subscribed users:
//
//	Key:   id:<viber user id>  ->  canonical User JSON
//	Set:   subscribed:ids      ->  members are the per-user keys
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/viberbot/welcome-bot/internal/viber"
)

const (
	// KeyPrefix is the Redis key prefix for user records.
	KeyPrefix = "id:"

	// SubscribedSetKey is the Redis set holding the keys of subscribed users.
	SubscribedSetKey = "subscribed:ids"
)

// UserKey derives the storage key for a Viber user id.
func UserKey(userID string) string {
	return KeyPrefix + userID
}

// StorageError wraps a failed write or connection against the Redis backend.
// Writes required by the current event surface it to the caller as a server
// error; it is never swallowed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store: %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// UserStore manages subscriber records in Redis.
type UserStore struct {
	client *redis.Client
}

// NewUserStore creates a user store using the provided Redis client. The
// client is injected so the process shares one pooled connection handle
// across all requests.
func NewUserStore(client *redis.Client) *UserStore {
	return &UserStore{client: client}
}

// Connect dials Redis at addr and verifies the connection with a ping.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("store: redis connection failed: %w", err)
	}
	return client, nil
}

// Upsert stores user under key, fully replacing any previous value, and
// registers key in the subscribed set. Both writes go through one pipeline;
// repeated upserts for the same user collapse to a single set member.
func (s *UserStore) Upsert(ctx context.Context, key string, user viber.User) error {
	doc, err := json.Marshal(user)
	if err != nil {
		return &StorageError{Op: "upsert", Err: err}
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, key, doc, 0)
	pipe.SAdd(ctx, SubscribedSetKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return &StorageError{Op: "upsert", Err: err}
	}
	return nil
}

// Get fetches the user stored at key. Reads degrade rather than fail: a
// missing key, a read error, and bytes that do not deserialize into a User
// all report absent. Lookups are never on the critical path of an event, so
// absent is always a safe answer.
func (s *UserStore) Get(ctx context.Context, key string) *viber.User {
	doc, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil
	}

	var user viber.User
	if err := json.Unmarshal(doc, &user); err != nil {
		return nil
	}
	if user.ID == "" {
		// Parseable JSON that isn't a user record.
		return nil
	}
	return &user
}

// ListSubscribed returns the profiles of all users registered in the
// subscribed set. Keys whose records have since gone absent are skipped,
// and a failed set read yields an empty slice. Ordering is whatever Redis
// returns for the set members.
func (s *UserStore) ListSubscribed(ctx context.Context) []viber.User {
	keys, err := s.client.SMembers(ctx, SubscribedSetKey).Result()
	if err != nil {
		return nil
	}

	users := make([]viber.User, 0, len(keys))
	for _, key := range keys {
		if user := s.Get(ctx, key); user != nil {
			users = append(users, *user)
		}
	}
	return users
}

// Unsubscribe removes key from the subscribed set. The user record itself
// is retained.
func (s *UserStore) Unsubscribe(ctx context.Context, key string) error {
	if err := s.client.SRem(ctx, SubscribedSetKey, key).Err(); err != nil {
		return &StorageError{Op: "unsubscribe", Err: err}
	}
	return nil
}

// Close closes the underlying Redis connection.
func (s *UserStore) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client for use by other packages.
func (s *UserStore) Client() *redis.Client {
	return s.client
}
