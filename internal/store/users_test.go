package store

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/viberbot/welcome-bot/internal/viber"
)

// newTestStore creates a UserStore connected to a local Redis instance and
// flushes all test keys before returning. Tests that call this helper
// require a running Redis on localhost:6379.
func newTestStore(t *testing.T) *UserStore {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	cleanup := func() {
		iter := client.Scan(ctx, 0, KeyPrefix+"test_*", 100).Iterator()
		for iter.Next(ctx) {
			client.SRem(ctx, SubscribedSetKey, iter.Val())
			client.Del(ctx, iter.Val())
		}
	}
	cleanup()
	t.Cleanup(func() {
		cleanup()
		client.Close()
	})
	return NewUserStore(client)
}

func TestUpsertGetRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	user := viber.User{
		ID:         "test_roundtrip",
		Name:       "John McClane",
		Country:    "US",
		APIVersion: 2,
	}
	key := UserKey(user.ID)

	if err := st.Upsert(ctx, key, user); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}

	got := st.Get(ctx, key)
	if got == nil {
		t.Fatal("expected user, got absent")
	}
	if *got != user {
		t.Errorf("expected %+v, got %+v", user, *got)
	}
}

func TestUpsertReplacesWholeRecord(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	key := UserKey("test_replace")

	first := viber.User{ID: "test_replace", Name: "Old Name", Avatar: "http://old"}
	if err := st.Upsert(ctx, key, first); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}

	// No merge semantics: the second write drops the avatar entirely.
	second := viber.User{ID: "test_replace", Name: "New Name"}
	if err := st.Upsert(ctx, key, second); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}

	got := st.Get(ctx, key)
	if got == nil {
		t.Fatal("expected user, got absent")
	}
	if *got != second {
		t.Errorf("expected %+v, got %+v", second, *got)
	}
}

func TestGetAbsentKey(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if got := st.Get(ctx, UserKey("test_never_written")); got != nil {
		t.Errorf("expected nil user, got %+v", *got)
	}
}

func TestGetCorruptBytesReadAsAbsent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	key := UserKey("test_corrupt")

	if err := st.Client().Set(ctx, key, "not-json{{", 0).Err(); err != nil {
		t.Fatalf("failed to plant corrupt value: %v", err)
	}

	if got := st.Get(ctx, key); got != nil {
		t.Errorf("expected nil user for corrupt bytes, got %+v", *got)
	}
}

func TestSubscribedSetIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	user := viber.User{ID: "test_idempotent", Name: "Repeat Subscriber"}
	key := UserKey(user.ID)

	// Duplicate registrations collapse to a single set member.
	for i := 0; i < 3; i++ {
		if err := st.Upsert(ctx, key, user); err != nil {
			t.Fatalf("Upsert() #%d error: %v", i, err)
		}
	}

	count, err := st.Client().SMIsMember(ctx, SubscribedSetKey, key).Result()
	if err != nil {
		t.Fatalf("SMIsMember error: %v", err)
	}
	if len(count) != 1 || !count[0] {
		t.Fatalf("expected key in subscribed set exactly once, got %v", count)
	}

	users := st.ListSubscribed(ctx)
	seen := 0
	for _, u := range users {
		if u.ID == user.ID {
			seen++
		}
	}
	if seen != 1 {
		t.Errorf("expected user listed exactly once, got %d", seen)
	}
}

func TestListSubscribedSkipsAbsentRecords(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	kept := viber.User{ID: "test_kept", Name: "Kept"}
	gone := viber.User{ID: "test_gone", Name: "Gone"}
	if err := st.Upsert(ctx, UserKey(kept.ID), kept); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}
	if err := st.Upsert(ctx, UserKey(gone.ID), gone); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}

	// Delete the record but leave the set membership behind.
	if err := st.Client().Del(ctx, UserKey(gone.ID)).Err(); err != nil {
		t.Fatalf("Del error: %v", err)
	}

	users := st.ListSubscribed(ctx)
	for _, u := range users {
		if u.ID == gone.ID {
			t.Errorf("expected absent record %q to be skipped", gone.ID)
		}
	}
	found := false
	for _, u := range users {
		if u.ID == kept.ID {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %q in subscribed list", kept.ID)
	}
}

func TestUnsubscribeKeepsRecord(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	user := viber.User{ID: "test_unsub", Name: "Leaver"}
	key := UserKey(user.ID)
	if err := st.Upsert(ctx, key, user); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}

	if err := st.Unsubscribe(ctx, key); err != nil {
		t.Fatalf("Unsubscribe() error: %v", err)
	}

	member, err := st.Client().SIsMember(ctx, SubscribedSetKey, key).Result()
	if err != nil {
		t.Fatalf("SIsMember error: %v", err)
	}
	if member {
		t.Error("expected key removed from subscribed set")
	}

	// The profile itself survives unsubscription.
	if got := st.Get(ctx, key); got == nil {
		t.Fatal("expected user record to remain after unsubscribe")
	}
}
