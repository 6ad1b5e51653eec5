package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

var (
	ErrSlotStoreMissing = errors.New("slot_store_missing")
	ErrInvalidSlot      = errors.New("invalid_slot")
)

// freeSlotScript deletes the key only while it still carries the holder id.
const freeSlotScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// SlotStore hands out exclusive, expiring slots keyed by principal.
type SlotStore struct {
	client redis.UniversalClient
	free   *redis.Script
}

// Slot is a claimed key. Zero slots are valid and free to nothing.
type Slot struct {
	Key    string
	Holder string
}

func NewSlotStore(client redis.UniversalClient) *SlotStore {
	if client == nil {
		return nil
	}
	return &SlotStore{client: client, free: redis.NewScript(freeSlotScript)}
}

// Claim reports false without error when another holder owns key.
func (s *SlotStore) Claim(ctx context.Context, key string, ttl time.Duration) (Slot, bool, error) {
	if s == nil || s.client == nil {
		return Slot{}, false, ErrSlotStoreMissing
	}
	if key == "" || ttl <= 0 {
		return Slot{}, false, ErrInvalidSlot
	}

	slot := Slot{Key: key, Holder: uuid.NewString()}
	ok, err := s.client.SetNX(ctx, key, slot.Holder, ttl).Result()
	if err != nil || !ok {
		return Slot{}, false, err
	}
	return slot, true, nil
}

func (s *SlotStore) Free(ctx context.Context, slot Slot) error {
	if s == nil || s.client == nil || slot.Key == "" || slot.Holder == "" {
		return nil
	}
	return s.free.Run(ctx, s.client, []string{slot.Key}, slot.Holder).Err()
}
