package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DeliveryMarkers remembers the last reply text delivered per ticket so a
// retried or concurrent delivery job does not send it twice. Last writer wins.
type DeliveryMarkers interface {
	Seen(ctx context.Context, ticketID int64, text string) (bool, error)
	// Claim atomically records text as the ticket's reply. It returns false
	// when text was already the recorded reply.
	Claim(ctx context.Context, ticketID int64, text string) (bool, error)
	// Release drops the marker when it still holds text, so a failed send
	// can be retried.
	Release(ctx context.Context, ticketID int64, text string) error
}

func markerDigest(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}

// ---------------- memory ----------------

type memoryMarker struct {
	digest  string
	expires time.Time
}

type memoryMarkers struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[int64]memoryMarker
}

func NewMemoryDeliveryMarkers(ttl time.Duration) DeliveryMarkers {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &memoryMarkers{ttl: ttl, now: time.Now, entries: map[int64]memoryMarker{}}
}

func (m *memoryMarkers) Seen(ctx context.Context, ticketID int64, text string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[ticketID]
	if !ok {
		return false, nil
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, ticketID)
		return false, nil
	}
	return e.digest == markerDigest(text), nil
}

func (m *memoryMarkers) Claim(ctx context.Context, ticketID int64, text string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	digest := markerDigest(text)
	if e, ok := m.entries[ticketID]; ok && now.Before(e.expires) && e.digest == digest {
		return false, nil
	}
	if len(m.entries) > 1024 {
		for id, e := range m.entries {
			if !now.Before(e.expires) {
				delete(m.entries, id)
			}
		}
	}
	m.entries[ticketID] = memoryMarker{digest: digest, expires: now.Add(m.ttl)}
	return true, nil
}

func (m *memoryMarkers) Release(ctx context.Context, ticketID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[ticketID]; ok && e.digest == markerDigest(text) {
		delete(m.entries, ticketID)
	}
	return nil
}

// ---------------- redis ----------------

type redisMarkers struct {
	rdb    goredis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewRedisDeliveryMarkers shares markers across worker processes.
func NewRedisDeliveryMarkers(rdb goredis.UniversalClient, ttl time.Duration) DeliveryMarkers {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &redisMarkers{rdb: rdb, ttl: ttl, prefix: "assistflow:delivered:"}
}

func (r *redisMarkers) key(ticketID int64) string {
	return fmt.Sprintf("%s%d", r.prefix, ticketID)
}

func (r *redisMarkers) Seen(ctx context.Context, ticketID int64, text string) (bool, error) {
	v, err := r.rdb.Get(ctx, r.key(ticketID)).Result()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read delivery marker: %w", err)
	}
	return v == markerDigest(text), nil
}

var (
	claimScript = goredis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return 1
`)
	releaseScript = goredis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)
)

func (r *redisMarkers) Claim(ctx context.Context, ticketID int64, text string) (bool, error) {
	n, err := claimScript.Run(ctx, r.rdb, []string{r.key(ticketID)}, markerDigest(text), r.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("claim delivery marker: %w", err)
	}
	return n == 1, nil
}

func (r *redisMarkers) Release(ctx context.Context, ticketID int64, text string) error {
	if err := releaseScript.Run(ctx, r.rdb, []string{r.key(ticketID)}, markerDigest(text)).Err(); err != nil {
		return fmt.Errorf("release delivery marker: %w", err)
	}
	return nil
}
