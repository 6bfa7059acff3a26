package continuity

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/technosupport/ts-dispatch/internal/alerts"
	"github.com/technosupport/ts-dispatch/internal/metrics"
)

const (
	// SlotKey is the single snapshot slot. One operator console per
	// workstation, so a fixed key is enough.
	SlotKey = "vms_dispatch_session"

	// Staleness bounds how long a snapshot can substitute for a fresh
	// fetch after navigation-away or logout.
	Staleness = 15 * time.Minute
)

// Snapshot is the persisted shape: {username, alerts, timestamp}.
type Snapshot struct {
	Username  string         `json:"username"`
	Alerts    []alerts.Alert `json:"alerts"`
	Timestamp time.Time      `json:"timestamp"`
}

// Cache preserves unacknowledged incident state across operator
// navigation within the staleness window. The slot is read-once: a
// restore consumes it whether or not it validates.
type Cache struct {
	client *redis.Client
	now    func() time.Time
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client, now: time.Now}
}

// Save writes the snapshot slot. Empty alert sets are not worth
// preserving and clear the slot instead.
func (c *Cache) Save(ctx context.Context, identity string, as []alerts.Alert) error {
	if len(as) == 0 {
		return c.client.Del(ctx, SlotKey).Err()
	}
	snap := Snapshot{Username: identity, Alerts: as, Timestamp: c.now()}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	// TTL doubles as a server-side staleness guard.
	if err := c.client.Set(ctx, SlotKey, data, Staleness).Err(); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// TryRestore reads and atomically clears the slot. Returns ok=false when
// the slot is absent, the owner identity mismatches, or the snapshot is
// at least 15 minutes old. Callers restore-or-fetch, never both.
func (c *Cache) TryRestore(ctx context.Context, identity string) ([]alerts.Alert, bool, error) {
	data, err := c.client.GetDel(ctx, SlotKey).Bytes()
	if err == redis.Nil {
		metrics.SnapshotRestores.WithLabelValues("absent").Inc()
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Printf("[Continuity] Discarding corrupt snapshot: %v", err)
		metrics.SnapshotRestores.WithLabelValues("corrupt").Inc()
		return nil, false, nil
	}
	if snap.Username != identity {
		log.Printf("[Continuity] Discarding snapshot owned by %q (now %q)", snap.Username, identity)
		metrics.SnapshotRestores.WithLabelValues("identity_mismatch").Inc()
		return nil, false, nil
	}
	if c.now().Sub(snap.Timestamp) >= Staleness {
		log.Printf("[Continuity] Discarding stale snapshot from %s", snap.Timestamp.Format(time.RFC3339))
		metrics.SnapshotRestores.WithLabelValues("stale").Inc()
		return nil, false, nil
	}

	metrics.SnapshotRestores.WithLabelValues("restored").Inc()
	return snap.Alerts, true, nil
}
