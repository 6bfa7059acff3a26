package dispatch

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// chimeGate keeps the audible alert to one chime per alert id within a
// TTL window, so redeliveries after a reconnect stay silent.
type chimeGate struct {
	cache *lru.Cache[string, time.Time]
	ttl   time.Duration
}

func newChimeGate(maxKeys int, ttl time.Duration) *chimeGate {
	c, _ := lru.New[string, time.Time](maxKeys)
	return &chimeGate{cache: c, ttl: ttl}
}

func (g *chimeGate) shouldChime(alertID string) bool {
	if firedAt, ok := g.cache.Get(alertID); ok {
		if time.Since(firedAt) < g.ttl {
			return false
		}
	}
	g.cache.Add(alertID, time.Now())
	return true
}
