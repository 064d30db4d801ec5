package aes67

import (
	"sync"
	"time"

	"github.com/siegeld/dantectl/pkg/core"
)

// Cache keeps every stream ever announced, keyed by session name. SAP
// announcements are periodic, so one capture window rarely sees them all -
// streams missing from a cycle stay in the table untouched.
type Cache struct {
	mu      sync.RWMutex
	streams map[string]*core.Stream
}

func NewCache() *Cache {
	return &Cache{streams: make(map[string]*core.Stream)}
}

// Merge inserts a stream or fully replaces the record under the same
// session name. Merging the same announcement twice is a no-op.
func (c *Cache) Merge(stream *core.Stream) {
	c.mu.Lock()
	c.streams[stream.Name] = stream
	c.mu.Unlock()
}

func (c *Cache) Get(name string) *core.Stream {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.streams[name]
}

// All returns a copy safe to publish in a snapshot.
func (c *Cache) All() map[string]*core.Stream {
	c.mu.RLock()
	defer c.mu.RUnlock()

	streams := make(map[string]*core.Stream, len(c.streams))
	for name, stream := range c.streams {
		streams[name] = stream.Clone()
	}
	return streams
}

// Prune drops streams not announced within ttl. A zero or negative ttl
// keeps everything forever.
func (c *Cache) Prune(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}

	deadline := time.Now().Add(-ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	var n int
	for name, stream := range c.streams {
		if stream.LastSeen.Before(deadline) {
			delete(c.streams, name)
			n++
		}
	}
	return n
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.streams)
}
