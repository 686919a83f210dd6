// Package attempts counts how many times a message has been tried in this
// process. It backs the retry budget when the broker does not report a
// delivery count itself.
package attempts

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/coocood/freecache"
	"github.com/spaolacci/murmur3"
)

type Tracker struct {
	cache *freecache.Cache
	ttl   int
}

// New creates a tracker backed by a size-byte cache. Counters expire after ttl
// without activity; ttl <= 0 keeps them until evicted.
func New(size int, ttl time.Duration) *Tracker {
	return &Tracker{
		cache: freecache.NewCache(size),
		ttl:   int(ttl / time.Second),
	}
}

// Next records one more attempt for key and returns the new count.
func (t *Tracker) Next(key string) int {
	n := t.Get(key) + 1

	var data [8]byte
	binary.LittleEndian.PutUint64(data[:], uint64(n))
	_ = t.cache.Set([]byte(key), data[:], t.ttl)

	return n
}

// Get returns the attempts recorded for key.
func (t *Tracker) Get(key string) int {
	data, err := t.cache.Get([]byte(key))
	if err != nil || len(data) < 8 {
		return 0
	}
	return int(binary.LittleEndian.Uint64(data))
}

func (t *Tracker) Forget(key string) {
	t.cache.Del([]byte(key))
}

// Key identifies a message by its id, or by a hash of the body when the
// publisher did not set one.
func Key(messageID string, body []byte) string {
	if messageID != "" {
		return "id:" + messageID
	}
	h1, h2 := murmur3.Sum128(body)
	return fmt.Sprintf("body:%016x%016x", h1, h2)
}
