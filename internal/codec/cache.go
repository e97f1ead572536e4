package codec

import "sync"

// Cache memoises codecs of a Provider by Key. It lives as long as the value
// that owns it, usually the component constructing sessions; entries are
// only dropped by Purge.
type Cache struct {
	provider Provider

	mu     sync.Mutex
	codecs map[Key]Codec
}

func NewCache(provider Provider) *Cache {
	return &Cache{
		provider: provider,
		codecs:   make(map[Key]Codec),
	}
}

func (c *Cache) Codec(key Key) (Codec, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if codec, ok := c.codecs[key]; ok {
		return codec, nil
	}
	codec, err := c.provider.Codec(key)
	if err != nil {
		return nil, err
	}
	c.codecs[key] = codec
	return codec, nil
}

// Len returns the number of cached codecs.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.codecs)
}

// Purge drops every cached codec.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.codecs)
}
