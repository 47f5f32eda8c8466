package worker

import (
	"net/http"
	"sync"
)

type ResponseType string

const (
	ResponseBasic  ResponseType = "basic"
	ResponseCORS   ResponseType = "cors"
	ResponseOpaque ResponseType = "opaque"
)

// Response is a fully buffered response as held by a cache.
type Response struct {
	Status int
	Type   ResponseType
	Header http.Header
	Body   []byte
}

func (r *Response) clone() *Response {
	if r == nil {
		return nil
	}
	c := *r
	c.Header = r.Header.Clone()
	c.Body = append([]byte(nil), r.Body...)
	return &c
}

// Cache is one named cache of responses keyed by absolute URL. A positive
// limit evicts the oldest entries first.
type Cache struct {
	name string

	mu      sync.Mutex
	limit   int
	entries map[string]*Response
	order   []string
}

func newCache(name string) *Cache {
	return &Cache{name: name, entries: make(map[string]*Response)}
}

func (c *Cache) Name() string { return c.name }

func (c *Cache) SetLimit(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limit = n
	c.evictLocked()
}

func (c *Cache) Put(key string, resp *Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		c.order = append(c.order, key)
	}
	c.entries[key] = resp.clone()
	c.evictLocked()
}

func (c *Cache) evictLocked() {
	if c.limit <= 0 {
		return
	}
	for len(c.order) > c.limit {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

func (c *Cache) Match(key string) (*Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return resp.clone(), true
}

func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		return false
	}
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

// Keys returns the cached URLs oldest first.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// CacheStorage holds the named caches of one origin.
type CacheStorage struct {
	mu     sync.Mutex
	caches map[string]*Cache
	order  []string
}

func NewCacheStorage() *CacheStorage {
	return &CacheStorage{caches: make(map[string]*Cache)}
}

// Open returns the named cache, creating it if needed.
func (s *CacheStorage) Open(name string) *Cache {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.caches[name]; ok {
		return c
	}
	c := newCache(name)
	s.caches[name] = c
	s.order = append(s.order, name)
	return c
}

func (s *CacheStorage) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.caches[name]
	return ok
}

func (s *CacheStorage) Delete(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.caches[name]; !ok {
		return false
	}
	delete(s.caches, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Keys returns cache names in creation order.
func (s *CacheStorage) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Match searches every cache in creation order.
func (s *CacheStorage) Match(key string) (*Response, bool) {
	s.mu.Lock()
	caches := make([]*Cache, 0, len(s.order))
	for _, n := range s.order {
		caches = append(caches, s.caches[n])
	}
	s.mu.Unlock()

	for _, c := range caches {
		if resp, ok := c.Match(key); ok {
			return resp, true
		}
	}
	return nil, false
}
