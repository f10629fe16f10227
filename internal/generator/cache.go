package generator

import "sync"

type pathKey struct {
	storeID    int64
	categoryID int64
}

// Cache holds category url paths looked up while generating rewrites. Work on
// one entity happens inside a Scope; when the last open scope is released the
// cache is emptied, so memory stays bounded on large catalogs.
type Cache struct {
	mu     sync.Mutex
	paths  map[pathKey]string
	scopes int
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{paths: make(map[pathKey]string)}
}

// Scope is an open handle on the cache.
type Scope struct {
	cache    *Cache
	released bool
}

// Acquire opens a scope.
func (c *Cache) Acquire() *Scope {
	c.mu.Lock()
	c.scopes++
	c.mu.Unlock()
	return &Scope{cache: c}
}

// Len returns the number of cached paths.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.paths)
}

// Release closes the scope. Releasing twice is a no-op.
func (s *Scope) Release() {
	if s.released {
		return
	}
	s.released = true

	c := s.cache
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scopes--
	if c.scopes <= 0 {
		c.scopes = 0
		clear(c.paths)
	}
}

// Path returns the cached url path of a category.
func (s *Scope) Path(storeID, categoryID int64) (string, bool) {
	s.cache.mu.Lock()
	defer s.cache.mu.Unlock()
	p, ok := s.cache.paths[pathKey{storeID: storeID, categoryID: categoryID}]
	return p, ok
}

// Remember caches the url path of a category.
func (s *Scope) Remember(storeID, categoryID int64, urlPath string) {
	s.cache.mu.Lock()
	defer s.cache.mu.Unlock()
	s.cache.paths[pathKey{storeID: storeID, categoryID: categoryID}] = urlPath
}
