package query

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sloppy/lynistracker/internal/report"
)

// DefaultCacheSize bounds the number of distinct query texts kept parsed.
const DefaultCacheSize = 512

type parsed struct {
	query Query
	ok    bool
}

// Cache memoizes Parse results, including rejections. It is safe for
// concurrent use.
type Cache struct {
	entries *lru.Cache[string, parsed]
}

// NewCache returns a cache holding up to size parsed queries. A size of zero
// or less selects DefaultCacheSize.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[string, parsed](size)
	if err != nil {
		return nil, fmt.Errorf("create query cache: %w", err)
	}
	return &Cache{entries: entries}, nil
}

// Parse is Parse with memoization. A nil Cache parses directly.
func (c *Cache) Parse(text string) (Query, bool) {
	if c == nil {
		return Parse(text)
	}
	if hit, ok := c.entries.Get(text); ok {
		return hit.query, hit.ok
	}
	q, ok := Parse(text)
	c.entries.Add(text, parsed{query: q, ok: ok})
	return q, ok
}

// Evaluate is Evaluate using the cache for parsing.
func (c *Cache) Evaluate(facts *report.Facts, text string) (result, known bool) {
	q, ok := c.Parse(text)
	if !ok {
		return false, false
	}
	return q.Eval(facts)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}
