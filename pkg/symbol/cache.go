package symbol

import (
	"strconv"
	"sync"

	"go.uber.org/atomic"
	"golang.org/x/sync/singleflight"

	"github.com/elfdbg/symbolizer/pkg/dwarf/info"
)

// unitCache memoizes per-unit structures (DIE tree, function index, line
// table). Construction happens at most once per unit even under
// concurrent first touch; losers of the race reuse the retained result.
type unitCache struct {
	mu    sync.RWMutex
	units map[int]*compileUnit
	group singleflight.Group

	hits   atomic.Int64
	builds atomic.Int64
}

func newUnitCache() *unitCache {
	return &unitCache{units: make(map[int]*compileUnit)}
}

func (c *unitCache) get(img *Image, u *info.Unit) *compileUnit {
	c.mu.RLock()
	cu, ok := c.units[u.Index]
	c.mu.RUnlock()
	if ok {
		c.hits.Inc()
		return cu
	}

	v, _, _ := c.group.Do(strconv.Itoa(u.Index), func() (interface{}, error) {
		c.mu.RLock()
		cu, ok := c.units[u.Index]
		c.mu.RUnlock()
		if ok {
			return cu, nil
		}
		c.builds.Inc()
		cu = newCompileUnit(img, u)
		c.mu.Lock()
		c.units[u.Index] = cu
		c.mu.Unlock()
		return cu, nil
	})
	return v.(*compileUnit)
}
