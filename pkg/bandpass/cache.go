package bandpass

import (
	"sync"
)

// Cache memoizes Design results keyed by FilterSpec.
//
// Returned Coefficients are shared between callers and must not be modified.
type Cache struct {
	locker sync.Mutex
	items  map[FilterSpec]Coefficients
}

func NewCache() *Cache {
	return &Cache{
		items: map[FilterSpec]Coefficients{},
	}
}

func (c *Cache) Get(spec FilterSpec) (Coefficients, error) {
	c.locker.Lock()
	defer c.locker.Unlock()
	if coeffs, ok := c.items[spec]; ok {
		return coeffs, nil
	}
	coeffs, err := Design(spec)
	if err != nil {
		return Coefficients{}, err
	}
	c.items[spec] = coeffs
	return coeffs, nil
}

func (c *Cache) Len() int {
	c.locker.Lock()
	defer c.locker.Unlock()
	return len(c.items)
}
