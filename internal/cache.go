package internal

// Shape distinguishes single from multiple lookups.
type Shape int

const (
	ShapeSingle Shape = iota
	ShapeMultiple
)

func (s Shape) String() string {
	if s == ShapeMultiple {
		return "multiple"
	}
	return "single"
}

// Cache memoizes the latest outcome per query key.
// A missing entry means "not resolved yet", never "not found".
type Cache struct {
	single   map[any]Facet
	multiple map[any][]Facet
}

func NewCache() *Cache {
	return &Cache{
		single:   make(map[any]Facet),
		multiple: make(map[any][]Facet),
	}
}

// One returns the cached facet for key, or calls resolve and stores a present result.
func (c *Cache) One(key any, resolve func() (Facet, bool, error)) (f Facet, ok bool, hit bool, err error) {
	if f, ok := c.single[key]; ok {
		return f, true, true, nil
	}

	f, ok, err = resolve()
	if err != nil {
		return nil, false, false, err
	}
	if ok {
		c.single[key] = f
	}
	return f, ok, false, nil
}

// All returns the cached facets for key, or calls resolve and stores the result
// unless resolve returned a nil slice, which marks the outcome as not cacheable.
func (c *Cache) All(key any, resolve func() ([]Facet, error)) (found []Facet, hit bool, err error) {
	if found, ok := c.multiple[key]; ok {
		return found, true, nil
	}

	found, err = resolve()
	if err != nil {
		return nil, false, err
	}
	if found != nil {
		c.multiple[key] = found
	}
	return found, false, nil
}

func (c *Cache) Clear() {
	clear(c.single)
	clear(c.multiple)
}

func (c *Cache) SingleCount() int   { return len(c.single) }
func (c *Cache) MultipleCount() int { return len(c.multiple) }
