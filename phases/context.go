package phases

import (
	"strings"
	"sync"
)

// Context carries values from one phase to the next within a run: probed
// versions, the credentials that authenticated, the generated config and
// operator answers. Keys are namespaced "phase:name".
type Context struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewContext returns an empty context.
func NewContext() *Context {
	return &Context{values: map[string]any{}}
}

// Set stores value under key, replacing any previous value.
func (c *Context) Set(key string, value any) {
	if c == nil {
		return
	}
	c.mu.Lock()
	if c.values == nil {
		c.values = map[string]any{}
	}
	c.values[key] = value
	c.mu.Unlock()
}

// Get returns the raw value under key.
func (c *Context) Get(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// DeletePrefix removes every key starting with prefix.
func (c *Context) DeletePrefix(prefix string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.values {
		if strings.HasPrefix(key, prefix) {
			delete(c.values, key)
		}
	}
}

// Value returns the value under key when it holds a T.
func Value[T any](ctx *Context, key string) (T, bool) {
	v, _ := ctx.Get(key)
	typed, ok := v.(T)
	return typed, ok
}
