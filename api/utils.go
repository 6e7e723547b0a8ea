package api

import (
	"sync/atomic"
)

// RequestCounter hands out request numbers. Numbers start at 1 and are
// unique and increasing under concurrent use.
type RequestCounter struct {
	n atomic.Uint64
}

func (c *RequestCounter) Next() uint64 {
	return c.n.Add(1)
}

// Current returns the last number handed out.
func (c *RequestCounter) Current() uint64 {
	return c.n.Load()
}
