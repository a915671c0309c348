// Package clock абстрагирует текущее время, чтобы расчёты были воспроизводимы в тестах.
package clock

import (
	"sync"
	"time"
)

// Clock возвращает текущее время.
type Clock interface {
	Now() time.Time
}

// Real возвращает системное время в UTC.
type Real struct{}

// Now возвращает текущее время в UTC.
func (Real) Now() time.Time {
	return time.Now().UTC()
}

// Fake используется в тестах: время меняется вручную.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake создаёт часы, показывающие t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t.UTC()}
}

func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance сдвигает часы на d.
func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set выставляет часы на t.
func (c *Fake) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}
