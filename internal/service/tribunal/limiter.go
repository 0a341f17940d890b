package tribunal

import "context"

// SlotLimiter is the process-wide cap on concurrent outbound model and
// synthesis calls, shared by the reviewer backend and the speech layer.
// Acquire blocks until a slot frees or the caller's context ends, so a
// stuck call can never starve the pool forever.
type SlotLimiter struct {
	slots chan struct{}
}

const defaultSlots = 8

// NewSlotLimiter builds a limiter with n slots; non-positive n selects
// the default.
func NewSlotLimiter(n int) *SlotLimiter {
	if n <= 0 {
		n = defaultSlots
	}
	return &SlotLimiter{slots: make(chan struct{}, n)}
}

// Acquire claims one slot. The returned release function must be called
// exactly once; it is safe to call from any goroutine.
func (l *SlotLimiter) Acquire(ctx context.Context) (func(), error) {
	select {
	case l.slots <- struct{}{}:
		return func() { <-l.slots }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
