package reducer

import "context"

// Clock is the virtual logical clock a reducer may read instead of wall
// time, per spec §4.3's isolation requirement ("no clock except a virtual
// one passed in") and §9's determinism requirement ("no real clock"). It
// is seeded once per Apply from the mutation's LSN, so replaying the same
// mutation against the same pre-image always observes the same value.
type Clock struct {
	seq int64
}

// NewClock seeds a virtual clock from seq (typically the mutation's LSN).
func NewClock(seq int64) *Clock {
	return &Clock{seq: seq}
}

// Now returns the clock's fixed logical value for this reducer invocation.
func (c *Clock) Now() int64 {
	return c.seq
}

type clockKey struct{}

// withClock attaches a Clock to ctx for the reducer to retrieve via
// ClockFromContext.
func withClock(ctx context.Context, c *Clock) context.Context {
	return context.WithValue(ctx, clockKey{}, c)
}

// ClockFromContext retrieves the virtual clock a reducer was invoked with.
func ClockFromContext(ctx context.Context) *Clock {
	c, _ := ctx.Value(clockKey{}).(*Clock)
	return c
}
