package gpucmd

import (
	"context"
	"fmt"
	"time"

	"github.com/gogpu/gpucmd/gpucore"
)

// SyncPoint marks the completion of one submission. Sync points issued by a
// Context are ordered: a later submission has a larger Index. The zero
// SyncPoint is always resolved.
type SyncPoint struct {
	index uint64
}

// Index returns the submission index the point stands for.
func (sp SyncPoint) Index() uint64 { return sp.index }

// IsZero reports whether sp is the zero point.
func (sp SyncPoint) IsZero() bool { return sp.index == 0 }

func (sp SyncPoint) String() string { return fmt.Sprintf("SyncPoint(%d)", sp.index) }

// waitSlice bounds each device wait made by Wait so it can observe ctx.
const waitSlice = 10 * time.Millisecond

// Submit hands the recorded stream of enc to the device and returns the
// SyncPoint of the submission. It fails with ErrPassOpen while a pass is
// open and with ErrEncoderNotStarted unless the encoder is Started. If a
// resource or pipeline used by the recording was destroyed since it was
// recorded, Submit fails with ErrStaleHandle. In every failure the encoder
// is left unchanged.
func (c *Context) Submit(enc *CommandEncoder) (SyncPoint, error) {
	if enc.ctx != c {
		return SyncPoint{}, fmt.Errorf("submit %q: encoder belongs to another context: %w", enc.name, ErrInvalidDescriptor)
	}
	enc.mu.Lock()
	defer enc.mu.Unlock()

	switch enc.state {
	case EncoderStarted:
	case EncoderPassOpen:
		return SyncPoint{}, fmt.Errorf("submit %q: %w", enc.name, ErrPassOpen)
	case EncoderDestroyed:
		return SyncPoint{}, fmt.Errorf("submit %q: %w", enc.name, ErrEncoderDestroyed)
	default:
		return SyncPoint{}, fmt.Errorf("submit %q: %w", enc.name, ErrEncoderNotStarted)
	}

	list := &gpucore.CommandList{Label: enc.name, Passes: enc.passes}

	// Holding c.mu keeps the recorded resources alive until the device has
	// the list; later destroys are deferred by the device.
	c.mu.RLock()
	if err := c.checkRefsLocked(&enc.refs); err != nil {
		c.mu.RUnlock()
		return SyncPoint{}, fmt.Errorf("submit %q: %w", enc.name, err)
	}
	index, err := c.device.Submit(list)
	c.mu.RUnlock()
	if err != nil {
		return SyncPoint{}, fmt.Errorf("submit %q: %w", enc.name, err)
	}

	sp := SyncPoint{index: index}
	enc.slots[enc.slot] = sp
	enc.state = EncoderSubmitted
	enc.resetLocked()

	c.metrics.observeSubmit(list)
	Logger().Debug("gpucmd: submitted", "encoder", enc.name, "passes", len(list.Passes), "sync_point", index)
	return sp, nil
}

// resolved reports, without blocking, whether sp has completed.
func (c *Context) resolved(sp SyncPoint) bool {
	return sp.index == 0 || c.device.Completed() >= sp.index
}

// WaitFor waits up to timeout for sp and reports whether it resolved.
// A zero timeout only polls and a negative timeout counts as zero. A timeout
// is not an error: the wait may be retried.
func (c *Context) WaitFor(sp SyncPoint, timeout time.Duration) bool {
	if c.resolved(sp) {
		return true
	}
	timeout = max(timeout, 0)

	start := time.Now()
	ok := c.device.Wait(sp.index, timeout)
	c.metrics.observeWait(time.Since(start), ok)
	if !ok {
		Logger().Debug("gpucmd: wait timed out", "sync_point", sp.index, "timeout", timeout)
	}
	return ok
}

// Wait blocks until sp resolves or ctx is done, in which case it returns
// ctx.Err().
func (c *Context) Wait(ctx context.Context, sp SyncPoint) error {
	start := time.Now()
	for !c.resolved(sp) {
		if err := ctx.Err(); err != nil {
			c.metrics.observeWait(time.Since(start), false)
			return err
		}
		c.device.Wait(sp.index, waitSlice)
	}
	c.metrics.observeWait(time.Since(start), true)
	return nil
}
