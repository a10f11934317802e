package updateagent

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"
)

// SafeGroup is an errgroup.Group tuned for long-running workers: GoSafe
// recovers panics and restarts the worker with exponential backoff instead
// of taking down its siblings.
type SafeGroup struct {
	*errgroup.Group
	ctx context.Context
}

// NewSafeGroup creates a SafeGroup sharing a context derived from ctx,
// canceled on parent cancellation or the first non-nil worker error.
func NewSafeGroup(ctx context.Context) *SafeGroup {
	if ctx == nil {
		ctx = context.Background()
	}
	group, groupCtx := errgroup.WithContext(ctx)
	return &SafeGroup{Group: group, ctx: groupCtx}
}

// GoSafe runs fn in a group goroutine. A panic is logged to stderr and the
// worker restarts after a backoff; a returned error keeps errgroup semantics
// and cancels the group. Context cancellation stops the restart loop.
//
// Plain stderr is used on purpose: the panic may originate in the logger.
func (sg *SafeGroup) GoSafe(name string, fn func(context.Context) error) {
	if sg == nil || sg.Group == nil || fn == nil {
		return
	}
	sg.Group.Go(func() (err error) {
		backoff := 200 * time.Millisecond
		const maxBackoff = 30 * time.Second
		for {
			select {
			case <-sg.ctx.Done():
				return nil
			default:
			}

			panicked := false
			var recovered any
			func() {
				defer func() {
					if r := recover(); r != nil {
						panicked = true
						recovered = r
					}
				}()
				err = fn(sg.ctx)
			}()

			if !panicked {
				return err
			}

			_, _ = fmt.Fprintf(os.Stderr, "WARN: %s panicked: %v\n%s\n", name, recovered, debug.Stack())
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	})
}
