package agent

import (
	"context"
	"log"
	"time"

	"github.com/medirun/medisuite/internal/inference"
)

// Path records which branch of a fallback pair produced a value.
type Path int

const (
	PathRemote Path = iota
	PathLocal
)

// Fallback is the remote-then-local resolution policy shared by the stages
// that can use an inference capability. A nil Client short-circuits straight
// to the local branch.
type Fallback struct {
	Client  inference.Client
	Timeout time.Duration
}

const defaultRemoteTimeout = 30 * time.Second

// Resolve tries the remote branch first and falls back to the deterministic
// local branch when the remote is unconfigured, times out, or errors. The
// local branch must not perform I/O; its error is terminal. Cancellation of
// the parent context is propagated rather than masked by the fallback.
func Resolve[T any](ctx context.Context, fb Fallback, remote func(context.Context) (T, error), local func() (T, error)) (T, Path, error) {
	var zero T
	if fb.Client != nil && remote != nil {
		timeout := fb.Timeout
		if timeout <= 0 {
			timeout = defaultRemoteTimeout
		}
		rctx, cancel := context.WithTimeout(ctx, timeout)
		v, err := remote(rctx)
		cancel()
		if err == nil {
			return v, PathRemote, nil
		}
		if ctx.Err() != nil {
			return zero, PathRemote, ctx.Err()
		}
		log.Printf("agent: remote capability failed, using local fallback: %v", err)
	}
	v, err := local()
	if err != nil {
		return zero, PathLocal, err
	}
	return v, PathLocal, nil
}
