package engine

import (
	"context"

	"pageshell/framework"
)

// Dispatch describes one routing decision. Matched is false when no route
// accepted the fragment; in that case Done is already closed.
type Dispatch struct {
	ID       string
	Fragment string
	Pattern  string
	Params   map[string]string
	Matched  bool

	done   chan struct{}
	module *framework.Module
	err    error
}

func (d *Dispatch) finish(module *framework.Module, err error) {
	d.module = module
	d.err = err
	close(d.done)
}

func (d *Dispatch) Done() <-chan struct{} {
	return d.done
}

// Wait blocks until the page load settles or ctx ends. It reports a nil
// module and nil error when nothing matched.
func (d *Dispatch) Wait(ctx context.Context) (*framework.Module, error) {
	select {
	case <-d.done:
		return d.module, d.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
