// Package reliable wraps graph nodes with loop detection, output validation
// and bounded repair, recording exactly one trace per invocation.
//
// A wrapped call moves through FUSE_CHECK, EXECUTE, VALIDATE and at most
// medic.MaxAttempts recovery rounds before its single trace is written. A
// fuse trip skips straight to the trace and is never repaired.
package reliable

import (
	"context"
	"errors"
	"reflect"
	"runtime"
	"strings"

	"github.com/PipeOpsHQ/airos/storage/memory"
)

// Node is one unit of work inside a larger graph.
type Node func(ctx context.Context, state any, cfg RunConfig) (any, error)

// SimpleNode is a node that takes no run configuration.
type SimpleNode func(ctx context.Context, state any) (any, error)

var ErrNilNode = errors.New("reliable: nil node")

// Wrap returns a Node with the same calling contract as node. The run
// configuration is forwarded to node unchanged.
func Wrap(node Node, opts ...Option) Node {
	return wrap(node, nodeName(node), opts)
}

// WrapFunc wraps a node that does not accept configuration. The returned
// Node still reads the run identity from its configuration argument, but
// never forwards it.
func WrapFunc(fn SimpleNode, opts ...Option) Node {
	var inner Node
	if fn != nil {
		inner = func(ctx context.Context, state any, _ RunConfig) (any, error) {
			return fn(ctx, state)
		}
	}
	return wrap(inner, nodeName(fn), opts)
}

func wrap(node Node, intrinsic string, opts []Option) Node {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.store == nil {
		o.store = memory.New()
	}
	nodeID := o.nodeName
	if nodeID == "" {
		nodeID = intrinsic
	}

	return func(ctx context.Context, state any, cfg RunConfig) (any, error) {
		if ctx == nil {
			ctx = context.Background()
		}
		inv := &invocation{
			opts:   &o,
			node:   node,
			runID:  cfg.RunID(),
			nodeID: nodeID,
			state:  state,
			cfg:    cfg,
		}
		return inv.run(ctx)
	}
}

// nodeName is the node's intrinsic identity: its function name without the
// package path.
func nodeName(fn any) string {
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func || v.IsNil() {
		return "node"
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return "node"
	}
	name := strings.TrimSuffix(f.Name(), "-fm")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, "."); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		return "node"
	}
	return name
}
