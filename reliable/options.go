package reliable

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/PipeOpsHQ/airos/fuse"
	"github.com/PipeOpsHQ/airos/medic"
	"github.com/PipeOpsHQ/airos/observe"
	"github.com/PipeOpsHQ/airos/sentinel"
	"github.com/PipeOpsHQ/airos/storage"
)

// LegacyRepairFunc is a single-shot fixer for execution errors. It is only
// consulted when no repair capability is configured.
type LegacyRepairFunc func(err error, state any) (any, error)

type options struct {
	contract  sentinel.Contract
	repair    medic.RepairFunc
	legacy    LegacyRepairFunc
	fuseLimit int
	nodeName  string
	store     storage.Store
	observer  observe.Sink
	logger    zerolog.Logger
	now       func() time.Time
}

type Option func(*options)

func defaultOptions() options {
	return options{
		fuseLimit: fuse.DefaultLimit,
		observer:  observe.NoopSink{},
		logger:    log.Logger,
		now:       time.Now,
	}
}

// WithContract validates every node result (and every repaired value)
// against contract.
func WithContract(contract sentinel.Contract) Option {
	return func(o *options) { o.contract = contract }
}

// WithRepair sets the text-completion capability used by the recovery loop.
func WithRepair(repair medic.RepairFunc) Option {
	return func(o *options) { o.repair = repair }
}

func WithLegacyRepair(repair LegacyRepairFunc) Option {
	return func(o *options) { o.legacy = repair }
}

func WithFuseLimit(limit int) Option {
	return func(o *options) {
		if limit > 0 {
			o.fuseLimit = limit
		}
	}
}

// WithNodeName overrides the node identity recorded in traces.
func WithNodeName(name string) Option {
	return func(o *options) {
		if strings.TrimSpace(name) != "" {
			o.nodeName = strings.TrimSpace(name)
		}
	}
}

// WithStore sets the trace store. The caller owns its lifecycle. Without it
// each wrapped node gets a private in-memory store.
func WithStore(store storage.Store) Option {
	return func(o *options) { o.store = store }
}

func WithObserver(observer observe.Sink) Option {
	return func(o *options) {
		if observer != nil {
			o.observer = observer
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock overrides the time source used for durations and timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
