package kdispatch

import (
	"context"
	"sync/atomic"

	"github.com/compozy/kernelguard/kernel/kacl"
	"github.com/compozy/kernelguard/kernel/kconfig"
	"github.com/compozy/kernelguard/kernel/kerrors"
	"github.com/compozy/kernelguard/kernel/kmetrics"
	"github.com/compozy/kernelguard/kernel/ksync"
	"github.com/compozy/kernelguard/kernel/ktable"
	"github.com/compozy/kernelguard/pkg/logger"
)

// Kernel is the process-wide mediator: the object table, the compile-time
// ACL stores, the message-handling table, and the dispatch primitives that
// sit over them (spec.md §2, §6, §9 "Global state").
type Kernel struct {
	Table   *ktable.Table
	Attrs   *kacl.Store
	Mechs   *kacl.MechanismStore
	Keysets *kacl.KeymgmtStore
	Msgs    *Table
	Mutexes *ksync.MutexTable
	Config  *kconfig.Config
	Log     logger.Logger
	Metrics *kmetrics.Metrics

	queue *messageQueue

	isInitialised int32
	isClosingDown int32
	initInProgress int32 // spec.md §3 invariant 8: exactly one kernel-init at a time
}

// New constructs a Kernel. The caller is expected to run klifecycle.Boot
// on it before issuing any Send calls other than status checks.
func New(cfg *kconfig.Config, log logger.Logger) *Kernel {
	if cfg == nil {
		cfg = kconfig.Default()
	}
	if log == nil {
		log = logger.NewLogger(nil)
	}
	k := &Kernel{
		Table:   ktable.New(cfg.ObjectTableInitSize, cfg.ObjectTableMaxSize, log),
		Attrs:   kacl.NewStore(),
		Mechs:   kacl.NewMechanismStore(),
		Keysets: kacl.NewKeymgmtStore(),
		Msgs:    NewTable(),
		Mutexes: ksync.NewMutexTable(),
		Config:  cfg,
		Log:     log,
		Metrics: kmetrics.New(),
		queue:   newMessageQueue(),
	}
	kacl.InstallDefaultAttributes(k.Attrs)
	kacl.InstallDefaultMechanisms(k.Mechs)
	kacl.InstallDefaultKeysetRules(k.Keysets)
	return k
}

// Init begins kernel initialisation, enforcing spec.md §3 invariant 8.
func (k *Kernel) Init() error {
	if !atomic.CompareAndSwapInt32(&k.initInProgress, 0, 1) {
		return kerrors.New(kerrors.Failed, "kernel initialisation already in progress")
	}
	defer atomic.StoreInt32(&k.initInProgress, 0)
	atomic.StoreInt32(&k.isInitialised, 1)
	k.Log.Info("kernel initialised")
	return nil
}

func (k *Kernel) Initialised() bool { return atomic.LoadInt32(&k.isInitialised) == 1 }
func (k *Kernel) ClosingDown() bool { return atomic.LoadInt32(&k.isClosingDown) == 1 }

// BeginShutdown flips the shutdown flag, after which Send rejects every
// message except destroy/decref/status-read (spec.md §5 "Cancellation").
func (k *Kernel) BeginShutdown() { atomic.StoreInt32(&k.isClosingDown, 1) }

type ctxKey int

const callerObjectKey ctxKey = 1

// WithCallerObject marks ctx as originating from the given object's own
// message handler, so a subsequent Send to the same handle is recognised
// as a self-message and enqueued rather than dispatched immediately
// (spec.md §5 "Ordering guarantees").
func WithCallerObject(ctx context.Context, h ktable.Handle) context.Context {
	return context.WithValue(ctx, callerObjectKey, h)
}

func callerObject(ctx context.Context) (ktable.Handle, bool) {
	h, ok := ctx.Value(callerObjectKey).(ktable.Handle)
	return h, ok
}

const threadIDKey ctxKey = 2

// WithThreadID marks ctx as originating from the given logical thread
// (spec.md §4.2 step 6 "objects owned by another thread"). Callers that
// never set one are treated as thread id zero, the same value
// CreationFlags.BoundThread defaults to for objects that aren't
// thread-bound, so an unset thread id never collides with a real binding.
func WithThreadID(ctx context.Context, tid int64) context.Context {
	return context.WithValue(ctx, threadIDKey, tid)
}

// ThreadIDFromContext returns the logical thread id attached via
// WithThreadID, or zero if none was set.
func ThreadIDFromContext(ctx context.Context) int64 {
	tid, _ := ctx.Value(threadIDKey).(int64)
	return tid
}
