package kdispatch

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/slok/goresilience"
	"github.com/slok/goresilience/bulkhead"
	"github.com/slok/goresilience/timeout"

	"github.com/compozy/kernelguard/kernel/kerrors"
	"github.com/compozy/kernelguard/kernel/ktable"
)

// PreDispatchFunc runs before an object's own handler, with the object
// table lock held, consulting the attribute/mechanism/keymgmt ACLs.
type PreDispatchFunc func(ctx context.Context, k *Kernel, obj *ktable.Object, mt MessageType, data any, value int, external bool) error

// PostDispatchFunc runs after the handler returns, table lock held again.
type PostDispatchFunc func(ctx context.Context, k *Kernel, obj *ktable.Object, mt MessageType, data any, value int, handlerErr error) error

var preDispatchHooks = map[MessageType]PreDispatchFunc{}
var postDispatchHooks = map[MessageType]PostDispatchFunc{}

// RegisterPreDispatch installs a pre-dispatch hook for a message type.
func RegisterPreDispatch(mt MessageType, fn PreDispatchFunc) { preDispatchHooks[mt] = fn }

// RegisterPostDispatch installs a post-dispatch hook for a message type.
func RegisterPostDispatch(mt MessageType, fn PostDispatchFunc) { postDispatchHooks[mt] = fn }

// handlerGuard bounds every call into an object's own handler with a fixed
// 30-second timeout + single-slot bulkhead, so a wedged subsystem handler
// cannot hold the kernel open indefinitely (spec.md §5). The configured
// busy-wait cap is not consulted here.
func (k *Kernel) handlerGuard() goresilience.Runner {
	return bulkhead.NewMiddleware(bulkhead.Config{
		Workers:     1,
		MaxWaitTime: 0,
	})(timeout.NewMiddleware(timeout.Config{
		Timeout: 30 * time.Second,
	})(goresilience.NewRunner()))
}

// Send is the kernel's single entry point (spec.md §6, §4.2).
func (k *Kernel) Send(ctx context.Context, handle ktable.Handle, mt MessageType, data any, value int) error {
	record, ok := k.Msgs.Lookup(mt)
	if !ok {
		return kerrors.Argument(2, "unknown message type")
	}
	external := true
	if _, isSelf := callerObject(ctx); isSelf {
		external = false
	}

	if err := Decode(record.Shape, data != nil, value); err != nil {
		return err
	}

	// Step 4: shutdown gate.
	if k.ClosingDown() && mt != MsgDestroy && mt != MsgDecRefCount && mt != MsgGetProperty {
		return kerrors.New(kerrors.PermissionDenied, "kernel is shutting down")
	}

	k.Table.Mu.Lock()
	obj, err := k.Table.LookupNoLock(handle)
	if err != nil {
		k.Table.Mu.Unlock()
		return err
	}
	if external && obj.HasFlag(ktable.FlagInternal) {
		k.Table.Mu.Unlock()
		return kerrors.Argument(1, "object is internal-only")
	}
	tid := ThreadIDFromContext(ctx)
	if obj.HasFlag(ktable.FlagThreadBound) && obj.BoundThread != 0 && obj.BoundThread != tid {
		k.Table.Mu.Unlock()
		return kerrors.New(kerrors.PermissionDenied, "object is owned by another thread")
	}
	if !record.appliesTo(obj.Subtype) {
		k.Table.Mu.Unlock()
		return kerrors.Argument(1, "message not valid for this object subtype")
	}

	target, err := k.route(obj, record, mt)
	if err != nil {
		k.Table.Mu.Unlock()
		return err
	}

	// Lifecycle gating (spec.md §3 invariants 5-7).
	if target.HasFlag(ktable.FlagNotInited) && mt != MsgDestroy && mt != MsgSetStatus {
		k.Table.Mu.Unlock()
		return kerrors.New(kerrors.NotInited, "object has not completed initialisation")
	}
	if target.HasFlag(ktable.FlagSignalled) && mt != MsgDestroy {
		k.Table.Mu.Unlock()
		return kerrors.New(kerrors.Signalled, "object has been destroyed")
	}

	if record.KernelHandled {
		kerr := k.dispatchKernelHandled(ctx, target, mt, data, value, external)
		k.Table.Mu.Unlock()
		return kerr
	}

	if target.HasFlag(ktable.FlagAliased) {
		if mt == MsgDestroy {
			survivor, err := k.destroyAliasedLocked(target)
			if err != nil {
				k.Table.Mu.Unlock()
				return err
			}
			target = survivor
		} else if err := k.resolveCOW(target); err != nil {
			k.Table.Mu.Unlock()
			return err
		}
	}

	if mt == MsgDestroy {
		err := k.destroyLocked(ctx, target)
		k.Table.Mu.Unlock()
		return err
	}

	selfHandle, isSelf := callerObject(ctx)
	if isSelf && selfHandle == target.Handle {
		q := &queuedMessage{target: target.Handle, messageType: mt, data: data, value: value, done: make(chan error, 1)}
		if err := k.queue.enqueue(q); err != nil {
			k.Table.Mu.Unlock()
			return err
		}
		k.Metrics.QueueDepth.Set(float64(k.queue.depth()))
		k.Table.Mu.Unlock()
		return kerrors.New(kerrors.OK, "self-message enqueued")
	}

	if target.InUse() && mt != MsgDestroy {
		k.Table.Mu.Unlock()
		if err := k.waitForBusy(ctx, target); err != nil {
			return err
		}
		return k.Send(ctx, handle, mt, data, value)
	}

	if pre, ok := preDispatchHooks[mt]; ok {
		if err := pre(ctx, k, target, mt, data, value, external); err != nil {
			k.Table.Mu.Unlock()
			return err
		}
	}

	target.MarkBusy(tid)
	handler := target.Handler
	k.Table.Mu.Unlock()

	handlerCtx := WithCallerObject(ctx, target.Handle)
	var handlerErr error
	if handler != nil {
		handlerErr = k.handlerGuard().Run(handlerCtx, func(_ context.Context) error {
			return handler(target, int(mt), data, value)
		})
	}

	k.Table.Mu.Lock()
	target.ClearBusy()
	if post, ok := postDispatchHooks[mt]; ok {
		if perr := post(ctx, k, target, mt, data, value, handlerErr); perr != nil {
			handlerErr = perr
		}
	}
	k.Table.Mu.Unlock()

	k.drainSelfQueue(handlerCtx, target.Handle)

	k.Metrics.Sends.WithLabelValues(messageTypeLabel(mt)).Inc()
	if handlerErr != nil {
		if kerr, ok := handlerErr.(*kerrors.Error); ok {
			k.Metrics.SendErrors.WithLabelValues(messageTypeLabel(mt), string(kerr.Code)).Inc()
		}
	}
	return handlerErr
}

// drainSelfQueue dispatches every message the handler queued against
// itself, in FIFO order, after its lock frame exits (spec.md §5).
func (k *Kernel) drainSelfQueue(ctx context.Context, target ktable.Handle) {
	for _, m := range k.queue.drainFor(target) {
		err := k.Send(ctx, target, m.messageType, m.data, m.value)
		if m.done != nil {
			m.done <- err
		}
	}
}

// waitForBusy yields up to the configured iteration cap, using an
// exponential backoff retry loop, returning timeout if the target never
// frees up (spec.md §5 "Suspension points").
func (k *Kernel) waitForBusy(ctx context.Context, target *ktable.Object) error {
	start := time.Now()
	attempts := 0
	b := retry.NewExponential(time.Millisecond)
	b = retry.WithMaxRetries(uint64(k.Config.BusyWaitIterationCap), b)
	err := retry.Do(ctx, b, func(_ context.Context) error {
		attempts++
		if attempts == k.Config.BusyWaitWarnThreshold {
			k.Log.Warn("busy-wait threshold exceeded, possible bottleneck", "handle", target.Handle)
		}
		if target.InUse() {
			return retry.RetryableError(kerrors.New(kerrors.Timeout, "target still busy"))
		}
		return nil
	})
	k.Metrics.BusyWaitSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		return kerrors.New(kerrors.Timeout, "timed out waiting for busy target")
	}
	return nil
}

// WaitForBusy exposes waitForBusy to kernel-internal packages outside
// kdispatch (ktrust's trust hooks reproduce the same busy-wait protocol
// as normal dispatch per spec.md §4.9).
func (k *Kernel) WaitForBusy(ctx context.Context, handle ktable.Handle) error {
	obj, err := k.Table.Lookup(handle)
	if err != nil {
		return err
	}
	return k.waitForBusy(ctx, obj)
}

// route walks owner -> dependentDevice -> dependentObject up to three hops
// to find an object whose type matches the message's target (spec.md
// §4.2 step 7). RouteNoneTarget and RouteImplicit both resolve to obj
// itself here: no attribute-specific target is followed for implicit
// routes, and the attribute ACL pre-dispatch hook checks the addressed
// object without re-targeting the message.
func (k *Kernel) route(obj *ktable.Object, record *Record, mt MessageType) (*ktable.Object, error) {
	switch record.Route {
	case RouteNoneTarget, RouteImplicit:
		return obj, nil
	case RouteToCertificate:
		return k.followChain(obj, ktable.TypeCertificate)
	case RouteToDevice:
		return k.followChain(obj, ktable.TypeDevice)
	case RouteToContextTarget:
		return k.followChain(obj, ktable.TypeContext)
	default:
		return obj, nil
	}
}

func (k *Kernel) followChain(obj *ktable.Object, want ktable.ObjectType) (*ktable.Object, error) {
	current := obj
	for hop := 0; hop < 3; hop++ {
		if current.Type == want {
			return current, nil
		}
		var next ktable.Handle
		switch hop {
		case 0:
			next = current.Owner
		case 1:
			next = current.DependentDevice
		default:
			next = current.DependentObject
		}
		if next == 0 {
			break
		}
		obj2, err := k.Table.LookupNoLock(next)
		if err != nil {
			break
		}
		current = obj2
	}
	if current.Type != want {
		return nil, kerrors.Argument(1, "could not route message to a matching object")
	}
	return current, nil
}

func messageTypeLabel(mt MessageType) string {
	switch mt {
	case MsgDestroy:
		return "destroy"
	case MsgIncRefCount:
		return "incref"
	case MsgDecRefCount:
		return "decref"
	case MsgClone:
		return "clone"
	case MsgSetDependent:
		return "set_dependent"
	case MsgGetDependent:
		return "get_dependent"
	case MsgGetAttribute:
		return "get_attribute"
	case MsgSetAttribute:
		return "set_attribute"
	case MsgDeleteAttribute:
		return "delete_attribute"
	case MsgCheck:
		return "check"
	case MsgCompare:
		return "compare"
	case MsgChangeNotify:
		return "change_notify"
	case MsgSetStatus:
		return "set_status"
	case MsgEncrypt:
		return "encrypt"
	case MsgDecrypt:
		return "decrypt"
	case MsgSign:
		return "sign"
	case MsgSigCheck:
		return "sig_check"
	case MsgHash:
		return "hash"
	case MsgCtxGenKey:
		return "genkey"
	case MsgKeyExchange:
		return "key_exchange"
	case MsgCertSign:
		return "cert_sign"
	case MsgMechanism:
		return "mechanism"
	case MsgKeysetRead:
		return "keyset_read"
	case MsgKeysetWrite:
		return "keyset_write"
	case MsgTransferOwnership:
		return "transfer_ownership"
	default:
		return "other"
	}
}
