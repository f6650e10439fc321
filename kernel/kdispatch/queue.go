package kdispatch

import (
	"sync"

	"github.com/compozy/kernelguard/kernel/kerrors"
	"github.com/compozy/kernelguard/kernel/ktable"
)

// queueCapacity is the fixed small constant from spec.md §5: once it is
// reached (typically by a runaway recursive sender), enqueue returns
// overflow.
const queueCapacity = 16

// queuedMessage is one entry in the global recursive-send queue.
type queuedMessage struct {
	target      ktable.Handle
	messageType MessageType
	data        any
	value       int
	senderGID   int64
	done        chan error
}

// messageQueue is the single global FIFO scanned in order, with dequeue
// filtered to the current object (spec.md §5: "Per-object FIFO is
// maintained by a single global queue scanned in order, with dequeue
// filtered to the current object").
type messageQueue struct {
	mu    sync.Mutex
	items []*queuedMessage
}

func newMessageQueue() *messageQueue {
	return &messageQueue{}
}

// enqueue appends a self-message. Returns overflow if the queue is full,
// matching spec.md's fixed 16-entry capacity.
func (q *messageQueue) enqueue(m *queuedMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= queueCapacity {
		return kerrors.New(kerrors.Overflow, "message queue full")
	}
	q.items = append(q.items, m)
	return nil
}

// drainFor pops and returns every queued message addressed to target, in
// FIFO order, removing them from the shared queue.
func (q *messageQueue) drainFor(target ktable.Handle) []*queuedMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	var matched []*queuedMessage
	var rest []*queuedMessage
	for _, m := range q.items {
		if m.target == target {
			matched = append(matched, m)
		} else {
			rest = append(rest, m)
		}
	}
	q.items = rest
	return matched
}

// depth reports how many self-messages are queued in total, across all
// targets. Send publishes it to the QueueDepth gauge; no per-sender
// early-out reads it.
func (q *messageQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
