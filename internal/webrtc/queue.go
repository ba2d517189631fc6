package webrtc

import (
	"sync"

	pion "github.com/pion/webrtc/v4"
)

// candidateQueue holds remote candidates that arrive before the remote
// description. pion rejects them until then.
type candidateQueue struct {
	mu      sync.Mutex
	ready   bool
	pending []pion.ICECandidateInit
}

// push queues c and reports true, or reports false if the remote description
// is already set and c should be applied now.
func (q *candidateQueue) push(c pion.ICECandidateInit) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ready {
		return false
	}
	q.pending = append(q.pending, c)
	return true
}

// release marks the remote description set and returns everything queued,
// in arrival order. Later calls return nothing.
func (q *candidateQueue) release() []pion.ICECandidateInit {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ready = true
	out := q.pending
	q.pending = nil
	return out
}

// outbox holds local payloads produced before our own description went out,
// so a remote never sees a candidate ahead of the offer or answer.
type outbox struct {
	mu      sync.Mutex
	open    bool
	pending [][]byte
}

func (o *outbox) hold(payload []byte) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.open {
		return false
	}
	o.pending = append(o.pending, payload)
	return true
}

func (o *outbox) flush() [][]byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.open = true
	out := o.pending
	o.pending = nil
	return out
}
