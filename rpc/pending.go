package rpc

import "sync"

// reply is the outcome of a single call
type reply struct {
	body []byte
	err  error
}

// pendingCalls maps correlation ids of calls in flight to their completion slots
//
// Each slot is resolved at most once: resolving or removing a slot deletes it,
// so late and duplicate replies find nothing to complete.
type pendingCalls struct {
	m     sync.Mutex
	calls map[string]chan reply
}

func newPendingCalls() *pendingCalls {
	return &pendingCalls{calls: make(map[string]chan reply)}
}

// add registers a slot for id
func (p *pendingCalls) add(id string) <-chan reply {
	slot := make(chan reply, 1)
	p.m.Lock()
	p.calls[id] = slot
	p.m.Unlock()
	return slot
}

// resolve completes and removes the slot for id, reporting whether there was one
func (p *pendingCalls) resolve(id string, r reply) bool {
	p.m.Lock()
	slot, ok := p.calls[id]
	delete(p.calls, id)
	p.m.Unlock()
	if ok {
		slot <- r
	}
	return ok
}

// remove forgets the slot for id without completing it
func (p *pendingCalls) remove(id string) {
	p.m.Lock()
	delete(p.calls, id)
	p.m.Unlock()
}

// failAll completes every slot with err
func (p *pendingCalls) failAll(err error) {
	p.m.Lock()
	calls := p.calls
	p.calls = make(map[string]chan reply)
	p.m.Unlock()
	for _, slot := range calls {
		slot <- reply{err: err}
	}
}

func (p *pendingCalls) len() int {
	p.m.Lock()
	defer p.m.Unlock()
	return len(p.calls)
}
