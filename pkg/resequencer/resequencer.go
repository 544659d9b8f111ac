package resequencer

import "sync"

// Resequencer produces ordered numeric sequence from numbers that come out of order
//
// Consumers use it to turn out of order delivery acknowledgements into a
// contiguous run of delivery tags that can be acknowledged with a single
// multiple ack. Numbers must be positive integers starting with 1.
type Resequencer struct {
	// Output channel for ordered numbers
	Out chan uint64

	size int

	m         sync.Mutex
	seq       map[uint64]struct{}
	sequenced uint64
	sent      uint64
}

// New creates Resequencer able to hold size numbers waiting for their predecessors
func New(size int) *Resequencer {
	if size < 1 {
		size = 1
	}
	return &Resequencer{
		Out:  make(chan uint64, size),
		size: size,
		seq:  make(map[uint64]struct{}, size),
	}
}

// Sequence orders number n, sending it and every following held number to Out once
// all preceding numbers have been sent
//
// Numbers that were already sent are ignored.
func (r *Resequencer) Sequence(n uint64) {
	r.m.Lock()
	defer r.m.Unlock()

	if n <= r.sent {
		return
	}
	r.seq[n] = struct{}{}
	if n > r.sequenced {
		r.sequenced = n
	}
	r.resequence()
}

// DumpUnsequenced calls f with every held number that has not been sent to Out
// and forgets them
func (r *Resequencer) DumpUnsequenced(f func(n uint64)) {
	r.m.Lock()
	defer r.m.Unlock()

	for n := range r.seq {
		f(n)
	}
	r.seq = make(map[uint64]struct{}, r.size)
}

// StartAt restarts the sequence so that n+1 is the next number sent
func (r *Resequencer) StartAt(n uint64) {
	r.m.Lock()
	defer r.m.Unlock()

	for m := range r.seq {
		if m <= n {
			delete(r.seq, m)
		}
	}
	r.restart(n)
}

// Reset restarts the sequence so that to+1 is the next number sent,
// dumping held numbers up to and including to
func (r *Resequencer) Reset(to uint64, dump func(n uint64)) {
	r.m.Lock()
	defer r.m.Unlock()

	for n := range r.seq {
		if n <= to {
			dump(n)
			delete(r.seq, n)
		}
	}
	r.restart(to)
}

// Close closes output channel
func (r *Resequencer) Close() {
	close(r.Out)
}

func (r *Resequencer) restart(n uint64) {
	r.sent = n
	r.sequenced = n
	for m := range r.seq {
		if m > r.sequenced {
			r.sequenced = m
		}
	}
	r.resequence()
}

func (r *Resequencer) resequence() {
	for n := r.sent + 1; n <= r.sequenced; n++ {
		if _, ok := r.seq[n]; !ok {
			break
		}
		delete(r.seq, n)
		r.sent = n
		r.Out <- n
	}
}
