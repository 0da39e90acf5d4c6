package engine

import "sync/atomic"

// sequence is the journal's logical clock. Every journal row gets a strictly
// increasing seq from it, so rows from concurrently running actors still
// have a total order. Never derived from wall time.
type sequence struct {
	seq atomic.Int64
}

// resumeFrom moves the sequence to start. The next call to next returns
// start+1.
func (s *sequence) resumeFrom(start int64) {
	s.seq.Store(start)
}

func (s *sequence) next() int64 {
	return s.seq.Add(1)
}

func (s *sequence) current() int64 {
	return s.seq.Load()
}
