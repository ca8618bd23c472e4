package workflow

import "sync"

// serializer orders message processing per conversation. Enqueueing under
// the mutex fixes arrival order, so two messages posted to the same
// conversation are processed strictly in the order they arrived, while
// different conversations proceed concurrently.
type serializer struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

func newSerializer() *serializer {
	return &serializer{tails: make(map[string]chan struct{})}
}

// enter blocks until all earlier entrants for key have released, then
// returns the release function for this entrant.
func (s *serializer) enter(key string) func() {
	s.mu.Lock()
	prev := s.tails[key]
	done := make(chan struct{})
	s.tails[key] = done
	s.mu.Unlock()

	if prev != nil {
		<-prev
	}

	return func() {
		close(done)
		s.mu.Lock()
		if s.tails[key] == done {
			delete(s.tails, key)
		}
		s.mu.Unlock()
	}
}
