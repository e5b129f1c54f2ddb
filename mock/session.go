package mock

import (
	"sync"

	"github.com/marketroute/marketroute/pkg/model"
)

// Session is a scripted stream session. Tests push updates and end the
// session at will.
type Session struct {
	ch   chan model.Update
	once sync.Once

	mu     sync.Mutex
	closed bool
}

func NewSession(buffer int) *Session {
	return &Session{ch: make(chan model.Update, buffer)}
}

func (s *Session) Updates() <-chan model.Update { return s.ch }

// Push delivers one update. Pushes after the session ended are
// silently dropped, like a provider racing its own shutdown.
func (s *Session) Push(u model.Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.ch <- u
}

// End terminates the session from the provider side.
func (s *Session) End() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.once.Do(func() { close(s.ch) })
}

// Close implements provider.StreamSession.
func (s *Session) Close() error {
	s.End()
	return nil
}
