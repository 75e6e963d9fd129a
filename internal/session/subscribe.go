package session

import "log/slog"

// Subscription receives the outbound messages of one session. C is closed
// when the subscription ends: on Cancel, on session Close, or when the
// subscriber falls a full buffer behind.
type Subscription struct {
	C <-chan Message

	ch chan Message
	s  *Session
}

// Subscribe registers a renderer. Messages published before Subscribe are not
// replayed; a ready message or the model's elements bring a late subscriber
// up to date.
func (s *Session) Subscribe() (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	ch := make(chan Message, s.bufSize)
	sub := &Subscription{C: ch, ch: ch, s: s}
	s.subs[sub] = struct{}{}
	return sub, nil
}

// Cancel ends the subscription. It is safe to call more than once.
func (sub *Subscription) Cancel() {
	s := sub.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub]; ok {
		delete(s.subs, sub)
		close(sub.ch)
	}
}

// publish never blocks: a subscriber whose buffer is full is dropped.
func (s *Session) publish(t MessageType, data any) {
	msg, err := NewMessage(t, data)
	if err != nil {
		s.logger.Error("encode message", slog.String("error", err.Error()))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		select {
		case sub.ch <- msg:
		default:
			delete(s.subs, sub)
			close(sub.ch)
			s.logger.Warn("subscriber dropped: buffer full",
				slog.Int("buffer", s.bufSize),
				slog.String("type", string(t)),
			)
		}
	}
}
