package conversation

import "time"

// Timer is a scheduled callback that can be stopped.
type Timer interface {
	Stop() bool
}

// Clock schedules the machine's delayed work.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// RealClock returns a Clock backed by the time package.
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// slot holds at most one scheduled task. Every cancel bumps the token, so a
// callback that already fired before Stop is recognised as stale when its
// event reaches the loop. Only the loop goroutine touches a slot.
type slot struct {
	token uint64
	timer Timer
}

// schedule cancels the pending task, if any, and arms a new one. fire runs on
// the clock's goroutine and receives the token the task was armed with.
func (s *slot) schedule(c Clock, d time.Duration, fire func(token uint64)) uint64 {
	s.cancel()
	tok := s.token
	s.timer = c.AfterFunc(d, func() { fire(tok) })
	return tok
}

func (s *slot) cancel() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.token++
}

func (s *slot) pending() bool { return s.timer != nil }

// take consumes the pending task if tok is the live one.
func (s *slot) take(tok uint64) bool {
	if s.timer == nil || tok != s.token {
		return false
	}
	s.timer = nil
	return true
}
