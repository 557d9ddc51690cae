// Package session tracks cancellable prefetch sessions. Each session is bound
// to a logical trigger, identified by a key such as a workflow ID. Starting a
// new session for a key cancels the session previously started for it, so
// that only the latest trigger's work continues.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("session")

var (
	// ErrCanceled is the cancellation cause of a session that was canceled
	// explicitly.
	ErrCanceled = errors.New("prefetch session canceled")
	// ErrSuperseded is the cancellation cause of a session that was replaced
	// by a new session for the same key.
	ErrSuperseded = errors.New("prefetch session superseded")
)

// Status is the state of a session.
type Status int

const (
	Pending Status = iota
	Loading
	Loaded
	Error
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Error:
		return "error"
	}
	return "unknown"
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == Loaded || s == Error
}

// Session is a cancellable unit of prefetch work. Work done on behalf of the
// session must use the session's Context.
type Session struct {
	key    string
	id     uuid.UUID
	ctx    context.Context
	cancel context.CancelCauseFunc

	mutex  sync.Mutex
	status Status
	err    error
}

// Key returns the key the session was started for.
func (s *Session) Key() string {
	return s.key
}

// ID uniquely identifies the session, distinguishing sessions started for the
// same key.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Context returns the session context. It is canceled when the session is
// canceled or superseded, with the reason available from context.Cause.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Status returns the current status.
func (s *Session) Status() Status {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.status
}

// Err returns the error that ended the session, if its status is Error.
func (s *Session) Err() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.err
}

// SetLoading moves a pending session to loading. It returns false if the
// session was not pending.
func (s *Session) SetLoading() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.status != Pending {
		return false
	}
	s.status = Loading
	return true
}

// Finish moves a pending or loading session to loaded if err is nil, and to
// error otherwise. It returns false if the session had already ended.
// Finishing does not cancel the session context, so background work started
// by the session keeps running until the session is canceled.
func (s *Session) Finish(err error) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.status.Terminal() {
		return false
	}
	if err != nil {
		s.status = Error
		s.err = err
	} else {
		s.status = Loaded
	}
	return true
}

// stop cancels the session context. A session that has not yet ended becomes
// error with cause as its error.
func (s *Session) stop(cause error) {
	s.mutex.Lock()
	if !s.status.Terminal() {
		s.status = Error
		s.err = cause
	}
	s.mutex.Unlock()
	s.cancel(cause)
}

// Registry holds the current session for each key.
//
// Safe for concurrent use.
type Registry struct {
	mutex    sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Start begins a new pending session for key, derived from ctx. Any session
// already registered for key is canceled with ErrSuperseded first.
func (r *Registry) Start(ctx context.Context, key string) *Session {
	sctx, cancel := context.WithCancelCause(ctx)
	s := &Session{
		key:    key,
		id:     uuid.New(),
		ctx:    sctx,
		cancel: cancel,
	}

	r.mutex.Lock()
	prev := r.sessions[key]
	r.sessions[key] = s
	r.mutex.Unlock()

	if prev != nil {
		prev.stop(ErrSuperseded)
		log.Debugw("Session superseded", "key", key, "previous", prev.id, "session", s.id)
	}
	return s
}

// Get returns the registered session for key.
func (r *Registry) Get(key string) (*Session, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	s, ok := r.sessions[key]
	return s, ok
}

// Cancel cancels the session registered for key, if any, and removes it. It is
// safe to call more than once. Canceling a session that has ended leaves its
// status unchanged but still stops any background work it started.
func (r *Registry) Cancel(key string) {
	r.mutex.Lock()
	s, ok := r.sessions[key]
	if ok {
		delete(r.sessions, key)
	}
	r.mutex.Unlock()

	if ok {
		s.stop(ErrCanceled)
		log.Debugw("Session canceled", "key", key, "session", s.id)
	}
}

// CancelAll cancels every registered session. It is used at teardown.
func (r *Registry) CancelAll() {
	r.mutex.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mutex.Unlock()

	for _, s := range sessions {
		s.stop(ErrCanceled)
	}
	if len(sessions) != 0 {
		log.Infow("Canceled all sessions", "count", len(sessions))
	}
}

// Len returns the number of registered sessions. A session stays registered
// after it finishes, while its background work may still run, until it is
// canceled or superseded; finished sessions are counted.
func (r *Registry) Len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.sessions)
}
