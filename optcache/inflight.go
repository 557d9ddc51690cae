package optcache

import (
	"sync"

	"github.com/flowkit/go-optfetch/model"
)

// call is a fetch in flight. The value, err and canceled fields are written
// once, before done is closed. canceled is set when the leader abandoned the
// fetch because its own context ended.
type call struct {
	done     chan struct{}
	value    model.Options
	err      error
	canceled bool
}

// inflight tracks the calls currently running, at most one per key.
type inflight struct {
	mutex sync.Mutex
	calls map[string]*call
}

func newInflight() *inflight {
	return &inflight{
		calls: make(map[string]*call),
	}
}

// join returns the call in flight for key. If there is none, a new call is
// registered and leader is true; the caller must then complete it with
// finish.
func (f *inflight) join(key string) (c *call, leader bool) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if c, ok := f.calls[key]; ok {
		return c, false
	}
	c = &call{
		done: make(chan struct{}),
	}
	f.calls[key] = c
	return c, true
}

// finish records the outcome of c, removes it from the registry and wakes all
// joined callers. The handle is removed before waking callers so that a caller
// retrying after a failure starts a new fetch.
func (f *inflight) finish(key string, c *call, value model.Options, err error) {
	c.value = value
	c.err = err

	f.mutex.Lock()
	if f.calls[key] == c {
		delete(f.calls, key)
	}
	f.mutex.Unlock()

	close(c.done)
}

func (f *inflight) len() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return len(f.calls)
}
