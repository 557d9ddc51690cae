// Package prefetch fills the option cache ahead of time for the nodes of a
// workflow, so that dropdowns are ready when the user opens them.
//
// Given nodes in priority order, the planner looks up each node's dynamic
// fields and prefetches the options of every field that does not depend on
// another field's value. The first node's fetches are awaited, since that
// node is about to be configured. Fetches for the remaining nodes run in the
// background, where a failure is logged and otherwise ignored; the on-demand
// path retries when the user opens the field.
package prefetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/flowkit/go-optfetch/fieldreq"
	"github.com/flowkit/go-optfetch/model"
	"github.com/flowkit/go-optfetch/optcache"
	"github.com/flowkit/go-optfetch/session"
	"github.com/hashicorp/go-multierror"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/sync/semaphore"
)

var log = logging.Logger("prefetch")

// Node is a workflow node whose dynamic fields may be prefetched.
type Node struct {
	// ID identifies the node within the workflow. Used only for logging.
	ID string
	// Type is the node type used to look up field requirements.
	Type string
	// ProviderID is the connected provider the node's options come from. It
	// may be empty for resources that are not provider specific.
	ProviderID string
}

// FetchFunc fetches the options of a resource type from a provider.
type FetchFunc func(ctx context.Context, resourceType, providerID string) (model.Options, error)

// EnabledFunc reports whether a provider is enabled and connected.
type EnabledFunc func(providerID string) bool

// Cache is the option cache the planner fills.
type Cache interface {
	Peek(key string) (model.Options, bool)
	Resolve(ctx context.Context, key string, ttl time.Duration, fetch optcache.FetchFunc, options ...optcache.ResolveOption) (model.Options, error)
}

// Requirements supplies the dynamic fields of each node type.
type Requirements interface {
	FieldsFor(nodeType string) []fieldreq.Requirement
}

// Planner schedules option prefetches.
type Planner struct {
	cache      Cache
	reqs       Requirements
	sessions   *session.Registry
	defaultTTL time.Duration
	sem        *semaphore.Weighted
	metrics    *metrics

	background sync.WaitGroup
}

// task is the prefetch of one field of a node.
type task struct {
	node Node
	req  fieldreq.Requirement
	key  string
	ttl  time.Duration
}

// New creates a Planner that fills cache using the field requirements from
// reqs.
func New(cache Cache, reqs Requirements, options ...Option) (*Planner, error) {
	if cache == nil {
		return nil, errors.New("nil cache")
	}
	if reqs == nil {
		return nil, errors.New("nil requirements")
	}
	opts, err := getOpts(options)
	if err != nil {
		return nil, err
	}
	m, err := newMetrics(opts.registerer)
	if err != nil {
		return nil, fmt.Errorf("cannot register metrics: %w", err)
	}

	return &Planner{
		cache:      cache,
		reqs:       reqs,
		sessions:   opts.sessions,
		defaultTTL: opts.defaultTTL,
		sem:        semaphore.NewWeighted(int64(opts.maxConcurrent)),
		metrics:    m,
	}, nil
}

// PlanAndPrefetch prefetches the independent fields of nodes, in the given
// order. It returns once the fetches for the first node have completed, and
// returns their errors. Fetches for the other nodes continue in the
// background under ctx; their errors are logged and never returned.
//
// Within a node, fetch is called for the fields in declaration order; the
// fetches then run concurrently. Nodes with no dynamic fields, and nodes
// whose provider is not enabled, are skipped. If the first node is skipped nothing is awaited. A nil enabled
// function treats every provider as enabled.
func (p *Planner) PlanAndPrefetch(ctx context.Context, nodes []Node, fetch FetchFunc, enabled EnabledFunc) error {
	if fetch == nil {
		return errors.New("nil fetch function")
	}

	var firstErr error
	for i, node := range nodes {
		tasks := p.plan(node, enabled)
		if len(tasks) == 0 {
			continue
		}
		if i == 0 {
			firstErr = p.runAwaited(ctx, tasks, fetch)
			continue
		}
		p.runBackground(ctx, tasks, fetch)
	}
	return firstErr
}

// Start begins a prefetch session for sessionKey and runs PlanAndPrefetch
// under it. A session already running for the key is canceled. The session
// ends loaded or with an error when the first node's fetches complete;
// background fetches keep running until the session is canceled or
// superseded.
func (p *Planner) Start(ctx context.Context, sessionKey string, nodes []Node, fetch FetchFunc, enabled EnabledFunc) (*session.Session, error) {
	if p.sessions == nil {
		return nil, errors.New("planner has no session registry")
	}
	s := p.sessions.Start(ctx, sessionKey)
	s.SetLoading()
	log.Debugw("Prefetch session started", "key", sessionKey, "session", s.ID(), "nodes", len(nodes))

	err := p.PlanAndPrefetch(s.Context(), nodes, fetch, enabled)
	s.Finish(err)
	return s, err
}

// Wait blocks until all background fetches have finished.
func (p *Planner) Wait() {
	p.background.Wait()
}

// plan returns the prefetch tasks for node, in declaration order.
func (p *Planner) plan(node Node, enabled EnabledFunc) []task {
	reqs := p.reqs.FieldsFor(node.Type)
	if len(reqs) == 0 {
		p.metrics.skippedNodes.WithLabelValues(skipNoFields).Inc()
		log.Debugw("Node has no dynamic fields", "node", node.ID, "type", node.Type)
		return nil
	}
	if enabled != nil && !enabled(node.ProviderID) {
		p.metrics.skippedNodes.WithLabelValues(skipProviderDisabled).Inc()
		log.Debugw("Provider not enabled, skipping node", "node", node.ID, "provider", node.ProviderID)
		return nil
	}

	var tasks []task
	for _, req := range reqs {
		// Dependent fields are resolved on demand once their parent has a
		// value.
		if !req.Independent() {
			continue
		}
		key := optcache.Key(req.ResourceType, node.ProviderID)
		if _, ok := p.cache.Peek(key); ok {
			continue
		}
		ttl := req.TTL
		if ttl == 0 {
			ttl = p.defaultTTL
		}
		tasks = append(tasks, task{
			node: node,
			req:  req,
			key:  key,
			ttl:  ttl,
		})
	}
	return tasks
}

// runAwaited resolves all tasks concurrently and waits for them. Errors are
// returned in declaration order.
func (p *Planner) runAwaited(ctx context.Context, tasks []task, fetch FetchFunc) error {
	p.metrics.scheduled.WithLabelValues(modeAwaited).Add(float64(len(tasks)))

	pending := make([]*pendingTask, len(tasks))
	for i := range tasks {
		pending[i] = p.start(ctx, tasks[i], fetch, nil)
	}

	var merr *multierror.Error
	for _, pt := range pending {
		<-pt.done
		if pt.err != nil {
			merr = multierror.Append(merr, pt.err)
		}
	}
	return merr.ErrorOrNil()
}

// runBackground resolves tasks without waiting for them. Each task takes a
// slot of the background semaphore before it is started, in declaration
// order.
func (p *Planner) runBackground(ctx context.Context, tasks []task, fetch FetchFunc) {
	p.metrics.scheduled.WithLabelValues(modeBackground).Add(float64(len(tasks)))

	p.background.Add(1)
	go func() {
		defer p.background.Done()

		pending := make([]*pendingTask, 0, len(tasks))
		for _, t := range tasks {
			if err := p.sem.Acquire(ctx, 1); err != nil {
				log.Debugw("Background prefetch not started", "node", t.node.ID, "field", t.req.Field, "err", err)
				break
			}
			pending = append(pending, p.start(ctx, t, fetch, func() { p.sem.Release(1) }))
		}

		for i, pt := range pending {
			<-pt.done
			t := tasks[i]
			switch {
			case pt.err == nil:
			case optcache.IsCanceled(pt.err):
				log.Debugw("Background prefetch canceled", "node", t.node.ID, "field", t.req.Field)
			default:
				p.metrics.backgroundErrors.Inc()
				log.Warnw("Background prefetch failed", "err", pt.err, "node", t.node.ID, "field", t.req.Field, "key", t.key)
			}
		}
	}()
}

// pendingTask is a task being resolved. err is set before done is closed.
type pendingTask struct {
	done chan struct{}
	err  error
}

// start resolves t in a new goroutine and returns once the fetch for t has
// been called, or once t was resolved without fetching. This keeps calls to
// fetch in the order tasks are started. release, if not nil, is called when
// the task completes.
func (p *Planner) start(ctx context.Context, t task, fetch FetchFunc, release func()) *pendingTask {
	pt := &pendingTask{
		done: make(chan struct{}),
	}
	called := make(chan struct{})
	var once sync.Once

	go func() {
		defer close(pt.done)
		if release != nil {
			defer release()
		}
		pt.err = p.resolve(ctx, t, func(ctx context.Context, resourceType, providerID string) (model.Options, error) {
			once.Do(func() { close(called) })
			return fetch(ctx, resourceType, providerID)
		})
	}()

	select {
	case <-called:
	case <-pt.done:
	}
	return pt
}

func (p *Planner) resolve(ctx context.Context, t task, fetch FetchFunc) error {
	_, err := p.cache.Resolve(ctx, t.key, t.ttl, func(ctx context.Context) (model.Options, error) {
		return fetch(ctx, t.req.ResourceType, t.node.ProviderID)
	})
	if err != nil {
		return fmt.Errorf("prefetch %s of node %s: %w", t.req.Field, t.node.ID, err)
	}
	return nil
}
