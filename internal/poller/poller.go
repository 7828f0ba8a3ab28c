// Package poller detects asynchronous completion of generation jobs.
// The webhook calls that start those jobs return no completion signal,
// so the poller re-checks the record store on an interval until every
// pending item has been resolved, then goes quiet.
package poller

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"scriptflow/api/internal/cache"
	"scriptflow/api/internal/notify"
	"scriptflow/api/internal/store"
)

const recentSubmittedLimit = 5

// Source is the slice of the record store the poller queries.
type Source interface {
	ListGeneratedByIDs(ctx context.Context, ids []string) ([]store.ScriptIdea, error)
	ListRecentSubmitted(ctx context.Context, userID string, limit int) ([]store.ScriptIdea, error)
}

type Options struct {
	// Interval between polls. Defaults to 5 seconds.
	Interval time.Duration
	// RecentWindow bounds how old a submitted idea may be and still be
	// attributed to a pending idea-generation request. Defaults to 60
	// seconds.
	RecentWindow time.Duration
	// KeyFor maps a user id to that user's idea-list cache key.
	KeyFor func(userID string) string
}

// Poller tracks pending script-generation ids and pending
// idea-generation flags per user. The interval timer runs only while
// something is pending.
type Poller struct {
	source       Source
	cache        *cache.Store
	notifier     notify.Notifier
	logger       *log.Logger
	interval     time.Duration
	recentWindow time.Duration
	keyFor       func(string) string
	now          func() time.Time

	mu        sync.Mutex
	scripts   map[string]map[string]struct{}
	ideaFlags map[string]bool
	running   bool
	stop      chan struct{}
	done      chan struct{}
}

func New(source Source, cacheStore *cache.Store, notifier notify.Notifier, logger *log.Logger, opts Options) *Poller {
	if opts.Interval == 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.RecentWindow == 0 {
		opts.RecentWindow = 60 * time.Second
	}
	if opts.KeyFor == nil {
		opts.KeyFor = func(userID string) string { return "script_ideas:" + userID }
	}
	return &Poller{
		source:       source,
		cache:        cacheStore,
		notifier:     notifier,
		logger:       logger,
		interval:     opts.Interval,
		recentWindow: opts.RecentWindow,
		keyFor:       opts.KeyFor,
		now:          time.Now,
		scripts:      map[string]map[string]struct{}{},
		ideaFlags:    map[string]bool{},
	}
}

// RegisterScript adds an idea id to the user's pending set and starts
// the timer if it was idle.
func (p *Poller) RegisterScript(userID, ideaID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.scripts[userID] == nil {
		p.scripts[userID] = map[string]struct{}{}
	}
	p.scripts[userID][ideaID] = struct{}{}
	p.ensureRunningLocked()
}

// RegisterIdea flags that an idea-generation job is in flight for the
// user.
func (p *Poller) RegisterIdea(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ideaFlags[userID] = true
	p.ensureRunningLocked()
}

// Active reports whether the interval timer is currently running.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Shutdown stops the timer and waits for an in-progress poll to
// finish. Pending entries are kept; a later Register resumes polling.
func (p *Poller) Shutdown() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	stop, done := p.stop, p.done
	p.mu.Unlock()

	close(stop)
	<-done
}

func (p *Poller) ensureRunningLocked() {
	if p.running {
		return
	}
	p.running = true
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.run(p.stop, p.done)
}

func (p *Poller) run(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			p.mu.Lock()
			p.running = false
			p.mu.Unlock()
			return
		case <-ticker.C:
			if p.tick() {
				return
			}
		}
	}
}

// tick performs one poll round. It returns true when the pending sets
// drained and the timer shut itself off.
func (p *Poller) tick() bool {
	ctx, cancel := context.WithTimeout(context.Background(), p.interval)
	defer cancel()

	p.mu.Lock()
	scripts := make(map[string][]string, len(p.scripts))
	for userID, ids := range p.scripts {
		for id := range ids {
			scripts[userID] = append(scripts[userID], id)
		}
	}
	ideaUsers := make([]string, 0, len(p.ideaFlags))
	for userID, pending := range p.ideaFlags {
		if pending {
			ideaUsers = append(ideaUsers, userID)
		}
	}
	p.mu.Unlock()

	for userID, ids := range scripts {
		p.checkScripts(ctx, userID, ids)
	}
	for _, userID := range ideaUsers {
		p.checkIdea(ctx, userID)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pendingLocked() {
		return false
	}
	p.running = false
	return true
}

func (p *Poller) pendingLocked() bool {
	for _, ids := range p.scripts {
		if len(ids) > 0 {
			return true
		}
	}
	for _, pending := range p.ideaFlags {
		if pending {
			return true
		}
	}
	return false
}

// checkScripts resolves every pending id for one user with a single
// batched query.
func (p *Poller) checkScripts(ctx context.Context, userID string, ids []string) {
	completed, err := p.source.ListGeneratedByIDs(ctx, ids)
	if err != nil {
		p.logger.Warn("poll pending scripts", "user", userID, "error", err)
		return
	}
	if len(completed) == 0 {
		return
	}

	p.mu.Lock()
	for _, idea := range completed {
		delete(p.scripts[userID], idea.ID)
	}
	if len(p.scripts[userID]) == 0 {
		delete(p.scripts, userID)
	}
	p.mu.Unlock()

	p.cache.Invalidate(p.keyFor(userID))
	for _, idea := range completed {
		p.notifier.Success("Script generated", fmt.Sprintf("script is ready for %q", idea.Title))
	}
}

// checkIdea attributes the newest recently-created submitted idea with
// a filled title and description to the pending generation request.
// The heuristic is approximate: two overlapping requests for the same
// user can both match the same row.
func (p *Poller) checkIdea(ctx context.Context, userID string) {
	recent, err := p.source.ListRecentSubmitted(ctx, userID, recentSubmittedLimit)
	if err != nil {
		p.logger.Warn("poll pending idea", "user", userID, "error", err)
		return
	}

	cutoff := p.now().Add(-p.recentWindow)
	for _, idea := range recent {
		if idea.CreatedAt.Before(cutoff) {
			continue
		}
		if strings.TrimSpace(idea.Title) == "" || strings.TrimSpace(idea.Description) == "" {
			continue
		}

		p.mu.Lock()
		delete(p.ideaFlags, userID)
		p.mu.Unlock()

		p.cache.Invalidate(p.keyFor(userID))
		p.notifier.Success("Idea generated", fmt.Sprintf("new idea %q is ready", idea.Title))
		return
	}
}
