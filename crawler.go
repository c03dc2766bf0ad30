package mirror

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// State of a Crawler. A Crawler moves through the states in order and
// never goes back.
type State int32

const (
	StateIdle State = iota
	StateAuthenticating
	StateCrawling
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAuthenticating:
		return "authenticating"
	case StateCrawling:
		return "crawling"
	case StateDone:
		return "done"
	}
	return "unknown"
}

// Publisher is an interface to something with an Enqueue() method to
// add new potential URLs to crawl.
type Publisher interface {
	Enqueue(*url.URL) error
}

// A Handler processes fetched resources. Any error it returns is
// considered fatal and will cause the crawl to abort.
type Handler interface {
	Handle(Publisher, *FetchResult) error
}

// HandlerFunc wraps a function into the Handler interface.
type HandlerFunc func(Publisher, *FetchResult) error

// Handle a fetched resource.
func (f HandlerFunc) Handle(p Publisher, res *FetchResult) error {
	return f(p, res)
}

// Stats summarizes a crawl.
type Stats struct {
	// Visited is the number of distinct URLs that were queued.
	Visited int

	// Fetched counts successful fetches, Failed the others.
	Fetched int
	Failed  int
}

// Option customizes a Crawler.
type Option func(*Crawler)

// WithScope replaces the default origin scope. The origin scope is
// always applied on top of it.
func WithScope(s Scope) Option {
	return func(c *Crawler) {
		c.scope = AND(c.scope, s)
	}
}

// WithConcurrency sets the number of fetches running in parallel.
func WithConcurrency(n int) Option {
	return func(c *Crawler) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithLogger sets the logger used for progress messages.
func WithLogger(l *slog.Logger) Option {
	return func(c *Crawler) {
		c.log = l
	}
}

// The Crawler mirrors everything reachable from a seed URL on the same
// host. A Crawler runs only once.
type Crawler struct {
	seed        *url.URL
	session     *Session
	fetcher     Fetcher
	handler     Handler
	scope       Scope
	concurrency int
	log         *slog.Logger

	db    *gobDB
	queue *queue
	state atomic.Int32

	// Protects inflight and stopped, signals changes to them and
	// to the queue.
	mx       sync.Mutex
	cond     *sync.Cond
	inflight int
	stopped  bool

	fetched atomic.Int64
	failed  atomic.Int64
}

// NewCrawler creates a Crawler for the site at seed. Requests go
// through f; the session is only used for the login step.
func NewCrawler(seed *url.URL, session *Session, f Fetcher, h Handler, opts ...Option) (*Crawler, error) {
	db, err := newMemDB()
	if err != nil {
		return nil, err
	}
	seed = requestURL(seed)
	c := &Crawler{
		seed:        seed,
		session:     session,
		fetcher:     f,
		handler:     h,
		scope:       NewOriginScope(seed),
		concurrency: 1,
		log:         slog.Default(),
		db:          db,
		queue:       newQueue(db),
	}
	c.cond = sync.NewCond(&c.mx)
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// State returns where the Crawler is in its lifecycle.
func (c *Crawler) State() State {
	return State(c.state.Load())
}

// Enqueue a (possibly new) URL for processing. URLs out of scope or
// already seen are ignored.
func (c *Crawler) Enqueue(u *url.URL) error {
	// Clean the URL again regardless of the caller. The queue
	// dedups on the canonical form, but keeps this one (with its
	// trailing slash) for fetching.
	u = requestURL(u)
	if !c.scope.Check(u) {
		c.log.Debug("skipping out of scope URL", "url", u.String())
		return nil
	}
	added, err := c.queue.Add(u)
	if err != nil {
		return err
	}
	if added {
		c.cond.Signal()
	}
	return nil
}

// Run the crawl until there is nothing left to fetch. Login failures
// are logged and the crawl carries on without a session. Only errors
// from the Handler, or a cancelled context, stop the crawl early.
func (c *Crawler) Run(ctx context.Context) (Stats, error) {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateAuthenticating)) {
		return Stats{}, ErrCrawlerUsed
	}
	defer c.state.Store(int32(StateDone))

	if c.session != nil {
		landing, err := c.session.Establish(ctx)
		if err != nil {
			c.log.Warn("login failed, continuing without a session", "url", c.seed.String(), "error", err)
		} else if landing != nil {
			c.log.Info("login successful", "url", c.seed.String())
		}
		if landing != nil {
			c.fetcher = WithPreset(c.fetcher, c.seed, landing)
		}
	}

	c.state.Store(int32(StateCrawling))
	if err := c.Enqueue(c.seed); err != nil {
		return c.stats(), err
	}

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() {
		c.mx.Lock()
		c.stopped = true
		c.mx.Unlock()
		c.cond.Broadcast()
	})
	defer stop()

	for i := 0; i < c.concurrency; i++ {
		g.Go(func() error {
			return c.worker(gctx)
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	return c.stats(), err
}

func (c *Crawler) stats() Stats {
	return Stats{
		Visited: c.queue.Seen(),
		Fetched: int(c.fetched.Load()),
		Failed:  int(c.failed.Load()),
	}
}

// Close releases the resources held by the crawl state.
func (c *Crawler) Close() {
	c.db.Close() // nolint
}

func (c *Crawler) worker(ctx context.Context) error {
	for {
		u, ok, err := c.next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		err = c.process(ctx, u)
		c.release()
		if err != nil {
			return err
		}
	}
}

// next blocks until there is a URL to fetch. It returns false once the
// queue is empty with no fetch in flight (nobody can add to the queue
// anymore) or the crawl was stopped.
func (c *Crawler) next() (*url.URL, bool, error) {
	c.mx.Lock()
	defer c.mx.Unlock()
	for {
		if c.stopped {
			return nil, false, nil
		}
		u, ok, err := c.queue.Pop()
		if err != nil {
			return nil, false, err
		}
		if ok {
			c.inflight++
			return u, true, nil
		}
		if c.inflight == 0 {
			c.stopped = true
			c.cond.Broadcast()
			return nil, false, nil
		}
		c.cond.Wait()
	}
}

func (c *Crawler) release() {
	c.mx.Lock()
	c.inflight--
	c.mx.Unlock()
	c.cond.Broadcast()
}

func (c *Crawler) process(ctx context.Context, u *url.URL) error {
	if !c.queue.HasSeen(u) || !c.scope.Check(u) {
		// Only URLs that went through Enqueue can be here.
		c.log.Warn("skipping unexpected URL", "url", u.String())
		return nil
	}

	c.log.Info("fetching", "url", u.String())
	res, err := c.fetcher.Fetch(ctx, u)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.failed.Add(1)
		c.log.Warn("fetch failed", "url", u.String(), "error", err)
		return nil
	}
	c.fetched.Add(1)
	return c.handler.Handle(c, res)
}

// SaveTo returns a Handler that stores every resource and then calls
// wrap. Isolated write failures are logged; failures of the storage
// as a whole abort the crawl.
func SaveTo(store *Store, log *slog.Logger, wrap Handler) Handler {
	if log == nil {
		log = slog.Default()
	}
	return HandlerFunc(func(p Publisher, res *FetchResult) error {
		path, err := store.Save(res.URL, res.Body)
		switch {
		case err == nil:
			log.Info("saved", "url", res.URL.String(), "path", path)
		case errors.Is(err, ErrStorageFailed):
			return err
		default:
			log.Error("could not save", "url", res.URL.String(), "error", err)
		}
		if wrap == nil {
			return nil
		}
		return wrap.Handle(p, res)
	})
}

// An Extractor finds references to other resources in a fetched body.
// Links are resolved against base.
type Extractor interface {
	Extract(body []byte, contentType string, base *url.URL) ([]*url.URL, error)
}

// ExtractorFunc wraps a function into the Extractor interface.
type ExtractorFunc func([]byte, string, *url.URL) ([]*url.URL, error)

// Extract links from body.
func (f ExtractorFunc) Extract(body []byte, contentType string, base *url.URL) ([]*url.URL, error) {
	return f(body, contentType, base)
}

// ExtractLinks returns a Handler that enqueues the links found in
// HTML, CSS and JavaScript resources. A body that cannot be parsed
// simply has no links.
func ExtractLinks(x Extractor, log *slog.Logger) Handler {
	if log == nil {
		log = slog.Default()
	}
	return HandlerFunc(func(p Publisher, res *FetchResult) error {
		if !IsTextLike(res.ContentType, res.URL.Path) {
			return nil
		}
		base := res.FinalURL
		if base == nil {
			base = res.URL
		}
		links, err := x.Extract(res.Body, res.ContentType, base)
		if err != nil {
			log.Warn("could not extract links", "url", res.URL.String(), "error", err)
			return nil
		}
		for _, link := range links {
			if err := p.Enqueue(link); err != nil {
				return err
			}
		}
		return nil
	})
}

var textLikeExtensions = map[string]bool{
	".html": true,
	".htm":  true,
	".css":  true,
	".js":   true,
}

// IsTextLike tells whether a resource may contain links, judging from
// its content type or the extension of its URL path.
func IsTextLike(contentType, urlPath string) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "html") || strings.Contains(ct, "css") || strings.Contains(ct, "javascript") {
		return true
	}
	return textLikeExtensions[strings.ToLower(path.Ext(urlPath))]
}
