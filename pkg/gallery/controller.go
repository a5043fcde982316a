package gallery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/cat-gallery/pkg/catapi"
	"github.com/Sternrassler/cat-gallery/pkg/debounce"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for the gallery controller.
var (
	galleryFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gallery_fetches_total",
		Help: "Total page fetches by outcome (ok, empty, failed, stale)",
	}, []string{"outcome"})

	galleryFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gallery_fetch_duration_seconds",
		Help:    "Duration of a page fetch including decoding",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	galleryPageChangesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gallery_page_changes_total",
		Help: "Total page-change events received by the controller",
	})

	galleryMaxPages = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gallery_max_pages",
		Help: "Page count derived from the last applied fetch",
	})
)

var (
	// ErrInvalidPage is returned by SetPage for pages below 1.
	ErrInvalidPage = errors.New("page must be >= 1")

	// ErrIndexOutOfRange is returned by SelectIndex for rows not on the current page.
	ErrIndexOutOfRange = errors.New("row index out of range")
)

// Fetcher issues one image search. *catapi.Client implements it.
type Fetcher interface {
	Search(ctx context.Context, params catapi.SearchParams) (*catapi.Response, error)
}

// Config holds the controller configuration.
type Config struct {
	// PageSize is the number of cats per page.
	PageSize int

	// Order is the sort direction of every page request.
	Order catapi.Order

	// Debounce is the trailing window that collapses rapid page changes.
	Debounce time.Duration
}

// DefaultConfig returns 10 cats per page, descending order, 500ms debounce.
func DefaultConfig() Config {
	return Config{
		PageSize: catapi.DefaultLimit,
		Order:    catapi.OrderDesc,
		Debounce: 500 * time.Millisecond,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.PageSize < 1 || c.PageSize > catapi.MaxLimit {
		return fmt.Errorf("page_size must be between 1 and %d (got %d)", catapi.MaxLimit, c.PageSize)
	}
	if _, err := catapi.ParseOrder(string(c.Order)); err != nil {
		return err
	}
	if c.Debounce < 0 {
		return fmt.Errorf("debounce must be >= 0 (got %s)", c.Debounce)
	}
	return nil
}

// Controller owns the current page and page count, fetches pages through a
// debounced trigger and writes results into the shared State.
//
// Every fetch and every page change advances a generation counter. A result
// is applied only if its generation is still the latest, so a slow response
// for an old page never overwrites a newer one.
type Controller struct {
	fetcher   Fetcher
	state     *State
	config    Config
	logger    zerolog.Logger
	debouncer *debounce.Debouncer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	currentPage int
	maxPages    int
	loadedPage  int
	status      Status
	lastErr     error
	generation  uint64
	closed      bool
}

// NewController creates a controller over fetcher and the injected state.
func NewController(fetcher Fetcher, state *State, cfg Config, logger zerolog.Logger) (*Controller, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if state == nil {
		return nil, fmt.Errorf("state is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		fetcher:     fetcher,
		state:       state,
		config:      cfg,
		logger:      logger.With().Str("component", "gallery").Logger(),
		ctx:         ctx,
		cancel:      cancel,
		currentPage: 1,
		maxPages:    1,
		status:      StatusLoading,
	}
	c.debouncer = debounce.New(cfg.Debounce, c.fetchCurrentPage)
	return c, nil
}

// State returns the shared state the controller writes into.
func (c *Controller) State() *State {
	return c.state
}

// Start schedules the initial fetch of the current page.
func (c *Controller) Start() {
	c.logger.Debug().Int("page", c.CurrentPage()).Msg("Scheduling initial fetch")
	c.debouncer.Trigger()
}

// SetPage is the page-change handler. It does not check page against the
// page count; the pagination control only offers valid pages.
// Setting the current page again is a no-op.
func (c *Controller) SetPage(page int) error {
	if page < 1 {
		return fmt.Errorf("%w (got %d)", ErrInvalidPage, page)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	if page == c.currentPage {
		c.mu.Unlock()
		return nil
	}
	previous := c.currentPage
	c.currentPage = page
	c.status = StatusLoading
	// Responses for the previous page are now stale.
	c.generation++
	c.mu.Unlock()

	galleryPageChangesTotal.Inc()
	c.logger.Debug().
		Int("from", previous).
		Int("to", page).
		Msg("Page changed")

	c.state.notify()
	c.debouncer.Trigger()
	return nil
}

// NextPage moves forward one page if the page count allows it.
func (c *Controller) NextPage() error {
	c.mu.Lock()
	page, maxPages := c.currentPage, c.maxPages
	c.mu.Unlock()

	if page >= maxPages {
		return nil
	}
	return c.SetPage(page + 1)
}

// PrevPage moves back one page.
func (c *Controller) PrevPage() error {
	page := c.CurrentPage()
	if page <= 1 {
		return nil
	}
	return c.SetPage(page - 1)
}

// Refresh fetches the current page immediately, bypassing the debounce window.
func (c *Controller) Refresh(ctx context.Context) Result {
	return c.FetchData(ctx, c.pageParams(c.CurrentPage()))
}

// FetchData fetches one page and, if no newer fetch or page change happened
// meanwhile, writes the outcome into the state. Zero params fields default to
// {limit: 10, page: 1, order: desc}.
//
// Any failure (network, status, decode, missing pagination-count) leaves the
// state at zero pages and no cats; Result.Err keeps the tagged cause.
func (c *Controller) FetchData(ctx context.Context, params catapi.SearchParams) Result {
	params = params.WithDefaults()

	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	start := time.Now()
	cats, totalRows, err := c.load(ctx, params)
	galleryFetchDuration.Observe(time.Since(start).Seconds())

	res := Result{
		Generation: gen,
		Params:     params,
		Cats:       cats,
		TotalRows:  totalRows,
		Err:        err,
	}
	if err == nil {
		res.MaxPages = catapi.TotalPages(totalRows, params.Limit)
	}

	res.Applied = c.apply(res)
	return res
}

// load performs the request, reads the page count, then decodes the body.
func (c *Controller) load(ctx context.Context, params catapi.SearchParams) ([]catapi.Cat, int, error) {
	resp, err := c.fetcher.Search(ctx, params)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch page %d: %w", params.Page, err)
	}

	totalRows, err := resp.PaginationCount()
	if err != nil {
		return nil, 0, fmt.Errorf("fetch page %d: %w", params.Page, err)
	}

	cats, err := resp.Cats()
	if err != nil {
		return nil, 0, fmt.Errorf("fetch page %d: %w", params.Page, err)
	}

	return cats, totalRows, nil
}

// apply writes res into the state unless a newer generation exists.
func (c *Controller) apply(res Result) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if res.Generation != c.generation || c.closed {
		galleryFetchesTotal.WithLabelValues("stale").Inc()
		c.logger.Debug().
			Uint64("generation", res.Generation).
			Uint64("latest", c.generation).
			Int("page", res.Params.Page).
			Msg("Discarding stale fetch result")
		return false
	}

	c.loadedPage = res.Params.Page
	if res.Err != nil {
		c.maxPages = 0
		c.status = StatusFailed
		c.lastErr = res.Err
		c.state.SetCats(nil)

		galleryFetchesTotal.WithLabelValues("failed").Inc()
		c.logger.Warn().
			Err(res.Err).
			Int("page", res.Params.Page).
			Str("error_class", string(catapi.ClassOf(res.Err))).
			Msg("Page fetch failed")
	} else {
		c.maxPages = res.MaxPages
		c.lastErr = nil
		if len(res.Cats) == 0 {
			c.status = StatusEmpty
			galleryFetchesTotal.WithLabelValues("empty").Inc()
		} else {
			c.status = StatusReady
			galleryFetchesTotal.WithLabelValues("ok").Inc()
		}
		c.state.SetCats(res.Cats)

		c.logger.Info().
			Int("page", res.Params.Page).
			Int("cats", len(res.Cats)).
			Int("total_rows", res.TotalRows).
			Int("max_pages", res.MaxPages).
			Msg("Page loaded")
	}
	galleryMaxPages.Set(float64(c.maxPages))
	return true
}

// fetchCurrentPage is the debounced callback.
func (c *Controller) fetchCurrentPage() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	page := c.currentPage
	c.wg.Add(1)
	c.mu.Unlock()
	defer c.wg.Done()

	c.FetchData(c.ctx, c.pageParams(page))
}

func (c *Controller) pageParams(page int) catapi.SearchParams {
	return catapi.SearchParams{
		Limit: c.config.PageSize,
		Page:  page,
		Order: c.config.Order,
	}
}

// Select makes cat the subject of the detail view.
func (c *Controller) Select(cat catapi.Cat) {
	c.state.Select(cat)
}

// SelectIndex selects the cat at row i of the current page.
func (c *Controller) SelectIndex(i int) error {
	cats := c.state.Cats()
	if i < 0 || i >= len(cats) {
		return fmt.Errorf("%w: %d (page has %d)", ErrIndexOutOfRange, i, len(cats))
	}
	c.state.Select(cats[i])
	return nil
}

// CloseDetail clears the selection.
func (c *Controller) CloseDetail() {
	c.state.ClearSelection()
}

// CurrentPage returns the requested page.
func (c *Controller) CurrentPage() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentPage
}

// MaxPages returns the page count derived from the last applied fetch.
func (c *Controller) MaxPages() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxPages
}

// Status returns the status of the last applied fetch or pending page change.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Snapshot returns a consistent copy of the controller and state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		CurrentPage: c.currentPage,
		MaxPages:    c.maxPages,
		LoadedPage:  c.loadedPage,
		Status:      c.status,
		Err:         c.lastErr,
		Generation:  c.generation,
		Cats:        c.state.Cats(),
	}
	snap.Selected, snap.HasSelection = c.state.Current()
	return snap
}

// Subscribe returns a channel signalled after every state or page change.
func (c *Controller) Subscribe() (<-chan struct{}, func()) {
	return c.state.Subscribe()
}

// Close stops the debouncer, cancels in-flight fetches and waits for them.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.debouncer.Stop()
	c.cancel()
	c.wg.Wait()
	return nil
}
