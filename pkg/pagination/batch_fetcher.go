package pagination

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

var paginationPagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pagination_pages_fetched_total",
	Help: "Total pages fetched by batch fetchers (status: ok, failed)",
}, []string{"status"})

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of parallel requests.
	// TheCatAPI free tier tolerates a handful of parallel requests.
	MaxConcurrency int
	// Timeout per page fetch
	Timeout time.Duration
	// MaxPages caps the number of pages fetched (0 = all pages)
	MaxPages int
	// BufferSize of the page queue and result channels
	BufferSize int
}

// DefaultConfig returns a conservative configuration for TheCatAPI
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        15 * time.Second,
		BufferSize:     400,
	}
}

// PageFetcher fetches one page of items and reports the total page count.
type PageFetcher[T any] interface {
	FetchPage(ctx context.Context, page int) (items []T, totalPages int, err error)
}

// PageResult represents the result of fetching a single page
type PageResult[T any] struct {
	PageNumber int
	Items      []T
	Error      error
}

// BatchFetcher handles parallel fetching of multiple pages
type BatchFetcher[T any] struct {
	fetcher PageFetcher[T]
	config  Config
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher[T any](fetcher PageFetcher[T], config Config) *BatchFetcher[T] {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.MaxPages < 0 {
		config.MaxPages = 0
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 400
	}

	return &BatchFetcher[T]{
		fetcher: fetcher,
		config:  config,
	}
}

// FetchAllPages fetches page 1 to learn the page count, then the remaining
// pages in parallel. Returns pageNumber -> items for successful pages.
// On a worker error the pages fetched so far are returned with the error.
func (bf *BatchFetcher[T]) FetchAllPages(ctx context.Context) (map[int][]T, error) {
	start := time.Now()

	firstPage, totalPages, err := bf.fetcher.FetchPage(ctx, 1)
	if err != nil {
		paginationPagesFetched.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("failed to fetch first page: %w", err)
	}
	paginationPagesFetched.WithLabelValues("ok").Inc()

	if bf.config.MaxPages > 0 && totalPages > bf.config.MaxPages {
		totalPages = bf.config.MaxPages
	}

	log.Info().
		Int("total_pages", totalPages).
		Int("workers", bf.config.MaxConcurrency).
		Msg("Starting parallel page fetch")

	results := map[int][]T{1: firstPage}
	if totalPages <= 1 {
		log.Info().
			Int("pages", 1).
			Dur("duration", time.Since(start)).
			Msg("Fetch complete (single page)")
		return results, nil
	}

	// Workers share a context that the first failure cancels.
	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pageQueue := make(chan int, bf.config.BufferSize)
	pageResults := make(chan PageResult[T], bf.config.BufferSize)
	errs := make(chan error, bf.config.MaxConcurrency)

	go func() {
		defer close(pageQueue)
		for page := 2; page <= totalPages; page++ {
			select {
			case pageQueue <- page:
			case <-workCtx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < bf.config.MaxConcurrency; i++ {
		wg.Add(1)
		go bf.worker(workCtx, cancel, pageQueue, pageResults, errs, &wg, i)
	}

	go func() {
		wg.Wait()
		close(pageResults)
		close(errs)
	}()

	fetchedPages := 1
	for result := range pageResults {
		results[result.PageNumber] = result.Items
		fetchedPages++

		if fetchedPages%50 == 0 {
			log.Info().
				Int("fetched", fetchedPages).
				Int("total", totalPages).
				Float64("progress_pct", float64(fetchedPages)/float64(totalPages)*100).
				Msg("Fetch progress")
		}
	}

	if err := <-errs; err != nil {
		log.Warn().
			Err(err).
			Int("fetched_pages", fetchedPages).
			Int("total_pages", totalPages).
			Msg("Worker error - returning partial results")
		return results, fmt.Errorf("worker error (partial data: %d/%d pages): %w", fetchedPages, totalPages, err)
	}
	if err := ctx.Err(); err != nil && fetchedPages < totalPages {
		return results, fmt.Errorf("fetch cancelled (partial data: %d/%d pages): %w", fetchedPages, totalPages, err)
	}

	log.Info().
		Int("pages", fetchedPages).
		Int("total", totalPages).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return results, nil
}

// worker processes pages from the queue until it is drained, the context is
// cancelled or a fetch fails. A failure cancels the other workers.
func (bf *BatchFetcher[T]) worker(ctx context.Context, cancel context.CancelFunc, pageQueue <-chan int, results chan<- PageResult[T], errs chan<- error, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	pagesProcessed := 0

	for pageNum := range pageQueue {
		if ctx.Err() != nil {
			log.Debug().
				Int("worker_id", workerID).
				Int("pages_processed", pagesProcessed).
				Msg("Worker stopping (context cancelled)")
			return
		}

		pageCtx, pageCancel := context.WithTimeout(ctx, bf.config.Timeout)
		items, _, err := bf.fetcher.FetchPage(pageCtx, pageNum)
		pageCancel()

		if err != nil {
			// Aborted by another worker's failure or by the caller.
			if ctx.Err() != nil {
				return
			}

			paginationPagesFetched.WithLabelValues("failed").Inc()
			log.Warn().
				Err(err).
				Int("worker_id", workerID).
				Int("page", pageNum).
				Msg("Page fetch failed")

			select {
			case errs <- fmt.Errorf("page %d: %w", pageNum, err):
			default:
			}
			cancel()
			return
		}
		paginationPagesFetched.WithLabelValues("ok").Inc()

		select {
		case results <- PageResult[T]{PageNumber: pageNum, Items: items}:
		case <-ctx.Done():
			return
		}
		pagesProcessed++
	}

	if pagesProcessed > 0 {
		log.Debug().
			Int("worker_id", workerID).
			Int("pages_processed", pagesProcessed).
			Msg("Worker completed")
	}
}

// Flatten concatenates pages in ascending page order.
func Flatten[T any](pages map[int][]T) []T {
	numbers := make([]int, 0, len(pages))
	total := 0
	for page, items := range pages {
		numbers = append(numbers, page)
		total += len(items)
	}
	sort.Ints(numbers)

	out := make([]T, 0, total)
	for _, page := range numbers {
		out = append(out, pages[page]...)
	}
	return out
}
