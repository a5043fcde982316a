// Package testutil provides testing utilities for the cat gallery.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/Sternrassler/cat-gallery/pkg/catapi"
	"github.com/brianvoe/gofakeit/v6"
)

// SearchPath is the path the mock serves image searches on.
const SearchPath = "/v1/images/search"

// MockResponse defines a canned response for a path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockCatAPI is a configurable mock TheCatAPI server backed by a fake dataset.
type MockCatAPI struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	cats     []catapi.Cat
	delays   map[int]time.Duration

	// Tracking
	RequestCount      int
	RequestedPages    []int
	LastRequestHeader http.Header
}

// FakeCats generates n deterministic cat records from seed.
func FakeCats(seed int64, n int) []catapi.Cat {
	faker := gofakeit.New(seed)
	cats := make([]catapi.Cat, 0, n)
	for i := 0; i < n; i++ {
		id := faker.LetterN(9)
		cats = append(cats, catapi.Cat{
			ID:     id,
			URL:    fmt.Sprintf("https://cdn2.thecatapi.com/images/%s.jpg", id),
			Width:  faker.Number(200, 2000),
			Height: faker.Number(200, 2000),
		})
	}
	return cats
}

// NewMockCatAPI creates a mock server holding totalRows fake cats.
func NewMockCatAPI(totalRows int) *MockCatAPI {
	mock := &MockCatAPI{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
		cats:     FakeCats(42, totalRows),
		delays:   make(map[int]time.Duration),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))

		mock.mu.Lock()
		mock.RequestCount++
		mock.RequestedPages = append(mock.RequestedPages, page)
		mock.LastRequestHeader = r.Header.Clone()
		handler, exists := mock.handlers[r.URL.Path]
		delay := mock.delays[page]
		mock.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}

		if exists {
			handler(w, r)
			return
		}

		mock.searchHandler(w, r)
	}))

	return mock
}

// URL returns the mock server root URL.
func (m *MockCatAPI) URL() string {
	return m.server.URL
}

// SearchURL returns the search endpoint URL, suitable for catapi.Config.BaseURL.
func (m *MockCatAPI) SearchURL() string {
	return m.server.URL + SearchPath
}

// Close shuts down the mock server.
func (m *MockCatAPI) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockCatAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.RequestedPages = nil
	m.LastRequestHeader = nil
}

// Cats returns the full fake dataset.
func (m *MockCatAPI) Cats() []catapi.Cat {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]catapi.Cat(nil), m.cats...)
}

// PageCats returns the slice of the dataset served for page/limit.
func (m *MockCatAPI) PageCats(page, limit int) []catapi.Cat {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return pageOf(m.cats, page, limit)
}

// SetHandler sets a custom handler for a specific path.
func (m *MockCatAPI) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// ClearHandler restores the default search behaviour for path.
func (m *MockCatAPI) ClearHandler(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, path)
}

// SetResponse configures a canned response for the search path.
func (m *MockCatAPI) SetResponse(resp MockResponse) {
	m.SetHandler(SearchPath, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetPageDelay delays every response for the given page.
func (m *MockCatAPI) SetPageDelay(page int, delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[page] = delay
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockCatAPI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetRequestedPages returns the page parameter of every request, in arrival order.
func (m *MockCatAPI) GetRequestedPages() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int(nil), m.RequestedPages...)
}

// GetLastRequestHeader returns the headers of the most recent request.
func (m *MockCatAPI) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader
}

// searchHandler serves TheCatAPI-like pages of the fake dataset.
func (m *MockCatAPI) searchHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, err := strconv.Atoi(query.Get("limit"))
	if err != nil || limit < 1 {
		limit = catapi.DefaultLimit
	}
	page, err := strconv.Atoi(query.Get("page"))
	if err != nil || page < 1 {
		page = catapi.DefaultPage
	}

	m.mu.RLock()
	cats := pageOf(m.cats, page, limit)
	total := len(m.cats)
	m.mu.RUnlock()

	body, err := json.Marshal(cats)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Pagination-Count", strconv.Itoa(total))
	w.Header().Set("Pagination-Page", strconv.Itoa(page))
	w.Header().Set("Pagination-Limit", strconv.Itoa(limit))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func pageOf(cats []catapi.Cat, page, limit int) []catapi.Cat {
	start := (page - 1) * limit
	if start < 0 || start >= len(cats) {
		return []catapi.Cat{}
	}
	end := start + limit
	if end > len(cats) {
		end = len(cats)
	}
	return append([]catapi.Cat(nil), cats[start:end]...)
}

// NewHealthyResponse creates a 200 OK response with a pagination-count header.
func NewHealthyResponse(body string, paginationCount int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Pagination-Count": strconv.Itoa(paginationCount),
			"Content-Type":     "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"message": "Too many requests"}`,
		Headers: map[string]string{
			"Retry-After":           "30",
			"X-RateLimit-Remaining": "0",
			"X-RateLimit-Reset":     "30",
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"message": "Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewMalformedResponse creates a 200 OK response whose body is not a JSON array.
func NewMalformedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"not": "an array"`,
		Headers: map[string]string{
			"Pagination-Count": "95",
			"Content-Type":     "application/json; charset=utf-8",
		},
	}
}
