package catapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/cat-gallery/internal/testutil"
	"github.com/Sternrassler/cat-gallery/pkg/catapi"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis connects to a local Redis or skips the test.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func newTestClient(t *testing.T, baseURL string) *catapi.Client {
	t.Helper()

	cfg := catapi.DefaultConfig("CatGalleryTest/1.0.0")
	cfg.BaseURL = baseURL
	c, err := catapi.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      catapi.Config
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid config",
			config:      catapi.DefaultConfig("TestApp/1.0.0"),
			expectError: false,
		},
		{
			name:        "empty base url falls back to default",
			config:      catapi.Config{UserAgent: "TestApp/1.0.0"},
			expectError: false,
		},
		{
			name:        "empty user agent",
			config:      catapi.Config{BaseURL: catapi.DefaultBaseURL},
			expectError: true,
			errorMsg:    "user-agent is required",
		},
		{
			name:        "non http base url",
			config:      catapi.Config{BaseURL: "ftp://example.com/search", UserAgent: "TestApp/1.0.0"},
			expectError: true,
			errorMsg:    `base url must be http(s) (got "ftp://example.com/search")`,
		},
		{
			name:        "negative timeout",
			config:      catapi.Config{UserAgent: "TestApp/1.0.0", Timeout: -time.Second},
			expectError: true,
			errorMsg:    "timeout must be >= 0 (got -1s)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := catapi.New(tt.config)

			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error but got nil")
				}
				if tt.errorMsg != "" && err.Error() != tt.errorMsg {
					t.Errorf("Error message = %q, want %q", err.Error(), tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if client.BaseURL() != catapi.DefaultBaseURL {
				t.Errorf("BaseURL() = %q, want %q", client.BaseURL(), catapi.DefaultBaseURL)
			}
		})
	}
}

func TestSearch_DerivesMaxPages(t *testing.T) {
	mock := testutil.NewMockCatAPI(95)
	defer mock.Close()

	client := newTestClient(t, mock.SearchURL())

	resp, err := client.Search(context.Background(), catapi.SearchParams{Limit: 10, Page: 1, Order: catapi.OrderDesc})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	total, err := resp.PaginationCount()
	if err != nil {
		t.Fatalf("PaginationCount() error = %v", err)
	}
	if total != 95 {
		t.Errorf("PaginationCount() = %d, want 95", total)
	}
	if pages := catapi.TotalPages(total, 10); pages != 9 {
		t.Errorf("TotalPages() = %d, want 9", pages)
	}

	cats, err := resp.Cats()
	if err != nil {
		t.Fatalf("Cats() error = %v", err)
	}
	want := mock.PageCats(1, 10)
	if len(cats) != len(want) {
		t.Fatalf("len(cats) = %d, want %d", len(cats), len(want))
	}
	for i := range want {
		if cats[i].ID != want[i].ID || cats[i].URL != want[i].URL {
			t.Errorf("cats[%d] = %+v, want %+v", i, cats[i], want[i])
		}
	}
}

func TestSearch_QueryAndHeaders(t *testing.T) {
	var gotQuery string
	var gotHeader http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotHeader = r.Header.Clone()
		w.Header().Set("Pagination-Count", "0")
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	cfg := catapi.DefaultConfig("CatGalleryTest/1.0.0 (test@example.com)")
	cfg.BaseURL = server.URL + "/v1/images/search?has_breeds=1"
	cfg.APIKey = "live_secret"
	client, err := catapi.New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := client.Search(context.Background(), catapi.SearchParams{Page: 3}); err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if gotQuery != "has_breeds=1&limit=10&order=desc&page=3" {
		t.Errorf("query = %q", gotQuery)
	}
	if gotHeader.Get("User-Agent") != cfg.UserAgent {
		t.Errorf("User-Agent = %q, want %q", gotHeader.Get("User-Agent"), cfg.UserAgent)
	}
	if gotHeader.Get("Accept") != "application/json" {
		t.Errorf("Accept = %q", gotHeader.Get("Accept"))
	}
	if gotHeader.Get("x-api-key") != "live_secret" {
		t.Errorf("x-api-key = %q", gotHeader.Get("x-api-key"))
	}
}

func TestSearch_InvalidParams(t *testing.T) {
	mock := testutil.NewMockCatAPI(10)
	defer mock.Close()

	client := newTestClient(t, mock.SearchURL())

	_, err := client.Search(context.Background(), catapi.SearchParams{Page: -1})
	if err == nil {
		t.Fatal("Expected error for negative page")
	}
	if class := catapi.ClassOf(err); class != catapi.ErrorClassClient {
		t.Errorf("ClassOf(err) = %q, want %q", class, catapi.ErrorClassClient)
	}
	if !strings.Contains(err.Error(), "page") {
		t.Errorf("error %q does not name the page parameter", err)
	}
	if mock.GetRequestCount() != 0 {
		t.Errorf("RequestCount = %d, want 0 for rejected params", mock.GetRequestCount())
	}
}

func TestSearch_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		response testutil.MockResponse
		expected catapi.ErrorClass
	}{
		{name: "server error", response: testutil.NewServerErrorResponse(), expected: catapi.ErrorClassServer},
		{name: "rate limit", response: testutil.NewRateLimitResponse(), expected: catapi.ErrorClassRateLimit},
		{name: "not found", response: testutil.MockResponse{StatusCode: http.StatusNotFound}, expected: catapi.ErrorClassClient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockCatAPI(10)
			defer mock.Close()
			mock.SetResponse(tt.response)

			client := newTestClient(t, mock.SearchURL())
			_, err := client.Search(context.Background(), catapi.DefaultSearchParams())
			if err == nil {
				t.Fatal("Expected error")
			}

			var apiErr *catapi.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error %v is not an *APIError", err)
			}
			if apiErr.Class != tt.expected {
				t.Errorf("Class = %q, want %q", apiErr.Class, tt.expected)
			}
			if apiErr.StatusCode != tt.response.StatusCode {
				t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, tt.response.StatusCode)
			}
		})
	}
}

func TestSearch_NetworkError(t *testing.T) {
	// Reserve a port, then close it so the dial is refused.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()

	client := newTestClient(t, "http://"+addr+"/v1/images/search")

	_, err = client.Search(context.Background(), catapi.DefaultSearchParams())
	if got := catapi.ClassOf(err); got != catapi.ErrorClassNetwork {
		t.Errorf("ClassOf(err) = %q, want %q (err=%v)", got, catapi.ErrorClassNetwork, err)
	}
}

func TestSearch_ContextCancelled(t *testing.T) {
	mock := testutil.NewMockCatAPI(10)
	defer mock.Close()
	mock.SetPageDelay(1, 2*time.Second)

	client := newTestClient(t, mock.SearchURL())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Search(ctx, catapi.DefaultSearchParams())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
	if catapi.ClassOf(err) != catapi.ErrorClassNetwork {
		t.Errorf("ClassOf(err) = %q, want network", catapi.ClassOf(err))
	}
}

func TestSearch_MalformedBody(t *testing.T) {
	mock := testutil.NewMockCatAPI(10)
	defer mock.Close()
	mock.SetResponse(testutil.NewMalformedResponse())

	client := newTestClient(t, mock.SearchURL())

	resp, err := client.Search(context.Background(), catapi.DefaultSearchParams())
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if _, err := resp.Cats(); catapi.ClassOf(err) != catapi.ErrorClassDecode {
		t.Errorf("Cats() error = %v, want decode class", err)
	}
}

func TestPageSource_FetchPage(t *testing.T) {
	mock := testutil.NewMockCatAPI(42)
	defer mock.Close()

	source := catapi.PageSource{Client: newTestClient(t, mock.SearchURL()), Limit: 5}

	cats, totalPages, err := source.FetchPage(context.Background(), 2)
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if totalPages != 8 {
		t.Errorf("totalPages = %d, want 8", totalPages)
	}
	if len(cats) != 5 || cats[0].ID != mock.PageCats(2, 5)[0].ID {
		t.Errorf("FetchPage(2) returned unexpected cats: %+v", cats)
	}
}

func TestDo_RateLimitBlock(t *testing.T) {
	redisClient := setupTestRedis(t)

	mock := testutil.NewMockCatAPI(10)
	defer mock.Close()

	// Pre-populate Redis with an active 429 block.
	ctx := context.Background()
	now := time.Now()
	redisClient.Set(ctx, "catapi:rate_limit:blocked_until", now.Add(60*time.Second).Unix(), time.Minute)
	lastUpdateJSON, _ := json.Marshal(now)
	redisClient.Set(ctx, "catapi:rate_limit:last_update", lastUpdateJSON, 0)

	cfg := catapi.DefaultConfig("TestApp/1.0.0")
	cfg.BaseURL = mock.SearchURL()
	cfg.Redis = redisClient
	client, err := catapi.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	_, err = client.Search(ctx, catapi.DefaultSearchParams())
	if !errors.Is(err, catapi.ErrRateLimited) {
		t.Errorf("error = %v, want ErrRateLimited", err)
	}
	if mock.GetRequestCount() != 0 {
		t.Errorf("RequestCount = %d, want 0 while blocked", mock.GetRequestCount())
	}
}
