package catapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// PaginationCountHeader carries the total number of rows matching a search.
const PaginationCountHeader = "Pagination-Count"

// Cat is one image record returned by the search endpoint.
// Fields the gallery does not use are decoded loosely or ignored.
type Cat struct {
	ID     string            `json:"id"`
	URL    string            `json:"url"`
	Width  int               `json:"width,omitempty"`
	Height int               `json:"height,omitempty"`
	Breeds []json.RawMessage `json:"breeds,omitempty"`
}

// Response is a successful (2xx) search response with its body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	body       []byte
}

// NewResponse builds a Response from an already-read body.
func NewResponse(statusCode int, header http.Header, body []byte) *Response {
	if header == nil {
		header = http.Header{}
	}
	return &Response{
		StatusCode: statusCode,
		Header:     header,
		body:       body,
	}
}

// Body returns the raw response body.
func (r *Response) Body() []byte {
	return r.body
}

// PaginationCount parses the pagination-count header.
// A missing, non-numeric or negative header is a decode error.
func (r *Response) PaginationCount() (int, error) {
	raw := strings.TrimSpace(r.Header.Get(PaginationCountHeader))
	if raw == "" {
		return 0, &APIError{
			StatusCode: r.StatusCode,
			Class:      ErrorClassDecode,
			Message:    "read pagination count",
			Err:        ErrMissingPaginationCount,
		}
	}

	count, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &APIError{
			StatusCode: r.StatusCode,
			Class:      ErrorClassDecode,
			Message:    "parse pagination-count header",
			Err:        err,
		}
	}
	if count < 0 {
		return 0, &APIError{
			StatusCode: r.StatusCode,
			Class:      ErrorClassDecode,
			Message:    fmt.Sprintf("negative pagination-count %d", count),
		}
	}
	return count, nil
}

// Cats parses the body as a JSON array of Cat. A JSON null yields an empty slice.
func (r *Response) Cats() ([]Cat, error) {
	var cats []Cat
	if err := json.Unmarshal(r.body, &cats); err != nil {
		return nil, &APIError{
			StatusCode: r.StatusCode,
			Class:      ErrorClassDecode,
			Message:    "decode cats",
			Err:        err,
		}
	}
	if cats == nil {
		cats = []Cat{}
	}
	return cats, nil
}

// TotalPages returns floor(totalRows / limit); 0 for a non-positive limit.
func TotalPages(totalRows, limit int) int {
	if limit <= 0 || totalRows <= 0 {
		return 0
	}
	return totalRows / limit
}

// BreedName returns the name of the first breed entry, or "" when the image
// carries no breed data.
func (c Cat) BreedName() string {
	for _, raw := range c.Breeds {
		var breed struct {
			Name string `json:"name"`
		}
		if json.Unmarshal(raw, &breed) == nil && breed.Name != "" {
			return breed.Name
		}
	}
	return ""
}
