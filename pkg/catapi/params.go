package catapi

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Order is the sort direction of an image search.
type Order string

const (
	OrderAsc    Order = "asc"
	OrderDesc   Order = "desc"
	OrderRandom Order = "rand"
)

// Search defaults.
const (
	DefaultLimit = 10
	DefaultPage  = 1
	DefaultOrder = OrderDesc

	// MaxLimit is the largest page size TheCatAPI serves.
	MaxLimit = 100
)

// ParseOrder parses asc, desc or rand (case-insensitive).
func ParseOrder(s string) (Order, error) {
	switch Order(strings.ToLower(strings.TrimSpace(s))) {
	case OrderAsc:
		return OrderAsc, nil
	case OrderDesc:
		return OrderDesc, nil
	case OrderRandom, "random":
		return OrderRandom, nil
	default:
		return "", fmt.Errorf("invalid order %q (want asc, desc or rand)", s)
	}
}

// SearchParams are the query parameters of one image search page.
type SearchParams struct {
	Limit int   // page size
	Page  int   // 1-based page index
	Order Order // sort direction
}

// DefaultSearchParams returns {limit: 10, page: 1, order: desc}.
func DefaultSearchParams() SearchParams {
	return SearchParams{
		Limit: DefaultLimit,
		Page:  DefaultPage,
		Order: DefaultOrder,
	}
}

// WithDefaults fills zero fields from DefaultSearchParams.
func (p SearchParams) WithDefaults() SearchParams {
	if p.Limit == 0 {
		p.Limit = DefaultLimit
	}
	if p.Page == 0 {
		p.Page = DefaultPage
	}
	if p.Order == "" {
		p.Order = DefaultOrder
	}
	return p
}

// Validate checks the parameters after defaults are applied.
func (p SearchParams) Validate() error {
	if p.Limit < 1 || p.Limit > MaxLimit {
		return fmt.Errorf("limit must be between 1 and %d (got %d)", MaxLimit, p.Limit)
	}
	if p.Page < 1 {
		return fmt.Errorf("page must be >= 1 (got %d)", p.Page)
	}
	if _, err := ParseOrder(string(p.Order)); err != nil {
		return err
	}
	return nil
}

// Values encodes the parameters as a query string.
func (p SearchParams) Values() url.Values {
	v := url.Values{}
	v.Set("limit", strconv.Itoa(p.Limit))
	v.Set("page", strconv.Itoa(p.Page))
	v.Set("order", string(p.Order))
	return v
}
