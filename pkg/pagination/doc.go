// Package pagination provides parallel batch fetching for paginated search endpoints.
//
// TheCatAPI reports the total row count in the Pagination-Count header, from
// which a page source derives the page count. This package fetches page 1 to
// learn that count, then distributes the remaining pages over a small worker
// pool.
//
// Example usage:
//
//	source := catapi.PageSource{Client: client, Limit: 25, Order: catapi.OrderAsc}
//	fetcher := pagination.NewBatchFetcher[catapi.Cat](source, pagination.DefaultConfig())
//	pages, err := fetcher.FetchAllPages(ctx)
//	cats := pagination.Flatten(pages)
//
// The batch fetcher:
//   - Fetches the first page to determine total pages
//   - Caps the page count at Config.MaxPages when set
//   - Feeds pages to the workers through a bounded queue
//   - Cancels every worker at the first failed page and returns partial data
package pagination
