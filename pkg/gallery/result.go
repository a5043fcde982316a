package gallery

import (
	"github.com/Sternrassler/cat-gallery/pkg/catapi"
)

// Status describes what the gallery currently shows.
type Status int

const (
	// StatusLoading means a page was requested and its result is not applied yet.
	StatusLoading Status = iota
	// StatusReady means the last applied fetch returned cats.
	StatusReady
	// StatusEmpty means the last applied fetch succeeded with no cats.
	StatusEmpty
	// StatusFailed means the last applied fetch failed; the state holds no cats and zero pages.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusEmpty:
		return "empty"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of one FetchData call.
type Result struct {
	Generation uint64
	Params     catapi.SearchParams
	Cats       []catapi.Cat
	TotalRows  int
	MaxPages   int
	Err        error

	// Applied is false when a newer fetch or page change superseded this one.
	Applied bool
}

// Snapshot is a consistent view of the gallery for rendering.
type Snapshot struct {
	CurrentPage  int
	MaxPages     int
	LoadedPage   int
	Status       Status
	Err          error
	Generation   uint64
	Cats         []catapi.Cat
	Selected     catapi.Cat
	HasSelection bool
}

// ErrorClass returns the tagged class of the last failure, if any.
func (s Snapshot) ErrorClass() catapi.ErrorClass {
	return catapi.ClassOf(s.Err)
}
