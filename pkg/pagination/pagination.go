package pagination

const (
	// DefaultPerPage is the page size when per_page is not provided.
	DefaultPerPage = 5
	// MaxPerPage caps how many rows a single page can request.
	MaxPerPage = 100
)

// Params holds offset pagination inputs from controllers or services.
type Params struct {
	Page    int
	PerPage int
}

// Normalize clamps page to >= 1 and per_page to [1, MaxPerPage].
func (p Params) Normalize() Params {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.PerPage <= 0 {
		p.PerPage = DefaultPerPage
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	return p
}

// Offset returns the row offset of the normalized page.
func (p Params) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.PerPage
}

// Page is a single window of results with the totals needed to render links.
type Page[T any] struct {
	Data        []T   `json:"data"`
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	Total       int64 `json:"total"`
	LastPage    int   `json:"last_page"`
}

// NewPage builds a Page from the fetched rows and the total row count.
func NewPage[T any](data []T, params Params, total int64) Page[T] {
	n := params.Normalize()
	last := int((total + int64(n.PerPage) - 1) / int64(n.PerPage))
	if last < 1 {
		last = 1
	}
	if data == nil {
		data = []T{}
	}
	return Page[T]{
		Data:        data,
		CurrentPage: n.Page,
		PerPage:     n.PerPage,
		Total:       total,
		LastPage:    last,
	}
}
