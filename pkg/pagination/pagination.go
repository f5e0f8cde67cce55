package pagination

const (
	// DefaultPerPage is the page size when none is provided.
	DefaultPerPage = 50
	// MaxPerPage caps how many items a single window can hold.
	MaxPerPage = 500
)

// Window is one page of a list
type Window[T any] struct {
	Items      []T  `json:"items"`
	Page       int  `json:"page"`
	PerPage    int  `json:"perPage"`
	TotalItems int  `json:"totalItems"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
}

// NormalizePerPage enforces the default and maximum page sizes.
func NormalizePerPage(perPage int) int {
	if perPage <= 0 {
		return DefaultPerPage
	}
	if perPage > MaxPerPage {
		return MaxPerPage
	}
	return perPage
}

// NormalizePage treats anything below 1 as the first page.
func NormalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

// Paginate returns the 1-based page of items. A page past the end yields an
// empty window that still reports the totals.
func Paginate[T any](items []T, page, perPage int) Window[T] {
	page = NormalizePage(page)
	perPage = NormalizePerPage(perPage)

	total := len(items)
	totalPages := (total + perPage - 1) / perPage

	w := Window[T]{
		Items:      []T{},
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}

	if page > totalPages {
		return w
	}
	start := (page - 1) * perPage
	end := start + perPage
	if end > total {
		end = total
	}
	w.Items = items[start:end]
	return w
}
