package pagination

// Params holds the position of one page within a collection.
type Params struct {
	Page    int
	PerPage int
	Offset  int
}

// DefaultParams returns the first page of the given size.
func DefaultParams(perPage int) Params {
	return New(1, perPage)
}

// New builds page parameters, clamping page and size to at least 1.
func New(page, perPage int) Params {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 1
	}
	return Params{
		Page:    page,
		PerPage: perPage,
		Offset:  (page - 1) * perPage,
	}
}

// Next returns the parameters of the following page.
func (p Params) Next() Params {
	return New(p.Page+1, p.PerPage)
}

// LastPage returns the number of the last page for a collection of
// totalCount items. An empty collection still has one (empty) page.
func LastPage(totalCount, perPage int) int {
	if perPage < 1 || totalCount <= 0 {
		return 1
	}
	pages := totalCount / perPage
	if totalCount%perPage > 0 {
		pages++
	}
	return pages
}
