package domain

import (
	"errors"
	"strconv"
	"strings"

	apperrors "github.com/utafrali/urlrewrite/pkg/errors"
	"github.com/utafrali/urlrewrite/pkg/validator"
)

// Entity type scopes of a run.
const (
	ScopeAll      = "all"
	ScopeProduct  = EntityTypeProduct
	ScopeCategory = EntityTypeCategory
)

// IDFilter restricts a traversal to explicit ids or to an inclusive id range.
// The zero value selects everything.
type IDFilter struct {
	IDs  []int64
	From int64
	To   int64
}

// IsEmpty reports whether the filter selects everything.
func (f IDFilter) IsEmpty() bool {
	return len(f.IDs) == 0 && f.From == 0 && f.To == 0
}

// IsRange reports whether the filter is an id range.
func (f IDFilter) IsRange() bool {
	return f.From > 0 && f.To > 0
}

// Contains reports whether id passes the filter.
func (f IDFilter) Contains(id int64) bool {
	switch {
	case f.IsEmpty():
		return true
	case f.IsRange():
		return id >= f.From && id <= f.To
	}
	for _, v := range f.IDs {
		if v == id {
			return true
		}
	}
	return false
}

// IDs builds a filter from an explicit id list.
func IDs(ids ...int64) IDFilter {
	return IDFilter{IDs: ids}
}

// ParseIDRange parses "from-to" into an inclusive range. Both bounds must be
// positive and from must not exceed to.
func ParseIDRange(s string) (IDFilter, error) {
	from, to, ok := strings.Cut(s, "-")
	if !ok {
		return IDFilter{}, errors.New("range must look like 101-152")
	}
	start, err := strconv.ParseInt(strings.TrimSpace(from), 10, 64)
	if err != nil {
		return IDFilter{}, errors.New("range start is not a number")
	}
	end, err := strconv.ParseInt(strings.TrimSpace(to), 10, 64)
	if err != nil {
		return IDFilter{}, errors.New("range end is not a number")
	}
	if start <= 0 || end <= 0 {
		return IDFilter{}, errors.New("range bounds must be positive")
	}
	if end < start {
		return IDFilter{}, errors.New("range end must not be lower than its start")
	}
	return IDFilter{From: start, To: end}, nil
}

// RegenerationOptions carries the scope and behaviour of one run. It is not
// modified once the run starts.
type RegenerationOptions struct {
	StoreID         *int64 `validate:"omitempty,gte=0"`
	EntityType      string `validate:"oneof=all product category"`
	CategoryID      *int64 `validate:"omitempty,gt=0,excluded_with=CategoriesRange ProductID ProductsRange"`
	ProductID       *int64 `validate:"omitempty,gt=0,excluded_with=ProductsRange CategoryID CategoriesRange"`
	CategoriesRange string `validate:"omitempty,id_range,excluded_with=CategoryID ProductID ProductsRange"`
	ProductsRange   string `validate:"omitempty,id_range,excluded_with=ProductID CategoryID CategoriesRange"`

	SaveOldURLs                  bool
	NoRegenURLKey                bool
	CheckUseCategoryInProductURL bool
	ShowProgress                 bool
	RunReindex                   bool
	RunCacheClean                bool
	RunCacheFlush                bool
	Purge                        bool
}

// DefaultOptions returns the options of a plain invocation without flags.
func DefaultOptions() RegenerationOptions {
	return RegenerationOptions{
		EntityType:                   ScopeAll,
		CheckUseCategoryInProductURL: true,
		ShowProgress:                 true,
		RunReindex:                   true,
		RunCacheClean:                true,
		RunCacheFlush:                true,
	}
}

// Validate rejects malformed or conflicting options.
func (o RegenerationOptions) Validate() error {
	if err := validator.Validate(o); err != nil {
		return apperrors.InvalidInput(err.Error())
	}
	if _, err := o.CategoryFilter(); err != nil {
		return apperrors.InvalidInputf("categories-range: %v", err)
	}
	if _, err := o.ProductFilter(); err != nil {
		return apperrors.InvalidInputf("products-range: %v", err)
	}
	if o.HasCategoryFilter() && o.EntityType == ScopeProduct {
		return apperrors.InvalidInput("category filters cannot be used with entity type product")
	}
	if o.HasProductFilter() && o.EntityType == ScopeCategory {
		return apperrors.InvalidInput("product filters cannot be used with entity type category")
	}
	if o.Purge && o.SaveOldURLs {
		return apperrors.InvalidInput("purge cannot be combined with save-old-urls")
	}
	if o.Purge && (o.HasCategoryFilter() || o.HasProductFilter()) {
		return apperrors.InvalidInput("purge removes whole stores and cannot be combined with id filters")
	}
	return nil
}

// HasCategoryFilter reports whether the run is restricted to some categories.
func (o RegenerationOptions) HasCategoryFilter() bool {
	return o.CategoryID != nil || o.CategoriesRange != ""
}

// HasProductFilter reports whether the run is restricted to some products.
func (o RegenerationOptions) HasProductFilter() bool {
	return o.ProductID != nil || o.ProductsRange != ""
}

// CategoryFilter returns the category selection of the run.
func (o RegenerationOptions) CategoryFilter() (IDFilter, error) {
	return buildFilter(o.CategoryID, o.CategoriesRange)
}

// ProductFilter returns the product selection of the run.
func (o RegenerationOptions) ProductFilter() (IDFilter, error) {
	return buildFilter(o.ProductID, o.ProductsRange)
}

func buildFilter(id *int64, idRange string) (IDFilter, error) {
	if id != nil {
		return IDs(*id), nil
	}
	if idRange != "" {
		return ParseIDRange(idRange)
	}
	return IDFilter{}, nil
}

// RegeneratesCategories reports whether the category driver runs.
func (o RegenerationOptions) RegeneratesCategories() bool {
	return (o.EntityType == ScopeAll || o.EntityType == ScopeCategory) && !o.HasProductFilter()
}

// RegeneratesProducts reports whether the product driver runs on its own.
func (o RegenerationOptions) RegeneratesProducts() bool {
	return (o.EntityType == ScopeAll || o.EntityType == ScopeProduct) && !o.HasCategoryFilter()
}
