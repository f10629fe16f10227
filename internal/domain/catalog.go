package domain

// Product visibility values.
const (
	VisibilityNotVisible = 1
	VisibilityInCatalog  = 2
	VisibilityInSearch   = 3
	VisibilityBoth       = 4
)

// Product status values.
const (
	ProductStatusEnabled  = 1
	ProductStatusDisabled = 2
)

// Category tree constants. The tree root has id 1 at level 0; store roots
// sit at level 1 and their direct children at level 2.
const (
	TreeRootID        = 1
	StoreRootLevel    = 1
	TopCategoryLevel  = 2
	DefaultStoreID    = 0
	CategoryPathDelim = "/"
)

// CatalogEntity is the view of a catalog node the regeneration needs.
type CatalogEntity interface {
	GetID() int64
	GetName() string
	GetURLKey() string
	SetURLKey(string)
	GetURLPath() string
	SetURLPath(string)
}

// Category is a node of the category tree, with store-scoped attributes
// already resolved.
type Category struct {
	ID       int64
	ParentID int64
	Path     string // materialized id path, e.g. "1/2/10/11"
	Level    int
	Position int
	Name     string
	URLKey   string
	URLPath  string
}

func (c *Category) GetID() int64         { return c.ID }
func (c *Category) GetName() string      { return c.Name }
func (c *Category) GetURLKey() string    { return c.URLKey }
func (c *Category) SetURLKey(key string) { c.URLKey = key }
func (c *Category) GetURLPath() string   { return c.URLPath }
func (c *Category) SetURLPath(p string)  { c.URLPath = p }

// Product is a sellable item with store-scoped attributes already resolved.
type Product struct {
	ID         int64
	SKU        string
	Name       string
	URLKey     string
	URLPath    string
	Visibility int
	Status     int
}

func (p *Product) GetID() int64         { return p.ID }
func (p *Product) GetName() string      { return p.Name }
func (p *Product) GetURLKey() string    { return p.URLKey }
func (p *Product) SetURLKey(key string) { p.URLKey = key }
func (p *Product) GetURLPath() string   { return p.URLPath }
func (p *Product) SetURLPath(v string)  { p.URLPath = v }

// IsVisibleIndividually reports whether the product has a page of its own.
func (p *Product) IsVisibleIndividually() bool {
	return p.Visibility != VisibilityNotVisible
}

// Store is a storefront view with its category root.
type Store struct {
	ID             int64
	Code           string
	RootCategoryID int64
}

var (
	_ CatalogEntity = (*Category)(nil)
	_ CatalogEntity = (*Product)(nil)
)
