package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Entity types that receive rewrites.
const (
	EntityTypeCategory = "category"
	EntityTypeProduct  = "product"
)

// Redirect types. An active rewrite has no redirect; history rows answer with
// a permanent redirect to the entity's current path.
const (
	RedirectNone      = 0
	RedirectPermanent = 301
)

// RewriteMetadata is the structured payload stored alongside a rewrite.
type RewriteMetadata struct {
	CategoryID int64
}

type rewriteMetadataJSON struct {
	CategoryID string `json:"category_id,omitempty"`
}

// MarshalJSON encodes the category id as a string, the format the storefront
// reads.
func (m RewriteMetadata) MarshalJSON() ([]byte, error) {
	var raw rewriteMetadataJSON
	if m.CategoryID > 0 {
		raw.CategoryID = strconv.FormatInt(m.CategoryID, 10)
	}
	return json.Marshal(raw)
}

// UnmarshalJSON accepts the category id as a string or a number. Values that
// are not numeric leave CategoryID at zero.
func (m *RewriteMetadata) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.CategoryID = 0
	switch v := raw["category_id"].(type) {
	case string:
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
			m.CategoryID = id
		}
	case float64:
		if v > 0 && v == float64(int64(v)) {
			m.CategoryID = int64(v)
		}
	}
	return nil
}

// IsZero reports whether the metadata carries nothing worth storing.
func (m RewriteMetadata) IsZero() bool {
	return m.CategoryID == 0
}

// URLRewrite maps a public request path to a catalog entity.
type URLRewrite struct {
	ID              int64           `json:"url_rewrite_id"`
	EntityType      string          `json:"entity_type"`
	EntityID        int64           `json:"entity_id"`
	StoreID         int64           `json:"store_id"`
	RequestPath     string          `json:"request_path"`
	TargetPath      string          `json:"target_path"`
	RedirectType    int             `json:"redirect_type"`
	Metadata        RewriteMetadata `json:"metadata"`
	IsAutogenerated bool            `json:"is_autogenerated"`
}

// Owner returns the (entity_type, entity_id, store_id) triple of the rewrite.
func (r URLRewrite) Owner() RewriteOwner {
	return RewriteOwner{EntityType: r.EntityType, EntityID: r.EntityID, StoreID: r.StoreID}
}

// RewriteOwner identifies the entity in one store whose rewrites are replaced
// together.
type RewriteOwner struct {
	EntityType string
	EntityID   int64
	StoreID    int64
}

func (o RewriteOwner) String() string {
	return fmt.Sprintf("%s %d (store %d)", o.EntityType, o.EntityID, o.StoreID)
}

// ProductCategoryLink ties a product rewrite to the category whose path it
// embeds.
type ProductCategoryLink struct {
	URLRewriteID int64
	CategoryID   int64
	ProductID    int64
}
