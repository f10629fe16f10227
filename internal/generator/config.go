package generator

import (
	"context"
	"strconv"
	"strings"
	"sync"
)

// Store configuration paths read by the generators.
const (
	ConfigCategoryURLSuffix    = "catalog/seo/category_url_suffix"
	ConfigProductURLSuffix     = "catalog/seo/product_url_suffix"
	ConfigProductUseCategories = "catalog/seo/product_use_categories"
)

// DefaultURLSuffix applies when a store configures no suffix.
const DefaultURLSuffix = ".html"

// ConfigReader returns a store-scoped configuration value.
type ConfigReader interface {
	ConfigValue(ctx context.Context, path string, storeID int64) (value string, ok bool, err error)
}

type suffixKey struct {
	path    string
	storeID int64
}

// suffixes memoizes url suffixes per store for the lifetime of a run.
type suffixes struct {
	config ConfigReader

	mu     sync.Mutex
	values map[suffixKey]string
}

func newSuffixes(config ConfigReader) *suffixes {
	return &suffixes{config: config, values: make(map[suffixKey]string)}
}

func (s *suffixes) get(ctx context.Context, path string, storeID int64) (string, error) {
	key := suffixKey{path: path, storeID: storeID}

	s.mu.Lock()
	v, ok := s.values[key]
	s.mu.Unlock()
	if ok {
		return v, nil
	}

	v, err := Suffix(ctx, s.config, path, storeID)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.values[key] = v
	s.mu.Unlock()
	return v, nil
}

// Suffix reads a url suffix. An unset suffix is DefaultURLSuffix, an empty
// one means no suffix. A suffix without a leading dot gets one.
func Suffix(ctx context.Context, config ConfigReader, path string, storeID int64) (string, error) {
	value, ok, err := config.ConfigValue(ctx, path, storeID)
	if err != nil {
		return "", err
	}
	if !ok {
		return DefaultURLSuffix, nil
	}
	value = strings.TrimSpace(value)
	if value == "" || strings.HasPrefix(value, ".") {
		return value, nil
	}
	return "." + value, nil
}

// Flag reads a yes/no configuration value. Unset means false.
func Flag(ctx context.Context, config ConfigReader, path string, storeID int64) (bool, error) {
	value, ok, err := config.ConfigValue(ctx, path, storeID)
	if err != nil || !ok {
		return false, err
	}
	on, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, nil
	}
	return on, nil
}
