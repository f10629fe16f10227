package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testStruct struct {
	Name  string `validate:"required"`
	Scope string `validate:"oneof=all product category"`
	Page  int    `validate:"gte=1,lte=1000"`
}

type filterStruct struct {
	ID    *int64 `validate:"omitempty,gt=0,excluded_with=Range"`
	Range string `validate:"omitempty,id_range,excluded_with=ID"`
}

func int64Ptr(n int64) *int64 { return &n }

func TestValidate_Success(t *testing.T) {
	s := testStruct{Name: "run", Scope: "all", Page: 10}
	assert.NoError(t, Validate(s))
}

func TestValidate_MissingRequired(t *testing.T) {
	s := testStruct{Scope: "all", Page: 10}
	err := Validate(s)
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	fields := valErr.Fields()
	assert.Contains(t, fields, "Name")
	assert.Equal(t, "is required", fields["Name"])
}

func TestValidate_OneOf(t *testing.T) {
	s := testStruct{Name: "run", Scope: "cms", Page: 10}
	err := Validate(s)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "must be one of: all product category", valErr.Fields()["Scope"])
}

func TestValidate_OutOfRange(t *testing.T) {
	s := testStruct{Name: "run", Scope: "all", Page: 2000}
	err := Validate(s)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, valErr.Fields()["Page"], "1000")
}

func TestValidate_IDRange(t *testing.T) {
	assert.NoError(t, Validate(filterStruct{Range: "101-152"}))
	assert.NoError(t, Validate(filterStruct{Range: " 1 - 2 "}))

	err := Validate(filterStruct{Range: "abc"})
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "must be a range of ids like 101-152", valErr.Fields()["Range"])
}

func TestValidate_ExcludedWith(t *testing.T) {
	assert.NoError(t, Validate(filterStruct{ID: int64Ptr(5)}))

	err := Validate(filterStruct{ID: int64Ptr(5), Range: "1-3"})
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	fields := valErr.Fields()
	assert.Equal(t, "cannot be combined with: Range", fields["ID"])
	assert.Equal(t, "cannot be combined with: ID", fields["Range"])
}

func TestValidate_NonPositiveID(t *testing.T) {
	err := Validate(filterStruct{ID: int64Ptr(0)})
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "must be greater than 0", valErr.Fields()["ID"])
}
