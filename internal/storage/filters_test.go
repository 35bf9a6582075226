package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageNormalize(t *testing.T) {
	assert.Equal(t, Page{Page: 1, PageSize: 25}, Page{}.Normalize())
	assert.Equal(t, Page{Page: 1, PageSize: 25}, Page{Page: -3, PageSize: 0}.Normalize())
	assert.Equal(t, Page{Page: 2, PageSize: 100}, Page{Page: 2, PageSize: 500}.Normalize())
	assert.Equal(t, Page{Page: 4, PageSize: 10}, Page{Page: 4, PageSize: 10}.Normalize())
}

func TestPageLimitOffset(t *testing.T) {
	limit, offset := Page{Page: 3, PageSize: 10}.LimitOffset()
	assert.Equal(t, 10, limit)
	assert.Equal(t, 20, offset)

	limit, offset = Page{}.LimitOffset()
	assert.Equal(t, 25, limit)
	assert.Equal(t, 0, offset)
}

func TestBuildWhere(t *testing.T) {
	columns := map[string]string{
		"tenant_id":    "tenant_id",
		"due_date":     "due_date",
		"completed_at": "completed_at",
	}

	clause, args, err := buildWhere(Filters{}.
		Where("tenant_id", OpEq, "t1").
		Where("due_date", OpLte, "2025-06-15").
		Where("completed_at", OpNull, nil), columns)
	require.NoError(t, err)
	assert.Equal(t, " WHERE tenant_id = $1 AND due_date <= $2 AND completed_at IS NULL", clause)
	assert.Equal(t, []interface{}{"t1", "2025-06-15"}, args)
}

func TestBuildWhereRejectsUnknownField(t *testing.T) {
	columns := map[string]string{"tenant_id": "tenant_id"}

	_, _, err := buildWhere(Filters{}.Where("password_hash", OpEq, "x"), columns)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidData)

	_, _, err = buildWhere(Filters{}.Where("tenant_id", Op("like"), "x"), columns)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestBuildWhereEmptyFilters(t *testing.T) {
	clause, args, err := buildWhere(nil, map[string]string{})
	require.NoError(t, err)
	assert.Empty(t, clause)
	assert.Nil(t, args)
}
