package sandbox

import (
	"math"
	"testing"

	"github.com/Layr-Labs/entity-client/pkg/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, s *Store, rows ...map[string]any) {
	t.Helper()
	for _, r := range rows {
		_, err := s.Submit("product", r)
		require.NoError(t, err)
	}
}

func TestStore_SubmitInsertAndUpdate(t *testing.T) {
	s := NewStore()

	seq, err := s.Submit("product", map[string]any{"name": "mouse", "price": 45000.0})
	require.NoError(t, err)
	assert.EqualValues(t, 1, seq)

	seq, err = s.Submit("product", map[string]any{"seq": 1.0, "price": 40000.0})
	require.NoError(t, err)
	assert.EqualValues(t, 1, seq)

	row, err := s.Get("product", 1)
	require.NoError(t, err)
	assert.Equal(t, "mouse", row["name"], "update merges into the existing row")
	assert.Equal(t, 40000.0, row["price"])
	assert.EqualValues(t, 1, row["seq"])

	_, err = s.Submit("product", map[string]any{"seq": 99.0})
	assert.ErrorIs(t, err, ErrRowNotFound)

	_, err = s.Submit("product", map[string]any{"seq": "abc"})
	assert.Error(t, err)
}

func TestStore_SeqsArePerEntity(t *testing.T) {
	s := NewStore()
	a, _ := s.Submit("product", map[string]any{})
	b, _ := s.Submit("order", map[string]any{})
	c, _ := s.Submit("product", map[string]any{})
	assert.EqualValues(t, 1, a)
	assert.EqualValues(t, 1, b)
	assert.EqualValues(t, 2, c)
}

func TestStore_QueryFiltersAndPaging(t *testing.T) {
	s := NewStore()
	seed(t, s,
		map[string]any{"name": "Mouse", "price": 45000.0, "status": "active"},
		map[string]any{"name": "keyboard", "price": 89000.0, "status": "active"},
		map[string]any{"name": "mouse pad", "price": 9000.0, "status": "retired"},
		map[string]any{"name": "monitor", "price": 320000.0},
	)

	cases := []struct {
		name    string
		filters []entity.Filter
		want    []string
	}{
		{"no filters", nil, []string{"Mouse", "keyboard", "mouse pad", "monitor"}},
		{"eq", []entity.Filter{{Field: "status", Op: "eq", Value: "active"}}, []string{"Mouse", "keyboard"}},
		{"ne includes missing field", []entity.Filter{{Field: "status", Op: "ne", Value: "active"}}, []string{"mouse pad", "monitor"}},
		{"gte", []entity.Filter{{Field: "price", Op: "gte", Value: 89000.0}}, []string{"keyboard", "monitor"}},
		{"like is case-insensitive", []entity.Filter{{Field: "name", Op: "like", Value: "%mouse%"}}, []string{"Mouse", "mouse pad"}},
		{"in", []entity.Filter{{Field: "price", Op: "in", Value: []any{9000.0, 45000.0}}}, []string{"Mouse", "mouse pad"}},
		{"combined", []entity.Filter{
			{Field: "status", Op: "eq", Value: "active"},
			{Field: "price", Op: "lt", Value: 50000.0},
		}, []string{"Mouse"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rows, total, err := s.Query("product", tc.filters, Page{Page: 1, Limit: 20})
			require.NoError(t, err)
			assert.Equal(t, len(tc.want), total)
			var names []string
			for _, r := range rows {
				names = append(names, r["name"].(string))
			}
			assert.Equal(t, tc.want, names)
		})
	}

	rows, total, err := s.Query("product", nil, Page{Page: 2, Limit: 3, OrderBy: "-price"})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	require.Len(t, rows, 1)
	assert.Equal(t, "mouse pad", rows[0]["name"])

	rows, _, err = s.Query("product", nil, Page{Page: 9, Limit: 3})
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, _, err = s.Query("product", []entity.Filter{{Field: "name", Op: "regex"}}, Page{})
	assert.ErrorIs(t, err, ErrBadFilter)
	_, _, err = s.Query("product", []entity.Filter{{Op: "eq"}}, Page{})
	assert.ErrorIs(t, err, ErrBadFilter)
}

func TestStore_DeleteSoftAndHard(t *testing.T) {
	s := NewStore()
	seed(t, s, map[string]any{"name": "a"}, map[string]any{"name": "b"})

	require.NoError(t, s.Delete("product", 1, false))
	_, err := s.Get("product", 1)
	assert.ErrorIs(t, err, ErrRowNotFound)
	assert.Equal(t, 1, s.Count("product"))
	assert.ErrorIs(t, s.Delete("product", 1, false), ErrRowNotFound)

	// A soft-deleted row can still be purged.
	require.NoError(t, s.Delete("product", 1, true))
	require.NoError(t, s.Delete("product", 2, true))
	assert.Equal(t, 0, s.Count("product"))
	assert.ErrorIs(t, s.Delete("product", 2, true), ErrRowNotFound)
}

func TestStore_HistoryAndRollback(t *testing.T) {
	s := NewStore()
	seed(t, s, map[string]any{"name": "mouse", "price": 45000.0})
	_, err := s.Submit("product", map[string]any{"seq": 1.0, "price": 1.0})
	require.NoError(t, err)

	entries, total := s.History("product", 1, 1, 50)
	require.Equal(t, 2, total)
	assert.Equal(t, actionUpdate, entries[0].Action)
	assert.Equal(t, actionInsert, entries[1].Action)
	assert.Nil(t, entries[1].Before)

	seq, err := s.Rollback("product", entries[0].HistorySeq)
	require.NoError(t, err)
	assert.EqualValues(t, 1, seq)
	row, _ := s.Get("product", 1)
	assert.Equal(t, 45000.0, row["price"])

	// Rolling back the insert removes the row.
	_, err = s.Rollback("product", entries[1].HistorySeq)
	require.NoError(t, err)
	_, err = s.Get("product", 1)
	assert.ErrorIs(t, err, ErrRowNotFound)

	entries, total = s.History("product", 1, 1, 1)
	assert.Equal(t, 4, total)
	assert.Len(t, entries, 1)
	assert.Equal(t, actionRollback, entries[0].Action)

	_, err = s.Rollback("product", 999)
	assert.ErrorIs(t, err, ErrHistoryNotFound)
	_, err = s.Rollback("order", 1)
	assert.ErrorIs(t, err, ErrHistoryNotFound, "history seq must belong to the entity")
}

func TestStore_RollbackRestoresDeletedRow(t *testing.T) {
	s := NewStore()
	seed(t, s, map[string]any{"name": "mouse"})
	require.NoError(t, s.Delete("product", 1, true))

	entries, _ := s.History("product", 1, 1, 1)
	require.Equal(t, actionDelete, entries[0].Action)

	_, err := s.Rollback("product", entries[0].HistorySeq)
	require.NoError(t, err)
	row, err := s.Get("product", 1)
	require.NoError(t, err)
	assert.Equal(t, "mouse", row["name"])
}

func TestStore_ApplyResolvesPlaceholders(t *testing.T) {
	s := NewStore()
	seed(t, s, map[string]any{"name": "existing"})

	results, err := s.Apply([]queuedOp{
		{Kind: opSubmit, Entity: "product", Data: map[string]any{"name": "new"}},
		{Kind: opSubmit, Entity: "order", Data: map[string]any{"product_seq": "$tx.0", "note": "$tx.9"}},
		{Kind: opDelete, Entity: "product", Seq: 1},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, OpResult{Op: opSubmit, Entity: "product", Seq: 2}, results[0])
	assert.Equal(t, OpResult{Op: opDelete, Entity: "product", Seq: 1}, results[2])

	order, err := s.Get("order", results[1].Seq)
	require.NoError(t, err)
	assert.EqualValues(t, 2, order["product_seq"])
	assert.Equal(t, "$tx.9", order["note"], "out of range placeholders are left alone")
}

func TestStore_ApplyIsAtomic(t *testing.T) {
	s := NewStore()
	seed(t, s, map[string]any{"name": "keep"})
	_, historyBefore := s.History("product", 1, 1, 50)

	_, err := s.Apply([]queuedOp{
		{Kind: opSubmit, Entity: "product", Data: map[string]any{"name": "new"}},
		{Kind: opDelete, Entity: "product", Seq: 42},
	})
	require.ErrorIs(t, err, ErrRowNotFound)

	assert.Equal(t, 1, s.Count("product"))
	_, historyAfter := s.History("product", 1, 1, 50)
	assert.Equal(t, historyBefore, historyAfter)

	// The seq counter was restored as well.
	seq, err := s.Submit("product", map[string]any{"name": "next"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, seq)
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3}
	assert.Equal(t, []int{1, 2}, paginate(items, 1, 2))
	assert.Equal(t, []int{3}, paginate(items, 2, 2))
	assert.Empty(t, paginate(items, 3, 2))
	assert.Equal(t, items, paginate(items, 1, 0))

	assert.NotPanics(t, func() {
		assert.Empty(t, paginate(items, math.MaxInt64/10, 20))
		assert.Empty(t, paginate(items, math.MaxInt, math.MaxInt))
	})
}
