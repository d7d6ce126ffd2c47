package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	st, err := NewBoltStore(filepath.Join(t.TempDir(), "tasks.db"), "tasks")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestInsertAssignsID(t *testing.T) {
	st := newTestStore(t)

	doc := map[string]any{
		"cmd":      []string{"echo", "hello"},
		"priority": 100,
		"status":   "queued",
	}
	id, err := st.Insert("tasks", doc)
	assert.NoError(t, err)
	assert.Len(t, id, 32)
	assert.NoError(t, ValidateID(id))
	assert.Equal(t, id, doc["id"], "Insert should write the id back into the document")

	// Round trip through JSON: lists come back []any, numbers float64
	got, err := st.FindOne("tasks", Query{"id": id})
	assert.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got["id"])
	assert.Equal(t, []any{"echo", "hello"}, got["cmd"])
	assert.Equal(t, float64(100), got["priority"])
	assert.Equal(t, "queued", got["status"])
}

func TestInsertKeepsCallerID(t *testing.T) {
	st := newTestStore(t)

	id, err := st.Insert("tasks", map[string]any{
		"id":     "0123456789abcdef0123456789abcdef",
		"status": "queued",
	})
	assert.NoError(t, err)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", id)

	// Anything that is not a valid id is replaced
	id, err = st.Insert("tasks", map[string]any{"id": "", "status": "queued"})
	assert.NoError(t, err)
	assert.NoError(t, ValidateID(id))
}

func TestFindOneMissing(t *testing.T) {
	st := newTestStore(t)

	got, err := st.FindOne("tasks", Query{"status": "finished"})
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestFindFilters(t *testing.T) {
	st := newTestStore(t)

	for _, status := range []string{"queued", "queued", "finished"} {
		_, err := st.Insert("tasks", map[string]any{"status": status})
		require.NoError(t, err)
	}

	queued, err := st.Find("tasks", Query{"status": "queued"})
	assert.NoError(t, err)
	assert.Len(t, queued, 2)

	active, err := st.Find("tasks", Query{
		"status": map[string]any{"$in": []string{"queued", "processing"}},
	})
	assert.NoError(t, err)
	assert.Len(t, active, 2)

	all, err := st.Find("tasks", Query{})
	assert.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestQueryOperators(t *testing.T) {
	doc := map[string]any{
		"status":   "queued",
		"priority": float64(50),
		"user":     "external_default",
	}

	tests := []struct {
		name  string
		query Query
		want  bool
	}{
		{"equality match", Query{"status": "queued"}, true},
		{"equality miss", Query{"status": "finished"}, false},
		{"missing field", Query{"absent": "x"}, false},
		{"eq", Query{"priority": map[string]any{"$eq": 50}}, true},
		{"ne match", Query{"status": map[string]any{"$ne": "finished"}}, true},
		{"ne miss", Query{"status": map[string]any{"$ne": "queued"}}, false},
		{"ne on missing field", Query{"absent": map[string]any{"$ne": "x"}}, true},
		{"in match", Query{"status": map[string]any{"$in": []string{"queued", "fetched"}}}, true},
		{"in miss", Query{"status": map[string]any{"$in": []string{"finished"}}}, false},
		{"gt", Query{"priority": map[string]any{"$gt": 10}}, true},
		{"gt boundary", Query{"priority": map[string]any{"$gt": 50}}, false},
		{"gte boundary", Query{"priority": map[string]any{"$gte": 50}}, true},
		{"lt", Query{"priority": map[string]any{"$lt": 100}}, true},
		{"lte boundary", Query{"priority": map[string]any{"$lte": 50}}, true},
		{"numeric compare on string", Query{"status": map[string]any{"$gt": 10}}, false},
		{"unknown operator", Query{"priority": map[string]any{"$near": 50}}, false},
		{"combined clauses", Query{"status": "queued", "priority": map[string]any{"$lte": 50}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.query.Matches(doc))
		})
	}
}

func TestNextPicksSmallest(t *testing.T) {
	st := newTestStore(t)

	for _, p := range []int{100, 10, 50} {
		_, err := st.Insert("tasks", map[string]any{"status": "queued", "priority": p})
		require.NoError(t, err)
	}
	// A smaller priority outside the queried states must not win
	_, err := st.Insert("tasks", map[string]any{"status": "fetched", "priority": 1})
	require.NoError(t, err)

	got, err := st.Next("tasks", Query{
		"status": map[string]any{"$in": []string{"queued"}},
	}, "priority")
	assert.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, float64(10), got["priority"])
}

func TestNextEmpty(t *testing.T) {
	st := newTestStore(t)

	got, err := st.Next("tasks", Query{"status": "queued"}, "priority")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestNextStableOnTies(t *testing.T) {
	st := newTestStore(t)

	for i := 0; i < 2; i++ {
		_, err := st.Insert("tasks", map[string]any{"status": "queued", "priority": 100})
		require.NoError(t, err)
	}

	first, err := st.Next("tasks", Query{"status": "queued"}, "priority")
	assert.NoError(t, err)
	require.NotNil(t, first)

	second, err := st.Next("tasks", Query{"status": "queued"}, "priority")
	assert.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first["id"], second["id"], "Ties should resolve the same way every time")
}

func TestUpdateOneMerges(t *testing.T) {
	st := newTestStore(t)

	id, err := st.Insert("tasks", map[string]any{
		"cmd":    []string{"sleep", "5"},
		"status": "queued",
	})
	require.NoError(t, err)

	err = st.UpdateOne("tasks", id, map[string]any{"status": "fetched", "pid": 4242})
	assert.NoError(t, err)

	got, err := st.FindOne("tasks", Query{"id": id})
	assert.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "fetched", got["status"])
	assert.Equal(t, float64(4242), got["pid"])
	assert.Equal(t, []any{"sleep", "5"}, got["cmd"], "Untouched fields should survive the merge")
	assert.Equal(t, id, got["id"])
}

func TestUpdateOneMissing(t *testing.T) {
	st := newTestStore(t)

	err := st.UpdateOne("tasks", "0123456789abcdef0123456789abcdef", map[string]any{"status": "fetched"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestUpdateOneInvalidID(t *testing.T) {
	st := newTestStore(t)

	err := st.UpdateOne("tasks", "not-an-id", map[string]any{"status": "fetched"})
	assert.Error(t, err)
	assert.True(t, IsUserFault(err))
}

func TestRemove(t *testing.T) {
	st := newTestStore(t)

	for _, status := range []string{"finished", "finished", "queued"} {
		_, err := st.Insert("tasks", map[string]any{"status": status})
		require.NoError(t, err)
	}

	n, err := st.Remove("tasks", Query{"status": "finished"})
	assert.NoError(t, err)
	assert.Equal(t, 2, n)

	left, err := st.Find("tasks", Query{})
	assert.NoError(t, err)
	assert.Len(t, left, 1)

	n, err = st.Remove("tasks", Query{"status": "finished"})
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestValidateID(t *testing.T) {
	assert.NoError(t, ValidateID("0123456789abcdef0123456789abcdef"))

	for _, bad := range []string{"", "short", "zz23456789abcdef0123456789abcdef"} {
		err := ValidateID(bad)
		assert.Error(t, err)
		assert.True(t, IsUserFault(err))
		assert.False(t, IsApplicationFault(err))
	}
}

func TestSanitizeIDs(t *testing.T) {
	// Bare invalid id is a user fault
	q := Query{"id": "nope"}
	err := q.SanitizeIDs()
	assert.Error(t, err)
	assert.True(t, IsUserFault(err))

	// Invalid entries inside $in are dropped silently
	q = Query{"id": map[string]any{"$in": []any{
		"0123456789abcdef0123456789abcdef", "nope", 42,
	}}}
	assert.NoError(t, q.SanitizeIDs())
	ops := q["id"].(map[string]any)
	assert.Equal(t, []any{"0123456789abcdef0123456789abcdef"}, ops["$in"])

	// Queries without an id clause pass through
	q = Query{"status": "queued"}
	assert.NoError(t, q.SanitizeIDs())
}

func TestInsertUnserializable(t *testing.T) {
	st := newTestStore(t)

	_, err := st.Insert("tasks", map[string]any{"bad": make(chan int)})
	assert.Error(t, err)
	assert.True(t, IsApplicationFault(err))
}

func TestReopenKeepsDocuments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.db")

	st, err := NewBoltStore(path, "tasks")
	require.NoError(t, err)
	id, err := st.Insert("tasks", map[string]any{"status": "queued"})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = NewBoltStore(path, "tasks")
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	got, err := st.FindOne("tasks", Query{"id": id})
	assert.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "queued", got["status"])
}
