package order

import (
	"testing"

	"github.com/giaosudau/sqlflow-go/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func indexOf(order []string, id string) int {
	for i, v := range order {
		if v == id {
			return i
		}
	}
	return -1
}

func TestResolveLinearOrder(t *testing.T) {
	ids := []string{"a", "b", "c"}
	edges := map[string][]string{
		"b": {"a"},
		"c": {"b"},
	}
	result, err := Resolve(ids, edges, nil)
	require.NoError(t, err)
	require.Len(t, result, 3)
	assert.Less(t, indexOf(result, "a"), indexOf(result, "b"))
	assert.Less(t, indexOf(result, "b"), indexOf(result, "c"))
}

func TestResolveDetectsCycle(t *testing.T) {
	ids := []string{"a", "b"}
	edges := map[string][]string{
		"a": {"b"},
		"b": {"a"},
	}
	_, err := Resolve(ids, edges, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrCircularDependency)
}

func TestResolveIndependentNodesBothPresent(t *testing.T) {
	ids := []string{"a", "b", "c"}
	edges := map[string][]string{
		"c": {"a", "b"},
	}
	result, err := Resolve(ids, edges, nil)
	require.NoError(t, err)
	require.Len(t, result, 3)
	assert.Less(t, indexOf(result, "a"), indexOf(result, "c"))
	assert.Less(t, indexOf(result, "b"), indexOf(result, "c"))
}
