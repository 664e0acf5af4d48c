package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorValue(t *testing.T) {
	t.Run("serializes to pgvector literal", func(t *testing.T) {
		v := Vector{0.5, -1, 0.25}
		val, err := v.Value()
		require.NoError(t, err)
		assert.Equal(t, "[0.5,-1,0.25]", val)
	})

	t.Run("nil vector serializes to NULL", func(t *testing.T) {
		var v Vector
		val, err := v.Value()
		require.NoError(t, err)
		assert.Nil(t, val)
	})
}

func TestVectorScan(t *testing.T) {
	t.Run("round-trips through the literal form", func(t *testing.T) {
		orig := Vector{0.125, -0.5, 3}
		lit, err := orig.Value()
		require.NoError(t, err)

		var scanned Vector
		require.NoError(t, scanned.Scan(lit))
		assert.Equal(t, orig, scanned)
	})

	t.Run("scans byte slices", func(t *testing.T) {
		var v Vector
		require.NoError(t, v.Scan([]byte("[1, 2, 3]")))
		assert.Equal(t, Vector{1, 2, 3}, v)
	})

	t.Run("scans empty vector", func(t *testing.T) {
		var v Vector
		require.NoError(t, v.Scan("[]"))
		assert.Len(t, v, 0)
	})

	t.Run("rejects malformed literals", func(t *testing.T) {
		var v Vector
		assert.Error(t, v.Scan("1,2,3"))
		assert.Error(t, v.Scan("[1,x,3]"))
		assert.Error(t, v.Scan(42))
	})

	t.Run("nil source clears the vector", func(t *testing.T) {
		v := Vector{1}
		require.NoError(t, v.Scan(nil))
		assert.Nil(t, v)
	})
}
