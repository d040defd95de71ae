package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringSliceNilValue(t *testing.T) {
	var s StringSlice
	v, err := s.Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)
}

func TestStringSliceScan(t *testing.T) {
	var s StringSlice
	require.NoError(t, s.Scan([]byte(`["speed","quality"]`)))
	assert.Equal(t, StringSlice{"speed", "quality"}, s)
	assert.True(t, s.Contains("quality"))
	assert.False(t, s.Contains("value"))

	require.NoError(t, s.Scan(nil))
	assert.Empty(t, s)

	assert.Error(t, s.Scan(42))
}
