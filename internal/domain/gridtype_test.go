package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGridType(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want GridType
	}{
		{"GRIDSPEC", GridTypeGRIDSPEC},
		{"gridspec", GridTypeGRIDSPEC},
		{" ugrid ", GridTypeUGRID},
		{"SCRIP", GridTypeSCRIP},
	} {
		got, err := ParseGridType(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseGridType("ESMFMESH")
	assert.Error(t, err)
	_, err = ParseGridType("")
	assert.Error(t, err)
}

func TestGridTypeUnstructured(t *testing.T) {
	assert.False(t, GridTypeGRIDSPEC.Unstructured())
	assert.True(t, GridTypeUGRID.Unstructured())
	assert.True(t, GridTypeSCRIP.Unstructured())
}

func TestParseRegridMethod(t *testing.T) {
	m, err := ParseRegridMethod("conserve")
	require.NoError(t, err)
	assert.Equal(t, MethodConserve, m)

	m, err = ParseRegridMethod("BILINEAR")
	require.NoError(t, err)
	assert.Equal(t, MethodBilinear, m)

	_, err = ParseRegridMethod("PATCH")
	assert.Error(t, err)
}

func TestWeightTripletsAppend(t *testing.T) {
	w := &WeightTriplets{}
	w.Append(1, 2, 0.25)
	w.Append(1, 3, 0.75)
	assert.Equal(t, 2, w.Len())
	assert.Equal(t, []int32{1, 1}, w.Row)
	assert.Equal(t, []int32{2, 3}, w.Col)
	assert.Equal(t, []float64{0.25, 0.75}, w.S)
}
