package roadnet

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNew_RejectsOutOfRangeEdge(t *testing.T) {
	_, err := New(2, []Edge{{U: 0, V: 2}}, nil, nil)
	assert.ErrorIs(t, err, ErrNodeOutOfRange)
}

func TestNew_RejectsFeatureRowMismatch(t *testing.T) {
	x := mat.NewDense(3, 1, []float64{1, 2, 3})
	_, err := New(2, []Edge{{U: 0, V: 1}}, x, nil)
	assert.ErrorIs(t, err, ErrFeatureRows)
}

func TestSnapshot_Neighbors(t *testing.T) {
	s, err := New(3, []Edge{{U: 0, V: 1}, {U: 1, V: 2}}, nil, nil)
	require.NoError(t, err)

	assert.ElementsMatch(t, []int{1}, s.Neighbors(0))
	assert.ElementsMatch(t, []int{0, 2}, s.Neighbors(1))
	assert.ElementsMatch(t, []int{1}, s.Neighbors(2))
	assert.Nil(t, s.NodeFeatures())
	assert.Equal(t, 0, s.FeatureDim())
}

func TestSnapshot_WithNodeFeatures_SetsWhenAbsent(t *testing.T) {
	base, err := New(2, []Edge{{U: 0, V: 1}}, nil, nil)
	require.NoError(t, err)

	f := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	working, err := base.WithNodeFeatures(f)
	require.NoError(t, err)

	assert.Equal(t, 2, working.FeatureDim())
	assert.True(t, mat.Equal(f, working.NodeFeatures()))
	assert.Nil(t, base.NodeFeatures(), "base snapshot must not change")

	// The working copy owns its matrix
	f.Set(0, 0, 100)
	assert.Equal(t, 1.0, working.NodeFeatures().At(0, 0))
}

func TestSnapshot_WithNodeFeatures_AppendsColumns(t *testing.T) {
	x := mat.NewDense(2, 1, []float64{7, 8})
	base, err := New(2, []Edge{{U: 0, V: 1}}, x, nil)
	require.NoError(t, err)

	working, err := base.WithNodeFeatures(mat.NewDense(2, 2, []float64{1, 2, 3, 4}))
	require.NoError(t, err)

	want := mat.NewDense(2, 3, []float64{7, 1, 2, 8, 3, 4})
	assert.True(t, mat.Equal(want, working.NodeFeatures()))
	assert.Equal(t, 1, base.FeatureDim())

	// A second augmentation starts again from the untouched base
	again, err := base.WithNodeFeatures(mat.NewDense(2, 1, []float64{5, 6}))
	require.NoError(t, err)
	assert.Equal(t, 2, again.FeatureDim())
}

func TestSnapshot_WithNodeFeatures_RowMismatch(t *testing.T) {
	base, err := New(2, []Edge{{U: 0, V: 1}}, nil, nil)
	require.NoError(t, err)

	_, err = base.WithNodeFeatures(mat.NewDense(3, 1, nil))
	assert.ErrorIs(t, err, ErrFeatureRows)
}

func TestSnapshot_EdgeAttr(t *testing.T) {
	attr := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	s, err := New(3, []Edge{{U: 0, V: 1}, {U: 1, V: 2}}, nil, attr)
	require.NoError(t, err)

	dst := make([]float64, 2)
	require.True(t, s.EdgeAttr(Edge{U: 1, V: 2}, dst))
	assert.Equal(t, []float64{3, 4}, dst)

	require.True(t, s.EdgeAttr(Edge{U: 1, V: 0}, dst), "reverse orientation resolves")
	assert.Equal(t, []float64{1, 2}, dst)

	assert.False(t, s.EdgeAttr(Edge{U: 0, V: 2}, dst))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, EdgesFile), "# u v lanes speed\n0 1 2 50\n1 2 1 30\n\n2 3 4 90\n")
	writeFile(t, filepath.Join(dir, NodeFeaturesFile), "1\n2\n3\n4\n5\n")

	s, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 5, s.NumNodes(), "node features may describe isolated nodes")
	assert.Equal(t, 3, s.NumEdges())
	assert.Equal(t, 2, s.EdgeAttrDim())
	assert.Equal(t, 1, s.FeatureDim())
}

func TestLoad_WithoutNodeFeatures(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, EdgesFile), "0 1\n1 2\n")

	s, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 3, s.NumNodes())
	assert.False(t, s.HasEdgeAttr())
	assert.Nil(t, s.NodeFeatures())
}

func TestReadEdgeList_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"single column", "0\n"},
		{"bad node", "a 1\n"},
		{"negative node", "-1 1\n"},
		{"ragged attributes", "0 1 2\n1 2\n"},
		{"bad attribute", "0 1 x\n"},
		{"empty", "# nothing\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), EdgesFile)
			writeFile(t, path, tt.content)

			_, _, err := ReadEdgeList(path)
			assert.Error(t, err)
		})
	}
}

func TestReadMatrix_MissingFile(t *testing.T) {
	_, err := ReadMatrix(filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestReadMatrix_Ragged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.txt")
	writeFile(t, path, "1 2\n3\n")

	_, err := ReadMatrix(path)
	assert.Error(t, err)
}
