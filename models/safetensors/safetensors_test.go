package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/nheengatu-lab/yrlkit/hub"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTensors() []*Float32Tensor {
	return []*Float32Tensor{
		{Name: "embeddings.word_embeddings.weight", Shape: []int{3, 2}, Data: []float32{1, 2, 3, 4, 5, 6}},
		{Name: "embeddings.LayerNorm.bias", Shape: []int{2}, Data: []float32{0.5, -0.5}},
	}
}

func writeTestRepo(t *testing.T) *hub.Repo {
	dir := t.TempDir()
	require.NoError(t, WriteFloat32(filepath.Join(dir, "model.safetensors"), testTensors(), map[string]string{"format": "pt"}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{}`), 0o644))
	return hub.New(dir)
}

func TestLoadSingleFileModel(t *testing.T) {
	m, err := New(writeTestRepo(t))
	require.NoError(t, err)
	assert.Equal(t, "model.safetensors", m.IndexFile)
	assert.Equal(t, []string{"embeddings.LayerNorm.bias", "embeddings.word_embeddings.weight"}, m.ListTensorNames())
	assert.True(t, m.HasTensor("embeddings.LayerNorm.bias"))
	assert.False(t, m.HasTensor("pooler.dense.weight"))

	meta, err := m.GetTensorMetadata("embeddings.word_embeddings.weight")
	require.NoError(t, err)
	assert.Equal(t, "F32", meta.Dtype)
	assert.Equal(t, []int{3, 2}, meta.Shape)
	assert.Equal(t, 6, meta.NumElements())

	var files []string
	for info, err := range m.IterSafetensors() {
		require.NoError(t, err)
		files = append(files, info.Filename)
		assert.Equal(t, "pt", info.Header.Metadata["format"])
	}
	assert.Equal(t, []string{"model.safetensors"}, files)
}

func TestReadFloat32(t *testing.T) {
	m, err := New(writeTestRepo(t))
	require.NoError(t, err)

	w, err := m.ReadFloat32("embeddings.word_embeddings.weight")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, w.Shape)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, w.Data)

	_, err = m.ReadFloat32("missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTensorNotFound))
}

func TestGetTensorAndIterTensors(t *testing.T) {
	m, err := New(writeTestRepo(t))
	require.NoError(t, err)

	tn, err := m.GetTensor("embeddings.word_embeddings.weight")
	require.NoError(t, err)
	wantShape := shapes.Make(dtypes.Float32, 3, 2)
	assert.True(t, tn.Tensor.Shape().Equal(wantShape), "got shape %s", tn.Tensor.Shape())

	var names []string
	for tensorAndName, err := range m.IterTensors() {
		require.NoError(t, err)
		names = append(names, tensorAndName.Name)
		assert.Greater(t, tensorAndName.Tensor.Shape().Size(), 0)
	}
	// File order follows name order, as written by WriteFloat32.
	assert.Equal(t, []string{"embeddings.LayerNorm.bias", "embeddings.word_embeddings.weight"}, names)
}

// writeRaw writes a safetensors file with a single tensor of arbitrary dtype.
func writeRaw(t *testing.T, path, dtype string, shape []int, data []byte) {
	header, err := json.Marshal(map[string]any{
		"x": map[string]any{"dtype": dtype, "shape": shape, "data_offsets": []int{0, len(data)}},
	})
	require.NoError(t, err)
	var size [8]byte
	binary.LittleEndian.PutUint64(size[:], uint64(len(header)))
	content := append(append(size[:], header...), data...)
	require.NoError(t, os.WriteFile(path, content, 0o644))
}

func TestReadHalfPrecision(t *testing.T) {
	dir := t.TempDir()

	// BF16: 1.0 = 0x3F80, -2.0 = 0xC000.
	bf16Path := filepath.Join(dir, "bf16.safetensors")
	writeRaw(t, bf16Path, "BF16", []int{2}, []byte{0x80, 0x3F, 0x00, 0xC0})
	r, err := OpenMMapReader(bf16Path)
	require.NoError(t, err)
	got, err := r.ReadFloat32("x")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, -2}, got.Data)
	require.NoError(t, r.Close())

	// F16: 1.0 = 0x3C00, 0.5 = 0x3800, -65504 = 0xFBFF.
	f16Path := filepath.Join(dir, "f16.safetensors")
	writeRaw(t, f16Path, "F16", []int{3}, []byte{0x00, 0x3C, 0x00, 0x38, 0xFF, 0xFB})
	r, err = OpenMMapReader(f16Path)
	require.NoError(t, err)
	got, err = r.ReadFloat32("x")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0.5, -65504}, got.Data)
	require.NoError(t, r.Close())

	// Integers are not converted.
	i64Path := filepath.Join(dir, "i64.safetensors")
	writeRaw(t, i64Path, "I64", []int{1}, make([]byte, 8))
	r, err = OpenMMapReader(i64Path)
	require.NoError(t, err)
	_, err = r.ReadFloat32("x")
	assert.Error(t, err)
	require.NoError(t, r.Close())
}

func TestFloat16Subnormal(t *testing.T) {
	// Smallest positive subnormal half is 2^-24; 0x8000 is negative zero.
	path := filepath.Join(t.TempDir(), "f16.safetensors")
	writeRaw(t, path, "F16", []int{2}, []byte{0x01, 0x00, 0x00, 0x80})
	r, err := OpenMMapReader(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, r.Close()) }()
	got, err := r.ReadFloat32("x")
	require.NoError(t, err)
	assert.Equal(t, float32(5.9604645e-08), got.Data[0])
	assert.Equal(t, float32(0), got.Data[1])
}

func TestDtypeToGoMLX(t *testing.T) {
	for name, want := range map[string]dtypes.DType{
		"F32":  dtypes.Float32,
		"F64":  dtypes.Float64,
		"F16":  dtypes.Float16,
		"BF16": dtypes.BFloat16,
		"I64":  dtypes.Int64,
		"BOOL": dtypes.Bool,
	} {
		got, err := dtypeToGoMLX(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := dtypeToGoMLX("F8_E9M9")
	require.Error(t, err)
}

func TestReadFloat32MatchesReadTensor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.safetensors")
	require.NoError(t, WriteFloat32(path, testTensors(), nil))
	r, err := OpenMMapReader(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, r.Close()) }()

	name := "embeddings.word_embeddings.weight"
	asFloat32, err := r.ReadFloat32(name)
	require.NoError(t, err)
	asTensor, err := r.ReadTensor(name)
	require.NoError(t, err)
	assert.Equal(t, asFloat32.Shape, asTensor.Shape().Dimensions)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, asFloat32.Data)
	assert.Equal(t, [][]float32{{1, 2}, {3, 4}, {5, 6}}, asTensor.Value())
}

func TestLoadShardedModel(t *testing.T) {
	dir := t.TempDir()
	tensors := testTensors()
	require.NoError(t, WriteFloat32(filepath.Join(dir, "model-00001-of-00002.safetensors"), tensors[:1], nil))
	require.NoError(t, WriteFloat32(filepath.Join(dir, "model-00002-of-00002.safetensors"), tensors[1:], nil))
	index := `{"metadata": {"total_size": 32}, "weight_map": {
		"embeddings.word_embeddings.weight": "model-00001-of-00002.safetensors",
		"embeddings.LayerNorm.bias": "model-00002-of-00002.safetensors"}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.safetensors.index.json"), []byte(index), 0o644))

	m := NewEmpty(hub.New(dir))
	indexFile, isSharded, err := m.DetectShardedModel()
	require.NoError(t, err)
	assert.True(t, isSharded)
	assert.Equal(t, "model.safetensors.index.json", indexFile)
	require.NoError(t, m.Load())

	bias, err := m.ReadFloat32("embeddings.LayerNorm.bias")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -0.5}, bias.Data)

	count := 0
	for info, err := range m.IterSafetensors() {
		require.NoError(t, err)
		assert.Len(t, info.Header.Tensors, 1)
		count++
	}
	assert.Equal(t, 2, count)
}

func TestNoSafetensors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pytorch_model.bin"), []byte("x"), 0o644))
	_, err := New(hub.New(dir))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoSafetensors))
}
