package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "dominguesm/canarim-bert-nheengatu", cfg.Models.Nheengatu)
	assert.Equal(t, "relatorio_similaridade_cosseno.csv", cfg.Files.SimilarityCSV)
	assert.Equal(t, 0.5, cfg.Similarity.High)
	assert.Equal(t, 0.2, cfg.Similarity.Low)
	assert.Equal(t, 0.3, cfg.Similarity.Moderate)
	assert.Equal(t, 15.0, cfg.TSNE.Perplexity)
}

func TestLoadMissingDefaultFile(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load("other.yaml")
	require.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
models:
  portuguese: ./models/bertimbau
files:
  embeddings: out/embeddings.json
hub:
  offline: true
similarity:
  high: 0.6
tsne:
  iterations: 1000
compare_words: [ara, tata]
`), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "./models/bertimbau", cfg.Models.Portuguese)
	assert.Equal(t, "dominguesm/canarim-bert-nheengatu", cfg.Models.Nheengatu)
	assert.Equal(t, "out/embeddings.json", cfg.Files.Embeddings)
	assert.Equal(t, "dataset_nheengatu_expandido.json", cfg.Files.ExpandedJSON)
	assert.True(t, cfg.Hub.Offline)
	assert.Equal(t, "main", cfg.Hub.Revision)
	assert.Equal(t, 0.6, cfg.Similarity.High)
	assert.Equal(t, 0.2, cfg.Similarity.Low)
	assert.Equal(t, 1000, cfg.TSNE.Iterations)
	assert.Equal(t, 200.0, cfg.TSNE.LearningRate)
	assert.Equal(t, []string{"ara", "tata"}, cfg.CompareWords)
}

func TestLoadInvalid(t *testing.T) {
	dir := t.TempDir()
	for name, contents := range map[string]string{
		"syntax.yaml":     "models: [",
		"thresholds.yaml": "similarity:\n  low: 0.9\n",
		"tsne.yaml":       "tsne:\n  perplexity: 0\n",
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
		_, err := Load(path)
		assert.Error(t, err, name)
	}
}
