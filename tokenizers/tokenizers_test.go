package tokenizers

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/nheengatu-lab/yrlkit/hub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRepo(t *testing.T, files map[string]string) *hub.Repo {
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return hub.New(dir)
}

const vocabTxt = "[PAD]\n[UNK]\n[CLS]\n[SEP]\n[MASK]\ntata\nara\nyau\n##ara\n##te\n"

func TestNewFromVocab(t *testing.T) {
	repo := writeRepo(t, map[string]string{
		"vocab.txt":             vocabTxt,
		"tokenizer_config.json": `{"do_lower_case": true, "unk_token": "[UNK]"}`,
	})
	tok, err := New(repo)
	require.NoError(t, err)
	assert.Equal(t, "hftokenizer", tok.Implementation)
	assert.Equal(t, 10, tok.VocabSize())

	enc := tok.Tokenize("Tata yauaraté")
	assert.Equal(t, []int{5, 7, 8, 9}, enc.IDs)
	assert.Equal(t, []string{"tata", "yau", "##ara", "##te"}, enc.Tokens)
	assert.False(t, enc.HasUnknown())

	enc = tok.TokenizeForModel("ara paranã")
	assert.Equal(t, []int{2, 6, 1, 3}, enc.IDs)
	assert.Equal(t, []string{"[CLS]", "ara", "[UNK]", "[SEP]"}, enc.Tokens)
	assert.Equal(t, 1, enc.UnknownCount)
	assert.True(t, enc.HasUnknown())
}

func TestNewPrefersTokenizerJSON(t *testing.T) {
	repo := writeRepo(t, map[string]string{
		"vocab.txt": vocabTxt,
		"tokenizer.json": `{
			"added_tokens": [{"id": 0, "content": "<unk>", "special": true}],
			"pre_tokenizer": {"type": "WhitespaceSplit"},
			"model": {"type": "WordPiece", "unk_token": "<unk>", "vocab": {"<unk>": 0, "ara": 1}}
		}`,
	})
	tok, err := New(repo)
	require.NoError(t, err)
	enc := tok.Tokenize("ara kuema")
	assert.Equal(t, []int{1, 0}, enc.IDs)
	assert.Equal(t, 1, enc.UnknownCount)
}

func TestNewWithoutTokenizerFiles(t *testing.T) {
	repo := writeRepo(t, map[string]string{"config.json": `{}`})
	_, err := New(repo)
	require.Error(t, err)
}

func TestNewUnauthorizedRepo(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	repo := hub.New("org/gated").WithEndpoint(srv.URL).WithCacheDir(t.TempDir())
	_, err := New(repo)
	require.Error(t, err)
	assert.ErrorContains(t, err, "401")
	assert.NotContains(t, err.Error(), "no tokenizer files")
	assert.Equal(t, int32(1), requests.Load())
}
