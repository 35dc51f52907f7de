package api

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigUnmarshal(t *testing.T) {
	content := []byte(`{
		"tokenizer_class": "BertTokenizer",
		"do_lower_case": false,
		"model_max_length": 1000000000000000019884624838656,
		"cls_token": "[CLS]",
		"mask_token": {"content": "<mask>", "lstrip": true},
		"bos_token": null
	}`)
	var cfg Config
	require.NoError(t, json.Unmarshal(content, &cfg))
	assert.Equal(t, "BertTokenizer", cfg.TokenizerClass)
	assert.False(t, cfg.LowerCase(true))
	assert.Equal(t, int64(0), cfg.ModelMaxLength)
	assert.Equal(t, TokenContent("[CLS]"), cfg.ClsToken)
	assert.Equal(t, TokenContent("<mask>"), cfg.MaskToken)
	assert.Equal(t, TokenContent(""), cfg.BosToken)

	require.NoError(t, json.Unmarshal([]byte(`{"model_max_length": 512}`), &cfg))
	assert.Equal(t, int64(512), cfg.ModelMaxLength)

	var nilCfg *Config
	assert.True(t, nilCfg.LowerCase(true))
}

func TestSpecialTokenString(t *testing.T) {
	assert.Equal(t, "unknown", TokUnknown.String())
	assert.Equal(t, "classification", TokClassification.String())
	assert.Equal(t, "SpecialToken(42)", SpecialToken(42).String())
	assert.True(t, TokenSpan{Start: 3, End: 3}.Empty())
}
