// Package bert implements the forward pass of BERT-family encoders (BERT, RoBERTa, XLM-RoBERTa)
// on the CPU, to extract the last hidden state of a sequence of token ids.
//
// Weights are read from the repository safetensors files; the configuration from its config.json.
package bert

import (
	"slices"

	"github.com/nheengatu-lab/yrlkit/hub"
	"github.com/pkg/errors"
)

// Config holds the fields of a model's config.json used by the encoder.
type Config struct {
	ModelType             string   `json:"model_type"`
	Architectures         []string `json:"architectures"`
	VocabSize             int      `json:"vocab_size"`
	HiddenSize            int      `json:"hidden_size"`
	NumHiddenLayers       int      `json:"num_hidden_layers"`
	NumAttentionHeads     int      `json:"num_attention_heads"`
	IntermediateSize      int      `json:"intermediate_size"`
	HiddenAct             string   `json:"hidden_act"`
	LayerNormEps          float64  `json:"layer_norm_eps"`
	MaxPositionEmbeddings int      `json:"max_position_embeddings"`
	TypeVocabSize         int      `json:"type_vocab_size"`
	PadTokenID            int      `json:"pad_token_id"`
}

// robertaTypes use positions starting after the padding id.
var robertaTypes = []string{"roberta", "xlm-roberta", "camembert"}

// LoadConfig reads config.json from the repo and fills in the defaults.
func LoadConfig(repo *hub.Repo) (*Config, error) {
	cfg := &Config{}
	if err := repo.ReadJSON("config.json", cfg); err != nil {
		return nil, err
	}
	if err := cfg.setDefaults(); err != nil {
		return nil, errors.WithMessagef(err, "config.json of %s", repo)
	}
	return cfg, nil
}

func (c *Config) setDefaults() error {
	if c.LayerNormEps == 0 {
		c.LayerNormEps = 1e-12
	}
	if c.HiddenAct == "" {
		c.HiddenAct = "gelu"
	}
	if c.TypeVocabSize == 0 {
		c.TypeVocabSize = 2
	}
	switch {
	case c.HiddenSize <= 0 || c.NumHiddenLayers <= 0 || c.NumAttentionHeads <= 0:
		return errors.Errorf("invalid model dimensions: hidden_size=%d, num_hidden_layers=%d, num_attention_heads=%d",
			c.HiddenSize, c.NumHiddenLayers, c.NumAttentionHeads)
	case c.HiddenSize%c.NumAttentionHeads != 0:
		return errors.Errorf("hidden_size %d not divisible by num_attention_heads %d", c.HiddenSize, c.NumAttentionHeads)
	}
	if _, err := activation(c.HiddenAct); err != nil {
		return err
	}
	return nil
}

// IsRoberta returns whether the model follows the RoBERTa conventions.
func (c *Config) IsRoberta() bool {
	return slices.Contains(robertaTypes, c.ModelType)
}

// PositionOffset is the position id of the first token.
func (c *Config) PositionOffset() int {
	if c.IsRoberta() {
		return c.PadTokenID + 1
	}
	return 0
}

// MaxSequenceLength is the longest sequence of ids (special tokens included) the model accepts.
func (c *Config) MaxSequenceLength() int {
	return c.MaxPositionEmbeddings - c.PositionOffset()
}
