package bert

import (
	"context"
	"encoding/json"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/nheengatu-lab/yrlkit/hub"
	"github.com/nheengatu-lab/yrlkit/models/safetensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tinyModel struct {
	cfg     Config
	prefix  string
	legacy  bool
	weights map[string]*safetensors.Float32Tensor
}

func newTinyModel(cfg Config, prefix string, legacy bool) *tinyModel {
	m := &tinyModel{cfg: cfg, prefix: prefix, legacy: legacy, weights: make(map[string]*safetensors.Float32Tensor)}
	rng := rand.New(rand.NewPCG(42, 7))
	add := func(name string, shape ...int) {
		n := 1
		for _, d := range shape {
			n *= d
		}
		data := make([]float32, n)
		for i := range data {
			data[i] = float32(rng.NormFloat64() * 0.5)
		}
		m.weights[name] = &safetensors.Float32Tensor{Name: prefix + name, Shape: shape, Data: data}
	}
	norm := func(name string, size int) {
		if legacy {
			add(name+".gamma", size)
			add(name+".beta", size)
		} else {
			add(name+".weight", size)
			add(name+".bias", size)
		}
	}
	h, inter := cfg.HiddenSize, cfg.IntermediateSize
	add("embeddings.word_embeddings.weight", cfg.VocabSize, h)
	add("embeddings.position_embeddings.weight", cfg.MaxPositionEmbeddings, h)
	add("embeddings.token_type_embeddings.weight", cfg.TypeVocabSize, h)
	norm("embeddings.LayerNorm", h)
	for i := 0; i < cfg.NumHiddenLayers; i++ {
		p := "encoder.layer." + strconv.Itoa(i) + "."
		for _, name := range []string{"attention.self.query", "attention.self.key", "attention.self.value", "attention.output.dense"} {
			add(p+name+".weight", h, h)
			add(p+name+".bias", h)
		}
		norm(p+"attention.output.LayerNorm", h)
		add(p+"intermediate.dense.weight", inter, h)
		add(p+"intermediate.dense.bias", inter)
		add(p+"output.dense.weight", h, inter)
		add(p+"output.dense.bias", h)
		norm(p+"output.LayerNorm", h)
	}
	return m
}

func (m *tinyModel) writeRepo(t *testing.T) *hub.Repo {
	dir := t.TempDir()
	var all []*safetensors.Float32Tensor
	for _, w := range m.weights {
		all = append(all, w)
	}
	// The pooler is ignored by the encoder but counted as a parameter.
	all = append(all, &safetensors.Float32Tensor{Name: m.prefix + "pooler.dense.bias", Shape: []int{m.cfg.HiddenSize}, Data: make([]float32, m.cfg.HiddenSize)})
	require.NoError(t, safetensors.WriteFloat32(filepath.Join(dir, "model.safetensors"), all, nil))
	cfgJSON, err := json.Marshal(m.cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), cfgJSON, 0o644))
	return hub.New(dir)
}

func (m *tinyModel) w(name string) []float32 {
	return m.weights[name].Data
}

func (m *tinyModel) norm(name string) (gamma, beta []float32) {
	if m.legacy {
		return m.w(name + ".gamma"), m.w(name + ".beta")
	}
	return m.w(name + ".weight"), m.w(name + ".bias")
}

// reference is a straightforward float64 implementation of the forward pass.
func (m *tinyModel) reference(ids []int) [][]float64 {
	cfg := m.cfg
	h := cfg.HiddenSize
	offset := 0
	if m.cfg.ModelType == "xlm-roberta" || m.cfg.ModelType == "roberta" {
		offset = cfg.PadTokenID + 1
	}
	layerNorm := func(x []float64, name string) []float64 {
		gamma, beta := m.norm(name)
		var mean, variance float64
		for _, v := range x {
			mean += v
		}
		mean /= float64(len(x))
		for _, v := range x {
			variance += (v - mean) * (v - mean)
		}
		variance /= float64(len(x))
		out := make([]float64, len(x))
		for i, v := range x {
			out[i] = (v-mean)/math.Sqrt(variance+cfg.LayerNormEps)*float64(gamma[i]) + float64(beta[i])
		}
		return out
	}
	dense := func(x []float64, name string, out int) []float64 {
		w, b := m.w(name+".weight"), m.w(name+".bias")
		y := make([]float64, out)
		for o := 0; o < out; o++ {
			sum := float64(b[o])
			for i, v := range x {
				sum += v * float64(w[o*len(x)+i])
			}
			y[o] = sum
		}
		return y
	}

	x := make([][]float64, len(ids))
	word, pos, typ := m.w("embeddings.word_embeddings.weight"), m.w("embeddings.position_embeddings.weight"), m.w("embeddings.token_type_embeddings.weight")
	for i, id := range ids {
		row := make([]float64, h)
		for j := range row {
			row[j] = float64(word[id*h+j]) + float64(pos[(offset+i)*h+j]) + float64(typ[j])
		}
		x[i] = layerNorm(row, "embeddings.LayerNorm")
	}

	heads := cfg.NumAttentionHeads
	dh := h / heads
	for l := 0; l < cfg.NumHiddenLayers; l++ {
		p := "encoder.layer." + strconv.Itoa(l) + "."
		q, k, v := make([][]float64, len(x)), make([][]float64, len(x)), make([][]float64, len(x))
		for i := range x {
			q[i] = dense(x[i], p+"attention.self.query", h)
			k[i] = dense(x[i], p+"attention.self.key", h)
			v[i] = dense(x[i], p+"attention.self.value", h)
		}
		next := make([][]float64, len(x))
		for i := range x {
			ctxRow := make([]float64, h)
			for hd := 0; hd < heads; hd++ {
				scores := make([]float64, len(x))
				maxScore := math.Inf(-1)
				for j := range x {
					for d := 0; d < dh; d++ {
						scores[j] += q[i][hd*dh+d] * k[j][hd*dh+d]
					}
					scores[j] /= math.Sqrt(float64(dh))
					maxScore = math.Max(maxScore, scores[j])
				}
				var sum float64
				for j := range scores {
					scores[j] = math.Exp(scores[j] - maxScore)
					sum += scores[j]
				}
				for j := range scores {
					for d := 0; d < dh; d++ {
						ctxRow[hd*dh+d] += scores[j] / sum * v[j][hd*dh+d]
					}
				}
			}
			attn := dense(ctxRow, p+"attention.output.dense", h)
			for j := range attn {
				attn[j] += x[i][j]
			}
			attn = layerNorm(attn, p+"attention.output.LayerNorm")
			inter := dense(attn, p+"intermediate.dense", cfg.IntermediateSize)
			for j, val := range inter {
				inter[j] = 0.5 * val * (1 + math.Erf(val/math.Sqrt2))
			}
			out := dense(inter, p+"output.dense", h)
			for j := range out {
				out[j] += attn[j]
			}
			next[i] = layerNorm(out, p+"output.LayerNorm")
		}
		x = next
	}
	return x
}

func tinyConfig(modelType string) Config {
	cfg := Config{
		ModelType:             modelType,
		Architectures:         []string{"BertForMaskedLM"},
		VocabSize:             11,
		HiddenSize:            8,
		NumHiddenLayers:       2,
		NumAttentionHeads:     2,
		IntermediateSize:      12,
		HiddenAct:             "gelu",
		LayerNormEps:          1e-12,
		MaxPositionEmbeddings: 10,
		TypeVocabSize:         2,
	}
	if modelType == "xlm-roberta" {
		cfg.Architectures = []string{"XLMRobertaForMaskedLM"}
		cfg.LayerNormEps = 1e-5
		cfg.PadTokenID = 1
		cfg.TypeVocabSize = 1
	}
	return cfg
}

func assertMatchesReference(t *testing.T, m *tinyModel, enc *Encoder, ids []int) {
	hidden, err := enc.Forward(context.Background(), ids)
	require.NoError(t, err)
	require.Equal(t, len(ids), hidden.Rows)
	require.Equal(t, m.cfg.HiddenSize, hidden.Cols)
	want := m.reference(ids)
	for i := range want {
		row := hidden.Row(i)
		for j := range want[i] {
			assert.InDelta(t, want[i][j], row[j], 1e-4, "token %d, dim %d", i, j)
		}
	}
}

func TestForwardBert(t *testing.T) {
	m := newTinyModel(tinyConfig("bert"), "bert.", false)
	enc, err := Load(m.writeRepo(t))
	require.NoError(t, err)
	assertMatchesReference(t, m, enc, []int{2, 5, 7, 3})
	assertMatchesReference(t, m, enc, []int{4})

	// Longest accepted sequence.
	assertMatchesReference(t, m, enc, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	_, err = enc.Forward(context.Background(), make([]int, 11))
	require.Error(t, err)
}

func TestForwardRobertaLegacyNames(t *testing.T) {
	m := newTinyModel(tinyConfig("xlm-roberta"), "", true)
	enc, err := Load(m.writeRepo(t))
	require.NoError(t, err)
	assert.Equal(t, 2, enc.Config.PositionOffset())
	assert.Equal(t, 8, enc.Config.MaxSequenceLength())
	assertMatchesReference(t, m, enc, []int{0, 6, 9, 2})

	_, err = enc.Forward(context.Background(), make([]int, 9))
	require.Error(t, err)
}

func TestForwardErrors(t *testing.T) {
	m := newTinyModel(tinyConfig("bert"), "", false)
	enc, err := Load(m.writeRepo(t))
	require.NoError(t, err)

	_, err = enc.Forward(context.Background(), nil)
	require.Error(t, err)
	_, err = enc.Forward(context.Background(), []int{0, 11})
	require.ErrorContains(t, err, "out of the vocabulary")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = enc.Forward(ctx, []int{1, 2})
	require.ErrorIs(t, err, context.Canceled)
}

func TestDescribe(t *testing.T) {
	cfg := tinyConfig("bert")
	m := newTinyModel(cfg, "", false)
	repo := m.writeRepo(t)
	enc, err := Load(repo)
	require.NoError(t, err)

	var want int64 = int64(cfg.HiddenSize) // pooler bias
	for _, w := range m.weights {
		want += int64(len(w.Data))
	}
	d := enc.Describe()
	assert.Equal(t, "bert", d.ModelType)
	assert.Equal(t, "BertForMaskedLM", d.ArchitecturesString())
	assert.Equal(t, 11, d.VocabSize)
	assert.Equal(t, 8, d.HiddenSize)
	assert.Equal(t, 2, d.Layers)
	assert.Equal(t, 10, d.MaxPositions)
	assert.Equal(t, want, d.Parameters)
	assert.Equal(t, repo.ID, d.Name)
}

func TestConfigValidation(t *testing.T) {
	for _, tc := range []struct {
		name string
		cfg  Config
	}{
		{"no layers", Config{HiddenSize: 8, NumAttentionHeads: 2}},
		{"heads do not divide", Config{HiddenSize: 8, NumHiddenLayers: 1, NumAttentionHeads: 3}},
		{"unknown activation", Config{HiddenSize: 8, NumHiddenLayers: 1, NumAttentionHeads: 2, HiddenAct: "swish"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.Error(t, tc.cfg.setDefaults())
		})
	}

	cfg := Config{HiddenSize: 8, NumHiddenLayers: 1, NumAttentionHeads: 2}
	require.NoError(t, cfg.setDefaults())
	assert.Equal(t, "gelu", cfg.HiddenAct)
	assert.Equal(t, 1e-12, cfg.LayerNormEps)
	assert.False(t, cfg.IsRoberta())
}

func TestActivations(t *testing.T) {
	gelu, err := activation("gelu")
	require.NoError(t, err)
	assert.InDelta(t, 0.8413, gelu(1), 1e-4)
	approx, err := activation("gelu_new")
	require.NoError(t, err)
	assert.InDelta(t, 0.8412, approx(1), 1e-3)
	relu, err := activation("relu")
	require.NoError(t, err)
	assert.Equal(t, float32(0), relu(-2))
}

func TestNotABertModel(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, safetensors.WriteFloat32(filepath.Join(dir, "model.safetensors"),
		[]*safetensors.Float32Tensor{{Name: "lm_head.weight", Shape: []int{1}, Data: []float32{1}}}, nil))
	cfgJSON, _ := json.Marshal(tinyConfig("bert"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), cfgJSON, 0o644))
	_, err := Load(hub.New(dir))
	require.ErrorContains(t, err, "not a BERT-family model")
}
