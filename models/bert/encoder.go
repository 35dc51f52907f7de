package bert

import (
	"context"
	"math"
	"strconv"

	"github.com/nheengatu-lab/yrlkit/hub"
	"github.com/nheengatu-lab/yrlkit/models/safetensors"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"k8s.io/klog/v2"
)

// Encoder holds the weights of a BERT-family encoder.
type Encoder struct {
	Config *Config

	// Name of the repository the weights were loaded from.
	Name string

	// NumParameters is the total number of values in the weight files.
	NumParameters int64

	wordEmb, posEmb, typeEmb *safetensors.Float32Tensor
	embNorm                  layerNorm
	layers                   []layer
	act                      func(float32) float32
}

type linear struct {
	weight  blas32.General // [out, in]
	bias    []float32
	in, out int
}

type layerNorm struct {
	gamma, beta []float32
}

type layer struct {
	query, key, value, attnOutput linear
	attnNorm                      layerNorm
	intermediate, output          linear
	outputNorm                    layerNorm
}

// weightPrefixes are tried in order: base models have no prefix, task models (e.g. BertForMaskedLM)
// prefix the encoder with the model type.
var weightPrefixes = []string{"", "bert.", "roberta.", "xlm-roberta.", "camembert."}

// Load reads config.json and the safetensors weights of the repo.
func Load(repo *hub.Repo) (*Encoder, error) {
	cfg, err := LoadConfig(repo)
	if err != nil {
		return nil, err
	}
	weights, err := safetensors.New(repo)
	if err != nil {
		return nil, errors.WithMessagef(err, "loading weights of %s", repo)
	}
	e, err := newEncoder(cfg, weights)
	if err != nil {
		return nil, errors.WithMessagef(err, "model %s", repo)
	}
	e.Name = repo.ID
	klog.V(1).Infof("loaded %s encoder %s: %d layers, hidden size %d", cfg.ModelType, repo, cfg.NumHiddenLayers, cfg.HiddenSize)
	return e, nil
}

// weightReader reads tensors with the model prefix, checking shapes.
type weightReader struct {
	model  *safetensors.Model
	prefix string
}

func (r *weightReader) read(name string, shape ...int) (*safetensors.Float32Tensor, error) {
	t, err := r.model.ReadFloat32(r.prefix + name)
	if err != nil {
		return nil, err
	}
	if len(t.Shape) != len(shape) {
		return nil, errors.Errorf("weight %s has shape %v, expected %v", t.Name, t.Shape, shape)
	}
	for i, d := range shape {
		if t.Shape[i] != d {
			return nil, errors.Errorf("weight %s has shape %v, expected %v", t.Name, t.Shape, shape)
		}
	}
	return t, nil
}

func (r *weightReader) linear(name string, out, in int) (linear, error) {
	w, err := r.read(name+".weight", out, in)
	if err != nil {
		return linear{}, err
	}
	b, err := r.read(name+".bias", out)
	if err != nil {
		return linear{}, err
	}
	return linear{
		weight: blas32.General{Rows: out, Cols: in, Stride: in, Data: w.Data},
		bias:   b.Data,
		in:     in,
		out:    out,
	}, nil
}

// layerNorm reads "<name>.weight/bias", or the legacy "<name>.gamma/beta".
func (r *weightReader) layerNorm(name string, size int) (layerNorm, error) {
	gammaName, betaName := name+".weight", name+".bias"
	if !r.model.HasTensor(r.prefix+gammaName) && r.model.HasTensor(r.prefix+name+".gamma") {
		gammaName, betaName = name+".gamma", name+".beta"
	}
	gamma, err := r.read(gammaName, size)
	if err != nil {
		return layerNorm{}, err
	}
	beta, err := r.read(betaName, size)
	if err != nil {
		return layerNorm{}, err
	}
	return layerNorm{gamma: gamma.Data, beta: beta.Data}, nil
}

func newEncoder(cfg *Config, weights *safetensors.Model) (*Encoder, error) {
	r := &weightReader{model: weights}
	found := false
	for _, prefix := range weightPrefixes {
		if weights.HasTensor(prefix + "embeddings.word_embeddings.weight") {
			r.prefix, found = prefix, true
			break
		}
	}
	if !found {
		return nil, errors.New("embeddings.word_embeddings.weight not found, not a BERT-family model")
	}

	act, err := activation(cfg.HiddenAct)
	if err != nil {
		return nil, err
	}
	h, inter := cfg.HiddenSize, cfg.IntermediateSize
	e := &Encoder{Config: cfg, act: act}
	if e.wordEmb, err = r.read("embeddings.word_embeddings.weight", cfg.VocabSize, h); err != nil {
		return nil, err
	}
	if e.posEmb, err = r.read("embeddings.position_embeddings.weight", cfg.MaxPositionEmbeddings, h); err != nil {
		return nil, err
	}
	if e.typeEmb, err = r.read("embeddings.token_type_embeddings.weight", cfg.TypeVocabSize, h); err != nil {
		return nil, err
	}
	if e.embNorm, err = r.layerNorm("embeddings.LayerNorm", h); err != nil {
		return nil, err
	}

	e.layers = make([]layer, cfg.NumHiddenLayers)
	for i := range e.layers {
		l := &e.layers[i]
		p := "encoder.layer." + strconv.Itoa(i) + "."
		steps := []struct {
			target  *linear
			name    string
			out, in int
		}{
			{&l.query, p + "attention.self.query", h, h},
			{&l.key, p + "attention.self.key", h, h},
			{&l.value, p + "attention.self.value", h, h},
			{&l.attnOutput, p + "attention.output.dense", h, h},
			{&l.intermediate, p + "intermediate.dense", inter, h},
			{&l.output, p + "output.dense", h, inter},
		}
		for _, s := range steps {
			if *s.target, err = r.linear(s.name, s.out, s.in); err != nil {
				return nil, err
			}
		}
		if l.attnNorm, err = r.layerNorm(p+"attention.output.LayerNorm", h); err != nil {
			return nil, err
		}
		if l.outputNorm, err = r.layerNorm(p+"output.LayerNorm", h); err != nil {
			return nil, err
		}
	}

	for _, name := range weights.ListTensorNames() {
		if meta, err := weights.GetTensorMetadata(name); err == nil {
			e.NumParameters += int64(meta.NumElements())
		}
	}
	return e, nil
}

// Hidden is a [Rows, Cols] row-major matrix: one row of hidden state per token.
type Hidden struct {
	Rows, Cols int
	Data       []float32
}

func newHidden(rows, cols int) *Hidden {
	return &Hidden{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
}

// Row returns the hidden state of the i-th token. It shares the underlying data.
func (h *Hidden) Row(i int) []float32 {
	return h.Data[i*h.Cols : (i+1)*h.Cols]
}

func (h *Hidden) general() blas32.General {
	return blas32.General{Rows: h.Rows, Cols: h.Cols, Stride: h.Cols, Data: h.Data}
}

// HiddenSize returns the size of the embeddings produced by Forward.
func (e *Encoder) HiddenSize() int {
	return e.Config.HiddenSize
}

// Forward runs the encoder on a single sequence of token ids (special tokens included) and returns
// the last hidden state, [len(ids), hidden_size]. All tokens attend to each other.
func (e *Encoder) Forward(ctx context.Context, ids []int) (*Hidden, error) {
	cfg := e.Config
	n, h := len(ids), cfg.HiddenSize
	if n == 0 {
		return nil, errors.New("empty sequence")
	}
	if n > cfg.MaxSequenceLength() {
		return nil, errors.Errorf("sequence of %d tokens is longer than the model maximum of %d", n, cfg.MaxSequenceLength())
	}

	// Embeddings: word + position + token type 0.
	x := newHidden(n, h)
	offset := cfg.PositionOffset()
	typeRow := e.typeEmb.Data[:h]
	for i, id := range ids {
		if id < 0 || id >= cfg.VocabSize {
			return nil, errors.Errorf("token id %d out of the vocabulary range [0, %d)", id, cfg.VocabSize)
		}
		word := e.wordEmb.Data[id*h : (id+1)*h]
		pos := e.posEmb.Data[(offset+i)*h : (offset+i+1)*h]
		row := x.Row(i)
		for j := range row {
			row[j] = word[j] + pos[j] + typeRow[j]
		}
	}
	e.embNorm.apply(x, cfg.LayerNormEps)

	for i := range e.layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		x = e.layers[i].forward(x, cfg, e.act)
	}
	return x, nil
}

func (l *layer) forward(x *Hidden, cfg *Config, act func(float32) float32) *Hidden {
	n, h := x.Rows, x.Cols
	heads := cfg.NumAttentionHeads
	dh := h / heads
	scale := float32(1 / math.Sqrt(float64(dh)))

	q := l.query.apply(x)
	k := l.key.apply(x)
	v := l.value.apply(x)

	attnContext := newHidden(n, h)
	scores := newHidden(n, n)
	for hd := 0; hd < heads; hd++ {
		off := hd * dh
		qh := blas32.General{Rows: n, Cols: dh, Stride: h, Data: q.Data[off:]}
		kh := blas32.General{Rows: n, Cols: dh, Stride: h, Data: k.Data[off:]}
		vh := blas32.General{Rows: n, Cols: dh, Stride: h, Data: v.Data[off:]}
		ch := blas32.General{Rows: n, Cols: dh, Stride: h, Data: attnContext.Data[off:]}

		// scores = Q·Kᵀ / sqrt(dh), softmax over keys, context = scores·V
		blas32.Gemm(blas.NoTrans, blas.Trans, scale, qh, kh, 0, scores.general())
		for i := 0; i < n; i++ {
			softmax(scores.Row(i))
		}
		blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, scores.general(), vh, 0, ch)
	}

	attn := l.attnOutput.apply(attnContext)
	addInPlace(attn, x)
	l.attnNorm.apply(attn, cfg.LayerNormEps)

	inter := l.intermediate.apply(attn)
	for i, val := range inter.Data {
		inter.Data[i] = act(val)
	}
	out := l.output.apply(inter)
	addInPlace(out, attn)
	l.outputNorm.apply(out, cfg.LayerNormEps)
	return out
}

// apply returns x·Wᵀ + b.
func (l *linear) apply(x *Hidden) *Hidden {
	y := newHidden(x.Rows, l.out)
	blas32.Gemm(blas.NoTrans, blas.Trans, 1, x.general(), l.weight, 0, y.general())
	for i := 0; i < y.Rows; i++ {
		row := y.Row(i)
		for j, b := range l.bias {
			row[j] += b
		}
	}
	return y
}

func (ln *layerNorm) apply(x *Hidden, eps float64) {
	for i := 0; i < x.Rows; i++ {
		row := x.Row(i)
		var mean, variance float64
		for _, v := range row {
			mean += float64(v)
		}
		mean /= float64(len(row))
		for _, v := range row {
			d := float64(v) - mean
			variance += d * d
		}
		variance /= float64(len(row))
		inv := 1 / math.Sqrt(variance+eps)
		for j, v := range row {
			row[j] = float32((float64(v)-mean)*inv)*ln.gamma[j] + ln.beta[j]
		}
	}
}

func addInPlace(dst, src *Hidden) {
	for i, v := range src.Data {
		dst.Data[i] += v
	}
}

func softmax(row []float32) {
	maxVal := float32(math.Inf(-1))
	for _, v := range row {
		maxVal = max(maxVal, v)
	}
	var sum float64
	for i, v := range row {
		e := math.Exp(float64(v - maxVal))
		row[i] = float32(e)
		sum += e
	}
	for i := range row {
		row[i] = float32(float64(row[i]) / sum)
	}
}

func activation(name string) (func(float32) float32, error) {
	switch name {
	case "gelu":
		return func(x float32) float32 {
			return float32(0.5 * float64(x) * (1 + math.Erf(float64(x)/math.Sqrt2)))
		}, nil
	case "gelu_new", "gelu_pytorch_tanh", "gelu_fast":
		return func(x float32) float32 {
			xf := float64(x)
			return float32(0.5 * xf * (1 + math.Tanh(math.Sqrt(2/math.Pi)*(xf+0.044715*xf*xf*xf))))
		}, nil
	case "relu":
		return func(x float32) float32 { return max(x, 0) }, nil
	}
	return nil, errors.Errorf("hidden_act %q not supported", name)
}
