package bert

import "strings"

// Description summarizes a loaded encoder, for the model inspection report.
type Description struct {
	Name          string
	ModelType     string
	Architectures []string
	VocabSize     int
	HiddenSize    int
	Layers        int
	Heads         int
	MaxPositions  int
	Parameters    int64
}

// Describe returns the architecture summary of the encoder.
func (e *Encoder) Describe() Description {
	cfg := e.Config
	return Description{
		Name:          e.Name,
		ModelType:     cfg.ModelType,
		Architectures: cfg.Architectures,
		VocabSize:     cfg.VocabSize,
		HiddenSize:    cfg.HiddenSize,
		Layers:        cfg.NumHiddenLayers,
		Heads:         cfg.NumAttentionHeads,
		MaxPositions:  cfg.MaxSequenceLength(),
		Parameters:    e.NumParameters,
	}
}

// ArchitecturesString joins the architectures, or returns "-" when config.json lists none.
func (d Description) ArchitecturesString() string {
	if len(d.Architectures) == 0 {
		return "-"
	}
	return strings.Join(d.Architectures, ", ")
}
