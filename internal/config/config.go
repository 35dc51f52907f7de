// Package config holds the file names, model ids and thresholds of the research pipeline, with
// defaults that can be overridden by a YAML file.
package config

import (
	"os"

	"github.com/nheengatu-lab/yrlkit/similarity"
	"github.com/nheengatu-lab/yrlkit/visualize"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no configuration file is given. It is optional.
const DefaultPath = "yrlkit.yaml"

// Models are Hugging Face repository ids or local directories.
type Models struct {
	Nheengatu  string `yaml:"nheengatu"`
	Portuguese string `yaml:"portuguese"`
	Generalist string `yaml:"generalist"`
}

// Files are the inputs and artifacts of each step, relative to the working directory.
type Files struct {
	RawSheet      string `yaml:"raw_sheet"`
	RawDataset    string `yaml:"raw_dataset"`
	WordSheet     string `yaml:"word_sheet"`
	TokenReport   string `yaml:"token_report"`
	ExpandedSheet string `yaml:"expanded_sheet"`
	ExpandedJSON  string `yaml:"expanded_json"`
	ExpandedCSV   string `yaml:"expanded_csv"`
	Embeddings    string `yaml:"embeddings"`
	SimilarityCSV string `yaml:"similarity_csv"`
	LengthPlot    string `yaml:"length_plot"`
	PCAPlot       string `yaml:"pca_plot"`
	TSNEPlot      string `yaml:"tsne_plot"`
}

// Hub configures the access to the model repositories.
type Hub struct {
	Endpoint string `yaml:"endpoint"`
	CacheDir string `yaml:"cache_dir"`
	Revision string `yaml:"revision"`
	Offline  bool   `yaml:"offline"`
}

// Config of the pipeline.
type Config struct {
	Models     Models                `yaml:"models"`
	Files      Files                 `yaml:"files"`
	Hub        Hub                   `yaml:"hub"`
	Similarity similarity.Thresholds `yaml:"similarity"`
	TSNE       visualize.TSNEParams  `yaml:"tsne"`

	// Words tokenized by inspect-model and compare-tokenizers when none is given.
	InspectWords []string `yaml:"inspect_words"`
	CompareWords []string `yaml:"compare_words"`
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		Models: Models{
			Nheengatu:  "dominguesm/canarim-bert-nheengatu",
			Portuguese: "neuralmind/bert-base-portuguese-cased",
			Generalist: "xlm-roberta-base",
		},
		Files: Files{
			RawSheet:      "dados_iniciais_nheengatu.xlsx",
			RawDataset:    "dataset_nheengatu_raw.parquet",
			WordSheet:     "100palavras_nheengatu.xlsx",
			TokenReport:   "relatorio_tokens_nheengatu.json",
			ExpandedSheet: "100palavras_nheengatu_completo.xlsx",
			ExpandedJSON:  "dataset_nheengatu_expandido.json",
			ExpandedCSV:   "dataset_nheengatu_expandido.csv",
			Embeddings:    "embeddings_extraidos.json",
			SimilarityCSV: "relatorio_similaridade_cosseno.csv",
			LengthPlot:    "distribuicao_tamanho_palavras.png",
			PCAPlot:       "pca_cross_lingual.png",
			TSNEPlot:      "tsne_nheengatu_clusters.png",
		},
		Hub:          Hub{Revision: "main"},
		Similarity:   similarity.DefaultThresholds,
		TSNE:         visualize.DefaultTSNEParams,
		InspectWords: []string{"nheengatu", "tata", "paranã", "yauareté", "mba'e", "ara"},
		CompareWords: []string{"tukũ", "yapukuĩ", "nhe'eng", "yauareté", "kĩdara", "çēdú", "Kuyera imiráwara"},
	}
}

// Load returns the defaults overridden by the YAML file at path. Keys absent from the file keep
// their default. If path is DefaultPath and the file doesn't exist, the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && path == DefaultPath {
			return cfg, nil
		}
		return nil, errors.Wrapf(err, "reading configuration %s", path)
	}
	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing configuration %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "configuration %s", path)
	}
	return cfg, nil
}

// Validate checks the values that would make a step fail late.
func (c *Config) Validate() error {
	th := c.Similarity
	switch {
	case th.Low > th.High:
		return errors.Errorf("similarity.low (%g) must not exceed similarity.high (%g)", th.Low, th.High)
	case th.Moderate > th.Strong:
		return errors.Errorf("similarity.moderate (%g) must not exceed similarity.strong (%g)", th.Moderate, th.Strong)
	case c.TSNE.Perplexity <= 0 || c.TSNE.LearningRate <= 0 || c.TSNE.Iterations <= 0:
		return errors.Errorf("tsne parameters must be positive: %+v", c.TSNE)
	}
	return nil
}
