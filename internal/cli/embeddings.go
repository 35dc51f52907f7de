package cli

import (
	"github.com/nheengatu-lab/yrlkit/dataset"
	"github.com/nheengatu-lab/yrlkit/embedding"
	"github.com/nheengatu-lab/yrlkit/internal/config"
	"github.com/nheengatu-lab/yrlkit/internal/report"
	"github.com/nheengatu-lab/yrlkit/similarity"
	"github.com/nheengatu-lab/yrlkit/visualize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

func (a *app) extractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract the contextual embeddings of every pair with the Nheengatu and the Portuguese models",
		Args:  cobra.NoArgs,
	}
	input := a.addStringFlag(cmd, "input", "expanded JSON dataset", func(c *config.Config) string { return c.Files.ExpandedJSON })
	out := a.addStringFlag(cmd, "output", "JSON file of embeddings to write", func(c *config.Config) string { return c.Files.Embeddings })
	yrlModel := a.addStringFlag(cmd, "yrl-model", "Nheengatu model", func(c *config.Config) string { return c.Models.Nheengatu })
	ptModel := a.addStringFlag(cmd, "pt-model", "Portuguese model", func(c *config.Config) string { return c.Models.Portuguese })
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		entries, err := dataset.ReadEntries(input.get(a.cfg))
		if err != nil {
			if errors.Is(err, dataset.ErrFileNotFound) {
				return errors.WithMessage(err, "execute a etapa augment antes")
			}
			return err
		}
		yrl, err := embedding.LoadModel(a.repo(yrlModel.get(a.cfg)))
		if err != nil {
			return err
		}
		pt, err := embedding.LoadModel(a.repo(ptModel.get(a.cfg)))
		if err != nil {
			return err
		}

		klog.Infof("iniciando extração de embeddings de %d entradas", len(entries))
		records, err := embedding.Run(cmd.Context(), entries, yrl.Extractor(), pt.Extractor())
		if err != nil {
			return err
		}
		outPath, err := output(out.get(a.cfg))
		if err != nil {
			return err
		}
		if err := embedding.WriteRecords(outPath, records); err != nil {
			return err
		}
		printer(cmd).Status(report.OK, "Sucesso! %d embeddings salvos em %s", len(records), outPath)
		return nil
	}
	return cmd
}

func (a *app) loadRecords(path string) ([]embedding.Record, error) {
	records, err := embedding.ReadRecords(path)
	if err != nil {
		if errors.Is(err, dataset.ErrFileNotFound) {
			return nil, errors.WithMessage(err, "verifique se a etapa extract foi executada")
		}
		return nil, err
	}
	klog.Infof("carregados %d pares de embeddings de %s", len(records), path)
	return records, nil
}

var diagnosisText = map[similarity.Diagnosis][]string{
	similarity.Strong: {
		"SUCESSO: O alinhamento cross-lingual é forte.",
		"O modelo de Nheengatu já possui boa correspondência com o português.",
	},
	similarity.Moderate: {
		"ATENÇÃO: Alinhamento moderado.",
		"Existe correspondência, mas ruídos de tokenização ou polissemia podem estar interferindo. Pode ser necessário fine-tuning.",
	},
	similarity.Critical: {
		"CRÍTICO: Baixo alinhamento.",
		"Os espaços vetoriais parecem distantes. Isso é comum se os modelos não foram treinados como bilíngues pareados.",
		"Considere uma matriz de projeção linear (Orthogonal Procrustes): veja validate --procrustes.",
	},
}

var diagnosisLevel = map[similarity.Diagnosis]report.Level{
	similarity.Strong:   report.OK,
	similarity.Moderate: report.Warning,
	similarity.Critical: report.Error,
}

func (a *app) validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Measure the cosine similarity of each Nheengatu/Portuguese pair and diagnose the alignment",
		Args:  cobra.NoArgs,
	}
	input := a.addStringFlag(cmd, "input", "JSON file of embeddings", func(c *config.Config) string { return c.Files.Embeddings })
	out := a.addStringFlag(cmd, "output", "CSV report to write", func(c *config.Config) string { return c.Files.SimilarityCSV })
	var procrustes bool
	cmd.Flags().BoolVar(&procrustes, "procrustes", false, "also fit an orthogonal projection of the Nheengatu vectors and report its effect")
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		records, err := a.loadRecords(input.get(a.cfg))
		if err != nil {
			return err
		}
		rows, err := similarity.Compute(records)
		if err != nil {
			return err
		}
		summary, err := similarity.Analyze(rows, a.cfg.Similarity)
		if err != nil {
			return err
		}

		p := printer(cmd)
		th := summary.Thresholds
		p.Title("RELATÓRIO DE VALIDAÇÃO CROSS-LINGUAL")
		p.Line("Média Geral de Similaridade: %.4f", summary.Mean)
		p.Line("Máxima: %.4f ('%s' <-> '%s')", summary.Max, summary.Best.Nheengatu, summary.Best.Portuguese)
		p.Line("Mínima: %.4f ('%s' <-> '%s')", summary.Min, summary.Worst.Nheengatu, summary.Worst.Portuguese)
		p.Line("")
		p.Line("Pares com Alta Similaridade (> %g): %d (%.1f%%)", th.High, summary.High, summary.HighPercent())
		p.Line("Pares com Baixa Similaridade (< %g): %d (%.1f%%)", th.Low, summary.Low, summary.LowPercent())
		p.Section("Diagnóstico")
		for _, line := range diagnosisText[summary.Diagnosis] {
			p.Status(diagnosisLevel[summary.Diagnosis], "%s", line)
		}

		if procrustes {
			proj, err := similarity.EvaluateProjection(records)
			if err != nil {
				return err
			}
			p.Section("Projeção Orthogonal Procrustes")
			p.Line("Similaridade média antes:  %.4f", proj.Before)
			p.Line("Similaridade média depois: %.4f", proj.After)
			p.Line("A projeção é ajustada e medida nos mesmos pares: separe pares de teste para estimar a generalização.")
		}

		outPath, err := output(out.get(a.cfg))
		if err != nil {
			return err
		}
		if err := similarity.WriteCSV(outPath, rows); err != nil {
			return err
		}
		p.Status(report.OK, "Relatório detalhado salvo em: %s", outPath)
		return nil
	}
	return cmd
}

func (a *app) visualizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "visualize",
		Short: "Plot the word length distribution, the PCA of both languages and the t-SNE of the Nheengatu vectors",
		Args:  cobra.NoArgs,
	}
	input := a.addStringFlag(cmd, "input", "JSON file of embeddings", func(c *config.Config) string { return c.Files.Embeddings })
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		records, err := a.loadRecords(input.get(a.cfg))
		if err != nil {
			return err
		}
		p := printer(cmd)

		lengthPath, err := output(a.cfg.Files.LengthPlot)
		if err != nil {
			return err
		}
		if err := visualize.LengthHistogram(records, lengthPath); err != nil {
			return err
		}
		p.Status(report.OK, "Gráfico de distribuição salvo em %s", lengthPath)

		points, err := visualize.PCA(records)
		if err != nil {
			return err
		}
		pcaPath, err := output(a.cfg.Files.PCAPlot)
		if err != nil {
			return err
		}
		if err := visualize.PlotPCA(points, pcaPath); err != nil {
			return err
		}
		p.Status(report.OK, "Gráfico PCA salvo em %s. Observe se os pontos vermelhos e azuis estão separados (esperado).", pcaPath)

		points, err = visualize.TSNE(records, a.cfg.TSNE)
		if err != nil {
			return err
		}
		tsnePath, err := output(a.cfg.Files.TSNEPlot)
		if err != nil {
			return err
		}
		if err := visualize.PlotTSNE(points, tsnePath); err != nil {
			return err
		}
		p.Status(report.OK, "Gráfico t-SNE salvo em %s. Procure por grupos de palavras com significados próximos.", tsnePath)
		return nil
	}
	return cmd
}
