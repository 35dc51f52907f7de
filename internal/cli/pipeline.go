package cli

import (
	"strconv"

	"github.com/nheengatu-lab/yrlkit/dataset"
	"github.com/nheengatu-lab/yrlkit/internal/config"
	"github.com/nheengatu-lab/yrlkit/internal/report"
	"github.com/nheengatu-lab/yrlkit/tokenizers"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

// sampleRows is the number of rows shown by ingest.
const sampleRows = 5

func (a *app) ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Validate the raw spreadsheet and save it as the raw parquet dataset",
		Args:  cobra.NoArgs,
	}
	input := a.addStringFlag(cmd, "input", "spreadsheet to read", func(c *config.Config) string { return c.Files.RawSheet })
	out := a.addStringFlag(cmd, "output", "parquet file to write", func(c *config.Config) string { return c.Files.RawDataset })
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		inputPath := input.get(a.cfg)
		klog.Infof("iniciando ingestão do arquivo: %s", inputPath)
		sheet, err := dataset.ReadSheet(inputPath, "")
		if err != nil {
			if errors.Is(err, dataset.ErrFileNotFound) || errors.Is(err, dataset.ErrMissingColumns) {
				return errors.WithMessage(err, "as colunas 'Palavra' e 'Significado' são obrigatórias; ajuste o cabeçalho do Excel e tente novamente")
			}
			return err
		}
		p := printer(cmd)
		p.KV("Colunas", report.List(sheet.Columns))
		p.KV("Total de registros", len(sheet.Rows))

		p.Section("Amostra dos Dados")
		var rows [][]string
		for _, r := range sheet.Rows[:min(sampleRows, len(sheet.Rows))] {
			rows = append(rows, []string{r.Word, r.Meaning, r.Category})
		}
		p.Table([]string{dataset.ColumnWord, dataset.ColumnMeaning, dataset.ColumnCategory}, rows)

		outPath, err := output(out.get(a.cfg))
		if err != nil {
			return err
		}
		if err := dataset.WriteParquet(outPath, sheet); err != nil {
			return err
		}
		p.Status(report.OK, "Dataset salvo em %s", outPath)
		return nil
	}
	return cmd
}

func (a *app) tokensCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Clean and tokenize every word of the word list and report unknown tokens",
		Args:  cobra.NoArgs,
	}
	input := a.addStringFlag(cmd, "input", "spreadsheet or parquet dataset to read", func(c *config.Config) string { return c.Files.WordSheet })
	out := a.addStringFlag(cmd, "output", "JSON report to write", func(c *config.Config) string { return c.Files.TokenReport })
	model := a.addStringFlag(cmd, "model", "model whose tokenizer is used", func(c *config.Config) string { return c.Models.Nheengatu })
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		tok, err := tokenizers.New(a.repo(model.get(a.cfg)))
		if err != nil {
			return err
		}
		sheet, err := dataset.Load(input.get(a.cfg))
		if err != nil {
			return err
		}
		entries, stats := dataset.TokenReport(sheet, tok)

		p := printer(cmd)
		var rows [][]string
		for _, e := range entries {
			rows = append(rows, []string{e.Status, e.Original, report.List(e.Tokens)})
		}
		p.Table([]string{"Status", "Palavra", "Tokens"}, rows)
		p.Title("RELATÓRIO DE PROCESSAMENTO")
		p.KV("Total de palavras", stats.Total)
		p.KV("Tokenizadas com sucesso", stats.Success)
		p.KV("Com tokens desconhecidos [UNK]", stats.Unk)
		p.KV("Taxa de Sucesso", formatPercent(stats.SuccessRate()))

		outPath, err := output(out.get(a.cfg))
		if err != nil {
			return err
		}
		if err := dataset.WriteJSON(outPath, entries); err != nil {
			return err
		}
		p.Status(report.OK, "Relatório salvo em %s", outPath)
		return nil
	}
	return cmd
}

func (a *app) augmentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "augment",
		Short: "Expand word variants and meanings into pairs, tokenize them and save the dataset",
		Args:  cobra.NoArgs,
	}
	input := a.addStringFlag(cmd, "input", "spreadsheet or parquet dataset to read", func(c *config.Config) string { return c.Files.ExpandedSheet })
	outJSON := a.addStringFlag(cmd, "output", "JSON dataset to write", func(c *config.Config) string { return c.Files.ExpandedJSON })
	outCSV := a.addStringFlag(cmd, "csv", "CSV table to write", func(c *config.Config) string { return c.Files.ExpandedCSV })
	model := a.addStringFlag(cmd, "model", "model whose tokenizer is used", func(c *config.Config) string { return c.Models.Nheengatu })
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		tok, err := tokenizers.New(a.repo(model.get(a.cfg)))
		if err != nil {
			return err
		}
		sheet, err := dataset.Load(input.get(a.cfg))
		if err != nil {
			return err
		}
		entries, stats := dataset.BuildEntries(dataset.Expand(sheet), len(sheet.Rows), tok)

		jsonPath, err := output(outJSON.get(a.cfg))
		if err != nil {
			return err
		}
		if err := dataset.WriteJSON(jsonPath, entries); err != nil {
			return err
		}
		csvPath, err := output(outCSV.get(a.cfg))
		if err != nil {
			return err
		}
		if err := dataset.WriteEntriesCSV(csvPath, entries); err != nil {
			return err
		}

		p := printer(cmd)
		p.Title("RELATÓRIO DE AUMENTAÇÃO DE DADOS")
		p.KV("Linhas Originais (Excel)", stats.OriginalRows)
		p.KV("Linhas Geradas (Expandido)", stats.ExpandedRows)
		p.Line("Fator de Multiplicação: %.2fx", stats.Factor())
		p.KV("Exemplos com [UNK]", stats.UnkTokens)
		p.Status(report.OK, "Dataset pronto para treino salvo em: %s", jsonPath)
		p.Status(report.OK, "Tabela para conferência salva em: %s", csvPath)
		return nil
	}
	return cmd
}

func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64) + "%"
}
