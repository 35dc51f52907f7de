package cli

import (
	"bufio"

	"github.com/nheengatu-lab/yrlkit/internal/report"
	"github.com/nheengatu-lab/yrlkit/textnorm"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// unicodeExamples are inspected when no text is given: composed and decomposed "maçã" and the
// nasal vowels of Nheengatu.
var unicodeExamples = []string{"ma\u00e7\u00e3", textnorm.NFD("ma\u00e7\u00e3"), "y \u0129 \u0113"}

func (a *app) unicodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unicode [text...]",
		Short: "Show the code points of texts, and whether NFC normalization changes them",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := printer(cmd)
			texts := args
			if len(texts) == 0 {
				texts = unicodeExamples
			}
			for _, text := range texts {
				inspectText(p, text)
			}
			if len(texts) >= 2 {
				c := textnorm.Compare(texts[0], texts[1])
				p.Section("Teste de Comparação")
				p.Line("Visualmente: %q (%d bytes, %d code points) vs %q (%d bytes, %d code points)",
					c.A, c.BytesA, c.RunesA, c.B, c.BytesB, c.RunesB)
				p.KV("Iguais (==)", c.Equal)
				p.KV("Iguais após NFC", c.EqualNFC)
			}
			return nil
		},
	}
}

func inspectText(p *report.Printer, text string) {
	form := "NFC"
	if textnorm.NFC(text) != text {
		form = "não NFC"
	}
	p.Section("Analisando: '" + text + "' (" + form + ")")
	var rows [][]string
	for _, cp := range textnorm.Inspect(text) {
		rows = append(rows, []string{cp.Char, cp.Code, cp.Name})
	}
	p.Table([]string{"Caractere", "Code Point", "Nome Unicode"}, rows)
}

func (a *app) cleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [text...]",
		Short: "Normalize texts the way words are prepared for tokenization (reads lines from stdin without arguments)",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := printer(cmd)
			show := func(text string) {
				p.Line("Original: [%s]", text)
				p.Line("Limpo:    [%s]", textnorm.Clean(text))
				p.Line("------------------------------")
			}
			if len(args) > 0 {
				for _, text := range args {
					show(text)
				}
				return nil
			}
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				show(scanner.Text())
			}
			return errors.Wrap(scanner.Err(), "lendo a entrada padrão")
		},
	}
}
