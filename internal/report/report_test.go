package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
)

func init() {
	// Plain output, whatever the terminal running the tests.
	lipgloss.SetColorProfile(termenv.Ascii)
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)
	p.Title("RELATÓRIO")
	p.KV("Total", 3)
	p.Status(OK, "%d ok", 2)
	p.Table([]string{"Palavra", "Tokens", "Status"}, [][]string{
		{"paranã", List([]string{"paran", "##ã"}), "OK"},
		{"kĩdara", List([]string{"[UNK]"}), "ALERTA"},
	})
	out := buf.String()
	assert.Contains(t, out, strings.Repeat("=", 40)+"\nRELATÓRIO\n")
	assert.Contains(t, out, "Total: 3\n")
	assert.Contains(t, out, "2 ok\n")
	assert.Contains(t, out, "Palavra")
	assert.Contains(t, out, "['paran', '##ã']")
	assert.Contains(t, out, "ALERTA")
}

func TestFormatters(t *testing.T) {
	assert.Equal(t, "[]", List(nil))
	assert.Equal(t, "['a', 'b']", List([]string{"a", "b"}))
	assert.Equal(t, "[1, 22]", Ints([]int{1, 22}))
}
