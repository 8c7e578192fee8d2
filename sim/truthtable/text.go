package truthtable

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

const countHeader = "count"

// WriteText renders the table as fixed-width text: input columns, output
// columns and the window count, separated by " | ".
func (t *TruthTable) WriteText(w io.Writer) error {
	inW := widths(t.Inputs)
	outW := widths(t.Outputs)
	countW := len(countHeader)
	for _, r := range t.Rows {
		countW = max(countW, len(strconv.Itoa(r.Count)))
	}

	var lines []string
	lines = append(lines, joinGroups(
		cells(names(t.Inputs), inW),
		cells(names(t.Outputs), outW),
		fmt.Sprintf("%*s", countW, countHeader),
	))
	lines = append(lines, strings.Join(nonEmpty(dashes(inW), dashes(outW), strings.Repeat("-", countW)), "-+-"))
	for _, r := range t.Rows {
		lines = append(lines, joinGroups(
			cells(itoa(r.Inputs), inW),
			cells(itoa(r.Outputs), outW),
			fmt.Sprintf("%*d", countW, r.Count),
		))
	}
	for _, l := range lines {
		if _, err := io.WriteString(w, l+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// String renders the table with WriteText.
func (t *TruthTable) String() string {
	var b strings.Builder
	_ = t.WriteText(&b)
	return b.String()
}

func widths(cols []Column) []int {
	out := make([]int, len(cols))
	for i, c := range cols {
		out[i] = max(1, len(c.Name))
	}
	return out
}

func names(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

func itoa(vs []int) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = strconv.Itoa(v)
	}
	return out
}

func cells(vals []string, ws []int) string {
	padded := make([]string, len(vals))
	for i, v := range vals {
		padded[i] = fmt.Sprintf("%-*s", ws[i], v)
	}
	return strings.Join(padded, " ")
}

func dashes(ws []int) string {
	parts := make([]string, len(ws))
	for i, n := range ws {
		parts[i] = strings.Repeat("-", n)
	}
	return strings.Join(parts, "-")
}

func joinGroups(groups ...string) string {
	return strings.Join(nonEmpty(groups...), " | ")
}

func nonEmpty(groups ...string) []string {
	var out []string
	for _, g := range groups {
		if g != "" {
			out = append(out, g)
		}
	}
	return out
}
