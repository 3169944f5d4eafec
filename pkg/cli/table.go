package cli

import (
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

// renderTable writes rows as left-aligned columns. The first row is the
// header. Widths are measured in terminal cells.
func renderTable(w io.Writer, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}

	cols := 0
	for _, row := range rows {
		if len(row) > cols {
			cols = len(row)
		}
	}

	colWidths := make([]int, cols)
	for _, row := range rows {
		for i, cell := range row {
			if cw := runewidth.StringWidth(cell); cw > colWidths[i] {
				colWidths[i] = cw
			}
		}
	}

	var sb strings.Builder
	for _, row := range rows {
		var line strings.Builder
		for i, cell := range row {
			if i > 0 {
				line.WriteString("  ")
			}
			line.WriteString(runewidth.FillRight(cell, colWidths[i]))
		}
		sb.WriteString(strings.TrimRight(line.String(), " "))
		sb.WriteByte('\n')
	}

	_, err := io.WriteString(w, sb.String())
	return err
}
