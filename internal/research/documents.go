package research

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

// parsePDF extracts the text of every page, skipping pages that fail.
func parsePDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			fmt.Fprintf(&sb, "[page %d unreadable: %v]\n", i, err)
			continue
		}
		text = strings.ReplaceAll(text, "\r\n", "\n")
		text = strings.ReplaceAll(text, "\x00", "")
		fmt.Fprintf(&sb, "--- Page %d ---\n%s\n\n", i, strings.TrimSpace(text))
	}
	return sb.String(), nil
}

// parseExcel renders each sheet as a markdown table.
func parseExcel(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			fmt.Fprintf(&sb, "--- Sheet: %s (unreadable: %v) ---\n\n", sheet, err)
			continue
		}
		if len(rows) == 0 {
			fmt.Fprintf(&sb, "--- Sheet: %s (empty) ---\n\n", sheet)
			continue
		}
		fmt.Fprintf(&sb, "--- Sheet: %s ---\n%s\n", sheet, rowsToMarkdown(rows))
	}
	return sb.String(), nil
}

func rowsToMarkdown(rows [][]string) string {
	maxCols := 0
	for _, row := range rows {
		if len(row) > maxCols {
			maxCols = len(row)
		}
	}

	var sb strings.Builder
	writeRow := func(row []string) {
		for len(row) < maxCols {
			row = append(row, "")
		}
		for i := range row {
			row[i] = strings.ReplaceAll(row[i], "|", "\\|")
			row[i] = strings.ReplaceAll(row[i], "\n", " ")
		}
		sb.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}

	writeRow(rows[0])
	sb.WriteString("|")
	for i := 0; i < maxCols; i++ {
		sb.WriteString(" --- |")
	}
	sb.WriteString("\n")
	for _, row := range rows[1:] {
		writeRow(row)
	}
	return sb.String()
}
