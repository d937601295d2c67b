// Package extract turns raw uploads into ordered page texts and, for CSV
// files, the tabular grid that feeds the query executor. Parsing fidelity
// for rich formats (PDF layout etc.) is out of scope; the rest of the
// system only ever consumes the flattened context text.
package extract

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/docsight/docsight/internal/domain"
)

// pageCharBudget is the rough size of one synthetic page when paginating
// plain text, matching typical extracted-PDF page sizes.
const pageCharBudget = 3500

// NoTabularSchema is the schema description used when a document carries no
// tabular data. The planner may still emit queries; they degrade to error
// rows at the executor.
const NoTabularSchema = "No tabular data was extracted from this document."

// Extract builds a Document from an upload. CSV files additionally yield
// the TabularData grid (nil for everything else).
func Extract(fileName string, content []byte) (*domain.Document, *domain.TabularData, error) {
	if strings.HasSuffix(strings.ToLower(fileName), ".csv") {
		return extractCSV(fileName, content)
	}

	text := string(content)
	if strings.TrimSpace(text) == "" {
		return nil, nil, fmt.Errorf("extract.Extract: %q: empty document", fileName)
	}

	pages := paginate(text)
	return &domain.Document{
		FileName:   fileName,
		PageCount:  len(pages),
		Pages:      pages,
		TotalChars: len(text),
	}, nil, nil
}

func extractCSV(fileName string, content []byte) (*domain.Document, *domain.TabularData, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("extract.extractCSV: %q: %w", fileName, err)
	}
	if len(records) < 1 || len(records[0]) == 0 {
		return nil, nil, fmt.Errorf("extract.extractCSV: %q: no header row", fileName)
	}

	data := &domain.TabularData{Columns: records[0], Rows: records[1:]}

	// The page text is a readable rendering of the grid so the chat side can
	// answer questions about CSV uploads too.
	var b strings.Builder
	b.WriteString("Dataset: " + fileName + "\n")
	b.WriteString("Columns: " + strings.Join(data.Columns, ", ") + "\n")
	fmt.Fprintf(&b, "Rows: %d\n\n", len(data.Rows))
	for i, row := range data.Rows {
		if i >= 200 {
			fmt.Fprintf(&b, "... (%d more rows)\n", len(data.Rows)-i)
			break
		}
		b.WriteString(strings.Join(row, ", "))
		b.WriteByte('\n')
	}

	text := b.String()
	pages := paginate(text)

	return &domain.Document{
		FileName:   fileName,
		PageCount:  len(pages),
		Pages:      pages,
		TotalChars: len(text),
	}, data, nil
}

// paginate splits text into synthetic pages at paragraph boundaries.
func paginate(text string) []domain.Page {
	paragraphs := strings.Split(text, "\n\n")

	var pages []domain.Page
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		pages = append(pages, domain.Page{
			PageNumber: len(pages) + 1,
			Text:       strings.TrimSpace(current.String()),
		})
		current.Reset()
	}

	for _, p := range paragraphs {
		if current.Len() > 0 && current.Len()+len(p) > pageCharBudget {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	flush()

	return pages
}

// BuildContext flattens the document into the reasoning service's context
// string: page texts joined under [Page N] headers.
func BuildContext(doc *domain.Document) string {
	parts := make([]string, len(doc.Pages))
	for i, p := range doc.Pages {
		parts[i] = fmt.Sprintf("[Page %d]\n%s", p.PageNumber, p.Text)
	}
	return strings.Join(parts, "\n\n")
}

// SuggestedQuestions proposes up to four starter questions based on the
// document's shape.
func SuggestedQuestions(doc *domain.Document) []string {
	questions := []string{
		"What is this document about?",
		"Summarize the key points of this document",
	}

	if doc.PageCount > 3 {
		questions = append(questions, "What are the main topics covered?")
	}

	if doc.PageCount > 1 {
		questions = append(questions, "What conclusions does the document reach?")
	} else {
		questions = append(questions, "List the important details mentioned")
	}

	if len(questions) > 4 {
		questions = questions[:4]
	}
	return questions
}

// SchemaText renders the dataset description embedded in the insight
// planner's system prompt: table name, columns, row count, and a few sample
// rows so the model can see value formats.
func SchemaText(table string, columns []string, data *domain.TabularData) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Table: %s\n", table)
	b.WriteString("Columns (all TEXT, cast as needed):\n")
	for i, col := range columns {
		original := ""
		if i < len(data.Columns) && data.Columns[i] != col {
			original = fmt.Sprintf(" (from %q)", data.Columns[i])
		}
		fmt.Fprintf(&b, "  - %s%s\n", col, original)
	}
	fmt.Fprintf(&b, "Row count: %d\n", len(data.Rows))

	if len(data.Rows) > 0 {
		b.WriteString("Sample rows:\n")
		for i, row := range data.Rows {
			if i >= 3 {
				break
			}
			fmt.Fprintf(&b, "  %s\n", strings.Join(row, ", "))
		}
	}

	return b.String()
}
