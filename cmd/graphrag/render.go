package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/smallnest/graphrag/rag"
	"github.com/smallnest/graphrag/rag/engine"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderTable(headers []string, rows [][]string, colored int) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("8"))).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == colored && row >= 0 && row < len(rows) {
				switch rows[row][col] {
				case string(rag.StatusFailed), string(engine.OutcomeError):
					return errorStyle
				case string(rag.StatusProcessed), string(engine.OutcomeAccepted):
					return okStyle
				}
			}
			return cellStyle
		})
	return t.String()
}

type resultJSON struct {
	ID      string `json:"id"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

func printResults(w io.Writer, results []engine.InsertResult, asJSON bool) error {
	if asJSON {
		out := make([]resultJSON, len(results))
		for i, r := range results {
			out[i] = resultJSON{ID: r.ID, Outcome: string(r.Outcome)}
			if r.Err != nil {
				out[i].Error = r.Err.Error()
			}
		}
		return printJSON(w, out)
	}
	if len(results) == 0 {
		_, err := fmt.Fprintln(w, "nothing to do")
		return err
	}
	rows := make([][]string, len(results))
	for i, r := range results {
		msg := ""
		if r.Err != nil {
			msg = r.Err.Error()
		}
		rows[i] = []string{r.ID, string(r.Outcome), msg}
	}
	_, err := fmt.Fprintln(w, renderTable([]string{"DOCUMENT", "OUTCOME", "ERROR"}, rows, 1))
	return err
}

func printStatuses(w io.Writer, docs []rag.DocumentStatus, asJSON bool) error {
	if asJSON {
		if docs == nil {
			docs = []rag.DocumentStatus{}
		}
		return printJSON(w, docs)
	}
	if len(docs) == 0 {
		_, err := fmt.Fprintln(w, "no documents")
		return err
	}
	rows := make([][]string, len(docs))
	for i, d := range docs {
		rows[i] = []string{
			d.ID,
			string(d.Status),
			strconv.Itoa(d.ChunksCount),
			strconv.Itoa(d.FailedChunks),
			d.UpdatedAt.Format("2006-01-02 15:04:05"),
			rag.Summary(d.ContentSummary, 40),
			d.Error,
		}
	}
	headers := []string{"DOCUMENT", "STATUS", "CHUNKS", "FAILED", "UPDATED", "SUMMARY", "ERROR"}
	_, err := fmt.Fprintln(w, renderTable(headers, rows, 1))
	return err
}

// failures counts results that did not reach the store
func failures(results []engine.InsertResult) int {
	n := 0
	for _, r := range results {
		if r.Outcome == engine.OutcomeError {
			n++
		}
	}
	return n
}
