package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/filegeek/filegeek-go/types"
)

// Answer text styles. --no-color bypasses these entirely.
var (
	answerStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF"))
	sourceStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	suggestionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6"))
	partialStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)
	headingStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED")).Bold(true)
)

// Answer renders a completed exchange as human-readable text: the answer body
// followed by sources, suggestions, and a partial-answer marker when the
// stream dropped early. JSON and YAML formats render the exchange verbatim.
func (r *Renderer) Answer(ex *types.Exchange) error {
	if r.format != FormatText {
		return r.Render(ex)
	}

	var b strings.Builder

	if ex.Answer != "" {
		b.WriteString(r.styled(answerStyle, ex.Answer))
		b.WriteString("\n")
	}

	if ex.Partial {
		b.WriteString("\n")
		b.WriteString(r.styled(partialStyle, "(partial answer: the stream ended early)"))
		b.WriteString("\n")
	}

	if len(ex.Artifacts) > 0 {
		b.WriteString("\n")
		b.WriteString(r.styled(headingStyle, fmt.Sprintf("Artifacts (%d)", len(ex.Artifacts))))
		b.WriteString("\n")
		for _, a := range ex.Artifacts {
			b.WriteString(r.styled(sourceStyle, "  - "+artifactLabel(a)))
			b.WriteString("\n")
		}
	}

	if len(ex.Sources) > 0 {
		b.WriteString("\n")
		b.WriteString(r.styled(headingStyle, fmt.Sprintf("Sources (%d)", len(ex.Sources))))
		b.WriteString("\n")
		for _, s := range ex.Sources {
			b.WriteString(r.styled(sourceStyle, "  - "+sourceLabel(s)))
			b.WriteString("\n")
		}
	}

	if len(ex.Suggestions) > 0 {
		b.WriteString("\n")
		b.WriteString(r.styled(headingStyle, "Follow-up questions"))
		b.WriteString("\n")
		for _, s := range ex.Suggestions {
			b.WriteString(r.styled(suggestionStyle, "  ? "+s))
			b.WriteString("\n")
		}
	}

	_, err := fmt.Fprint(r.out, b.String())
	return err
}

// Task renders a terminal task state: the indexed document on success.
func (r *Renderer) Task(task *types.Task) error {
	if r.format != FormatText {
		return r.Render(task)
	}

	if task.Document != nil {
		doc := task.Document
		_, err := fmt.Fprintf(r.out, "indexed %s (document %d, %d chunks, %d pages)\n",
			doc.FileName, doc.ID, doc.ChunkCount, doc.PageCount)
		return err
	}

	_, err := fmt.Fprintf(r.out, "task %s: %s\n", task.ID, task.Phase)
	return err
}

func (r *Renderer) styled(style lipgloss.Style, s string) string {
	if r.noColor {
		return s
	}
	return style.Render(s)
}

// artifactLabel builds a one-line description of an artifact map. The shape
// is server-defined; kind and title are the only fields rendered here.
func artifactLabel(a types.Artifact) string {
	kind, _ := a["kind"].(string)
	if kind == "" {
		kind, _ = a["type"].(string)
	}
	title, _ := a["title"].(string)

	switch {
	case kind != "" && title != "":
		return fmt.Sprintf("%s: %s", kind, title)
	case kind != "":
		return kind
	case title != "":
		return title
	default:
		return "artifact"
	}
}

func sourceLabel(s types.Source) string {
	title, _ := s["title"].(string)
	if title == "" {
		title, _ = s["file_name"].(string)
	}
	if page, ok := s["page"].(float64); ok && title != "" {
		return fmt.Sprintf("%s (page %d)", title, int(page))
	}
	if title != "" {
		return title
	}
	if url, ok := s["url"].(string); ok {
		return url
	}
	return "source"
}
