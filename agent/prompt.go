package agent

import (
	"strings"

	"github.com/hupe1980/invoicemesh/core"
	"github.com/hupe1980/invoicemesh/internal/util"
)

const jsonOnlyDirective = "Respond with JSON only: a single JSON object, no markdown fences, no commentary. " +
	"Use null for values that are not present in the document. " +
	`Include an integer "confidence" field between 0 and 100.`

const textOnlyNote = "No page image is available. Work from the extracted text below only."

// PromptData is the data available to catalog prompt templates.
type PromptData struct {
	Text      string             // extracted text, truncated to the invoker's budget
	PriorData core.ExtractedData // consolidated data so far; render with {{json .PriorData}}
	Conflicts []string           // conflict markers surfaced by earlier stages; {{join "\n- " .Conflicts}}
	FileName  string
	MimeType  string
	Quality   string
	Iteration int
	HasImage  bool
}

// BuildPrompt renders the instruction text for desc: the role, the rendered
// template and the JSON-only directive.
func BuildPrompt(desc core.AgentDescriptor, pd PromptData) (string, error) {
	task, err := util.RenderTemplate(desc.PromptTemplate, map[string]any{
		"Text":      pd.Text,
		"PriorData": pd.PriorData,
		"Conflicts": pd.Conflicts,
		"FileName":  pd.FileName,
		"MimeType":  pd.MimeType,
		"Quality":   pd.Quality,
		"Iteration": pd.Iteration,
		"HasImage":  pd.HasImage,
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if role := strings.TrimSpace(desc.Role); role != "" {
		b.WriteString(role)
		b.WriteString("\n\n")
	}
	if !pd.HasImage {
		b.WriteString(textOnlyNote)
		b.WriteString("\n\n")
	}
	b.WriteString(strings.TrimSpace(task))
	b.WriteString("\n\n")
	b.WriteString(jsonOnlyDirective)

	return b.String(), nil
}

// BuildParts assembles the prompt parts: the selected page image first, when
// one exists, followed by the instruction text.
func BuildParts(doc *core.Document, prompt string) []core.Part {
	parts := make([]core.Part, 0, 2)
	if page, ok := doc.FirstPage(); ok {
		parts = append(parts, core.ImagePart{MimeType: page.MimeType, Data: page.Data})
	}
	return append(parts, core.TextPart{Text: prompt})
}
