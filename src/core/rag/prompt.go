package rag

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"unicode"

	"smartassist/src/core/vectorindex"
)

const systemTemplateText = `You are a knowledge-base assistant. Answer the user's question using only the provided context passages. If the context does not contain the answer, say you do not know. Be concise and factual.`

const promptTemplateText = `Context:
{{ .Context }}

Question: {{ .Question }}

Answer:`

var (
	systemTemplate = template.Must(template.New("system").Parse(systemTemplateText))
	promptTemplate = template.Must(template.New("prompt").Parse(promptTemplateText))
)

type promptData struct {
	Context  string
	Question string
}

// buildPrompt renders the system instruction and the user prompt from the
// assembled context and the question.
func buildPrompt(contextText, question string) (system string, prompt string, err error) {
	var sysBuf bytes.Buffer
	if err := systemTemplate.Execute(&sysBuf, nil); err != nil {
		return "", "", fmt.Errorf("failed to render system template: %w", err)
	}

	var promptBuf bytes.Buffer
	data := promptData{Context: contextText, Question: question}
	if err := promptTemplate.Execute(&promptBuf, data); err != nil {
		return "", "", fmt.Errorf("failed to render prompt template: %w", err)
	}

	return sysBuf.String(), promptBuf.String(), nil
}

// assembleContext concatenates hit texts in rank order, separated by blank
// lines, without exceeding maxChars runes. Chunks that fit whole are taken
// whole; the first chunk that does not fit is truncated at a word boundary
// and assembly stops there. The second return value lists the hits whose
// text made it into the context, so callers cite only what the model saw.
func assembleContext(hits []vectorindex.Hit, maxChars int) (string, []vectorindex.Hit) {
	included := make([]vectorindex.Hit, 0, len(hits))
	if maxChars <= 0 {
		return "", included
	}

	const separator = "\n\n"
	var b strings.Builder
	used := 0

	for _, hit := range hits {
		text := strings.TrimSpace(hit.Text)
		if text == "" {
			continue
		}

		sep := ""
		if used > 0 {
			sep = separator
		}

		runes := []rune(text)
		remaining := maxChars - used - len([]rune(sep))
		if remaining <= 0 {
			break
		}

		if len(runes) > remaining {
			truncated := truncateAtWord(runes, remaining)
			if truncated == "" {
				break
			}
			b.WriteString(sep)
			b.WriteString(truncated)
			included = append(included, hit)
			break
		}

		b.WriteString(sep)
		b.WriteString(text)
		used += len([]rune(sep)) + len(runes)
		included = append(included, hit)
	}

	return b.String(), included
}

// truncateAtWord cuts runes down to at most limit runes, backing up to the
// previous word boundary so the context never ends mid-word.
func truncateAtWord(runes []rune, limit int) string {
	if limit >= len(runes) {
		return string(runes)
	}

	cut := limit
	for cut > 0 && !unicode.IsSpace(runes[cut-1]) {
		cut--
	}
	return strings.TrimRight(string(runes[:cut]), " \t\n")
}
