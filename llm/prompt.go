package llm

import (
	"strconv"
	"strings"
)

// AnswerSystemPrompt instructs the generator to stay inside the retrieved
// evidence instead of inventing an answer.
const AnswerSystemPrompt = "You are a product review assistant. Use the provided " +
	"customer review excerpts to answer the question. If the excerpts do not " +
	"contain the answer, say that you don't know; never make up an answer."

// BuildAnswerPrompt assembles the user message for a RAG generation call.
// The model's answer is returned verbatim; no rewriting happens after.
func BuildAnswerPrompt(question string, snippets []string) string {
	var sb strings.Builder
	sb.WriteString("Customer review excerpts:\n\n")
	for i, s := range snippets {
		sb.WriteString("[")
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString("] ")
		sb.WriteString(s)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\n\nAnswer:")
	return sb.String()
}
