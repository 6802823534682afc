package agent

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/tubeqa-go/internal/budget"
)

// questionAllowanceTokens covers the question text in the user message.
const questionAllowanceTokens = 256

// systemPreamble establishes the assistant's role for every question.
const systemPreamble = `You are TubeQA, an assistant that answers questions about a library of
YouTube videos using their transcripts.

Ground every claim in the transcript excerpts you are given. When an excerpt
supports your answer, quote the relevant words and cite the video title and
timestamp in the form [Title @ m:ss]. If the excerpts do not contain the
answer, say so plainly instead of guessing. Keep answers concise.`

// noContextInstruction replaces the excerpt section when nothing is indexed.
const noContextInstruction = `No transcript context is available for this question: no videos have been
indexed yet, or none contain relevant material. Tell the user that you could
not find supporting transcripts, and only offer general guidance that you
clearly label as not coming from the video library.`

// buildSystemPrompt embeds the context block, or the no-context instruction
// when block is empty.
func buildSystemPrompt(block string) string {
	var sb strings.Builder
	sb.WriteString(systemPreamble)
	sb.WriteString("\n\n")
	if block == "" {
		sb.WriteString(noContextInstruction)
		return sb.String()
	}
	sb.WriteString("## Transcript Excerpts\n\n")
	sb.WriteString(block)
	return sb.String()
}

// buildUserPrompt carries the literal question and the citation instruction.
func buildUserPrompt(question string) string {
	return fmt.Sprintf("Question: %s\n\n"+
		"Answer using the transcript excerpts above. Quote the passages you rely on "+
		"and cite each with its video title and timestamp.", question)
}

// PromptTokenBudget returns the whole-prompt warning threshold for a context
// block capped at contextTokens: the block, the fixed system and user prompt
// text, and a question allowance. It returns 0 for a non-positive
// contextTokens so New falls back to budget.DefaultMaxContextTokens.
func PromptTokenBudget(contextTokens int) int {
	if contextTokens <= 0 {
		return 0
	}
	fixed := budget.EstimateMessages([]*schema.Message{
		schema.SystemMessage(buildSystemPrompt(" ")),
		schema.UserMessage(buildUserPrompt("")),
	})
	return contextTokens + fixed + questionAllowanceTokens
}

// fallbackAnswer is returned when no completion backend is configured.
func fallbackAnswer(question string) string {
	return fmt.Sprintf("I received your question %q, but no language model is configured, "+
		"so I cannot generate a sourced answer from the indexed transcripts right now. "+
		"Configure a model provider and ask again.", question)
}
