package generator

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"codeloop/internal/logging"
	"codeloop/internal/task"
)

// =============================================================================
// GEMINI-BACKED GENERATOR
// =============================================================================

// Gemini generates candidates through the Gemini API. It also serves
// as the reviewer's advisory pass.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini generator.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = "gemini-3-flash-preview"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Gemini{client: client, model: model}, nil
}

// Generate asks the model for candidate source, folding the most
// recent feedback into the prompt.
func (g *Gemini) Generate(ctx context.Context, t task.Task, feedback []string) (string, error) {
	timer := logging.StartTimer(logging.CategoryGenerator, "generate")
	defer timer.Stop()

	prompt := buildPrompt(t, feedback)

	resp, err := g.client.Models.GenerateContent(ctx,
		g.model,
		genai.Text(prompt),
		nil,
	)
	if err != nil {
		logging.GeneratorError("generate failed: %v", err)
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	raw := resp.Text()
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("gemini returned an empty response")
	}

	code := CleanCode(raw)
	logging.Generator("generated %d bytes for task %s", len(code), t.ID)
	return code, nil
}

// Review implements the advisory reviewer pass: a fixed prompt whose
// answer is parsed for a STATUS and FEEDBACK line by the caller.
func (g *Gemini) Review(ctx context.Context, taskText, code string) (string, error) {
	prompt := fmt.Sprintf(`You are reviewing Go code written for this task:

%s

Code:
%s

Judge whether the code fulfils the task. Reply with exactly two lines:
STATUS: APPROVED or STATUS: REJECTED
FEEDBACK: <one sentence>`, taskText, code)

	resp, err := g.client.Models.GenerateContent(ctx,
		g.model,
		genai.Text(prompt),
		nil,
	)
	if err != nil {
		return "", fmt.Errorf("gemini review: %w", err)
	}
	return resp.Text(), nil
}

// Close releases the underlying client.
func (g *Gemini) Close() error {
	// google.golang.org/genai's Client exposes no Close method; there is
	// nothing to release.
	return nil
}

// buildPrompt assembles the generation prompt. Only the newest one or
// two feedback messages are included; older history has already lost
// its influence.
func buildPrompt(t task.Task, feedback []string) string {
	var b strings.Builder

	b.WriteString("Write a single Go function that fulfils this task. ")
	b.WriteString("Reply with only Go code, no explanations.\n\n")
	fmt.Fprintf(&b, "Task: %s\n", t.Description)

	if t.ExistingCode != "" {
		b.WriteString("\nEXISTING CODE:\n")
		b.WriteString(t.ExistingCode)
		b.WriteString("\n\nMODIFICATIONS REQUESTED:\n")
		b.WriteString(t.EditInstructions)
		b.WriteString("\n")
	}

	if len(feedback) > 0 {
		b.WriteString("\nYour previous attempt failed. Fix these issues:\n")
		for _, msg := range feedback {
			fmt.Fprintf(&b, "- %s\n", msg)
		}
	}

	b.WriteString("\nRules:\n")
	b.WriteString("- Use only the standard library (fmt, strings, strconv, math, sort, errors, unicode, regexp, bufio, os, time).\n")
	b.WriteString("- Declare every function at top level.\n")

	return b.String()
}
