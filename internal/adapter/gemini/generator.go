package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"

	"groundwork/internal/fault"
)

const groundingPrompt = `Answer the question using only the provided context.
If the context does not contain the answer, say so instead of guessing.

Context:
%s

Question: %s

Answer:`

// Generator wraps the generative model behind the narrow contract the query
// engine needs: (question, context) in, grounded free text out.
type Generator struct {
	client *genai.Client
	model  string
}

func NewGenerator(client *genai.Client, model string) *Generator {
	return &Generator{client: client, model: model}
}

func (g *Generator) Generate(ctx context.Context, question, contextBlock string) (string, error) {
	model := g.client.GenerativeModel(g.model)

	prompt := fmt.Sprintf(groundingPrompt, contextBlock, question)
	res, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("generation failed: %w", err)
	}

	var b strings.Builder
	for _, cand := range res.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
		break
	}

	answer := strings.TrimSpace(b.String())
	if answer == "" {
		return "", fmt.Errorf("%w: generation response contained no text", fault.ErrProtocolViolation)
	}
	return answer, nil
}
