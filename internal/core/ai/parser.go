package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/solatis/scorekeeper/internal/types"
)

const parsePrompt = `You are a medical rule parser. Convert the following text rule document into a specific JSON Abstract Syntax Tree (AST) format.

Input Text:
%s

Target JSON Format:
{
  "score_name": "string",
  "variables": { "variable_name": "int or boolean", ... },
  "rules": [
    {
      "condition": { "op": ">=" or "<=" or "==", "left": "variable_name", "right": value },
      "action": { "type": "add", "value": number }
    }
  ]
}

Rules:
1. Parse 'score_name' from the text.
2. Parse 'variables' and their types (int/boolean).
3. Parse 'rules'. Each rule has an 'if' condition and an 'add' action.
4. For conditions, split into 'left' (variable), 'op' (calculated from text, e.g., >=), and 'right' (value).
5. Ensure 'right' value is the correct type (int or boolean).
6. Return ONLY the raw JSON. Do not include markdown formatting like ` + "```json ... ```" + `.
`

// Parser turns natural-language rule descriptions into rule documents.
// It satisfies rules.StructuredParser.
type Parser struct {
	gen Generator
}

// NewParser wraps a generator.
func NewParser(gen Generator) *Parser {
	return &Parser{gen: gen}
}

// ParseStructured asks the model for the JSON AST of text and decodes it.
func (p *Parser) ParseStructured(ctx context.Context, text string) (*types.RuleDocument, error) {
	if p == nil || p.gen == nil {
		return nil, types.ErrAIUnavailable
	}

	completion, err := p.gen.Generate(ctx, fmt.Sprintf(parsePrompt, text))
	if err != nil {
		return nil, err
	}

	doc := types.NewRuleDocument()
	if err := json.Unmarshal([]byte(stripFences(completion)), doc); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrAIResponseInvalid, err)
	}
	if doc.Kind == "" {
		doc.Kind = types.KindScore
	}
	return doc, nil
}

// stripFences removes a surrounding markdown code fence the model may add
// despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = s[len("```json"):]
	} else if strings.HasPrefix(s, "```") {
		s = s[len("```"):]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
