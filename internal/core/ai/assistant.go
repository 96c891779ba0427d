package ai

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/solatis/scorekeeper/internal/types"
)

const (
	formulaStart = "FORMULA_START"
	formulaEnd   = "FORMULA_END"

	// defaultReply is shown when the model answered with a formula block only.
	defaultReply = "公式已生成，請點擊「載入到編輯器」使用。"
)

const chatPrompt = `You are a helpful medical formula assistant. You can have general conversations AND generate medical scoring formulas.

DECIDE based on the user's message:
- If the user is asking a QUESTION, making SMALL TALK, requesting EXPLANATION, or saying something non-formula → reply conversationally in Traditional Chinese (繁體中文). Do NOT generate a formula.
- If the user is REQUESTING A FORMULA or scoring system → reply conversationally AND include the formula using the markers below.

User's message: %s
%s

IF generating a formula, embed it exactly like this (markers on their own lines):
FORMULA_START
score_name: [ScoreName]
variables:
  [var1]: int
  [var2]: int
  [bool_var]: boolean
formulas:
  dummy: 0
rules:
  - if: [var] [op] [value]
    add: [number]
risk_levels:
  - if: score >= [high]
    text: ⚠️ [High risk text]
  - if: score >= [medium]
    text: ⚡ [Medium risk text]
  - if: score < [medium]
    text: ✓ [Low risk text]
FORMULA_END

FORMULA RULES (only when generating):
1. All 5 sections required: score_name, variables, formulas, rules, risk_levels
2. Variable types: int or boolean ONLY
3. Variable names: snake_case
4. No comments (no # symbols)
5. Compound conditions: use "and" / "or"
6. If no formula needed, use dummy: 0 in formulas

EXAMPLE (SOFA Score):
FORMULA_START
score_name: SOFA_Score
variables:
  pao2_fio2: int
  platelets: int
  bilirubin: int
  map: int
  dopamine: int
  gcs: int
  creatinine: int
formulas:
  dummy: 0
rules:
  - if: pao2_fio2 < 400
    add: 1
  - if: pao2_fio2 < 300
    add: 1
  - if: platelets < 150
    add: 1
  - if: platelets < 100
    add: 1
  - if: bilirubin >= 2
    add: 1
  - if: map < 70 or dopamine > 0
    add: 1
  - if: dopamine > 5
    add: 1
  - if: gcs < 15
    add: 1
  - if: gcs < 10
    add: 1
  - if: creatinine >= 2
    add: 1
risk_levels:
  - if: score >= 12
    text: ⚠️ 高危 - 死亡率 >35%%
  - if: score >= 6
    text: ⚡ 中危 - 死亡率 20-30%%
  - if: score < 6
    text: ✓ 低危 - 死亡率 <15%%
FORMULA_END

Your conversational reply (in 繁體中文):`

// ChatReply is the assistant's answer. GeneratedRules holds rule text when
// the model produced a formula block.
type ChatReply struct {
	Reply          string `json:"reply"`
	GeneratedRules string `json:"generated_rules,omitempty"`
}

// Assistant runs the mixed-mode formula chat.
type Assistant struct {
	gen Generator
}

// NewAssistant wraps a generator.
func NewAssistant(gen Generator) *Assistant {
	return &Assistant{gen: gen}
}

// Chat answers message. fields, when non-empty, are offered to the model as
// the preferred variable names.
func (a *Assistant) Chat(ctx context.Context, message string, fields []types.PatientField) (ChatReply, error) {
	if a == nil || a.gen == nil {
		return ChatReply{}, types.ErrAIUnavailable
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return ChatReply{}, types.ErrEmptyText
	}
	if len(message) > types.MaxChatMessageSize || !utf8.ValidString(message) {
		return ChatReply{}, fmt.Errorf("%w: chat message", types.ErrTextTooLarge)
	}

	completion, err := a.gen.Generate(ctx, fmt.Sprintf(chatPrompt, message, fieldsHint(fields)))
	if err != nil {
		return ChatReply{}, err
	}
	return splitReply(completion), nil
}

func fieldsHint(fields []types.PatientField) string {
	if len(fields) == 0 {
		return ""
	}
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.Label != "" {
			names = append(names, fmt.Sprintf("%s (%s)", f.FieldName, f.Label))
		} else {
			names = append(names, f.FieldName)
		}
	}
	return "\n\nAVAILABLE PATIENT FIELDS with units (optional hint): " + strings.Join(names, ", ") +
		"\nUse the exact field_name as the variable name in formulas. The label shows the unit."
}

// splitReply separates a FORMULA_START/FORMULA_END block from the prose
// around it. Fence lines inside the block are dropped.
func splitReply(full string) ChatReply {
	full = strings.TrimSpace(full)
	start := strings.Index(full, formulaStart)
	end := strings.Index(full, formulaEnd)
	if start < 0 || end < start {
		return ChatReply{Reply: full}
	}

	before := strings.TrimSpace(full[:start])
	block := full[start+len(formulaStart) : end]
	after := strings.TrimSpace(full[end+len(formulaEnd):])

	var lines []string
	for _, l := range strings.Split(strings.TrimSpace(block), "\n") {
		if strings.HasPrefix(strings.TrimSpace(l), "```") {
			continue
		}
		lines = append(lines, l)
	}

	var prose []string
	for _, p := range []string{before, after} {
		if p != "" {
			prose = append(prose, p)
		}
	}
	reply := strings.Join(prose, "\n")
	if reply == "" {
		reply = defaultReply
	}

	return ChatReply{Reply: reply, GeneratedRules: strings.TrimSpace(strings.Join(lines, "\n"))}
}
