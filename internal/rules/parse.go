// internal/rules/parse.go
package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/solatis/scorekeeper/internal/types"
)

/*
 * Rule document parser.
 *
 * Line-oriented state machine. Each trimmed line is classified in this order:
 *   1. blank or '#' comment          -> skipped
 *   2. kind headers                  -> formula_name:, score_name:
 *   3. section headers               -> variables:, formulas:, rules:, risk_levels:
 *   4. top-level formula:            -> only outside the formulas section
 *   5. section item                  -> interpreted by the current section
 *
 * Kind resolution: formula_name: selects formula and score_name: selects
 * score, unless a formulas: header already escalated the document to
 * score_with_formula. The escalation is sticky regardless of header order.
 * Documents without any kind header default to formula.
 *
 * Rules and risk levels are two-line entries: an `if:` (or `- if:`) line
 * opens a pending entry, then `add: <int>` or `text: <string>` closes it.
 * Only closed entries are appended; a pending entry replaced by another
 * `if:`, or left open at a section change or end of input, is dropped.
 * Payload lines with no pending entry are ignored.
 *
 * The parser never fails. Anything it cannot interpret is skipped and
 * reported as a Diagnostic so callers can surface warnings to authors.
 */

type section int

const (
	sectionNone section = iota
	sectionVariables
	sectionFormulas
	sectionRules
	sectionRiskLevels
)

// Diagnostic describes one line the parser skipped or degraded.
type Diagnostic struct {
	Line    int // 1-based
	Message string
	Err     error
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("line %d: %s", d.Line, d.Message)
}

type pendingEntry struct {
	open bool
	line int
	cond string
}

type documentParser struct {
	doc     *types.RuleDocument
	section section
	pending pendingEntry
	diags   []Diagnostic
}

// ParseDocument parses rule text into a RuleDocument.
func ParseDocument(text string) (*types.RuleDocument, []Diagnostic) {
	p := &documentParser{doc: types.NewRuleDocument()}
	p.doc.Kind = types.KindFormula

	for i, raw := range strings.Split(text, "\n") {
		p.line(i+1, strings.TrimSpace(raw))
	}
	p.dropPending("entry has no payload line")

	return p.doc, p.diags
}

func (p *documentParser) line(n int, line string) {
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}

	switch {
	case strings.HasPrefix(line, "formula_name:"):
		p.doc.Name = valueAfter(line, "formula_name:")
		p.setKind(types.KindFormula)
		return
	case strings.HasPrefix(line, "score_name:"):
		p.doc.Name = valueAfter(line, "score_name:")
		p.setKind(types.KindScore)
		return
	case strings.HasPrefix(line, "variables:"):
		p.enter(sectionVariables)
		return
	case strings.HasPrefix(line, "formulas:"):
		p.enter(sectionFormulas)
		p.doc.Kind = types.KindScoreWithFormula
		if p.doc.Formulas == nil {
			p.doc.Formulas = types.Formulas{}
		}
		return
	case strings.HasPrefix(line, "rules:"):
		p.enter(sectionRules)
		if p.doc.Rules == nil {
			p.doc.Rules = []types.Rule{}
		}
		return
	case strings.HasPrefix(line, "risk_levels:"):
		p.enter(sectionRiskLevels)
		if p.doc.RiskLevels == nil {
			p.doc.RiskLevels = []types.RiskLevel{}
		}
		return
	case strings.HasPrefix(line, "formula:") && p.section != sectionFormulas:
		p.doc.Formula = valueAfter(line, "formula:")
		return
	}

	switch p.section {
	case sectionVariables:
		p.variable(n, line)
	case sectionFormulas:
		p.formula(n, line)
	case sectionRules:
		p.rule(n, line)
	case sectionRiskLevels:
		p.riskLevel(n, line)
	default:
		p.warn(n, "line outside any section ignored", nil)
	}
}

func (p *documentParser) setKind(kind types.Kind) {
	if p.doc.Kind == types.KindScoreWithFormula {
		return
	}
	p.doc.Kind = kind
}

func (p *documentParser) enter(s section) {
	p.dropPending("entry has no payload line")
	p.section = s
}

// variable handles `name: type`. An empty type means int.
func (p *documentParser) variable(n int, line string) {
	name, rest, ok := strings.Cut(line, ":")
	if !ok {
		p.warn(n, "variable line without ':' ignored", nil)
		return
	}
	name = strings.TrimSpace(name)
	if name == "" {
		p.warn(n, "variable line without a name ignored", nil)
		return
	}
	// Only the first segment after the name is the type: "x: int: note" -> int.
	typ, _, _ := strings.Cut(rest, ":")
	typ = strings.TrimSpace(typ)
	if typ == "" {
		typ = string(types.VarInt)
	}
	p.doc.Variables[name] = types.VarType(typ)
}

func (p *documentParser) formula(n int, line string) {
	name, expr, ok := strings.Cut(line, ":")
	if !ok {
		p.warn(n, "formula line without ':' ignored", nil)
		return
	}
	name = strings.TrimSpace(name)
	if name == "" {
		p.warn(n, "formula line without a name ignored", nil)
		return
	}
	p.doc.Formulas.Set(name, strings.TrimSpace(expr))
}

func (p *documentParser) rule(n int, line string) {
	if cond, ok := ifClause(line); ok {
		p.open(n, cond)
		return
	}
	if !strings.HasPrefix(line, "add:") {
		p.warn(n, "unrecognized rules line ignored", nil)
		return
	}
	if !p.pending.open {
		p.warn(n, "add without a preceding if ignored", nil)
		return
	}

	value, err := strconv.Atoi(valueAfter(line, "add:"))
	if err != nil {
		p.warn(n, "add value is not an integer", err)
		return
	}
	cond := p.closePending()
	p.doc.Rules = append(p.doc.Rules, types.Rule{
		Condition: cond,
		Action:    types.Action{Type: types.ActionAdd, Value: value},
	})
}

func (p *documentParser) riskLevel(n int, line string) {
	if cond, ok := ifClause(line); ok {
		p.open(n, cond)
		return
	}
	if !strings.HasPrefix(line, "text:") {
		p.warn(n, "unrecognized risk_levels line ignored", nil)
		return
	}
	if !p.pending.open {
		p.warn(n, "text without a preceding if ignored", nil)
		return
	}

	text := valueAfter(line, "text:")
	cond := p.closePending()
	p.doc.RiskLevels = append(p.doc.RiskLevels, types.RiskLevel{Condition: cond, Text: text})
}

func (p *documentParser) open(n int, cond string) {
	p.dropPending("entry replaced by a new if before its payload line")
	p.pending = pendingEntry{open: true, line: n, cond: cond}
}

// closePending parses the held condition text and resets the cursor.
// An unparseable condition still closes the entry; it just never matches.
func (p *documentParser) closePending() *types.Condition {
	entry := p.pending
	p.pending = pendingEntry{}

	cond, err := ParseCondition(entry.cond)
	if err != nil {
		p.warn(entry.line, fmt.Sprintf("condition %q could not be parsed", entry.cond), err)
	}
	return cond
}

func (p *documentParser) dropPending(reason string) {
	if !p.pending.open {
		return
	}
	p.warn(p.pending.line, reason, nil)
	p.pending = pendingEntry{}
}

func (p *documentParser) warn(n int, msg string, err error) {
	p.diags = append(p.diags, Diagnostic{Line: n, Message: msg, Err: err})
}

// ifClause extracts the condition of an `if:` or `- if:` line.
func ifClause(line string) (string, bool) {
	if !strings.HasPrefix(line, "if:") && !strings.HasPrefix(line, "- if:") {
		return "", false
	}
	_, cond, _ := strings.Cut(line, "if:")
	return strings.TrimSpace(cond), true
}

func valueAfter(line, prefix string) string {
	return strings.TrimSpace(strings.TrimPrefix(line, prefix))
}
