package rules

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/solatis/scorekeeper/internal/types"
)

// structuralKeywords mark text as DSL rather than natural language.
var structuralKeywords = []string{"formula:", "formula_name:", "formulas:", "score_name:"}

// HasStructuralKeyword reports whether text should go through the DSL parser.
func HasStructuralKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range structuralKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// StructuredParser converts natural-language rule descriptions into a document.
type StructuredParser interface {
	ParseStructured(ctx context.Context, text string) (*types.RuleDocument, error)
}

// Recorder receives engine outcomes. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ObserveParse(source, outcome string)
	ObserveEvaluation(kind types.Kind, outcome string, elapsed time.Duration)
	FormulaFailures(n int)
}

// Parse sources and outcomes reported to the Recorder.
const (
	SourceDSL = "dsl"
	SourceAI  = "ai"

	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeUnavailable = "unavailable"
)

type nopRecorder struct{}

func (nopRecorder) ObserveParse(string, string) {}

func (nopRecorder) ObserveEvaluation(types.Kind, string, time.Duration) {}

func (nopRecorder) FormulaFailures(int) {}

// Engine wires the pure parser and evaluator to logging, metrics and the
// natural-language fallback. Safe for concurrent use.
type Engine struct {
	logger   zerolog.Logger
	parser   StructuredParser
	recorder Recorder
}

// Option configures an Engine.
type Option func(*Engine)

// WithStructuredParser enables the natural-language fallback.
func WithStructuredParser(p StructuredParser) Option {
	return func(e *Engine) { e.parser = p }
}

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// NewEngine creates a rules engine.
func NewEngine(logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{logger: logger.With().Str("component", "rules").Logger(), recorder: nopRecorder{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Parse converts rule text to a document. DSL text is parsed locally;
// anything else goes to the structured parser when one is configured.
func (e *Engine) Parse(ctx context.Context, text string) (*types.RuleDocument, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, types.ErrEmptyText
	}
	if len(text) > types.MaxRuleTextSize {
		return nil, types.ErrTextTooLarge
	}

	if HasStructuralKeyword(text) {
		doc, diags := ParseDocument(text)
		for _, d := range diags {
			e.logger.Warn().Int("line", d.Line).Err(d.Err).Msg(d.Message)
		}
		e.recorder.ObserveParse(SourceDSL, OutcomeOK)
		return doc, nil
	}

	if e.parser == nil {
		e.recorder.ObserveParse(SourceAI, OutcomeUnavailable)
		return nil, types.ErrAIUnavailable
	}

	doc, err := e.parser.ParseStructured(ctx, text)
	if err != nil {
		e.recorder.ObserveParse(SourceAI, OutcomeError)
		e.logger.Error().Err(err).Msg("structured parse failed")
		return nil, err
	}
	if err := ValidateDocument(doc); err != nil {
		e.recorder.ObserveParse(SourceAI, OutcomeError)
		return nil, err
	}
	e.recorder.ObserveParse(SourceAI, OutcomeOK)
	return doc, nil
}

// Evaluate runs doc against inputs, logging formula warnings.
func (e *Engine) Evaluate(ctx context.Context, doc *types.RuleDocument, inputs types.Inputs) (*types.EvaluationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(inputs) > types.MaxInputs {
		return nil, types.ErrTooManyInputs
	}
	if err := ValidateDocument(doc); err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := Evaluate(doc, inputs)
	elapsed := time.Since(start)

	if err != nil {
		e.recorder.ObserveEvaluation(doc.Kind, OutcomeError, elapsed)
		e.logger.Warn().Err(err).Str("kind", string(doc.Kind)).Msg("evaluation failed")
		return nil, err
	}

	if n := len(res.Warnings); n > 0 {
		e.recorder.FormulaFailures(n)
		for _, w := range res.Warnings {
			e.logger.Warn().Str("kind", string(doc.Kind)).Msg(w)
		}
	}
	e.recorder.ObserveEvaluation(doc.Kind, OutcomeOK, elapsed)
	return res, nil
}

// ValidateDocument rejects documents the evaluator should not run:
// nil documents and condition trees nested beyond MaxConditionDepth.
func ValidateDocument(doc *types.RuleDocument) error {
	if doc == nil {
		return types.ErrUnknownDocumentShape
	}
	for i, r := range doc.Rules {
		if ConditionDepth(r.Condition) > MaxConditionDepth {
			return fmt.Errorf("%w: rule %d nests deeper than %d", types.ErrDocumentTooComplex, i, MaxConditionDepth)
		}
	}
	for i, rl := range doc.RiskLevels {
		if ConditionDepth(rl.Condition) > MaxConditionDepth {
			return fmt.Errorf("%w: risk level %d nests deeper than %d", types.ErrDocumentTooComplex, i, MaxConditionDepth)
		}
	}
	return nil
}
