package types

import "errors"

// Sentinel errors for scorekeeper operations.
var (
	// ErrUnparseableCondition indicates condition text matched no grammar form.
	// Recoverable: the condition is treated as never matching.
	ErrUnparseableCondition = errors.New("condition could not be parsed")

	// ErrUnknownDocumentShape indicates a document with no kind, no formula and
	// no formula-computed score. Surfaced to the caller as bad input.
	ErrUnknownDocumentShape = errors.New("unknown AST type")

	// ErrExpressionFailed indicates an arithmetic expression could not be evaluated.
	ErrExpressionFailed = errors.New("expression evaluation failed")

	// ErrDisallowedExpression indicates an expression uses syntax outside the
	// arithmetic allow-list (member access, arrays, closures, ...).
	ErrDisallowedExpression = errors.New("expression uses disallowed syntax")

	// ErrDocumentTooComplex indicates a decoded document whose condition
	// nesting exceeds the evaluator's depth bound.
	ErrDocumentTooComplex = errors.New("document too complex")

	// ErrEmptyText indicates an empty rule text or chat message.
	ErrEmptyText = errors.New("text is empty")

	// ErrTextTooLarge indicates rule text exceeding MaxRuleTextSize.
	ErrTextTooLarge = errors.New("text exceeds maximum size")

	// ErrTooManyInputs indicates more than MaxInputs input bindings.
	ErrTooManyInputs = errors.New("too many input variables")

	// ErrAIUnavailable indicates the natural-language parser is not configured.
	ErrAIUnavailable = errors.New("natural-language parser not configured")

	// ErrAIRequestFailed indicates the generative model could not be reached or
	// answered with an error status.
	ErrAIRequestFailed = errors.New("AI request failed")

	// ErrAIResponseInvalid indicates the generative model returned unusable output.
	ErrAIResponseInvalid = errors.New("AI response could not be decoded")

	// ErrNotFound indicates a missing department, formula, or patient field.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness violation (department name, field name).
	ErrConflict = errors.New("already exists")

	// ErrInvalidRecord indicates a registry record failing validation.
	ErrInvalidRecord = errors.New("invalid record")
)
