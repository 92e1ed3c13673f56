package normalizer

import "fmt"

type Kind int

const (
	KindPlain Kind = iota
	KindAwait
	KindThenCall
	KindCatchCall
	KindFinallyCall
	KindTryEnter
	KindTryExit
	KindLoopEnter
	KindLoopExit
	KindReturn
	KindThrow
)

func (k Kind) String() string {
	switch k {
	case KindAwait:
		return "await-expr"
	case KindThenCall:
		return "then-call"
	case KindCatchCall:
		return "catch-call"
	case KindFinallyCall:
		return "finally-call"
	case KindTryEnter:
		return "try-enter"
	case KindTryExit:
		return "try-exit"
	case KindLoopEnter:
		return "loop-enter"
	case KindLoopExit:
		return "loop-exit"
	case KindReturn:
		return "return"
	case KindThrow:
		return "throw"
	default:
		return "plain"
	}
}

// Span is a source text range, bytes plus 1-based line/column.
type Span struct {
	StartByte int
	EndByte   int
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
}

// Statement is one syntactic unit of the analyzed function body, in
// strict source order. Nested try and loop bodies are flattened into the
// same sequence between enter/exit markers.
type Statement struct {
	ID   int
	Kind Kind
	Span Span
	Text string

	// Bound holds identifiers this statement introduces or assigns.
	// Declared is the subset introduced by const/let/var or a loop
	// binding; those are rebound on every conceptual iteration, unlike
	// assignments to an outer name.
	Bound      []string
	Declared   []string
	Referenced []string

	// Await/chain annotations consumed by the flow builder and the
	// suggestion generator.
	AwaitText string // expression text with the leading await stripped
	CallText  string // call expression text for promise-returning calls
	IsBatch   bool   // Promise.all / allSettled / race under the await

	// PromiseCall names the allow-list callee when a plain statement
	// invokes a known promise-returning pattern without awaiting it.
	PromiseCall string

	// ChainID groups then/catch/finally links of one chain; -1 otherwise.
	ChainID int

	// Try/loop marker annotations.
	HasCatch   bool
	HasFinally bool
	LoopKind   string // for, for-of, for-await-of, for-in, while
}

// ParseError reports invalid input: the source is not a syntactically
// valid single function. No partial result accompanies it.
type ParseError struct {
	Position Span
	Message  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at %d:%d: %s", e.Position.StartLine, e.Position.StartCol, e.Message)
}
