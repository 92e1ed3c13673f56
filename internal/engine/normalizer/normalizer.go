package normalizer

import (
	"fmt"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// DefaultPromiseCalls is the default allow-list of promise-returning
// call patterns used for missing-await detection. Callers can override
// it through Options to avoid false positives on their own APIs.
var DefaultPromiseCalls = []string{"fetch", "json", "text", "blob", "arrayBuffer", "formData"}

type Options struct {
	Language     string // "javascript" (default) or "typescript"
	PromiseCalls []string
}

// Normalizer turns the source text of a single function into an ordered
// statement sequence. It holds only configuration; every Normalize call
// allocates fresh state and is safe for concurrent use.
type Normalizer struct {
	language     *sitter.Language
	promiseCalls map[string]bool
}

func New(opts Options) (*Normalizer, error) {
	var lang *sitter.Language
	switch opts.Language {
	case "", "javascript":
		lang = sitter.NewLanguage(tree_sitter_javascript.Language())
	case "typescript":
		lang = sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript())
	default:
		return nil, fmt.Errorf("unsupported language %q", opts.Language)
	}

	calls := opts.PromiseCalls
	if calls == nil {
		calls = DefaultPromiseCalls
	}
	set := make(map[string]bool, len(calls))
	for _, name := range calls {
		name = strings.TrimSpace(name)
		if name != "" {
			set[name] = true
		}
	}

	return &Normalizer{language: lang, promiseCalls: set}, nil
}

// Normalize parses the text of exactly one function declaration or
// expression and returns its statements in strict source order.
func (n *Normalizer) Normalize(source []byte) ([]Statement, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(n.language)

	tree := parser.Parse(source, nil)
	if tree == nil {
		return nil, &ParseError{Message: "parse failed"}
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, errorAt(firstErrorNode(root), "syntax error")
	}

	fn, err := findFunction(root)
	if err != nil {
		return nil, err
	}

	w := &walker{src: source, promiseCalls: n.promiseCalls, nextChain: 0}

	body := fn.ChildByFieldName("body")
	if body == nil {
		return nil, errorAt(fn, "function has no body")
	}
	if body.Kind() == "statement_block" {
		w.block(body)
	} else {
		// Arrow function with an expression body behaves like a single
		// return statement.
		w.emit(Statement{
			Kind:       KindReturn,
			Span:       spanOf(body),
			Text:       nodeText(body, source),
			Referenced: freeIdentifiers(body, source),
			ChainID:    -1,
		})
	}

	return w.stmts, nil
}

// findFunction locates the single function the source must contain.
// Shape violations are plain errors, not ParseErrors: the text parsed
// fine, it just is not one function.
func findFunction(root *sitter.Node) (*sitter.Node, error) {
	var top []*sitter.Node
	for i := uint(0); i < root.NamedChildCount(); i++ {
		child := root.NamedChild(i)
		if child.Kind() == "comment" {
			continue
		}
		top = append(top, child)
	}
	if len(top) == 0 {
		return nil, fmt.Errorf("no function found in input")
	}
	if len(top) > 1 {
		return nil, fmt.Errorf("expected exactly one function, found %d top-level statements", len(top))
	}

	fn := unwrapFunction(top[0])
	if fn == nil {
		return nil, fmt.Errorf("input is not a function declaration or expression")
	}
	return fn, nil
}

func unwrapFunction(node *sitter.Node) *sitter.Node {
	switch node.Kind() {
	case "function_declaration", "generator_function_declaration",
		"function_expression", "arrow_function", "method_definition":
		return node
	case "export_statement":
		if decl := node.ChildByFieldName("declaration"); decl != nil {
			return unwrapFunction(decl)
		}
	case "expression_statement", "parenthesized_expression":
		for i := uint(0); i < node.NamedChildCount(); i++ {
			if fn := unwrapFunction(node.NamedChild(i)); fn != nil {
				return fn
			}
		}
	case "lexical_declaration", "variable_declaration":
		for i := uint(0); i < node.NamedChildCount(); i++ {
			decl := node.NamedChild(i)
			if decl.Kind() != "variable_declarator" {
				continue
			}
			if value := decl.ChildByFieldName("value"); value != nil {
				if fn := unwrapFunction(value); fn != nil {
					return fn
				}
			}
		}
	}
	return nil
}

type walker struct {
	src          []byte
	promiseCalls map[string]bool
	stmts        []Statement
	nextChain    int
}

func (w *walker) emit(st Statement) {
	st.ID = len(w.stmts)
	w.stmts = append(w.stmts, st)
}

func (w *walker) block(node *sitter.Node) {
	for i := uint(0); i < node.NamedChildCount(); i++ {
		w.statement(node.NamedChild(i))
	}
}

func (w *walker) statement(node *sitter.Node) {
	switch node.Kind() {
	case "comment":
	case "statement_block":
		w.block(node)
	case "lexical_declaration", "variable_declaration":
		for i := uint(0); i < node.NamedChildCount(); i++ {
			decl := node.NamedChild(i)
			if decl.Kind() == "variable_declarator" {
				w.declarator(node, decl)
			}
		}
	case "expression_statement":
		if expr := node.NamedChild(0); expr != nil {
			w.expression(node, expr)
		}
	case "return_statement":
		w.emit(Statement{
			Kind:       KindReturn,
			Span:       spanOf(node),
			Text:       nodeText(node, w.src),
			Referenced: freeIdentifiers(node, w.src),
			ChainID:    -1,
		})
	case "throw_statement":
		w.emit(Statement{
			Kind:       KindThrow,
			Span:       spanOf(node),
			Text:       nodeText(node, w.src),
			Referenced: freeIdentifiers(node, w.src),
			ChainID:    -1,
		})
	case "try_statement":
		w.tryStatement(node)
	case "for_statement", "for_in_statement", "while_statement", "do_statement":
		w.loop(node)
	case "if_statement":
		if cons := node.ChildByFieldName("consequence"); cons != nil {
			w.statement(cons)
		}
		if alt := node.ChildByFieldName("alternative"); alt != nil {
			for i := uint(0); i < alt.NamedChildCount(); i++ {
				w.statement(alt.NamedChild(i))
			}
		}
	default:
		w.emit(Statement{
			Kind:       KindPlain,
			Span:       spanOf(node),
			Text:       nodeText(node, w.src),
			Referenced: freeIdentifiers(node, w.src),
			ChainID:    -1,
		})
	}
}

func (w *walker) declarator(stmt, decl *sitter.Node) {
	var bound []string
	if name := decl.ChildByFieldName("name"); name != nil {
		bound = patternIdentifiers(name, w.src)
	}
	value := decl.ChildByFieldName("value")
	w.classifyValue(stmt, value, bound, true)
}

func (w *walker) expression(stmt, expr *sitter.Node) {
	if expr.Kind() == "assignment_expression" {
		var bound []string
		if left := expr.ChildByFieldName("left"); left != nil {
			bound = patternIdentifiers(left, w.src)
		}
		w.classifyValue(stmt, expr.ChildByFieldName("right"), bound, false)
		return
	}
	w.classifyValue(stmt, expr, nil, false)
}

// classifyValue emits the statement(s) for one assigned or freestanding
// expression. bound names come from the surrounding declarator or
// assignment target; declared marks fresh const/let/var bindings.
func (w *walker) classifyValue(stmt, value *sitter.Node, bound []string, declared bool) {
	base := Statement{
		Span:    spanOf(stmt),
		Text:    nodeText(stmt, w.src),
		Bound:   bound,
		ChainID: -1,
	}
	if declared {
		base.Declared = append([]string(nil), bound...)
	}

	if value == nil {
		base.Kind = KindPlain
		w.emit(base)
		return
	}

	if value.Kind() == "await_expression" {
		inner := value.NamedChild(0)
		base.Kind = KindAwait
		if inner != nil {
			base.AwaitText = nodeText(inner, w.src)
			base.IsBatch = isPromiseBatch(inner, w.src)
			base.Referenced = subtract(freeIdentifiers(inner, w.src), bound)
		}
		w.emit(base)
		return
	}

	if links := chainLinks(value, w.src); len(links) > 0 {
		w.emitChain(stmt, value, links, bound, declared)
		return
	}

	if containsAwait(value) {
		base.Kind = KindAwait
		if inner := firstAwaitArgument(value); inner != nil {
			base.AwaitText = nodeText(inner, w.src)
			base.IsBatch = isPromiseBatch(inner, w.src)
		}
		base.Referenced = subtract(freeIdentifiers(value, w.src), bound)
		w.emit(base)
		return
	}

	base.Kind = KindPlain
	base.Referenced = subtract(freeIdentifiers(value, w.src), bound)
	if value.Kind() == "call_expression" {
		if callee := calleeName(value, w.src); w.promiseCalls[callee] {
			base.PromiseCall = callee
			base.CallText = nodeText(value, w.src)
		}
	}
	w.emit(base)
}

// chainLink is one .then/.catch/.finally call of a promise chain,
// innermost first.
type chainLink struct {
	kind Kind
	call *sitter.Node
	base *sitter.Node // receiver expression, set on the first link only
}

// chainLinks unwinds a member-call chain such as
// fetch(u).then(a).then(b).catch(c) into its links. Returns nil when the
// expression is not a promise chain.
func chainLinks(node *sitter.Node, src []byte) []chainLink {
	if node == nil || node.Kind() != "call_expression" {
		return nil
	}
	fn := node.ChildByFieldName("function")
	if fn == nil || fn.Kind() != "member_expression" {
		return nil
	}
	prop := fn.ChildByFieldName("property")
	if prop == nil {
		return nil
	}

	var kind Kind
	switch nodeText(prop, src) {
	case "then":
		kind = KindThenCall
	case "catch":
		kind = KindCatchCall
	case "finally":
		kind = KindFinallyCall
	default:
		return nil
	}

	object := fn.ChildByFieldName("object")
	inner := chainLinks(object, src)
	if inner == nil {
		return []chainLink{{kind: kind, call: node, base: object}}
	}
	return append(inner, chainLink{kind: kind, call: node})
}

func (w *walker) emitChain(stmt, value *sitter.Node, links []chainLink, bound []string, declared bool) {
	chainID := w.nextChain
	w.nextChain++

	for i, link := range links {
		st := Statement{
			Kind:    link.kind,
			Span:    spanOf(link.call),
			Text:    nodeText(stmt, w.src),
			ChainID: chainID,
		}
		if link.base != nil {
			st.Referenced = freeIdentifiers(link.base, w.src)
		}
		if args := link.call.ChildByFieldName("arguments"); args != nil {
			st.Referenced = append(st.Referenced, freeIdentifiers(args, w.src)...)
		}
		st.Referenced = subtract(dedupe(st.Referenced), bound)
		if i == len(links)-1 {
			st.Bound = bound
			if declared {
				st.Declared = append([]string(nil), bound...)
			}
		}
		w.emit(st)
	}
	_ = value
}

func (w *walker) tryStatement(node *sitter.Node) {
	handler := node.ChildByFieldName("handler")
	finalizer := node.ChildByFieldName("finalizer")

	w.emit(Statement{
		Kind:       KindTryEnter,
		Span:       spanOf(node),
		Text:       firstLine(nodeText(node, w.src)),
		HasCatch:   handler != nil,
		HasFinally: finalizer != nil,
		ChainID:    -1,
	})

	if body := node.ChildByFieldName("body"); body != nil {
		w.block(body)
	}

	w.emit(Statement{
		Kind:    KindTryExit,
		Span:    spanOf(node),
		ChainID: -1,
	})

	// Catch and finally bodies run outside the guarded region; their
	// statements are flattened after the exit marker.
	if handler != nil {
		if body := handler.ChildByFieldName("body"); body != nil {
			w.block(body)
		}
	}
	if finalizer != nil {
		for i := uint(0); i < finalizer.NamedChildCount(); i++ {
			if finalizer.NamedChild(i).Kind() == "statement_block" {
				w.block(finalizer.NamedChild(i))
			}
		}
	}
}

func (w *walker) loop(node *sitter.Node) {
	enter := Statement{
		Kind:    KindLoopEnter,
		Span:    spanOf(node),
		Text:    firstLine(nodeText(node, w.src)),
		ChainID: -1,
	}

	switch node.Kind() {
	case "for_in_statement":
		enter.LoopKind = "for-in"
		for i := uint(0); i < node.ChildCount(); i++ {
			child := node.Child(i)
			if !child.IsNamed() && nodeText(child, w.src) == "of" {
				enter.LoopKind = "for-of"
			}
			if !child.IsNamed() && nodeText(child, w.src) == "await" {
				enter.LoopKind = "for-await-of"
			}
		}
		if left := node.ChildByFieldName("left"); left != nil {
			enter.Bound = patternIdentifiers(left, w.src)
			enter.Declared = append([]string(nil), enter.Bound...)
		}
		if right := node.ChildByFieldName("right"); right != nil {
			enter.Referenced = freeIdentifiers(right, w.src)
		}
	case "for_statement":
		enter.LoopKind = "for"
		if init := node.ChildByFieldName("initializer"); init != nil {
			enter.Bound = patternIdentifiers(init, w.src)
			enter.Declared = append([]string(nil), enter.Bound...)
		}
		if cond := node.ChildByFieldName("condition"); cond != nil {
			enter.Referenced = subtract(freeIdentifiers(cond, w.src), enter.Bound)
		}
	default:
		enter.LoopKind = "while"
		if cond := node.ChildByFieldName("condition"); cond != nil {
			enter.Referenced = freeIdentifiers(cond, w.src)
		}
	}
	w.emit(enter)

	if body := node.ChildByFieldName("body"); body != nil {
		w.statement(body)
	}

	w.emit(Statement{
		Kind:    KindLoopExit,
		Span:    spanOf(node),
		ChainID: -1,
	})
}

func isPromiseBatch(node *sitter.Node, src []byte) bool {
	if node == nil || node.Kind() != "call_expression" {
		return false
	}
	fn := node.ChildByFieldName("function")
	if fn == nil || fn.Kind() != "member_expression" {
		return false
	}
	object := fn.ChildByFieldName("object")
	prop := fn.ChildByFieldName("property")
	if object == nil || prop == nil || nodeText(object, src) != "Promise" {
		return false
	}
	switch nodeText(prop, src) {
	case "all", "allSettled", "race", "any":
		return true
	}
	return false
}

func calleeName(call *sitter.Node, src []byte) string {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return ""
	}
	switch fn.Kind() {
	case "identifier":
		return nodeText(fn, src)
	case "member_expression":
		if prop := fn.ChildByFieldName("property"); prop != nil {
			return nodeText(prop, src)
		}
	}
	return ""
}

func containsAwait(node *sitter.Node) bool {
	if node == nil {
		return false
	}
	switch node.Kind() {
	case "await_expression":
		return true
	case "arrow_function", "function_expression", "function_declaration":
		return false
	}
	for i := uint(0); i < node.NamedChildCount(); i++ {
		if containsAwait(node.NamedChild(i)) {
			return true
		}
	}
	return false
}

func firstAwaitArgument(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	if node.Kind() == "await_expression" {
		return node.NamedChild(0)
	}
	for i := uint(0); i < node.NamedChildCount(); i++ {
		if inner := firstAwaitArgument(node.NamedChild(i)); inner != nil {
			return inner
		}
	}
	return nil
}

func firstErrorNode(node *sitter.Node) *sitter.Node {
	if node.IsError() || node.IsMissing() {
		return node
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		if found := firstErrorNode(node.Child(i)); found != nil {
			return found
		}
	}
	return nil
}

func errorAt(node *sitter.Node, message string) *ParseError {
	err := &ParseError{Message: message}
	if node != nil {
		err.Position = spanOf(node)
	}
	return err
}

func spanOf(node *sitter.Node) Span {
	start := node.StartPosition()
	end := node.EndPosition()
	return Span{
		StartByte: int(node.StartByte()),
		EndByte:   int(node.EndByte()),
		StartLine: int(start.Row) + 1,
		StartCol:  int(start.Column) + 1,
		EndLine:   int(end.Row) + 1,
		EndCol:    int(end.Column) + 1,
	}
}

func nodeText(node *sitter.Node, src []byte) string {
	return string(src[node.StartByte():node.EndByte()])
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return text[:idx]
	}
	return text
}
