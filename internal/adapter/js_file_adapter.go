// Package adapter contains UI and infrastructure adapters for the covfold CLI.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"unsafe"

	"github.com/alexaandru/go-sitter-forest/javascript"
	"github.com/alexaandru/go-sitter-forest/tsx"
	"github.com/alexaandru/go-sitter-forest/typescript"
	sitter "github.com/alexaandru/go-tree-sitter-bare"

	m "covfold.dev/pkg/covfold/internal/model"
)

var errNoRootNode = errors.New("js file adapter: no root node")

// ByteSpan is a half-open byte range in original source text.
type ByteSpan struct {
	Start int
	End   int
}

// Contains reports whether other lies fully inside this span.
func (s ByteSpan) Contains(other ByteSpan) bool {
	return s.Start <= other.Start && other.End <= s.End
}

// Len returns the span width in bytes.
func (s ByteSpan) Len() int {
	return s.End - s.Start
}

// StatementUnit is one countable statement.
type StatementUnit struct {
	Span ByteSpan
	Loc  m.Range
}

// FunctionUnit is one countable function. Span covers the body, which is
// the region execution counts attach to.
type FunctionUnit struct {
	Name string
	Span ByteSpan
	Decl m.Range
	Loc  m.Range
	Line int
}

// ArmUnit is one arm of a branch group.
type ArmUnit struct {
	Span ByteSpan
	Loc  m.Range
}

// BranchUnit is one branch group: an if/else pair, a ternary, a logical
// operator chain, or a switch with its cases.
type BranchUnit struct {
	Type string
	Span ByteSpan
	Loc  m.Range
	Arms []ArmUnit
	Line int
}

// FileStructure is the unit inventory for one source file in pre-order.
// Parsing the same text always yields the same inventory, so unit indexes
// are stable ids that coverage counters can be summed by.
type FileStructure struct {
	Statements []StatementUnit
	Functions  []FunctionUnit
	Branches   []BranchUnit
}

// JSFileAdapter encapsulates JavaScript-specific parsing and unit
// extraction so the domain layer can focus on count attribution while
// delegating grammar details to an infrastructure component.
type JSFileAdapter interface {
	// ExtractStructure parses source text and returns its statements,
	// functions, and branch groups in deterministic pre-order.
	ExtractStructure(ctx context.Context, path m.Path, src []byte) (*FileStructure, error)
}

// TreeSitterFileAdapter provides a concrete JSFileAdapter backed by
// tree-sitter grammars for JavaScript, TypeScript, and TSX.
type TreeSitterFileAdapter struct {
	pools sync.Map // language name -> *sync.Pool of *sitter.Parser
}

// NewTreeSitterFileAdapter constructs a TreeSitterFileAdapter.
func NewTreeSitterFileAdapter() *TreeSitterFileAdapter {
	return &TreeSitterFileAdapter{}
}

var languageFuncs = map[string]func() unsafe.Pointer{
	"javascript": javascript.GetLanguage,
	"typescript": typescript.GetLanguage,
	"tsx":        tsx.GetLanguage,
}

var languages sync.Map // language name -> *sitter.Language

func grammarFor(path m.Path) string {
	switch strings.ToLower(filepath.Ext(string(path))) {
	case ".ts", ".mts", ".cts":
		return "typescript"
	case ".tsx":
		return "tsx"
	default:
		return "javascript"
	}
}

func language(name string) *sitter.Language {
	if cached, ok := languages.Load(name); ok {
		return cached.(*sitter.Language)
	}

	fn, ok := languageFuncs[name]
	if !ok {
		return nil
	}

	lang := sitter.NewLanguage(fn())
	languages.Store(name, lang)

	return lang
}

func (a *TreeSitterFileAdapter) parserPool(name string) *sync.Pool {
	if pool, ok := a.pools.Load(name); ok {
		return pool.(*sync.Pool)
	}

	pool := &sync.Pool{
		New: func() any {
			parser := sitter.NewParser()
			parser.SetLanguage(language(name))

			return parser
		},
	}

	actual, _ := a.pools.LoadOrStore(name, pool)

	return actual.(*sync.Pool)
}

// ExtractStructure parses src with the grammar selected by the path's
// extension and walks the tree collecting coverage units.
func (a *TreeSitterFileAdapter) ExtractStructure(ctx context.Context, path m.Path, src []byte) (*FileStructure, error) {
	name := grammarFor(path)

	pool := a.parserPool(name)
	parser := pool.Get().(*sitter.Parser)
	defer pool.Put(parser)

	tree, err := parser.ParseString(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.IsNull() {
		return nil, errNoRootNode
	}

	ex := &extractor{src: src, out: &FileStructure{}}
	ex.walk(root, "")

	return ex.out, nil
}

// extractor accumulates units during a single pre-order walk.
type extractor struct {
	src []byte
	out *FileStructure
}

var statementTypes = map[string]struct{}{
	"expression_statement": {},
	"variable_declaration": {},
	"lexical_declaration":  {},
	"return_statement":     {},
	"if_statement":         {},
	"for_statement":        {},
	"for_in_statement":     {},
	"while_statement":      {},
	"do_statement":         {},
	"break_statement":      {},
	"continue_statement":   {},
	"throw_statement":      {},
	"try_statement":        {},
	"switch_statement":     {},
	"labeled_statement":    {},
	"debugger_statement":   {},
	"with_statement":       {},
	"class_declaration":    {},
}

var functionTypes = map[string]struct{}{
	"function_declaration":           {},
	"function_expression":            {},
	"function":                       {},
	"generator_function_declaration": {},
	"generator_function":             {},
	"arrow_function":                 {},
	"method_definition":              {},
}

// walk visits node and its named children in source order. suppressOp
// names a logical operator whose chain this node continues; such nodes
// were already folded into their chain root's branch group.
func (ex *extractor) walk(node sitter.Node, suppressOp string) {
	nodeType := node.Type()

	if _, ok := statementTypes[nodeType]; ok {
		ex.addStatement(node)
	}

	if _, ok := functionTypes[nodeType]; ok {
		ex.addFunction(node)
	}

	childSuppress := ""

	switch nodeType {
	case "if_statement":
		ex.addIfBranch(node)
	case "ternary_expression":
		ex.addTernaryBranch(node)
	case "switch_statement":
		ex.addSwitchBranch(node)
	case "binary_expression":
		op := ex.operator(node)
		if isLogicalOp(op) {
			if op != suppressOp {
				ex.addLogicalBranch(node, op)
			}

			childSuppress = op
		}
	}

	for i := range node.NamedChildCount() {
		child := node.NamedChild(i)

		suppress := ""
		if childSuppress != "" && i == 0 {
			// Only the left operand continues a logical chain.
			suppress = childSuppress
		}

		ex.walk(child, suppress)
	}
}

func (ex *extractor) addStatement(node sitter.Node) {
	ex.out.Statements = append(ex.out.Statements, StatementUnit{
		Span: spanOf(node),
		Loc:  rangeOf(node),
	})
}

func (ex *extractor) addFunction(node sitter.Node) {
	body := node.ChildByFieldName("body")
	if body.IsNull() {
		return
	}

	name := ""
	decl := rangeOf(node)

	if id := node.ChildByFieldName("name"); !id.IsNull() {
		name = ex.text(id)
		decl = rangeOf(id)
	} else if params := node.ChildByFieldName("parameters"); !params.IsNull() {
		decl = rangeOf(params)
	} else if param := node.ChildByFieldName("parameter"); !param.IsNull() {
		decl = rangeOf(param)
	}

	if name == "" {
		name = fmt.Sprintf("(anonymous_%d)", len(ex.out.Functions))
	}

	ex.out.Functions = append(ex.out.Functions, FunctionUnit{
		Name: name,
		Span: spanOf(body),
		Decl: decl,
		Loc:  rangeOf(body),
		Line: int(node.StartPoint().Row) + 1,
	})
}

func (ex *extractor) addIfBranch(node sitter.Node) {
	consequence := node.ChildByFieldName("consequence")
	if consequence.IsNull() {
		return
	}

	arms := []ArmUnit{{Span: spanOf(consequence), Loc: rangeOf(consequence)}}

	if alternative := node.ChildByFieldName("alternative"); !alternative.IsNull() {
		// The else_clause wraps the actual else statement.
		arm := alternative
		if alternative.NamedChildCount() > 0 {
			arm = alternative.NamedChild(0)
		}

		arms = append(arms, ArmUnit{Span: spanOf(arm), Loc: rangeOf(arm)})
	}

	ex.addBranch("if", node, arms)
}

func (ex *extractor) addTernaryBranch(node sitter.Node) {
	consequence := node.ChildByFieldName("consequence")
	alternative := node.ChildByFieldName("alternative")

	if consequence.IsNull() || alternative.IsNull() {
		return
	}

	ex.addBranch("cond-expr", node, []ArmUnit{
		{Span: spanOf(consequence), Loc: rangeOf(consequence)},
		{Span: spanOf(alternative), Loc: rangeOf(alternative)},
	})
}

func (ex *extractor) addSwitchBranch(node sitter.Node) {
	body := node.ChildByFieldName("body")
	if body.IsNull() {
		return
	}

	var arms []ArmUnit

	for i := range body.NamedChildCount() {
		child := body.NamedChild(i)

		switch child.Type() {
		case "switch_case", "switch_default":
			arms = append(arms, ArmUnit{Span: spanOf(child), Loc: rangeOf(child)})
		}
	}

	if len(arms) == 0 {
		return
	}

	ex.addBranch("switch", node, arms)
}

func (ex *extractor) addLogicalBranch(node sitter.Node, op string) {
	operands := ex.logicalOperands(node, op)
	if len(operands) < 2 {
		return
	}

	arms := make([]ArmUnit, 0, len(operands))
	for _, operand := range operands {
		arms = append(arms, ArmUnit{Span: spanOf(operand), Loc: rangeOf(operand)})
	}

	ex.addBranch("binary-expr", node, arms)
}

// logicalOperands flattens a left-nested chain of the same logical
// operator into its operands in source order. Parenthesized operands end
// the chain, matching how readers group them.
func (ex *extractor) logicalOperands(node sitter.Node, op string) []sitter.Node {
	left := node.ChildByFieldName("left")
	right := node.ChildByFieldName("right")

	var operands []sitter.Node

	if !left.IsNull() {
		if left.Type() == "binary_expression" && ex.operator(left) == op {
			operands = append(operands, ex.logicalOperands(left, op)...)
		} else {
			operands = append(operands, left)
		}
	}

	if !right.IsNull() {
		operands = append(operands, right)
	}

	return operands
}

func (ex *extractor) addBranch(branchType string, node sitter.Node, arms []ArmUnit) {
	ex.out.Branches = append(ex.out.Branches, BranchUnit{
		Type: branchType,
		Span: spanOf(node),
		Loc:  rangeOf(node),
		Arms: arms,
		Line: int(node.StartPoint().Row) + 1,
	})
}

func (ex *extractor) operator(node sitter.Node) string {
	op := node.ChildByFieldName("operator")
	if op.IsNull() {
		return ""
	}

	return ex.text(op)
}

func (ex *extractor) text(node sitter.Node) string {
	start, end := int(node.StartByte()), int(node.EndByte())
	if start < 0 || end > len(ex.src) || start > end {
		return ""
	}

	return string(ex.src[start:end])
}

func isLogicalOp(op string) bool {
	return op == "&&" || op == "||" || op == "??"
}

func spanOf(node sitter.Node) ByteSpan {
	return ByteSpan{Start: int(node.StartByte()), End: int(node.EndByte())}
}

func rangeOf(node sitter.Node) m.Range {
	start, end := node.StartPoint(), node.EndPoint()

	return m.Range{
		Start: m.Position{Line: int(start.Row) + 1, Column: int(start.Column)},
		End:   m.Position{Line: int(end.Row) + 1, Column: int(end.Column)},
	}
}
