package syntaxchunk

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// Point is a 0-indexed row/column position in the source.
type Point struct {
	Row    uint32
	Column uint32
}

// Node is a lightweight AST node carrying its parent, so the chunker
// can walk ancestry to decide e.g. whether an assignment is module-level.
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	Parent     *Node
	Children   []*Node
}

// Content returns the node's source slice.
func (n *Node) Content(source []byte) string {
	if n == nil || n.StartByte >= n.EndByte || int(n.EndByte) > len(source) {
		return ""
	}
	return string(source[n.StartByte:n.EndByte])
}

// StartLine returns the node's 1-indexed start line.
func (n *Node) StartLine() int { return int(n.StartPoint.Row) + 1 }

// EndLine returns the node's 1-indexed end line.
func (n *Node) EndLine() int { return int(n.EndPoint.Row) + 1 }

// FindChildByType returns the first direct child of the given type.
func (n *Node) FindChildByType(nodeType string) *Node {
	for _, c := range n.Children {
		if c.Type == nodeType {
			return c
		}
	}
	return nil
}

// Walk calls fn for every node in the subtree, pre-order. fn returning
// false stops descent into that node's children (siblings still walked).
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// HasAncestorOfType reports whether any ancestor of n has one of the
// given types — used to discard assignments nested inside a function
// or class body (module-level assignments only).
func (n *Node) HasAncestorOfType(types map[string]bool) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if types[p.Type] {
			return true
		}
	}
	return false
}

// Tree is a parsed source file.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// Parser wraps tree-sitter for the eight supported languages.
type Parser struct {
	parser   *sitter.Parser
	registry *LanguageRegistry
}

// NewParser builds a parser against the default language registry.
func NewParser() *Parser {
	return &Parser{parser: sitter.NewParser(), registry: DefaultRegistry()}
}

// Parse parses source as the given language name.
func (p *Parser) Parse(ctx context.Context, source []byte, language string) (*Tree, error) {
	tsLang, ok := p.registry.TreeSitterLanguage(language)
	if !ok {
		return nil, fmt.Errorf("unsupported language: %s", language)
	}
	p.parser.SetLanguage(tsLang)

	tsTree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse failed: %w", err)
	}
	if tsTree == nil {
		return nil, fmt.Errorf("parse failed: nil tree")
	}
	root := convertNode(tsTree.RootNode(), nil)
	return &Tree{Root: root, Source: source, Language: language}, nil
}

// Close releases the underlying tree-sitter parser.
func (p *Parser) Close() {
	if p.parser != nil {
		p.parser.Close()
	}
}

func convertNode(tsNode *sitter.Node, parent *Node) *Node {
	if tsNode == nil {
		return nil
	}
	n := &Node{
		Type:       tsNode.Type(),
		StartByte:  tsNode.StartByte(),
		EndByte:    tsNode.EndByte(),
		StartPoint: Point{Row: tsNode.StartPoint().Row, Column: tsNode.StartPoint().Column},
		EndPoint:   Point{Row: tsNode.EndPoint().Row, Column: tsNode.EndPoint().Column},
		Parent:     parent,
	}
	n.Children = make([]*Node, 0, int(tsNode.ChildCount()))
	for i := 0; i < int(tsNode.ChildCount()); i++ {
		child := tsNode.Child(i)
		if child != nil {
			n.Children = append(n.Children, convertNode(child, n))
		}
	}
	return n
}
