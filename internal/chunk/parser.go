package chunk

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// parser wraps a tree-sitter parser that can be retargeted between the
// registered grammars. Not safe for concurrent use; each chunker owns
// its own instance.
type parser struct {
	ts *sitter.Parser
}

func newParser() *parser {
	return &parser{ts: sitter.NewParser()}
}

func (p *parser) close() {
	if p.ts != nil {
		p.ts.Close()
	}
}

// tree is a language-agnostic view of a parsed file.
type tree struct {
	root     *node
	source   []byte
	language string
}

type node struct {
	kind      string
	startByte uint32
	endByte   uint32
	startRow  uint32 // 0-indexed
	endRow    uint32
	children  []*node
}

func (p *parser) parse(ctx context.Context, source []byte, language string) (*tree, error) {
	spec, ok := specForLanguage(language)
	if !ok {
		return nil, fmt.Errorf("unsupported language: %s", language)
	}

	p.ts.SetLanguage(spec.grammar)
	tsTree, err := p.ts.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", language, err)
	}
	if tsTree == nil {
		return nil, fmt.Errorf("parse %s: nil tree", language)
	}
	defer tsTree.Close()

	return &tree{
		root:     convertNode(tsTree.RootNode()),
		source:   source,
		language: language,
	}, nil
}

func convertNode(tsNode *sitter.Node) *node {
	if tsNode == nil {
		return nil
	}
	n := &node{
		kind:      tsNode.Type(),
		startByte: tsNode.StartByte(),
		endByte:   tsNode.EndByte(),
		startRow:  tsNode.StartPoint().Row,
		endRow:    tsNode.EndPoint().Row,
		children:  make([]*node, 0, int(tsNode.ChildCount())),
	}
	for i := 0; i < int(tsNode.ChildCount()); i++ {
		if child := tsNode.Child(i); child != nil {
			n.children = append(n.children, convertNode(child))
		}
	}
	return n
}

func (n *node) text(source []byte) string {
	if n.startByte >= n.endByte || int(n.endByte) > len(source) {
		return ""
	}
	return string(source[n.startByte:n.endByte])
}

func (n *node) child(kind string) *node {
	for _, c := range n.children {
		if c.kind == kind {
			return c
		}
	}
	return nil
}

// walk visits nodes depth-first; fn returning false prunes the subtree.
func (n *node) walk(fn func(*node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.children {
		c.walk(fn)
	}
}
