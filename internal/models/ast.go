package models

import (
	"fmt"
)

// NodeType identifies a rule AST node
type NodeType string

const (
	NodeCondition NodeType = "condition"
	NodeAnd       NodeType = "AND"
	NodeOr        NodeType = "OR"
	NodeNot       NodeType = "NOT"
)

// IsComposite reports whether the node type combines children
func (t NodeType) IsComposite() bool {
	return t == NodeAnd || t == NodeOr || t == NodeNot
}

// Node is one node of a rule AST. A condition leaf carries ID and Params;
// AND/OR/NOT composites carry Children.
type Node struct {
	Type     NodeType               `json:"type" toml:"type"`
	ID       string                 `json:"id,omitempty" toml:"id,omitempty"`
	Params   map[string]interface{} `json:"params,omitempty" toml:"params,omitempty"`
	Children []*Node                `json:"children,omitempty" toml:"children,omitempty"`
}

// Condition builds a condition leaf
func Condition(id string, params map[string]interface{}) *Node {
	return &Node{Type: NodeCondition, ID: id, Params: params}
}

// And builds an AND composite
func And(children ...*Node) *Node {
	return &Node{Type: NodeAnd, Children: children}
}

// Or builds an OR composite
func Or(children ...*Node) *Node {
	return &Node{Type: NodeOr, Children: children}
}

// Not builds a NOT composite
func Not(children ...*Node) *Node {
	return &Node{Type: NodeNot, Children: children}
}

// Validate checks the structural shape of the tree. Condition ids and params
// are not checked here; the compiler drops the ones it cannot use.
func (n *Node) Validate() error {
	if n == nil {
		return ErrInvalidAST
	}
	switch {
	case n.Type == NodeCondition:
		if n.ID == "" {
			return ErrMissingConditionID
		}
		return nil
	case n.Type.IsComposite():
		if len(n.Children) == 0 {
			return fmt.Errorf("%s: %w", n.Type, ErrEmptyComposite)
		}
		for i, child := range n.Children {
			if err := child.Validate(); err != nil {
				return fmt.Errorf("%s child %d: %w", n.Type, i, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidNodeType, n.Type)
	}
}

// Walk visits the tree in pre-order. Returning false from fn skips the
// node's children.
func (n *Node) Walk(fn func(node *Node, parents []*Node) bool) {
	n.walk(fn, nil)
}

func (n *Node) walk(fn func(node *Node, parents []*Node) bool, parents []*Node) {
	if n == nil {
		return
	}
	if !fn(n, parents) {
		return
	}
	next := append(parents[:len(parents):len(parents)], n)
	for _, child := range n.Children {
		child.walk(fn, next)
	}
}

// Conditions returns the condition leaves in pre-order
func (n *Node) Conditions() []*Node {
	var out []*Node
	n.Walk(func(node *Node, _ []*Node) bool {
		if node.Type == NodeCondition {
			out = append(out, node)
		}
		return true
	})
	return out
}

// Clone returns a deep copy of the tree. Param values are copied shallowly.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := &Node{Type: n.Type, ID: n.ID}
	if n.Params != nil {
		c.Params = make(map[string]interface{}, len(n.Params))
		for k, v := range n.Params {
			c.Params[k] = v
		}
	}
	if n.Children != nil {
		c.Children = make([]*Node, len(n.Children))
		for i, child := range n.Children {
			c.Children[i] = child.Clone()
		}
	}
	return c
}
