// Package rules implements the bounded boolean expression trees that gate
// modifier application. Expressions arrive as JSON trees, are compiled into
// typed nodes with hard safety limits, and are interpreted against a
// read-only context. No expression string is ever evaluated as code.
package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Op is the node discriminator of the expression tree.
type Op string

const (
	OpAnd     Op = "and"
	OpOr      Op = "or"
	OpNot     Op = "not"
	OpEq      Op = "eq"
	OpNe      Op = "ne"
	OpGt      Op = "gt"
	OpGte     Op = "gte"
	OpLt      Op = "lt"
	OpLte     Op = "lte"
	OpField   Op = "field"
	OpLiteral Op = "literal"
)

// rawNode is the wire shape of one expression node.
type rawNode struct {
	Op    Op          `json:"op"`
	Path  string      `json:"path,omitempty"`
	Value interface{} `json:"value,omitempty"`
	Left  *rawNode    `json:"left,omitempty"`
	Right *rawNode    `json:"right,omitempty"`
	Args  []*rawNode  `json:"args,omitempty"`
}

// node is the compiled form. Field paths are kept as structured segment
// lists, never re-split at evaluation time.
type node struct {
	op    Op
	path  []string
	value interface{}
	left  *node
	right *node
	args  []*node
}

// Program is one compiled, immutable rule expression.
type Program struct {
	root        *node
	ContentHash string
	nodeCount   int
	maxDepth    int
}

// NodeCount reports the compiled node count (diagnostics).
func (p *Program) NodeCount() int { return p.nodeCount }

// Depth reports the compiled tree depth (diagnostics).
func (p *Program) Depth() int { return p.maxDepth }

func decodeRaw(expression []byte) (*rawNode, error) {
	dec := json.NewDecoder(bytes.NewReader(expression))
	dec.UseNumber()
	var raw rawNode
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("rule expression is not a JSON tree: %w", err)
	}
	return &raw, nil
}

func splitPath(path string) []string {
	return strings.Split(path, ".")
}
