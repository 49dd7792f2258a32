package rules

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// missing is the sentinel for unresolved field paths. Lookups never throw;
// comparisons against missing are simply false (true for "ne").
type missingValue struct{}

var missing = missingValue{}

// Context is the read-only evaluation context. Top-level keys are the
// allow-listed roots ("proposal", "computed", ...).
type Context map[string]interface{}

// Eval interprets the program against ctx. The interpreter is budgeted:
// exceeding MaxEvalOperations returns an EvalError.
func (p *Program) Eval(ctx Context) (bool, error) {
	ev := &evaluator{ctx: ctx, budget: MaxEvalOperations}
	v, err := ev.eval(p.root, 1)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, evalError("rule did not evaluate to a boolean")
	}
	return b, nil
}

type evaluator struct {
	ctx    Context
	budget int
}

func (e *evaluator) spend() error {
	e.budget--
	if e.budget < 0 {
		return evalErrorf("rule exceeded %d operations", MaxEvalOperations)
	}
	return nil
}

func (e *evaluator) eval(n *node, depth int) (interface{}, error) {
	if err := e.spend(); err != nil {
		return nil, err
	}
	if depth > MaxDepth {
		return nil, evalErrorf("rule evaluation depth exceeds %d", MaxDepth)
	}

	switch n.op {
	case OpAnd:
		// Short-circuit: stop on the first false.
		for _, a := range n.args {
			v, err := e.eval(a, depth+1)
			if err != nil {
				return nil, err
			}
			if !truthy(v) {
				return false, nil
			}
		}
		return true, nil

	case OpOr:
		for _, a := range n.args {
			v, err := e.eval(a, depth+1)
			if err != nil {
				return nil, err
			}
			if truthy(v) {
				return true, nil
			}
		}
		return false, nil

	case OpNot:
		v, err := e.eval(n.left, depth+1)
		if err != nil {
			return nil, err
		}
		return !truthy(v), nil

	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
		lv, err := e.eval(n.left, depth+1)
		if err != nil {
			return nil, err
		}
		rv, err := e.eval(n.right, depth+1)
		if err != nil {
			return nil, err
		}
		return compare(n.op, lv, rv), nil

	case OpField:
		return resolve(e.ctx, n.path), nil

	case OpLiteral:
		return n.value, nil
	}
	return nil, evalErrorf("unknown operator %q", n.op)
}

// resolve walks the structured path against nested maps. Unknown segments
// resolve to the missing sentinel.
func resolve(ctx Context, path []string) interface{} {
	var cur interface{} = map[string]interface{}(ctx)
	for _, seg := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return missing
		}
		cur, ok = m[seg]
		if !ok {
			return missing
		}
	}
	return cur
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case missingValue:
		return false
	case nil:
		return false
	default:
		return true
	}
}

// compare applies a comparison operator. Numeric operands compare as
// decimals; strings compare lexicographically; anything involving the
// missing sentinel is false, except "ne" which is true.
func compare(op Op, l, r interface{}) bool {
	_, lMissing := l.(missingValue)
	_, rMissing := r.(missingValue)
	if lMissing || rMissing {
		return op == OpNe
	}

	if ld, lok := asDecimal(l); lok {
		if rd, rok := asDecimal(r); rok {
			cmp := ld.Cmp(rd)
			return cmpResult(op, cmp)
		}
	}

	ls, lok := l.(string)
	rs, rok := r.(string)
	if lok && rok {
		switch {
		case ls == rs:
			return cmpResult(op, 0)
		case ls < rs:
			return cmpResult(op, -1)
		default:
			return cmpResult(op, 1)
		}
	}

	lb, lok := l.(bool)
	rb, rok := r.(bool)
	if lok && rok {
		switch op {
		case OpEq:
			return lb == rb
		case OpNe:
			return lb != rb
		}
		return false
	}

	// Mixed incomparable types.
	return op == OpNe
}

func cmpResult(op Op, cmp int) bool {
	switch op {
	case OpEq:
		return cmp == 0
	case OpNe:
		return cmp != 0
	case OpGt:
		return cmp > 0
	case OpGte:
		return cmp >= 0
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	}
	return false
}

func asDecimal(v interface{}) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, true
	case json.Number:
		d, err := decimal.NewFromString(string(t))
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int64:
		return decimal.NewFromInt(t), true
	case float64:
		// Context values built in process may carry float64 counts; they are
		// never monetary. Conversion here is for rule comparison only.
		return decimal.NewFromFloat(t), true
	}
	return decimal.Zero, false
}
