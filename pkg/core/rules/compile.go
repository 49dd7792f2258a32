package rules

import (
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/core/canonical"
)

// Safety limits for compiled rule trees.
const (
	MaxDepth          = 10
	MaxNodes          = 100
	MaxDistinctPaths  = 20
	MaxEvalOperations = 1000
)

// allowedPathPrefixes is the fixed allow-list every field path must
// prefix-match. Anything else is a compile error.
var allowedPathPrefixes = []string{
	"proposal.",
	"computed.",
	"customer.",
	"project.",
	"running.",
	"evaluationContext.",
}

// Compile parses and validates a JSON rule expression into a Program.
// Violations of the safety limits return a CompileError.
func Compile(expression []byte) (*Program, error) {
	raw, err := decodeRaw(expression)
	if err != nil {
		return nil, wrapCompileError("invalid rule expression", err)
	}

	c := &compiler{paths: make(map[string]bool)}
	root, err := c.build(raw, 1)
	if err != nil {
		return nil, err
	}
	if c.nodes > MaxNodes {
		return nil, compileErrorf("rule has %d nodes, limit is %d", c.nodes, MaxNodes)
	}
	if len(c.paths) > MaxDistinctPaths {
		return nil, compileErrorf("rule references %d distinct paths, limit is %d", len(c.paths), MaxDistinctPaths)
	}

	hash, err := canonical.Fingerprint(map[string]interface{}{"expr": string(expression)})
	if err != nil {
		return nil, wrapCompileError("fingerprint rule expression", err)
	}
	return &Program{root: root, ContentHash: hash, nodeCount: c.nodes, maxDepth: c.depth}, nil
}

type compiler struct {
	nodes int
	depth int
	paths map[string]bool
}

func (c *compiler) build(raw *rawNode, depth int) (*node, error) {
	if raw == nil {
		return nil, compileError("nil node in rule expression")
	}
	if depth > MaxDepth {
		return nil, compileErrorf("rule depth exceeds %d", MaxDepth)
	}
	c.nodes++
	if depth > c.depth {
		c.depth = depth
	}

	switch raw.Op {
	case OpAnd, OpOr:
		if len(raw.Args) == 0 {
			return nil, compileErrorf("%q requires at least one argument", raw.Op)
		}
		n := &node{op: raw.Op}
		for _, a := range raw.Args {
			child, err := c.build(a, depth+1)
			if err != nil {
				return nil, err
			}
			n.args = append(n.args, child)
		}
		return n, nil

	case OpNot:
		if raw.Left == nil {
			return nil, compileError(`"not" requires an operand`)
		}
		child, err := c.build(raw.Left, depth+1)
		if err != nil {
			return nil, err
		}
		return &node{op: OpNot, left: child}, nil

	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
		if raw.Left == nil || raw.Right == nil {
			return nil, compileErrorf("%q requires two operands", raw.Op)
		}
		left, err := c.build(raw.Left, depth+1)
		if err != nil {
			return nil, err
		}
		right, err := c.build(raw.Right, depth+1)
		if err != nil {
			return nil, err
		}
		return &node{op: raw.Op, left: left, right: right}, nil

	case OpField:
		if err := checkPath(raw.Path); err != nil {
			return nil, err
		}
		c.paths[raw.Path] = true
		return &node{op: OpField, path: splitPath(raw.Path)}, nil

	case OpLiteral:
		return &node{op: OpLiteral, value: raw.Value}, nil

	default:
		return nil, compileErrorf("unknown rule operator %q", raw.Op)
	}
}

func checkPath(path string) error {
	if path == "" {
		return compileError("empty field path")
	}
	for _, prefix := range allowedPathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return nil
		}
	}
	return compileErrorf("field path %q is outside the allow-list", path)
}

// =============================================================================
// COMPILED-RULE CACHE
// =============================================================================

// Cache holds compiled programs keyed by (tenant, contentHash, version).
type Cache struct {
	store *gocache.Cache
}

// NewCache builds a compiled-rule cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: gocache.New(ttl, 2*ttl)}
}

func cacheKey(tenantID, contentHash, version string) string {
	return fmt.Sprintf("%s|%s|%s", tenantID, contentHash, version)
}

// Get returns a cached program, or nil on miss.
func (c *Cache) Get(tenantID, contentHash, version string) *Program {
	if v, ok := c.store.Get(cacheKey(tenantID, contentHash, version)); ok {
		return v.(*Program)
	}
	return nil
}

// Put stores a compiled program.
func (c *Cache) Put(tenantID, contentHash, version string, p *Program) {
	c.store.SetDefault(cacheKey(tenantID, contentHash, version), p)
}

// CompileCached compiles through the cache. The content hash is derived
// from the expression bytes before compilation so hits skip parsing.
func (c *Cache) CompileCached(tenantID, version string, expression []byte) (*Program, error) {
	contentHash := canonical.FingerprintBytes(expression)
	if p := c.Get(tenantID, contentHash, version); p != nil {
		return p, nil
	}
	p, err := Compile(expression)
	if err != nil {
		return nil, err
	}
	c.Put(tenantID, contentHash, version, p)
	return p, nil
}
