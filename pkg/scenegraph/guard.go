package scenegraph

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// GuardContext holds the game-state values guards evaluate against:
// relationship stats, flags and variables, flattened to name -> value.
type GuardContext map[string]interface{}

// Guard expressions are a small call grammar:
//
//	gte(trust, 8)
//	eq(met_captain, true)
//	has(lantern)
//	and(gte(trust, 8), not(has(betrayed)))
//
// Comparison operators take a variable name and a literal. Boolean
// operators take nested expressions. A missing variable fails the
// comparison closed rather than erroring.
type GuardExpr struct {
	Op    string
	Args  []*GuardExpr // boolean operators
	Var   string       // comparison operators
	Value interface{}  // literal operand
}

// ParseGuard parses a guard expression. Returned expressions are
// immutable and safe for concurrent evaluation.
func ParseGuard(src string) (*GuardExpr, error) {
	p := &guardParser{src: src}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("unexpected trailing input at %d", p.pos)
	}
	return expr, nil
}

// EvalGuard parses and evaluates a guard in one step.
func EvalGuard(src string, ctx GuardContext) (bool, error) {
	expr, err := ParseGuard(src)
	if err != nil {
		return false, err
	}
	return expr.Eval(ctx)
}

// Eval evaluates the expression against a guard context.
func (e *GuardExpr) Eval(ctx GuardContext) (bool, error) {
	switch e.Op {
	case "and":
		for _, arg := range e.Args {
			ok, err := arg.Eval(ctx)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case "or":
		for _, arg := range e.Args {
			ok, err := arg.Eval(ctx)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case "not":
		ok, err := e.Args[0].Eval(ctx)
		return !ok, err
	case "has":
		return truthy(ctx[e.Var]), nil
	case "eq", "neq":
		got, exists := ctx[e.Var]
		eq := exists && literalEqual(got, e.Value)
		if e.Op == "neq" {
			return !eq, nil
		}
		return eq, nil
	case "gt", "gte", "lt", "lte":
		got, ok := toNumber(ctx[e.Var])
		want, wantOK := toNumber(e.Value)
		if !ok || !wantOK {
			return false, nil
		}
		switch e.Op {
		case "gt":
			return got > want, nil
		case "gte":
			return got >= want, nil
		case "lt":
			return got < want, nil
		default:
			return got <= want, nil
		}
	default:
		return false, fmt.Errorf("unknown guard operator: %s", e.Op)
	}
}

func literalEqual(got, want interface{}) bool {
	if gn, ok := toNumber(got); ok {
		if wn, ok := toNumber(want); ok {
			return gn == wn
		}
	}
	if gb, ok := got.(bool); ok {
		if wb, ok := want.(bool); ok {
			return gb == wb
		}
	}
	return fmt.Sprintf("%v", got) == fmt.Sprintf("%v", want)
}

func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != "" && t != "false"
	default:
		if n, ok := toNumber(v); ok {
			return n != 0
		}
		return true
	}
}

// booleanOps take nested guard expressions as arguments; comparison ops
// take a variable name and (except has) a literal.
var booleanOps = map[string]bool{"and": true, "or": true, "not": true}
var comparisonOps = map[string]int{
	"has": 1, "eq": 2, "neq": 2, "gt": 2, "gte": 2, "lt": 2, "lte": 2,
}

type guardParser struct {
	src string
	pos int
}

func (p *guardParser) parseExpr() (*GuardExpr, error) {
	op, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expect('('); err != nil {
		return nil, err
	}

	expr := &GuardExpr{Op: op}

	switch {
	case booleanOps[op]:
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			expr.Args = append(expr.Args, arg)
			if !p.accept(',') {
				break
			}
		}
		if op == "not" && len(expr.Args) != 1 {
			return nil, fmt.Errorf("not() takes exactly one argument, got %d", len(expr.Args))
		}
	case comparisonOps[op] > 0:
		expr.Var, err = p.parseIdent()
		if err != nil {
			return nil, err
		}
		if comparisonOps[op] == 2 {
			if err := p.expect(','); err != nil {
				return nil, err
			}
			expr.Value, err = p.parseLiteral()
			if err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("unknown guard operator: %s", op)
	}

	if err := p.expect(')'); err != nil {
		return nil, err
	}
	return expr, nil
}

func (p *guardParser) parseIdent() (string, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) {
		r := rune(p.src[p.pos])
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.' {
			p.pos++
			continue
		}
		break
	}
	if p.pos == start {
		return "", fmt.Errorf("expected identifier at %d", start)
	}
	return p.src[start:p.pos], nil
}

func (p *guardParser) parseLiteral() (interface{}, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return nil, fmt.Errorf("expected literal at %d", p.pos)
	}

	if p.src[p.pos] == '\'' || p.src[p.pos] == '"' {
		quote := p.src[p.pos]
		p.pos++
		start := p.pos
		for p.pos < len(p.src) && p.src[p.pos] != quote {
			p.pos++
		}
		if p.pos >= len(p.src) {
			return nil, fmt.Errorf("unterminated string at %d", start)
		}
		s := p.src[start:p.pos]
		p.pos++
		return s, nil
	}

	word, err := p.parseIdent()
	if err != nil {
		// Allow negative numbers, which parseIdent rejects.
		if p.pos < len(p.src) && p.src[p.pos] == '-' {
			p.pos++
			rest, restErr := p.parseIdent()
			if restErr != nil {
				return nil, restErr
			}
			word = "-" + rest
		} else {
			return nil, err
		}
	}

	switch strings.ToLower(word) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	if n, err := strconv.ParseFloat(word, 64); err == nil {
		return n, nil
	}
	// Bare word: treat as a string literal.
	return word, nil
}

func (p *guardParser) expect(c byte) error {
	p.skipSpace()
	if p.pos >= len(p.src) || p.src[p.pos] != c {
		return fmt.Errorf("expected %q at %d", string(c), p.pos)
	}
	p.pos++
	return nil
}

func (p *guardParser) accept(c byte) bool {
	p.skipSpace()
	if p.pos < len(p.src) && p.src[p.pos] == c {
		p.pos++
		return true
	}
	return false
}

func (p *guardParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}
