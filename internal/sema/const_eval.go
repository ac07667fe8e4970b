package sema

import (
	"strings"

	"github.com/sushi-lang/sushic/internal/ast"
)

// evalState marks a constant whose evaluation is in progress, so a
// self-referential or mutually-cyclic constant definition is caught
// rather than recursing forever (spec §4.3.3).
type evalState int

const (
	evalNotStarted evalState = iota
	evalInProgress
	evalDone
)

func (c *Checker) evaluateConstants(g *ast.Graph) {
	states := make(map[string]evalState, len(c.tables.Constants))
	var stack []string

	var eval func(name string) (ast.ConstValue, bool)
	eval = func(name string) (ast.ConstValue, bool) {
		entry, ok := c.tables.Constants[name]
		if !ok {
			return ast.ConstValue{}, false
		}
		switch states[name] {
		case evalDone:
			return entry.Value, true
		case evalInProgress:
			cycle := append(append([]string{}, stack...), name)
			c.rep.Emit("CE2014", span(entry.Unit, entry.Expr), map[string]any{
				"name": name, "cycle": strings.Join(cycle, " -> "),
			})
			return ast.ConstValue{}, false
		}
		states[name] = evalInProgress
		stack = append(stack, name)
		v, ok := c.evalExpr(entry.Expr, entry.Unit, eval)
		stack = stack[:len(stack)-1]
		states[name] = evalDone
		if ok {
			entry.Value = v
			entry.Evaluated = true
			entry.DeclaredType = kindToRef(v.Kind)
		}
		return v, ok
	}

	for name := range c.tables.Constants {
		eval(name)
	}
}

func kindToRef(k ast.Kind) ast.TypeRef {
	switch k {
	case ast.KindI64:
		return ast.RefI64
	case ast.KindU64:
		return ast.RefU64
	case ast.KindF64:
		return ast.RefF64
	case ast.KindBool:
		return ast.RefBool
	default:
		return ast.RefI64
	}
}

// evalExpr folds a constant-expression AST node to a value. lookupConst
// resolves a sibling constant reference, evaluating it on demand (and
// threading cycle detection through the caller's closure).
func (c *Checker) evalExpr(n *ast.Node, unit string, lookupConst func(string) (ast.ConstValue, bool)) (ast.ConstValue, bool) {
	switch n.Kind {
	case ast.NIntegerLit:
		return ast.ConstValue{Kind: ast.KindI64, Int: n.Data.(int64)}, true
	case ast.NFloatLit:
		return ast.ConstValue{Kind: ast.KindF64, Float: n.Data.(float64)}, true
	case ast.NBoolLit:
		return ast.ConstValue{Kind: ast.KindBool, Bool: n.Data.(bool)}, true
	case ast.NIdentifierExpr:
		if v, ok := lookupConst(n.Ident()); ok {
			return v, true
		}
		c.rep.Emit("CE2015", span(unit, n), nil)
		return ast.ConstValue{}, false
	case ast.NUnaryExpr:
		v, ok := c.evalExpr(n.Children[0], unit, lookupConst)
		if !ok {
			return v, false
		}
		op, _ := n.Data.(string)
		if op == "-" {
			if v.Kind == ast.KindF64 {
				v.Float = -v.Float
			} else {
				v.Int = -v.Int
			}
		}
		return v, true
	case ast.NBinaryExpr:
		lhs, ok := c.evalExpr(n.Children[0], unit, lookupConst)
		if !ok {
			return lhs, false
		}
		rhs, ok := c.evalExpr(n.Children[1], unit, lookupConst)
		if !ok {
			return rhs, false
		}
		op, _ := n.Data.(string)
		return c.foldBinary(op, lhs, rhs, unit, n)
	default:
		c.rep.Emit("CE2015", span(unit, n), nil)
		return ast.ConstValue{}, false
	}
}

func (c *Checker) foldBinary(op string, lhs, rhs ast.ConstValue, unit string, n *ast.Node) (ast.ConstValue, bool) {
	isFloat := lhs.Kind == ast.KindF64 || rhs.Kind == ast.KindF64
	if isFloat {
		l, r := asFloat(lhs), asFloat(rhs)
		switch op {
		case "+":
			return ast.ConstValue{Kind: ast.KindF64, Float: l + r}, true
		case "-":
			return ast.ConstValue{Kind: ast.KindF64, Float: l - r}, true
		case "*":
			return ast.ConstValue{Kind: ast.KindF64, Float: l * r}, true
		case "/":
			if r == 0 {
				c.rep.Emit("CE2013", span(unit, n), map[string]any{"name": "<expr>"})
				return ast.ConstValue{}, false
			}
			return ast.ConstValue{Kind: ast.KindF64, Float: l / r}, true
		}
	}
	l, r := lhs.Int, rhs.Int
	switch op {
	case "+":
		return ast.ConstValue{Kind: ast.KindI64, Int: l + r}, true
	case "-":
		return ast.ConstValue{Kind: ast.KindI64, Int: l - r}, true
	case "*":
		return ast.ConstValue{Kind: ast.KindI64, Int: l * r}, true
	case "/":
		if r == 0 {
			c.rep.Emit("CE2013", span(unit, n), map[string]any{"name": "<expr>"})
			return ast.ConstValue{}, false
		}
		return ast.ConstValue{Kind: ast.KindI64, Int: l / r}, true
	case "%":
		if r == 0 {
			c.rep.Emit("CE2013", span(unit, n), map[string]any{"name": "<expr>"})
			return ast.ConstValue{}, false
		}
		return ast.ConstValue{Kind: ast.KindI64, Int: l % r}, true
	case "==":
		return ast.ConstValue{Kind: ast.KindBool, Bool: l == r}, true
	case "<":
		return ast.ConstValue{Kind: ast.KindBool, Bool: l < r}, true
	case ">":
		return ast.ConstValue{Kind: ast.KindBool, Bool: l > r}, true
	}
	c.rep.Emit("CE2015", span(unit, n), nil)
	return ast.ConstValue{}, false
}

func asFloat(v ast.ConstValue) float64 {
	if v.Kind == ast.KindF64 {
		return v.Float
	}
	return float64(v.Int)
}
