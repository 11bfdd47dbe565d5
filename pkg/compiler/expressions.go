package compiler

import (
	"pl0c/pkg/isa"
	"pl0c/pkg/symtab"
	"pl0c/pkg/token"
)

// identifierRef compiles a use of an identifier inside an expression: a
// bare name reads a constant or a variable's value; a name followed by
// "(" is a function call, whose arguments are compiled and whose result
// is left on the stack by the callee's Retf.
//
//	ident | ident "(" [ expression { "," expression } ] ")"
func (c *Compiler) identifierRef(level int) {
	name := c.cur.Str
	c.next() // consume the identifier

	sym, ok := c.sym.Lookup(name, level)
	if !ok {
		c.sink.Errorf(c.cur.Line, "undefined identifier %q", name)
		return
	}

	switch sym.Kind {
	case symtab.ConstKind:
		c.emit(isa.PushConst, 0, sym.Value)

	case symtab.VarKind:
		c.emit(isa.PushVar, int8(level-sym.Level), sym.Value)
		c.emit(isa.Eval, 0, 0)

	case symtab.FunctionKind:
		c.expect(token.LParen)
		if !c.accept(token.RParen, false) {
			for {
				c.expression(level)
				if !c.accept(token.Comma, true) {
					break
				}
			}
		}
		c.expect(token.RParen)
		c.emit(isa.Call, int8(level-sym.Level), sym.Value)

	default:
		c.sink.Errorf(c.cur.Line, "%q is not a value", name)
	}
}

// factor compiles the tightest-binding unit of an expression: a value,
// a parenthesised expression, or a unary "!"/"~" applied to another
// factor.
//
//	factor = ident [ "(" [ expression { "," expression } ] ")" ]
//	       | number | "(" expression ")" | "!" factor | "~" factor ;
func (c *Compiler) factor(level int) {
	switch {
	case c.accept(token.Identifier, false):
		c.identifierRef(level)

	case c.accept(token.Number, false):
		c.emit(isa.PushConst, 0, c.cur.Int)
		c.expect(token.Number)

	case c.accept(token.LParen, true):
		c.expression(level)
		c.expect(token.RParen)

	case c.accept(token.Not, true):
		c.factor(level)
		c.emit(isa.Not, 0, 0)

	case c.accept(token.Comp, true):
		c.factor(level)
		c.emit(isa.Comp, 0, 0)

	default:
		c.sink.Errorf(c.cur.Line, "expected identifier, number or '(', got %s", c.current())
		c.next()
	}
}

// term compiles a left-associative chain of factors joined by the
// operators that bind tighter than "+"/"-": multiplication, division,
// remainder, bitwise and, shifts, and logical and.
//
//	term = factor { ("*"|"/"|"%"|"&"|"<<"|">>"|"&&") factor } ;
func (c *Compiler) term(level int) {
	c.factor(level)
	for {
		k := c.current()
		if !isTermOp(k) {
			return
		}
		c.next()
		c.factor(level)
		c.emit(termOp(k), 0, 0)
	}
}

func isTermOp(k token.Kind) bool {
	switch k {
	case token.Star, token.Slash, token.Percent, token.BitAnd, token.ShiftLeft, token.ShiftRight, token.And:
		return true
	default:
		return false
	}
}

func termOp(k token.Kind) isa.OpCode {
	switch k {
	case token.Star:
		return isa.Mul
	case token.Slash:
		return isa.Div
	case token.Percent:
		return isa.Rem
	case token.BitAnd:
		return isa.BAnd
	case token.ShiftLeft:
		return isa.LShift
	case token.ShiftRight:
		return isa.RShift
	case token.And:
		return isa.LAnd
	default:
		panic("termOp: not a term operator")
	}
}

// expression compiles an optionally-signed chain of terms joined by the
// operators that bind loosest: addition, subtraction, bitwise or,
// bitwise exclusive-or, and logical or. A leading unary "-" negates
// only the first term; a leading unary "+" is accepted and ignored.
//
//	expression = [ "+"|"-" ] term { ("+"|"-"|"|"|"^"|"||") term } ;
func (c *Compiler) expression(level int) {
	unary := c.current()
	if unary == token.Plus || unary == token.Minus {
		c.next()
	}

	c.term(level)
	if unary == token.Minus {
		c.emit(isa.Neg, 0, 0)
	}

	for {
		k := c.current()
		if !isExprOp(k) {
			return
		}
		c.next()
		c.term(level)
		c.emit(exprOp(k), 0, 0)
	}
}

func isExprOp(k token.Kind) bool {
	switch k {
	case token.Plus, token.Minus, token.BitOr, token.BitXor, token.Or:
		return true
	default:
		return false
	}
}

func exprOp(k token.Kind) isa.OpCode {
	switch k {
	case token.Plus:
		return isa.Add
	case token.Minus:
		return isa.Sub
	case token.BitOr:
		return isa.BOr
	case token.BitXor:
		return isa.BXor
	case token.Or:
		return isa.LOr
	default:
		panic("exprOp: not an expression operator")
	}
}

// condition compiles a boolean-producing expression.
//
//	condition = "odd" expression
//	          | expression ("=="|"!="|"<"|"<="|">"|">=") expression ;
func (c *Compiler) condition(level int) {
	if c.accept(token.Odd, true) {
		c.expression(level)
		c.emit(isa.PushConst, 0, 1)
		c.emit(isa.BAnd, 0, 0)
		return
	}

	c.expression(level)
	k := c.current()
	switch k {
	case token.Equal, token.NotEqual, token.Less, token.LessEqual, token.Greater, token.GreaterEqual:
		c.next()
		c.expression(level)
		switch k {
		case token.Equal:
			c.emit(isa.Equ, 0, 0)
		case token.NotEqual:
			c.emit(isa.Neq, 0, 0)
		case token.Less:
			c.emit(isa.Lt, 0, 0)
		case token.LessEqual:
			c.emit(isa.Lte, 0, 0)
		case token.Greater:
			c.emit(isa.Gt, 0, 0)
		case token.GreaterEqual:
			c.emit(isa.Gte, 0, 0)
		}
	default:
		c.sink.Errorf(c.cur.Line, "expected a comparison operator, got %s", c.current())
	}
}
