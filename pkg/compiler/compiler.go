// Package compiler implements a strictly single-pass, recursive-descent
// compiler for PL/0C: it walks the token stream exactly once, resolving
// names against a lexically-scoped symbol table and emitting stack-
// machine instructions directly, with no intermediate syntax tree.
package compiler

import (
	"pl0c/pkg/diag"
	"pl0c/pkg/isa"
	"pl0c/pkg/symtab"
	"pl0c/pkg/token"
)

// Compiler holds the state of one compilation: the token stream being
// consumed, the symbol table being built up and torn down as blocks are
// entered and left, and the instruction sequence being emitted.
type Compiler struct {
	scan *token.Scanner
	sink *diag.Sink
	sym  *symtab.Table
	code isa.Program
	cur  token.Token
}

// New creates a Compiler that reports through sink.
func New(sink *diag.Sink) *Compiler {
	return &Compiler{
		scan: token.New(sink),
		sink: sink,
		sym:  symtab.New(),
	}
}

// Compile compiles src to a complete Program. The returned error is
// non-nil only if the source contained at least one diagnostic; the
// returned Program is always the (possibly partial) code generated
// while recovering from errors, useful for -v inspection even on
// failure.
func (c *Compiler) Compile(src string) (isa.Program, error) {
	c.scan.SetInput(src)
	c.code = nil
	c.next()

	c.block("main", symtab.ProcKind, 0, 0, 0)
	c.expect(token.Period)

	if c.sink.Count() > 0 {
		return c.code, errCompileFailed
	}
	return c.code, nil
}

var errCompileFailed = compileError{}

type compileError struct{}

func (compileError) Error() string { return "compilation failed; see reported diagnostics" }

// next consumes and returns the next token, tracing it when verbose
// logging is enabled.
func (c *Compiler) next() token.Token {
	c.cur = c.scan.Get()
	c.sink.Log.Debugw("token", "kind", c.cur.Kind.String(), "str", c.cur.Str, "int", c.cur.Int, "line", c.cur.Line)
	return c.cur
}

// current returns the token last returned by next, without consuming
// another one.
func (c *Compiler) current() token.Kind { return c.cur.Kind }

// accept reports whether the current token has the given kind, and
// consumes it (advancing to the next token) when get is true.
func (c *Compiler) accept(kind token.Kind, get bool) bool {
	if c.current() != kind {
		return false
	}
	if get {
		c.next()
	}
	return true
}

// expect is accept with get defaulted to true, reporting a diagnostic
// and returning false when the current token doesn't match kind.
func (c *Compiler) expect(kind token.Kind) bool {
	if c.accept(kind, true) {
		return true
	}
	c.sink.Errorf(c.cur.Line, "expected %s, got %s", kind, c.current())
	return false
}

// emit appends an instruction to the program being generated and
// returns its index, which doubles as its address for jump targets.
func (c *Compiler) emit(op isa.OpCode, level int8, addr int32) int {
	c.sink.Log.Debugw("emit", "loc", len(c.code), "op", op.String(), "level", level, "addr", addr)
	c.code = append(c.code, isa.Instr{Op: op, Level: level, Addr: addr})
	return len(c.code) - 1
}

// patch overwrites the Addr field of the instruction at loc, used to
// back-patch a forward jump once its target address is known.
func (c *Compiler) patch(loc int, addr int32) {
	c.code[loc].Addr = addr
}
