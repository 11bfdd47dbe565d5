package compiler

import (
	"pl0c/pkg/isa"
	"pl0c/pkg/symtab"
	"pl0c/pkg/token"
)

// constDecl compiles one "ident = number" pair of a const declaration.
// It emits no code; it only installs the named value in the symbol
// table.
//
//	constDecl = ident "=" number ;
func (c *Compiler) constDecl(level int) {
	name := c.cur.Str
	if !c.expect(token.Identifier) {
		return
	}
	if !c.expect(token.Assign) {
		return
	}
	if !c.accept(token.Number, false) {
		c.sink.Errorf(c.cur.Line, "expected a number, got %s", c.current())
		return
	}
	value := c.cur.Int
	c.next()

	if _, exists := c.sym.LookupAtLevel(name, level); exists {
		c.sink.Errorf(c.cur.Line, "%q is already declared in this scope", name)
		return
	}
	c.sym.Insert(symtab.Symbol{Name: name, Kind: symtab.ConstKind, Level: level, Value: value})
}

// varDecl compiles one identifier of a var declaration, allocating it
// the next slot in the current block's activation frame.
//
//	varDecl = ident ;
func (c *Compiler) varDecl(offset int32, level int) int32 {
	name := c.cur.Str
	if !c.expect(token.Identifier) {
		return offset
	}

	if _, exists := c.sym.LookupAtLevel(name, level); exists {
		c.sink.Errorf(c.cur.Line, "%q is already declared in this scope", name)
		return offset
	}
	c.sym.Insert(symtab.Symbol{Name: name, Kind: symtab.VarKind, Level: level, Value: offset})
	return offset + 1
}

// subDecl compiles a procedure or function declaration, including its
// parameter list and its own nested block.
//
//	subDecl = ("procedure" | "function") ident "(" [ ident { "," ident } ] ")" block ";" ;
func (c *Compiler) subDecl(level int) {
	kind := symtab.ProcKind
	if c.current() == token.Function {
		kind = symtab.FunctionKind
	}
	c.next() // consume "procedure" or "function"

	name := c.cur.Str
	if !c.expect(token.Identifier) {
		return
	}

	if _, exists := c.sym.LookupAtLevel(name, level); exists {
		c.sink.Errorf(c.cur.Line, "%q is already declared in this scope", name)
	}
	c.sym.Insert(symtab.Symbol{Name: name, Kind: kind, Level: level, Value: 0})

	c.expect(token.LParen)
	nargs := int32(0)
	if c.accept(token.Identifier, false) {
		offset := int32(-1)
		var params []string
		for {
			params = append(params, c.cur.Str)
			c.expect(token.Identifier)
			offset--
			if !c.accept(token.Comma, true) {
				break
			}
		}
		nargs = int32(len(params))
		// Parameters occupy offsets -n, ..., -2, -1 below the frame in
		// declaration order, so the first-declared parameter sits at the
		// lowest address and the last-declared one closest to the frame
		// header.
		start := -nargs
		for i, p := range params {
			c.sym.Insert(symtab.Symbol{Name: p, Kind: symtab.VarKind, Level: level + 1, Value: start + int32(i)})
		}
	}
	c.expect(token.RParen)

	c.block(name, kind, level, level+1, nargs)
	c.expect(token.Semi)
}

// block compiles one lexical block: its declarations, its own entry
// jump target, and its body statement. name/kind/declLevel identify the
// symbol table entry (already inserted by the caller, or the bootstrap
// "main" entry) whose Value gets patched to the block's entry address.
// bodyLevel is declLevel+1 for a procedure or function, or 0 for the
// outermost program block.
func (c *Compiler) block(name string, kind symtab.Kind, declLevel, bodyLevel int, nargs int32) {
	jmpPC := c.emit(isa.Jump, 0, 0)
	offset := int32(isa.FrameSize)

	if c.accept(token.Const, true) {
		for {
			c.constDecl(bodyLevel)
			if !c.accept(token.Comma, true) {
				break
			}
		}
		c.expect(token.Semi)
	}

	if c.accept(token.Var, true) {
		for {
			offset = c.varDecl(offset, bodyLevel)
			if !c.accept(token.Comma, true) {
				break
			}
		}
		c.expect(token.Semi)
	}

	for c.current() == token.Procedure || c.current() == token.Function {
		c.subDecl(bodyLevel)
	}

	entry := c.emit(isa.Enter, 0, offset)
	c.patch(jmpPC, int32(entry))
	c.sym.SetValue(name, declLevel, int32(entry))

	c.statement(bodyLevel)

	if kind == symtab.FunctionKind {
		c.emit(isa.Retf, 0, nargs)
	} else {
		c.emit(isa.Ret, 0, nargs)
	}

	c.sym.Purge(bodyLevel)
}
