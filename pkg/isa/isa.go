// Package isa defines the PL/0C stack-machine instruction set: the
// opcode enumeration, the (op, level, addr) instruction triple, and a
// disassembler that renders a program the way a -v trace or a listing
// dump does.
package isa

import "fmt"

// OpCode identifies a single stack-machine operation.
type OpCode uint8

const (
	Not  OpCode = iota // unary logical not
	Neg                // unary negation
	Comp               // unary one's complement

	Add // addition
	Sub // subtraction
	Mul // multiplication
	Div // division
	Rem // remainder

	BOr  // bitwise inclusive or
	BAnd // bitwise and
	BXor // bitwise exclusive or

	LShift // left shift
	RShift // right shift

	Lt  // less than
	Lte // less than or equal
	Equ // equal
	Gte // greater than or equal
	Gt  // greater than
	Neq // not equal

	LOr  // logical or
	LAnd // logical and

	PushConst // push a constant value
	PushVar   // push a variable's address: base(level) + addr
	Eval      // replace an address on top of the stack with the value at it
	Assign    // pop a value and an address, store the value at the address

	Call  // call a procedure or function, pushing a new activation frame
	Enter // grow the current frame to addr words, header included (addr - FrameSize locals)
	Ret   // return from a procedure, unlinking its frame
	Retf  // return from a function, unlinking its frame and pushing the result
	Jump  // unconditional jump to addr
	JNEQ  // pop a condition, jump to addr if it's zero

	Halt OpCode = 255 // stop the machine
)

var names = map[OpCode]string{
	Not:       "not",
	Neg:       "neg",
	Comp:      "comp",
	Add:       "add",
	Sub:       "sub",
	Mul:       "mul",
	Div:       "div",
	Rem:       "rem",
	BOr:       "bor",
	BAnd:      "band",
	BXor:      "bxor",
	LShift:    "lshift",
	RShift:    "rshift",
	Lt:        "lt",
	Lte:       "lte",
	Equ:       "equ",
	Gte:       "gte",
	Gt:        "gt",
	Neq:       "neq",
	LOr:       "lor",
	LAnd:      "land",
	PushConst: "pushConst",
	PushVar:   "pushVar",
	Eval:      "eval",
	Assign:    "assign",
	Call:      "call",
	Enter:     "enter",
	Ret:       "ret",
	Retf:      "retf",
	Jump:      "jump",
	JNEQ:      "jneq",
	Halt:      "halt",
}

func (op OpCode) String() string {
	if s, ok := names[op]; ok {
		return s
	}
	return fmt.Sprintf("OpCode(%d)", uint8(op))
}

// takesLevel reports whether op's Level field is meaningful; only the
// operations that address an outer activation frame use it.
func (op OpCode) takesLevel() bool {
	return op == PushVar || op == Call
}

// takesAddr reports whether op's Addr field is meaningful.
func (op OpCode) takesAddr() bool {
	switch op {
	case PushConst, PushVar, Call, Enter, Ret, Retf, Jump, JNEQ:
		return true
	default:
		return false
	}
}

// Instr is a single PL/0C instruction: an operation plus the static
// level and address/offset/value it operates on. Level and Addr are
// zero and unused for operations that don't need them.
type Instr struct {
	Op    OpCode
	Level int8
	Addr  int32
}

// Program is a complete compiled unit: a flat instruction sequence
// addressed by index, with entry point 0 (Frame.Ret-to-pc-zero is how
// the machine recognises the outermost call has returned).
type Program []Instr

// Disasm renders a single instruction as a listing line. label, if
// non-empty, is printed before the location (for example to mark a jump
// target); DisasmAll passes no label.
func Disasm(loc int, instr Instr, label string) string {
	prefix := ""
	if label != "" {
		prefix = label + ": "
	}
	switch {
	case instr.Op.takesLevel() && instr.Op.takesAddr():
		return fmt.Sprintf("%s%5d: %-10s%d, %d", prefix, loc, instr.Op, instr.Level, instr.Addr)
	case instr.Op.takesAddr():
		return fmt.Sprintf("%s%5d: %-10s%d", prefix, loc, instr.Op, instr.Addr)
	default:
		return fmt.Sprintf("%s%5d: %s", prefix, loc, instr.Op)
	}
}

// DisasmAll renders every instruction in prog, one line per instruction.
func DisasmAll(prog Program) []string {
	lines := make([]string, len(prog))
	for i, instr := range prog {
		lines[i] = Disasm(i, instr, "")
	}
	return lines
}

// Frame offsets within an activation frame as laid out by Call.
const (
	FrameBase    = 0 // static link: base(level) for the callee's own level
	FrameOldBp   = 1 // dynamic link: caller's bp, restored on return
	FrameRetAddr = 2 // pc to resume at in the caller
	FrameRetVal  = 3 // function return value slot
	FrameSize    = 4 // words occupied by a frame's fixed header
)
