// Package vm implements the PL/0C stack machine: a nested-frame
// interpreter that executes an isa.Program against a word-addressed
// data stack, with base(level) static-link addressing for lexically
// nested procedures and functions.
package vm

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"pl0c/pkg/isa"
)

// Fault reports a run-time error: division by zero, an out-of-range
// address, or a stack that has overflowed its configured size. The
// machine halts as soon as one occurs.
type Fault struct {
	PC      int
	Message string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("runtime error at pc %d: %s", f.PC, f.Message)
}

// Machine is one instance of the PL/0C stack machine. Its zero value is
// not ready to use; call New.
type Machine struct {
	code  isa.Program
	stack []int32

	pc int
	bp int
	sp int
	ir isa.Instr

	lastWrite    int
	lastWriteSet bool

	log     *zap.SugaredLogger
	verbose bool
	cycles  int64
}

// DefaultStackSize is the data stack depth used when a caller doesn't
// need a different one.
const DefaultStackSize = 512

// New creates a Machine with the given stack capacity, ready to Run a
// Program. log may be a no-op logger when tracing is not wanted.
func New(stackSize int, log *zap.SugaredLogger) *Machine {
	if stackSize <= 0 {
		stackSize = DefaultStackSize
	}
	m := &Machine{stack: make([]int32, stackSize), log: log}
	m.reset()
	return m
}

// reset returns the machine to its initial state: a synthetic caller
// frame at stack[0..3], all zero, with bp=0 and sp=3.
func (m *Machine) reset() {
	m.pc = 0
	m.bp = 0
	m.sp = 3
	for i := 0; i < 4 && i < len(m.stack); i++ {
		m.stack[i] = 0
	}
	m.lastWriteSet = false
	m.cycles = 0
}

// base walks lvl static links up from the current frame and returns the
// resulting frame's base address.
func (m *Machine) base(lvl int8) int {
	b := m.bp
	for ; lvl > 0; lvl-- {
		b = int(m.stack[b])
	}
	return b
}

func (m *Machine) fault(format string, args ...any) *Fault {
	return &Fault{PC: m.pc, Message: fmt.Sprintf(format, args...)}
}

func (m *Machine) checkAddr(addr int) error {
	if addr < 0 || addr >= len(m.stack) {
		return m.fault("address %d out of range", addr)
	}
	return nil
}

// push writes v to the next free stack slot, growing sp.
func (m *Machine) push(v int32) error {
	m.sp++
	if m.sp >= len(m.stack) {
		return errors.Wrap(m.fault("stack overflow: address %d out of range", m.sp), "push")
	}
	if err := m.checkAddr(m.sp); err != nil {
		return err
	}
	m.stack[m.sp] = v
	return nil
}

// ret unlinks the current activation frame, following the pattern used
// by both Ret and Retf: restore pc and bp from the frame header, then
// drop the frame plus its arguments from the stack.
func (m *Machine) ret() {
	m.sp = m.bp - 1
	m.pc = int(m.stack[m.bp+isa.FrameRetAddr])
	m.bp = int(m.stack[m.bp+isa.FrameOldBp])
	m.sp -= int(m.ir.Addr)
}

// Run executes prog to completion (pc returning to 0 after the
// outermost block's Ret) and returns the number of instructions
// executed. It stops early and returns a *Fault on a run-time error.
func (m *Machine) Run(prog isa.Program) (int64, error) {
	m.code = prog
	m.reset()

	for {
		if m.pc < 0 || m.pc >= len(m.code) {
			return m.cycles, m.fault("program counter %d out of range", m.pc)
		}
		m.ir = m.code[m.pc]
		m.pc++
		m.cycles++

		if m.verbose {
			m.trace()
		}

		if err := m.step(); err != nil {
			return m.cycles, err
		}

		if m.pc == 0 {
			return m.cycles, nil
		}
	}
}

// SetVerbose turns per-instruction tracing via the Machine's logger on
// or off.
func (m *Machine) SetVerbose(v bool) { m.verbose = v }

func (m *Machine) trace() {
	m.log.Debugw("exec", "loc", m.pc-1, "instr", isa.Disasm(m.pc-1, m.ir, ""), "bp", m.bp, "sp", m.sp)
}

// step executes the single instruction latched in m.ir.
func (m *Machine) step() error {
	switch m.ir.Op {

	case isa.Not:
		if err := m.checkAddr(m.sp); err != nil {
			return err
		}
		if m.stack[m.sp] == 0 {
			m.stack[m.sp] = 1
		} else {
			m.stack[m.sp] = 0
		}

	case isa.Neg:
		if err := m.checkAddr(m.sp); err != nil {
			return err
		}
		m.stack[m.sp] = -m.stack[m.sp]

	case isa.Comp:
		if err := m.checkAddr(m.sp); err != nil {
			return err
		}
		m.stack[m.sp] = ^m.stack[m.sp]

	case isa.Add, isa.Sub, isa.Mul, isa.Div, isa.Rem,
		isa.BOr, isa.BAnd, isa.BXor, isa.LShift, isa.RShift,
		isa.Lt, isa.Lte, isa.Equ, isa.Gte, isa.Gt, isa.Neq,
		isa.LOr, isa.LAnd:
		return m.binaryOp(m.ir.Op)

	case isa.PushConst:
		return m.push(m.ir.Addr)

	case isa.PushVar:
		addr := m.base(m.ir.Level) + int(m.ir.Addr)
		if err := m.checkAddr(addr); err != nil {
			return err
		}
		return m.push(int32(addr))

	case isa.Eval:
		if err := m.checkAddr(m.sp); err != nil {
			return err
		}
		addr := int(m.stack[m.sp])
		if err := m.checkAddr(addr); err != nil {
			return err
		}
		m.stack[m.sp] = m.stack[addr]

	case isa.Assign:
		if err := m.checkAddr(m.sp - 1); err != nil {
			return err
		}
		addr := int(m.stack[m.sp])
		m.sp--
		if err := m.checkAddr(addr); err != nil {
			return err
		}
		value := m.stack[m.sp]
		m.sp--
		m.stack[addr] = value
		m.lastWrite, m.lastWriteSet = addr, true

	case isa.Call:
		return m.call()

	case isa.Ret:
		m.ret()

	case isa.Retf:
		if err := m.checkAddr(m.bp + isa.FrameRetVal); err != nil {
			return err
		}
		result := m.stack[m.bp+isa.FrameRetVal]
		m.ret()
		return m.push(result)

	case isa.Enter:
		m.sp += int(m.ir.Addr) - isa.FrameSize
		return m.checkAddr(m.sp)

	case isa.Jump:
		m.pc = int(m.ir.Addr)

	case isa.JNEQ:
		if err := m.checkAddr(m.sp); err != nil {
			return err
		}
		cond := m.stack[m.sp]
		m.sp--
		if cond == 0 {
			m.pc = int(m.ir.Addr)
		}

	case isa.Halt:
		m.pc = 0

	default:
		return m.fault("unknown opcode %s", m.ir.Op)
	}
	return nil
}

// binaryOp pops the top two stack elements and pushes the result of
// applying op to them, in (second-from-top, top) order.
func (m *Machine) binaryOp(op isa.OpCode) error {
	if err := m.checkAddr(m.sp - 1); err != nil {
		return err
	}
	a, b := m.stack[m.sp-1], m.stack[m.sp]
	m.sp--

	switch op {
	case isa.Add:
		m.stack[m.sp] = a + b
	case isa.Sub:
		m.stack[m.sp] = a - b
	case isa.Mul:
		m.stack[m.sp] = a * b
	case isa.Div:
		if b == 0 {
			return m.fault("division by zero")
		}
		m.stack[m.sp] = a / b
	case isa.Rem:
		if b == 0 {
			return m.fault("division by zero")
		}
		m.stack[m.sp] = a % b
	case isa.BOr:
		m.stack[m.sp] = a | b
	case isa.BAnd:
		m.stack[m.sp] = a & b
	case isa.BXor:
		m.stack[m.sp] = a ^ b
	case isa.LShift:
		m.stack[m.sp] = a << (uint32(b) & 31)
	case isa.RShift:
		m.stack[m.sp] = a >> (uint32(b) & 31)
	case isa.Lt:
		m.stack[m.sp] = boolWord(a < b)
	case isa.Lte:
		m.stack[m.sp] = boolWord(a <= b)
	case isa.Equ:
		m.stack[m.sp] = boolWord(a == b)
	case isa.Gte:
		m.stack[m.sp] = boolWord(a >= b)
	case isa.Gt:
		m.stack[m.sp] = boolWord(a > b)
	case isa.Neq:
		m.stack[m.sp] = boolWord(a != b)
	case isa.LOr:
		m.stack[m.sp] = boolWord(a != 0 || b != 0)
	case isa.LAnd:
		m.stack[m.sp] = boolWord(a != 0 && b != 0)
	}
	return nil
}

func boolWord(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// call pushes a new activation frame linked to the callee's lexical
// parent (base(level) hops up from the caller) and transfers control to
// the callee's entry address.
func (m *Machine) call() error {
	base := m.base(m.ir.Level)
	frame := m.sp + 1
	top := frame + isa.FrameSize - 1
	if top >= len(m.stack) {
		return errors.Wrap(m.fault("stack overflow: address %d out of range", top), "call")
	}
	if err := m.checkAddr(top); err != nil {
		return err
	}
	m.stack[frame+isa.FrameBase] = int32(base)
	m.stack[frame+isa.FrameOldBp] = int32(m.bp)
	m.stack[frame+isa.FrameRetAddr] = int32(m.pc)
	m.stack[frame+isa.FrameRetVal] = 0
	m.bp = frame
	m.sp += isa.FrameSize
	m.pc = int(m.ir.Addr)
	return nil
}

// Snapshot is a JSON-marshalable dump of the machine's register file
// and stack, for inspecting the machine between instructions.
type Snapshot struct {
	PC    int     `json:"pc"`
	BP    int     `json:"bp"`
	SP    int     `json:"sp"`
	Stack []int32 `json:"stack"`
}

// Snapshot captures the machine's current registers and the live
// portion of its stack (index 0 through sp).
func (m *Machine) Snapshot() Snapshot {
	top := m.sp + 1
	if top < 0 {
		top = 0
	}
	if top > len(m.stack) {
		top = len(m.stack)
	}
	live := make([]int32, top)
	copy(live, m.stack[:top])
	return Snapshot{PC: m.pc, BP: m.bp, SP: m.sp, Stack: live}
}

// Cycles returns the number of instructions executed by the most recent
// Run call.
func (m *Machine) Cycles() int64 { return m.cycles }

// Peek reads a raw stack slot by absolute address. Unlike Snapshot, it
// is not limited to the live region below sp: a variable's slot stays
// readable after the frame that owns it has returned, which is what a
// debugger (or a test asserting on a finished program's final state)
// wants to inspect.
func (m *Machine) Peek(addr int) (int32, error) {
	if err := m.checkAddr(addr); err != nil {
		return 0, err
	}
	return m.stack[addr], nil
}
