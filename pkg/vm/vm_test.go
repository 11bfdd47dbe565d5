package vm

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pl0c/pkg/isa"
)

func newTestMachine() *Machine {
	return New(64, zap.NewNop().Sugar())
}

// A bare main block with no locals: Jump straight to Enter (the
// compiler only needs the gap between them to skip over nested
// procedure/function bodies, and there are none here), Enter 4 (no
// locals), body, Ret 0. Mirrors what the compiler emits for "." alone.
func mainProlog(body ...isa.Instr) isa.Program {
	prog := isa.Program{
		{Op: isa.Jump, Addr: 1},
		{Op: isa.Enter, Addr: isa.FrameSize},
	}
	prog = append(prog, body...)
	prog = append(prog, isa.Instr{Op: isa.Ret, Addr: 0})
	return prog
}

func TestEnterAllocatesOnlyLocalsNotFrameHeader(t *testing.T) {
	m := newTestMachine()
	prog := mainProlog()
	// Enter 4 adds no locals, so sp stays at the synthetic frame's top.
	snap := runAndSnapshotBeforeRet(t, m, prog)
	require.Equal(t, isa.FrameSize-1, snap.SP)
	_, err := m.Run(prog)
	require.NoError(t, err)
}

func TestPushConstAndArithmetic(t *testing.T) {
	m := newTestMachine()
	prog := mainProlog(
		isa.Instr{Op: isa.PushConst, Addr: 1},
		isa.Instr{Op: isa.PushConst, Addr: 2},
		isa.Instr{Op: isa.PushConst, Addr: 3},
		isa.Instr{Op: isa.Mul},
		isa.Instr{Op: isa.Add},
	)
	snap := runAndSnapshotBeforeRet(t, m, prog)
	require.Equal(t, int32(7), snap.Stack[snap.SP])
}

func TestPushVarEvalAssignRoundTrip(t *testing.T) {
	m := newTestMachine()
	// var i (offset 4); i = 9; push i's value back on the stack.
	prog := isa.Program{
		{Op: isa.Jump, Addr: 1},
		{Op: isa.Enter, Addr: isa.FrameSize + 1},
		{Op: isa.PushConst, Addr: 9},
		{Op: isa.PushVar, Addr: isa.FrameSize},
		{Op: isa.Assign},
		{Op: isa.PushVar, Addr: isa.FrameSize},
		{Op: isa.Eval},
		{Op: isa.Ret, Addr: 0},
	}
	snap := runAndSnapshotBeforeRet(t, m, prog)
	require.Equal(t, int32(9), snap.Stack[snap.SP])
	require.Equal(t, int32(9), snap.Stack[isa.FrameSize])
}

func TestDivisionByZeroFaults(t *testing.T) {
	m := newTestMachine()
	prog := mainProlog(
		isa.Instr{Op: isa.PushConst, Addr: 1},
		isa.Instr{Op: isa.PushConst, Addr: 0},
		isa.Instr{Op: isa.Div},
	)
	_, err := m.Run(prog)
	require.Error(t, err)
	var fault *Fault
	require.ErrorAs(t, err, &fault)
	require.Contains(t, fault.Message, "division by zero")
}

func TestRemainderByZeroFaults(t *testing.T) {
	m := newTestMachine()
	prog := mainProlog(
		isa.Instr{Op: isa.PushConst, Addr: 1},
		isa.Instr{Op: isa.PushConst, Addr: 0},
		isa.Instr{Op: isa.Rem},
	)
	_, err := m.Run(prog)
	require.Error(t, err)
}

func TestShiftCountIsMaskedModWordWidth(t *testing.T) {
	m := newTestMachine()
	prog := mainProlog(
		isa.Instr{Op: isa.PushConst, Addr: 1},
		isa.Instr{Op: isa.PushConst, Addr: 33}, // 33 & 31 == 1
		isa.Instr{Op: isa.LShift},
	)
	snap := runAndSnapshotBeforeRet(t, m, prog)
	require.Equal(t, int32(2), snap.Stack[snap.SP])
}

func TestBitwiseAndIsTrueBitwiseNotLogical(t *testing.T) {
	m := newTestMachine()
	prog := mainProlog(
		isa.Instr{Op: isa.PushConst, Addr: 6},
		isa.Instr{Op: isa.PushConst, Addr: 3},
		isa.Instr{Op: isa.BAnd},
	)
	snap := runAndSnapshotBeforeRet(t, m, prog)
	require.Equal(t, int32(2), snap.Stack[snap.SP])
}

func TestOddIsSynthesizedAsMaskWithOne(t *testing.T) {
	m := newTestMachine()
	prog := mainProlog(
		isa.Instr{Op: isa.PushConst, Addr: 7},
		isa.Instr{Op: isa.PushConst, Addr: 1},
		isa.Instr{Op: isa.BAnd},
	)
	snap := runAndSnapshotBeforeRet(t, m, prog)
	require.Equal(t, int32(1), snap.Stack[snap.SP])
}

func TestCallPassesArgumentsByFrameOffset(t *testing.T) {
	m := newTestMachine()
	// var x; function sq(a) sq = a*a; x = sq(4). -- x lives at main's
	// offset 4, sq's parameter a at its own frame's offset -1, and sq's
	// result travels through its frame's return-value slot.
	prog := isa.Program{
		/*0*/ {Op: isa.Jump, Addr: 1},
		/*1*/ {Op: isa.Enter, Addr: isa.FrameSize + 1},
		/*2*/ {Op: isa.PushConst, Addr: 4},
		/*3*/ {Op: isa.Call, Level: 0, Addr: 7},
		/*4*/ {Op: isa.PushVar, Level: 0, Addr: isa.FrameSize},
		/*5*/ {Op: isa.Assign},
		/*6*/ {Op: isa.Ret, Addr: 0},
		/*7*/ {Op: isa.Enter, Addr: isa.FrameSize},
		/*8*/ {Op: isa.PushVar, Level: 0, Addr: -1},
		/*9*/ {Op: isa.Eval},
		/*10*/ {Op: isa.PushVar, Level: 0, Addr: -1},
		/*11*/ {Op: isa.Eval},
		/*12*/ {Op: isa.Mul},
		/*13*/ {Op: isa.PushVar, Level: 0, Addr: isa.FrameRetVal},
		/*14*/ {Op: isa.Assign},
		/*15*/ {Op: isa.Retf, Addr: 1},
	}
	_, err := m.Run(prog)
	require.NoError(t, err)
	require.Equal(t, int32(16), m.stack[isa.FrameSize])
}

func TestStackOverflowOnPushFaults(t *testing.T) {
	m := New(isa.FrameSize+2, zap.NewNop().Sugar())
	var body []isa.Instr
	for i := 0; i < 16; i++ {
		body = append(body, isa.Instr{Op: isa.PushConst, Addr: int32(i)})
	}
	prog := mainProlog(body...)
	_, err := m.Run(prog)
	require.Error(t, err)
	var fault *Fault
	require.ErrorAs(t, err, &fault)
}

func TestInfiniteRecursionOverflowsStack(t *testing.T) {
	m := New(256, zap.NewNop().Sugar())
	// procedure p(); p(); p(); . -- p calls itself with no base case.
	prog := isa.Program{
		/*0*/ {Op: isa.Jump, Addr: 1},
		/*1*/ {Op: isa.Enter, Addr: isa.FrameSize},
		/*2*/ {Op: isa.Call, Level: 0, Addr: 4},
		/*3*/ {Op: isa.Ret, Addr: 0},
		/*4*/ {Op: isa.Enter, Addr: isa.FrameSize},
		/*5*/ {Op: isa.Call, Level: 0, Addr: 4},
		/*6*/ {Op: isa.Ret, Addr: 0},
	}
	_, err := m.Run(prog)
	require.Error(t, err)
	var fault *Fault
	require.ErrorAs(t, err, &fault)
	require.Contains(t, fault.Message, "stack overflow")
}

func TestSnapshotReportsLiveStackOnly(t *testing.T) {
	m := newTestMachine()
	m.code = mainProlog(isa.Instr{Op: isa.PushConst, Addr: 5})
	m.reset()
	for i := 0; i < 3; i++ {
		m.ir = m.code[m.pc]
		m.pc++
		require.NoError(t, m.step())
	}
	snap := m.Snapshot()
	require.Equal(t, int32(5), snap.Stack[snap.SP])
	require.Len(t, snap.Stack, snap.SP+1)
}

func TestHaltForcesTermination(t *testing.T) {
	m := newTestMachine()
	prog := isa.Program{
		{Op: isa.Halt},
		{Op: isa.PushConst, Addr: 99},
	}
	cycles, err := m.Run(prog)
	require.NoError(t, err)
	require.Equal(t, int64(1), cycles)
}

// runAndSnapshotBeforeRet executes everything up to (but not including)
// the trailing Ret emitted by mainProlog, returning a snapshot so the
// test can inspect the value left on top of the stack before the frame
// unwinds.
func runAndSnapshotBeforeRet(t *testing.T, m *Machine, prog isa.Program) Snapshot {
	t.Helper()
	m.code = prog
	m.reset()
	for {
		require.True(t, m.pc >= 0 && m.pc < len(m.code))
		next := m.code[m.pc]
		if next.Op == isa.Ret || next.Op == isa.Retf {
			return m.Snapshot()
		}
		m.ir = next
		m.pc++
		require.NoError(t, m.step())
	}
}
