package symtab

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewInstallsMainBootstrapEntry(t *testing.T) {
	tab := New()
	sym, ok := tab.Lookup("main", 0)
	require.True(t, ok)
	require.Equal(t, ProcKind, sym.Kind)
	require.Equal(t, 0, sym.Level)
	require.Equal(t, int32(0), sym.Value)
}

func TestLookupPicksInnermostBinding(t *testing.T) {
	tab := New()
	tab.Insert(Symbol{Name: "x", Kind: VarKind, Level: 0, Value: 4})
	tab.Insert(Symbol{Name: "x", Kind: VarKind, Level: 1, Value: 5})

	sym, ok := tab.Lookup("x", 1)
	require.True(t, ok)
	require.Equal(t, 1, sym.Level)
	require.Equal(t, int32(5), sym.Value)

	sym, ok = tab.Lookup("x", 0)
	require.True(t, ok)
	require.Equal(t, 0, sym.Level)
	require.Equal(t, int32(4), sym.Value)
}

func TestLookupMissing(t *testing.T) {
	tab := New()
	_, ok := tab.Lookup("nope", 5)
	require.False(t, ok)
}

func TestLookupAtLevelRejectsShadowedLevels(t *testing.T) {
	tab := New()
	tab.Insert(Symbol{Name: "y", Kind: ConstKind, Level: 2, Value: 1})

	_, ok := tab.LookupAtLevel("y", 1)
	require.False(t, ok)

	sym, ok := tab.LookupAtLevel("y", 2)
	require.True(t, ok)
	require.Equal(t, int32(1), sym.Value)
}

func TestPurgeRemovesOnlyThatLevel(t *testing.T) {
	tab := New()
	tab.Insert(Symbol{Name: "a", Kind: VarKind, Level: 1, Value: 4})
	tab.Insert(Symbol{Name: "b", Kind: VarKind, Level: 2, Value: 4})

	tab.Purge(1)

	_, ok := tab.Lookup("a", 1)
	require.False(t, ok)

	sym, ok := tab.Lookup("b", 2)
	require.True(t, ok)
	require.Equal(t, int32(4), sym.Value)
}

func TestSetValuePatchesExistingEntry(t *testing.T) {
	tab := New()
	ok := tab.SetValue("main", 0, 42)
	require.True(t, ok)

	sym, _ := tab.Lookup("main", 0)
	require.Equal(t, int32(42), sym.Value)
}

func TestSetValueMissingReturnsFalse(t *testing.T) {
	tab := New()
	require.False(t, tab.SetValue("nope", 0, 1))
}
