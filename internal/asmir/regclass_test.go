package asmir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegSetOperations(t *testing.T) {
	a := NewRegSet("x0", "x1", "x2")
	b := NewRegSet("x1", "x2", "x3")

	require.True(t, a.Contains("x1"))
	require.False(t, a.Contains("x9"))
	require.Equal(t, 3, a.Len())

	union := a.Union(b)
	require.Equal(t, 4, union.Len())
	for _, n := range []string{"x0", "x1", "x2", "x3"} {
		require.True(t, union.Contains(n))
	}

	sub := a.Sub(b)
	require.Equal(t, NewRegSet("x0"), sub)

	require.True(t, NewRegSet("x1", "x2").IsSubsetOf(a))
	require.False(t, a.IsSubsetOf(NewRegSet("x1", "x2")))
}

func TestRegSetRangeIsSorted(t *testing.T) {
	rs := NewRegSet("x9", "x1", "x30", "x2")
	var order []string
	rs.Range(func(name string) { order = append(order, name) })
	require.Equal(t, []string{"x1", "x2", "x30", "x9"}, order) // lexical, not numeric
}

func TestRegClassAliasResolution(t *testing.T) {
	c := NewRegClass("GPR", NewRegSet("x16")).WithAlias("ip0", "x16")
	require.Equal(t, "x16", c.Resolve("ip0"))
	require.True(t, c.Contains("ip0"))
	require.True(t, c.Contains("x16"))
	require.False(t, c.Contains("x17"))
}

func TestValidateRestrictionRejectsNonSubset(t *testing.T) {
	c := NewRegClass("GPR", NewRegSet("x0", "x1", "x2"))
	err := ValidateRestriction(c, NewRegSet("x0", "x9"))
	require.Error(t, err)

	require.NoError(t, ValidateRestriction(c, NewRegSet("x0", "x1")))
}

func TestFlagsClassHasOneName(t *testing.T) {
	f := NewFlagsClass()
	require.Equal(t, 1, f.Pool().Len())
	require.True(t, f.Contains(FlagsRegisterName))
}
