package casfold

import "testing"

func TestFoldTree(t *testing.T) {
	// (16 + 8*2) -> fold the multiply node directly since FoldImmediate
	// doesn't support parens; exercise the Expr tree API instead.
	e := Bin(OpAdd, Const(16), Bin(OpMul, Const(8), Const(2)))
	got, ok := Fold(e)
	if !ok || got != 32 {
		t.Fatalf("Fold = %d, %v; want 32, true", got, ok)
	}
}

func TestFoldShift(t *testing.T) {
	e := Bin(OpShl, Const(1), Const(4))
	got, ok := Fold(e)
	if !ok || got != 16 {
		t.Fatalf("Fold = %d, %v; want 16, true", got, ok)
	}
}

func TestFoldImmediate(t *testing.T) {
	cases := []struct {
		expr string
		want int64
	}{
		{"32", 32},
		{"16+8*2", 32},
		{"1<<4", 16},
		{"0x10+8", 24},
		{"10-3", 7},
	}
	for _, c := range cases {
		got, ok := FoldImmediate(c.expr)
		if !ok {
			t.Fatalf("FoldImmediate(%q): not ok", c.expr)
		}
		if got != c.want {
			t.Errorf("FoldImmediate(%q) = %d, want %d", c.expr, got, c.want)
		}
	}
}

func TestFoldImmediateRejectsGarbage(t *testing.T) {
	for _, expr := range []string{"", "x1", "1+", "(1+2)"} {
		if _, ok := FoldImmediate(expr); ok {
			t.Errorf("FoldImmediate(%q) unexpectedly succeeded", expr)
		}
	}
}
