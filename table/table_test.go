package table

import (
	"bytes"
	"testing"

	"github.com/tilepress/backdrop/colorval"
)

func TestInitEntryAndEqualEntry(t *testing.T) {
	var tb Table
	tb.Init(Isolated, 4, 8)

	col := []colorval.Value{1000, 2000, 3000, 4000}
	info := colorval.Info{Label: 1, Spot: 7}
	if err := tb.InitEntry(0, col, colorval.One, 0, info); err != nil {
		t.Fatalf("InitEntry: %v", err)
	}
	if err := tb.InitEntry(1, col, colorval.One, 0, info); err != nil {
		t.Fatalf("InitEntry: %v", err)
	}
	if tb.NUsedSlots != 2 {
		t.Fatalf("NUsedSlots = %d, want 2", tb.NUsedSlots)
	}
	if !tb.EqualEntry(0, &tb, 1) {
		t.Errorf("slots 0 and 1 should compare equal")
	}

	other := []colorval.Value{1000, 2000, 3000, 4001}
	tb.InitEntry(2, other, colorval.One, 0, info)
	if tb.EqualEntry(0, &tb, 2) {
		t.Errorf("slots 0 and 2 should not compare equal (differing color)")
	}
}

func TestEqualEntryWildLabel(t *testing.T) {
	var tb Table
	tb.Init(Isolated, 1, 4)
	col1 := []colorval.Value{10}
	col2 := []colorval.Value{20}
	tb.InitEntry(0, col1, colorval.One, 0, colorval.Info{Label: 0})
	tb.InitEntry(1, col2, colorval.One, 0, colorval.Info{Label: 0})

	// Two empty-label slots (label==0) are wild: EqualEntry reports them
	// equal without comparing color or alpha.
	if !tb.EqualEntry(0, &tb, 1) {
		t.Errorf("slots with label==0 on both sides should compare equal regardless of color")
	}
}

func TestCopyToNonIsolatedZeroesGroupAlphaAndLabel(t *testing.T) {
	var parent Table
	parent.Init(Isolated, 2, 4)
	parent.InitEntry(0, []colorval.Value{100, 200}, colorval.One, 0, colorval.Info{Label: 42})

	var child Table
	child.Init(NonIsolated, 2, 4)
	if err := parent.CopyToNonIsolated(0, &child, 0); err != nil {
		t.Fatalf("CopyToNonIsolated: %v", err)
	}
	if child.GroupAlpha[0] != 0 {
		t.Errorf("GroupAlpha = %d, want 0", child.GroupAlpha[0])
	}
	if child.Info[0].Label != colorval.NoLabel {
		t.Errorf("Label = %d, want 0", child.Info[0].Label)
	}
	if child.Alpha[0] != colorval.One {
		t.Errorf("Alpha = %d, want preserved %d", child.Alpha[0], colorval.One)
	}
}

func TestDivideAlphaUnpremultipliesColor(t *testing.T) {
	var tb Table
	tb.Init(Isolated, 1, 2)
	tb.InitEntry(0, []colorval.Value{colorval.One / 2}, colorval.One/2, 0, colorval.Info{Label: 1})

	before := tb.Color[0]
	tb.DivideAlpha()
	// alpha was One/2 and premultiplied color was One/2, so dividing
	// should yield ~One (within rounding).
	if d := int(tb.Color[0]) - int(colorval.One); d < -2 || d > 2 {
		t.Errorf("DivideAlpha: got %d, want ~%d (from premul %d)", tb.Color[0], colorval.One, before)
	}
}

func TestSizeIsEightByteAligned(t *testing.T) {
	for _, v := range []Variant{Isolated, IsolatedShape, NonIsolated, NonIsolatedShape, Alpha, Output8, Output16} {
		sz := Size(v, 4, 17)
		if sz%8 != 0 {
			t.Errorf("Size(%s) = %d, not 8-byte aligned", v, sz)
		}
	}
}

func TestDiskRoundTrip(t *testing.T) {
	var tb Table
	tb.Init(NonIsolatedShape, 3, 4)
	tb.InitEntry(0, []colorval.Value{10, 20, 30}, 100, 200, colorval.Info{Label: 5, Spot: 9})
	tb.Shape[0] = 300
	tb.InitEntry(1, []colorval.Value{40, 50, 60}, 400, 500, colorval.Info{Label: 6, Spot: 1})
	tb.Shape[1] = 600

	var buf bytes.Buffer
	if _, err := tb.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	var got Table
	if _, err := got.ReadFrom(&buf); err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}

	if got.NUsedSlots != tb.NUsedSlots || got.NMaxSlots != tb.NUsedSlots {
		t.Fatalf("slot counts = %d/%d, want %d/%d", got.NUsedSlots, got.NMaxSlots, tb.NUsedSlots, tb.NUsedSlots)
	}
	for s := 0; s < tb.NUsedSlots; s++ {
		if !tb.EqualEntry(s, &got, s) {
			t.Errorf("slot %d round-tripped unequal", s)
		}
		if got.Shape[s] != tb.Shape[s] {
			t.Errorf("slot %d shape = %d, want %d", s, got.Shape[s], tb.Shape[s])
		}
	}
}
