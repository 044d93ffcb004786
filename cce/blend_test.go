package cce

import (
	"testing"

	"github.com/tilepress/backdrop/colorval"
)

func TestBlendSeparableNormalIsSource(t *testing.T) {
	cs := []colorval.Value{colorval.One / 4}
	cb := []colorval.Value{colorval.One}
	out := make([]colorval.Value, 1)
	BlendSeparable(Normal, 1, cs, cb, out)
	if out[0] != cs[0] {
		t.Errorf("Normal blend = %d, want %d", out[0], cs[0])
	}
}

func TestBlendSeparableMultiplyWithWhiteIsIdentity(t *testing.T) {
	cs := []colorval.Value{colorval.One / 3}
	cb := []colorval.Value{colorval.One}
	out := make([]colorval.Value, 1)
	BlendSeparable(Multiply, 1, cs, cb, out)
	if diff := int(out[0]) - int(cs[0]); diff > 2 || diff < -2 {
		t.Errorf("Multiply(x, white) = %d, want ~%d", out[0], cs[0])
	}
}

func TestBlendSeparableScreenWithBlackIsSource(t *testing.T) {
	cs := []colorval.Value{colorval.One / 3}
	cb := []colorval.Value{0}
	out := make([]colorval.Value, 1)
	BlendSeparable(Screen, 1, cs, cb, out)
	if diff := int(out[0]) - int(cs[0]); diff > 2 || diff < -2 {
		t.Errorf("Screen(x, black) = %d, want ~%d", out[0], cs[0])
	}
}

func TestComposeOpaqueSourceOverAnythingIsSource(t *testing.T) {
	srcPremult := colorval.Value(40000)
	bdPremult := colorval.Value(10000)
	blend := srcPremult
	got := Compose(srcPremult, bdPremult, blend, colorval.One, colorval.One)
	if got != srcPremult {
		t.Errorf("Compose with sa=1 = %d, want %d", got, srcPremult)
	}
}

func TestCombineAlphaUnion(t *testing.T) {
	if got := CombineAlpha(colorval.One, 0); got != colorval.One {
		t.Errorf("CombineAlpha(1,0) = %d, want One", got)
	}
	if got := CombineAlpha(0, 0); got != 0 {
		t.Errorf("CombineAlpha(0,0) = %d, want 0", got)
	}
}
