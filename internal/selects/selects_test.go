package selects

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want SelectInstance
	}{
		{"os:linux", OS.Is("linux")},
		{"arch:aarch64", Arch.Is("aarch64")},
		{"toolchain:clang", Toolchain.Is("clang")},
		{"mesa.gallium_drivers:iris", Custom("mesa", "gallium_drivers").Is("iris")},
		{"a.b.c:d", Custom("a.b", "c").Is("d")},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{"", "linux", "os:", ":linux", "nodot:value", ".var:x", "ns.:x"} {
		_, err := Parse(in)
		if !errors.Is(err, ErrInvalidSelect) {
			t.Errorf("Parse(%q) error = %v, want ErrInvalidSelect", in, err)
		}
	}
}

func TestSortedOrder(t *testing.T) {
	ls := NewLabelSet(
		Custom("mesa", "zz").Is("on"),
		Arch.Is("x86_64"),
		Custom("mesa", "aa").Is("off"),
		OS.Is("linux"),
	)
	got := ls.Sorted()
	want := []SelectInstance{
		OS.Is("linux"),
		Arch.Is("x86_64"),
		Custom("mesa", "aa").Is("off"),
		Custom("mesa", "zz").Is("on"),
	}
	assert.Equal(t, want, got)
	assert.Equal(t, []SelectID{OS, Arch, Custom("mesa", "aa"), Custom("mesa", "zz")}, ls.IDs())
}

func TestLabelSetAlgebra(t *testing.T) {
	a := NewLabelSet(OS.Is("linux"), Arch.Is("arm64"))
	b := NewLabelSet(OS.Is("linux"), Arch.Is("x86_64"))

	u := a.Clone()
	u.Union(b)
	assert.Len(t, u, 3)
	assert.True(t, a.SubsetOf(u))
	assert.False(t, u.SubsetOf(a))

	i := a.Clone()
	i.Intersect(b)
	assert.Equal(t, NewLabelSet(OS.Is("linux")), i)

	u.Subtract(NewLabelSet(Arch.Is("arm64"), Arch.Is("x86_64")))
	assert.Equal(t, NewLabelSet(OS.Is("linux")), u)

	v, ok := a.Value(Arch)
	assert.True(t, ok)
	assert.Equal(t, "arm64", v)
	assert.Equal(t, "{os:linux, arch:arm64}", a.String())
}

func TestCustomSelect(t *testing.T) {
	cs := CustomSelect{ID: Custom("mesa", "platform"), Values: []string{"x11", "wayland", "android"}, Default: "x11"}
	require.NoError(t, cs.Validate())
	assert.Len(t, cs.Labels(), 3)
	assert.Equal(t, Custom("mesa", "platform").Is("x11"), cs.DefaultLabel())

	cs.Default = "gbm"
	assert.ErrorIs(t, cs.Validate(), ErrInvalidSelect)
}
