package record

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOf(t *testing.T) {
	tests := []struct {
		in   any
		want Value
	}{
		{nil, Null()},
		{42, Int(42)},
		{uint16(7), Int(7)},
		{1.5, Float(1.5)},
		{"x", String("x")},
		{true, Bool(true)},
		{[]string{"a", "b"}, Strings("a", "b")},
		{[]any{1, "a"}, Array(Int(1), String("a"))},
	}
	for _, tt := range tests {
		got, err := Of(tt.in)
		require.NoError(t, err)
		assert.True(t, Equal(tt.want, got), "%v", tt.in)
	}

	_, err := Of(struct{}{})
	assert.Error(t, err)
	_, err = Of(uint64(1 << 63))
	assert.Error(t, err)
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(Int(3), Float(3)))
	assert.True(t, Equal(Null(), Value{}))
	assert.False(t, Equal(Null(), Int(0)))
	assert.False(t, Equal(String("1"), Int(1)))
	assert.True(t, Equal(Strings("a", "b"), Strings("a", "b")))
	assert.False(t, Equal(Strings("a", "b"), Strings("b", "a")))
}

func TestCompareIsTotalOrder(t *testing.T) {
	values := []Value{
		Strings("b"), String("b"), Float(2.5), Int(-1), Bool(true), Null(),
		String("a"), Int(2), Bool(false), Strings("a", "z"),
	}
	slices.SortFunc(values, Compare)

	want := []Value{
		Null(), Bool(false), Bool(true), Int(-1), Int(2), Float(2.5),
		String("a"), String("b"), Strings("a", "z"), Strings("b"),
	}
	require.Len(t, values, len(want))
	for i := range want {
		assert.Equal(t, 0, Compare(want[i], values[i]), "position %d: %s vs %s", i, want[i], values[i])
	}
}

func TestKeyDistinguishesKinds(t *testing.T) {
	assert.NotEqual(t, Int(1).Key(), Float(1).Key())
	assert.NotEqual(t, String("1").Key(), Int(1).Key())
	assert.Equal(t, String("abc").Key(), String("abc").Key())
}

func TestRecordBinary(t *testing.T) {
	r := Record{
		"name":   String("Eagles"),
		"score":  Float(9.5),
		"wins":   Int(-12),
		"active": Bool(true),
		"tags":   Array(String("x"), Int(1), Null()),
		"none":   Null(),
	}
	a, err := r.MarshalBinary()
	require.NoError(t, err)
	b, err := r.Clone().MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, a, b, "encoding is deterministic")

	var got Record
	require.NoError(t, got.UnmarshalBinary(a))
	require.Len(t, got, len(r))
	for k, v := range r {
		assert.True(t, Equal(v, got[k]), k)
	}

	assert.Error(t, got.UnmarshalBinary(a[:len(a)-3]))
}

func TestCloneIsDeep(t *testing.T) {
	r := Record{"tags": Strings("a")}
	c := r.Clone()
	c["tags"].A[0] = String("b")
	assert.Equal(t, "a", r["tags"].A[0].StringValue())
	assert.True(t, r.Get("missing").IsNull())
}
