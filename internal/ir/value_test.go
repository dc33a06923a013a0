package ir

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIRValueSealed(t *testing.T) {
	// Verify all types implement IRValue (compile-time check via assignment)
	var _ IRValue = IRNull{}
	var _ IRValue = IRString("test")
	var _ IRValue = IRInt(42)
	var _ IRValue = IRBool(true)
	var _ IRValue = MustIRDecimal("1.5")
	var _ IRValue = NewIRDate(time.Unix(0, 0))
	var _ IRValue = IRArray{IRString("a"), IRInt(1)}
	var _ IRValue = IRObject{"key": IRString("value")}
}

func TestIRObjectSortedKeys(t *testing.T) {
	obj := IRObject{
		"zebra":  IRString("z"),
		"apple":  IRString("a"),
		"banana": IRString("b"),
	}

	assert.Equal(t, []string{"apple", "banana", "zebra"}, obj.SortedKeys())
	assert.Empty(t, IRObject{}.SortedKeys())
}

func TestIRObjectGetAndClone(t *testing.T) {
	obj := IRObject{"a": IRInt(1)}

	assert.Equal(t, IRInt(1), obj.Get("a"))
	assert.Equal(t, IRNull{}, obj.Get("missing"))

	c := obj.Clone()
	c["b"] = IRInt(2)
	assert.Len(t, obj, 1, "clone must not alias the original")

	var nilObj IRObject
	assert.NotNil(t, nilObj.Clone())
}

func TestFromFloat(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want IRValue
	}{
		{"integral", 42, IRInt(42)},
		{"negative integral", -7, IRInt(-7)},
		{"zero", 0, IRInt(0)},
		{"fraction", 1.25, MustIRDecimal("1.25")},
		{"beyond int64", 1e19, MustIRDecimal("10000000000000000000")},
		{"nan", math.NaN(), IRString("NaN")},
		{"inf", math.Inf(1), IRString("+Inf")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromFloat(tt.in)
			assert.True(t, Equal(tt.want, got), "want %v, got %v", tt.want, got)
			assert.IsType(t, tt.want, got)
		})
	}
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, IsEmpty(nil))
	assert.True(t, IsEmpty(IRNull{}))
	assert.True(t, IsEmpty(IRString("")))
	assert.True(t, IsEmpty(IRString("   ")))
	assert.True(t, IsEmpty(IRArray{}))
	assert.True(t, IsEmpty(IRObject{}))

	assert.False(t, IsEmpty(IRInt(0)))
	assert.False(t, IsEmpty(IRBool(false)))
	assert.False(t, IsEmpty(IRString("x")))
	assert.False(t, IsEmpty(IRArray{IRNull{}}))
}

func TestValues(t *testing.T) {
	assert.Nil(t, Values(IRNull{}))
	assert.Equal(t, []IRValue{IRString("a")}, Values(IRString("a")))
	assert.Equal(t,
		[]IRValue{IRString("a"), IRString("b")},
		Values(IRArray{IRString("a"), IRNull{}, IRString(""), IRString("b")}))
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(IRInt(2), MustIRDecimal("2.00")))
	assert.True(t, Equal(nil, IRNull{}))
	assert.True(t, Equal(
		IRArray{IRString("a"), IRObject{"k": IRBool(true)}},
		IRArray{IRString("a"), IRObject{"k": IRBool(true)}}))

	assert.False(t, Equal(IRString("1"), IRInt(1)))
	assert.False(t, Equal(IRArray{IRInt(1)}, IRArray{IRInt(1), IRInt(2)}))
	assert.False(t, Equal(IRObject{"a": IRInt(1)}, IRObject{"b": IRInt(1)}))

	d := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	assert.True(t, Equal(NewIRDate(d), NewIRDate(d.In(time.FixedZone("x", 3600)))))
}

func TestText(t *testing.T) {
	assert.Equal(t, "", Text(IRNull{}))
	assert.Equal(t, "abc", Text(IRString("abc")))
	assert.Equal(t, "12", Text(IRInt(12)))
	assert.Equal(t, "true", Text(IRBool(true)))
	assert.Equal(t, "0.5", Text(MustIRDecimal("0.5")))
	assert.Equal(t, "a, 1", Text(IRArray{IRString("a"), IRInt(1)}))
	assert.Equal(t, `{"a":1}`, Text(IRObject{"a": IRInt(1)}))
}

func TestMarshalIRObjectKeyOrder(t *testing.T) {
	obj := IRObject{"b": IRInt(2), "a": IRInt(1), "c": IRNull{}}

	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2,"c":null}`, string(data))
}

func TestMarshalIRValueRoundTrip(t *testing.T) {
	original := IRObject{
		"text":    IRString("hello"),
		"count":   IRInt(3),
		"ratio":   MustIRDecimal("0.125"),
		"flag":    IRBool(false),
		"nothing": IRNull{},
		"tags":    IRArray{IRString("x"), IRString("y")},
		"nested":  IRObject{"inner": IRInt(-1)},
	}

	data, err := MarshalIRValue(original)
	require.NoError(t, err)

	decoded, err := UnmarshalIRValue(data)
	require.NoError(t, err)
	assert.True(t, Equal(original, decoded), "round trip changed value: %s", data)
}

func TestUnmarshalIRValueNumbers(t *testing.T) {
	v, err := UnmarshalIRValue([]byte("42"))
	require.NoError(t, err)
	assert.Equal(t, IRInt(42), v)

	v, err = UnmarshalIRValue([]byte("3.5"))
	require.NoError(t, err)
	require.IsType(t, IRDecimal{}, v)
	assert.Equal(t, "3.5", v.(IRDecimal).String())

	v, err = UnmarshalIRValue([]byte("null"))
	require.NoError(t, err)
	assert.Equal(t, IRNull{}, v)

	_, err = UnmarshalIRValue([]byte(""))
	assert.Error(t, err)
}

func TestDateMarshalsAsRFC3339(t *testing.T) {
	d := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	data, err := MarshalIRValue(NewIRDate(d))
	require.NoError(t, err)
	assert.Equal(t, `"2024-01-02T03:04:05Z"`, string(data))
}

func TestFromGo(t *testing.T) {
	v, err := FromGo(map[string]any{
		"s":   "x",
		"i":   7,
		"f":   2.0,
		"d":   2.5,
		"b":   true,
		"n":   nil,
		"arr": []any{"a", 1},
	})
	require.NoError(t, err)

	obj, ok := v.(IRObject)
	require.True(t, ok)
	assert.Equal(t, IRString("x"), obj["s"])
	assert.Equal(t, IRInt(7), obj["i"])
	assert.Equal(t, IRInt(2), obj["f"])
	assert.True(t, Equal(MustIRDecimal("2.5"), obj["d"]))
	assert.Equal(t, IRBool(true), obj["b"])
	assert.Equal(t, IRNull{}, obj["n"])
	assert.Equal(t, IRArray{IRString("a"), IRInt(1)}, obj["arr"])

	_, err = FromGo(struct{}{})
	assert.Error(t, err)
}

func TestNewIRDecimalRejectsGarbage(t *testing.T) {
	_, err := NewIRDecimal("twelve")
	assert.Error(t, err)
}
