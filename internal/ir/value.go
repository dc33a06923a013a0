package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// IRValue is a sealed interface representing attribute values.
// Only IRNull, IRString, IRInt, IRBool, IRDecimal, IRDate, IRArray and
// IRObject implement it.
type IRValue interface {
	irValue() // Sealed - only these types implement it
}

// IRNull represents an explicitly empty value.
type IRNull struct{}

func (IRNull) irValue() {}

// MarshalJSON implements json.Marshaler for IRNull.
func (IRNull) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// IRString represents a string value.
type IRString string

func (IRString) irValue() {}

// IRInt represents an integral value that fits into 64 bits.
type IRInt int64

func (IRInt) irValue() {}

// IRBool represents a boolean value.
type IRBool bool

func (IRBool) irValue() {}

// IRDecimal represents a non-integral (or out of range) number.
// The zero value is 0. Values are immutable once constructed.
type IRDecimal struct {
	d *apd.Decimal
}

func (IRDecimal) irValue() {}

// IRDate wraps a host date object. It is carried opaquely through the
// engine and persisted as an RFC 3339 string.
type IRDate struct {
	t time.Time
}

func (IRDate) irValue() {}

// IRArray represents a list of values (multi-value attributes).
type IRArray []IRValue

func (IRArray) irValue() {}

// IRObject represents a map of attribute ids (or keys) to values.
// Use SortedKeys() for deterministic iteration.
type IRObject map[string]IRValue

func (IRObject) irValue() {}

// NewIRDecimal parses a decimal from its textual representation.
func NewIRDecimal(s string) (IRDecimal, error) {
	d, _, err := apd.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return IRDecimal{}, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return IRDecimal{d: d}, nil
}

// MustIRDecimal is like NewIRDecimal but panics on error.
// Use only in tests or with literal input.
func MustIRDecimal(s string) IRDecimal {
	d, err := NewIRDecimal(s)
	if err != nil {
		panic(err)
	}
	return d
}

// DecimalOf wraps an apd decimal. The argument is copied.
func DecimalOf(d *apd.Decimal) IRDecimal {
	c := new(apd.Decimal)
	c.Set(d)
	return IRDecimal{d: c}
}

// Decimal returns a copy of the underlying apd decimal.
func (v IRDecimal) Decimal() *apd.Decimal {
	c := new(apd.Decimal)
	if v.d != nil {
		c.Set(v.d)
	}
	return c
}

// String renders the decimal without exponent notation.
func (v IRDecimal) String() string {
	if v.d == nil {
		return "0"
	}
	return v.d.Text('f')
}

// Float64 converts the decimal for display or SQL parameters.
func (v IRDecimal) Float64() float64 {
	if v.d == nil {
		return 0
	}
	f, err := v.d.Float64()
	if err != nil {
		return math.NaN()
	}
	return f
}

// NewIRDate wraps a time value.
func NewIRDate(t time.Time) IRDate {
	return IRDate{t: t}
}

// Time returns the wrapped time.
func (v IRDate) Time() time.Time {
	return v.t
}

// FromFloat applies the numeric widening rule shared by every boundary that
// receives floating point numbers: integral values that fit into int64 stay
// integral, everything else becomes a decimal. NaN and infinities cannot be
// represented and degrade to their string form.
func FromFloat(f float64) IRValue {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return IRString(strconv.FormatFloat(f, 'g', -1, 64))
	}
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return IRInt(int64(f))
	}
	d := new(apd.Decimal)
	if _, err := d.SetFloat64(f); err != nil {
		return IRString(strconv.FormatFloat(f, 'g', -1, 64))
	}
	return IRDecimal{d: d}
}

// NumberOf returns an IRInt when d is integral and fits into int64,
// otherwise an IRDecimal.
func NumberOf(d *apd.Decimal) IRValue {
	if i, err := d.Int64(); err == nil {
		return IRInt(i)
	}
	return DecimalOf(d)
}

// SortedKeys returns object keys in lexicographic order.
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Clone returns a shallow copy of the object. Values are immutable, so a
// shallow copy is sufficient to isolate writes.
func (obj IRObject) Clone() IRObject {
	if obj == nil {
		return IRObject{}
	}
	c := make(IRObject, len(obj))
	for k, v := range obj {
		c[k] = v
	}
	return c
}

// Get returns the value for key, or IRNull when absent.
func (obj IRObject) Get(key string) IRValue {
	if v, ok := obj[key]; ok && v != nil {
		return v
	}
	return IRNull{}
}

// IsEmpty reports whether a value counts as "not set": absent, null, the
// empty string or an empty list.
func IsEmpty(v IRValue) bool {
	switch val := v.(type) {
	case nil, IRNull:
		return true
	case IRString:
		return strings.TrimSpace(string(val)) == ""
	case IRArray:
		return len(val) == 0
	case IRObject:
		return len(val) == 0
	default:
		return false
	}
}

// Values flattens a value into its members: lists yield their elements,
// scalars yield themselves and empty values yield nothing.
func Values(v IRValue) []IRValue {
	if IsEmpty(v) {
		return nil
	}
	if arr, ok := v.(IRArray); ok {
		out := make([]IRValue, 0, len(arr))
		for _, elem := range arr {
			if !IsEmpty(elem) {
				out = append(out, elem)
			}
		}
		return out
	}
	return []IRValue{v}
}

// Equal reports deep equality of two values. Integers and decimals compare
// numerically.
func Equal(a, b IRValue) bool {
	if a == nil {
		a = IRNull{}
	}
	if b == nil {
		b = IRNull{}
	}
	switch av := a.(type) {
	case IRNull:
		_, ok := b.(IRNull)
		return ok
	case IRString:
		bv, ok := b.(IRString)
		return ok && av == bv
	case IRBool:
		bv, ok := b.(IRBool)
		return ok && av == bv
	case IRInt, IRDecimal:
		ad, aok := numeric(av)
		bd, bok := numeric(b)
		return aok && bok && ad.Cmp(bd) == 0
	case IRDate:
		bv, ok := b.(IRDate)
		return ok && av.t.Equal(bv.t)
	case IRArray:
		bv, ok := b.(IRArray)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case IRObject:
		bv, ok := b.(IRObject)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			other, exists := bv[k]
			if !exists || !Equal(v, other) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// numeric returns the decimal form of IRInt and IRDecimal values.
func numeric(v IRValue) (*apd.Decimal, bool) {
	switch val := v.(type) {
	case IRInt:
		return apd.New(int64(val), 0), true
	case IRDecimal:
		return val.Decimal(), true
	default:
		return nil, false
	}
}

// Numeric exposes numeric for packages that do arithmetic on values.
func Numeric(v IRValue) (*apd.Decimal, bool) {
	return numeric(v)
}

// Text renders a value the way it is shown to users.
func Text(v IRValue) string {
	switch val := v.(type) {
	case nil, IRNull:
		return ""
	case IRString:
		return string(val)
	case IRInt:
		return strconv.FormatInt(int64(val), 10)
	case IRBool:
		return strconv.FormatBool(bool(val))
	case IRDecimal:
		return val.String()
	case IRDate:
		return val.t.Format(time.RFC3339Nano)
	case IRArray:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = Text(elem)
		}
		return strings.Join(parts, ", ")
	case IRObject:
		data, err := val.MarshalJSON()
		if err != nil {
			return ""
		}
		return string(data)
	default:
		return ""
	}
}

// UnmarshalJSON implements json.Unmarshaler for IRObject.
func (obj *IRObject) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*obj = make(IRObject, len(raw))
	for k, v := range raw {
		val, err := UnmarshalIRValue(v)
		if err != nil {
			return fmt.Errorf("IRObject key %q: %w", k, err)
		}
		(*obj)[k] = val
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler for IRArray.
func (arr *IRArray) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*arr = make(IRArray, len(raw))
	for i, v := range raw {
		val, err := UnmarshalIRValue(v)
		if err != nil {
			return fmt.Errorf("IRArray index %d: %w", i, err)
		}
		(*arr)[i] = val
	}
	return nil
}

// UnmarshalIRValue decodes a JSON value into the appropriate IRValue type.
// Numbers that parse as int64 become IRInt, all other numbers IRDecimal.
func UnmarshalIRValue(data []byte) (IRValue, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return IRString(s), nil

	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return IRBool(b), nil

	case 'n':
		return IRNull{}, nil

	case '[':
		var arr IRArray
		if err := json.Unmarshal(data, &arr); err != nil {
			return nil, err
		}
		return arr, nil

	case '{':
		var obj IRObject
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, err
		}
		return obj, nil

	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, err
		}
		if i, err := n.Int64(); err == nil {
			return IRInt(i), nil
		}
		return NewIRDecimal(n.String())
	}
}

// MarshalJSON implements json.Marshaler for IRObject with sorted keys.
func (obj IRObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := MarshalIRValue(obj[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler for IRArray.
func (arr IRArray) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')

	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		elemBytes, err := MarshalIRValue(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(elemBytes)
	}

	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler for IRDecimal.
func (v IRDecimal) MarshalJSON() ([]byte, error) {
	return []byte(v.String()), nil
}

// MarshalJSON implements json.Marshaler for IRDate.
func (v IRDate) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.t.Format(time.RFC3339Nano))
}

// MarshalIRValue marshals an IRValue to JSON bytes.
func MarshalIRValue(v IRValue) ([]byte, error) {
	switch val := v.(type) {
	case nil, IRNull:
		return []byte("null"), nil
	case IRString:
		return json.Marshal(string(val))
	case IRInt:
		return json.Marshal(int64(val))
	case IRBool:
		return json.Marshal(bool(val))
	case IRDecimal:
		return val.MarshalJSON()
	case IRDate:
		return val.MarshalJSON()
	case IRArray:
		return val.MarshalJSON()
	case IRObject:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown IRValue type: %T", v)
	}
}

// FromGo converts decoded Go data (JSON, YAML, CUE) to an IRValue.
// Floating point numbers follow the FromFloat widening rule.
func FromGo(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return IRNull{}, nil
	case IRValue:
		return val, nil
	case bool:
		return IRBool(val), nil
	case string:
		return IRString(val), nil
	case int:
		return IRInt(int64(val)), nil
	case int32:
		return IRInt(int64(val)), nil
	case int64:
		return IRInt(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return NewIRDecimal(strconv.FormatUint(val, 10))
		}
		return IRInt(int64(val)), nil
	case float32:
		return FromFloat(float64(val)), nil
	case float64:
		return FromFloat(val), nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return IRInt(i), nil
		}
		return NewIRDecimal(val.String())
	case time.Time:
		return IRDate{t: val}, nil
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			irElem, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	case []string:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			arr[i] = IRString(elem)
		}
		return arr, nil
	case map[string]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			irElem, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = irElem
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// ObjectFromGo converts a decoded map to an IRObject.
func ObjectFromGo(m map[string]any) (IRObject, error) {
	obj := make(IRObject, len(m))
	for k, v := range m {
		val, err := FromGo(v)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		obj[k] = val
	}
	return obj, nil
}
