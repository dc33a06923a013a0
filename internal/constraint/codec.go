package constraint

import (
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/automaton/internal/ir"
)

// Encode converts a value written by a user or script into the stored
// representation of the constraint. Values that cannot be encoded are
// returned unchanged.
func Encode(c *ir.Constraint, v ir.IRValue) ir.IRValue {
	if v == nil {
		return ir.IRNull{}
	}
	if arr, ok := v.(ir.IRArray); ok && IsMultiselect(c) {
		out := make(ir.IRArray, len(arr))
		for i, elem := range arr {
			out[i] = encodeScalar(c, elem)
		}
		return out
	}
	return encodeScalar(c, v)
}

func encodeScalar(c *ir.Constraint, v ir.IRValue) ir.IRValue {
	s, isText := v.(ir.IRString)
	switch ir.TypeOf(c) {
	case ir.ConstraintNumber:
		if isText {
			if n, ok := ParseNumber(string(s)); ok {
				return n
			}
		}
	case ir.ConstraintPercentage:
		if isText {
			if n, ok := parsePercentage(string(s)); ok {
				return n
			}
		}
	case ir.ConstraintBoolean:
		if isText {
			if b, ok := ParseBoolean(string(s)); ok {
				return ir.IRBool(b)
			}
		}
	case ir.ConstraintDuration:
		if isText {
			if n, ok := ParseNumber(string(s)); ok {
				return n
			}
			if ms, ok := ParseDuration(string(s), DurationConversions(c)); ok {
				return ir.IRInt(ms)
			}
		}
	case ir.ConstraintDateTime:
		if isText {
			if t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(s))); err == nil {
				return ir.NewIRDate(t)
			}
		}
	case ir.ConstraintSelect:
		if isText {
			for _, opt := range SelectOptions(c) {
				if opt.Value == string(s) {
					return s
				}
			}
			for _, opt := range SelectOptions(c) {
				if opt.DisplayValue != "" && opt.DisplayValue == string(s) {
					return ir.IRString(opt.Value)
				}
			}
		}
	}
	return v
}

// Decode converts a stored value into the form scripts and matchers work
// with: dates become date values, numeric text of numeric constraints
// becomes a number. Everything else is returned as stored.
func Decode(c *ir.Constraint, v ir.IRValue) ir.IRValue {
	if v == nil {
		return ir.IRNull{}
	}
	s, isText := v.(ir.IRString)
	if !isText {
		return v
	}
	switch ir.TypeOf(c) {
	case ir.ConstraintNumber, ir.ConstraintPercentage, ir.ConstraintDuration:
		if n, ok := ParseNumber(string(s)); ok {
			return n
		}
	case ir.ConstraintBoolean:
		if b, ok := ParseBoolean(string(s)); ok {
			return ir.IRBool(b)
		}
	case ir.ConstraintDateTime:
		if t, err := time.Parse(time.RFC3339Nano, string(s)); err == nil {
			return ir.NewIRDate(t)
		}
	}
	return v
}

// DecodeData decodes every attribute of a data map with its attribute's
// constraint. Attributes not in the schema are copied as stored.
func DecodeData(attrs []ir.Attribute, data ir.IRObject) ir.IRObject {
	out := make(ir.IRObject, len(data))
	for k, v := range data {
		out[k] = v
	}
	for _, a := range attrs {
		if v, ok := data[a.ID]; ok {
			out[a.ID] = Decode(a.Constraint, v)
		}
	}
	return out
}

// ParseNumber parses decimal text. A comma decimal separator is accepted.
func ParseNumber(text string) (ir.IRValue, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil, false
	}
	d, _, err := apd.NewFromString(strings.Replace(s, ",", ".", 1))
	if err != nil || d.Form != apd.Finite {
		return nil, false
	}
	return ir.NumberOf(d), true
}

// parsePercentage accepts "45%" (stored as 0.45) and plain numbers.
func parsePercentage(text string) (ir.IRValue, bool) {
	s := strings.TrimSpace(text)
	if !strings.HasSuffix(s, "%") {
		return ParseNumber(s)
	}
	d, _, err := apd.NewFromString(strings.Replace(strings.TrimSpace(strings.TrimSuffix(s, "%")), ",", ".", 1))
	if err != nil || d.Form != apd.Finite {
		return nil, false
	}
	out := new(apd.Decimal)
	if _, err := apd.BaseContext.Mul(out, d, apd.New(1, -2)); err != nil {
		return nil, false
	}
	return ir.NumberOf(out), true
}
