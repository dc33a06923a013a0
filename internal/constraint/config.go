// Package constraint implements type-aware value encoding for attribute
// constraints and the converters that rewrite stored values when an
// attribute's declared type changes.
package constraint

import (
	"github.com/roach88/automaton/internal/ir"
)

// Option is one entry of a select constraint's option list.
type Option struct {
	Value        string
	DisplayValue string
}

// Label returns the display value, falling back to the value itself.
func (o Option) Label() string {
	if o.DisplayValue != "" {
		return o.DisplayValue
	}
	return o.Value
}

// IsMultiselect reports whether the attribute holds a list of values.
// Select and User constraints are multi-valued when configured with
// multi: true.
func IsMultiselect(c *ir.Constraint) bool {
	switch ir.TypeOf(c) {
	case ir.ConstraintSelect, ir.ConstraintUser:
		b, ok := c.Config["multi"].(ir.IRBool)
		return ok && bool(b)
	default:
		return false
	}
}

// SelectOptions returns the configured options of a select constraint.
// Options may be given as objects {value, display_value} or plain strings.
func SelectOptions(c *ir.Constraint) []Option {
	if c == nil {
		return nil
	}
	arr, ok := c.Config["options"].(ir.IRArray)
	if !ok {
		return nil
	}
	out := make([]Option, 0, len(arr))
	for _, elem := range arr {
		switch v := elem.(type) {
		case ir.IRString:
			out = append(out, Option{Value: string(v)})
		case ir.IRObject:
			out = append(out, Option{
				Value:        ir.Text(v.Get("value")),
				DisplayValue: ir.Text(v.Get("display_value")),
			})
		}
	}
	return out
}

// sameOptions compares two option lists in order.
func sameOptions(a, b []Option) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Decimals returns the configured number of decimal places, or -1 when
// unset.
func Decimals(c *ir.Constraint) int {
	if c == nil {
		return -1
	}
	if n, ok := c.Config["decimals"].(ir.IRInt); ok && n >= 0 {
		return int(n)
	}
	return -1
}
