package script

import (
	"strconv"
	"time"

	"github.com/dop251/goja"

	"github.com/roach88/automaton/internal/ir"
)

// FromScript converts a value produced by script code into the engine's
// value model. This is the only place sandbox-native values are read.
//
//   - integral numbers become IRInt when they fit into int64, else IRDecimal
//   - other numbers become IRDecimal
//   - booleans pass through, null and undefined become IRNull
//   - arrays are converted element-wise
//   - Date objects become IRDate (UTC)
//   - anything else becomes its string form
func FromScript(v goja.Value) ir.IRValue {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ir.IRNull{}
	}
	if obj, ok := v.(*goja.Object); ok {
		switch obj.ClassName() {
		case "Array":
			n := obj.Get("length").ToInteger()
			out := make(ir.IRArray, 0, n)
			for i := int64(0); i < n; i++ {
				out = append(out, FromScript(obj.Get(strconv.FormatInt(i, 10))))
			}
			return out
		case "Date":
			if t, ok := obj.Export().(time.Time); ok {
				return ir.NewIRDate(t.UTC())
			}
		}
		return ir.IRString(v.String())
	}
	switch x := v.Export().(type) {
	case int64:
		return ir.IRInt(x)
	case float64:
		return ir.FromFloat(x)
	case bool:
		return ir.IRBool(x)
	case string:
		return ir.IRString(x)
	default:
		return ir.IRString(v.String())
	}
}

// ToScript converts an engine value into a sandbox value. Decimals become
// JS numbers and dates become Date objects.
func ToScript(vm *goja.Runtime, v ir.IRValue) goja.Value {
	switch val := v.(type) {
	case nil, ir.IRNull:
		return goja.Null()
	case ir.IRString:
		return vm.ToValue(string(val))
	case ir.IRInt:
		return vm.ToValue(int64(val))
	case ir.IRBool:
		return vm.ToValue(bool(val))
	case ir.IRDecimal:
		return vm.ToValue(val.Float64())
	case ir.IRDate:
		date, err := vm.New(vm.Get("Date"), vm.ToValue(val.Time().UnixMilli()))
		if err != nil {
			return vm.ToValue(val.Time().Format(time.RFC3339Nano))
		}
		return date
	case ir.IRArray:
		items := make([]interface{}, len(val))
		for i, elem := range val {
			items[i] = ToScript(vm, elem)
		}
		return vm.NewArray(items...)
	case ir.IRObject:
		obj := vm.NewObject()
		for _, k := range val.SortedKeys() {
			_ = obj.Set(k, ToScript(vm, val[k]))
		}
		return obj
	default:
		return goja.Undefined()
	}
}

// objectToScript converts a data map into a plain JS object.
func objectToScript(vm *goja.Runtime, data ir.IRObject) *goja.Object {
	obj := vm.NewObject()
	for _, k := range data.SortedKeys() {
		_ = obj.Set(k, ToScript(vm, data[k]))
	}
	return obj
}
