package constraint

import (
	"strings"

	"github.com/roach88/automaton/internal/ir"
)

// Converter rewrites the stored value of one attribute after its constraint
// changed.
type Converter interface {
	// PatchDocument returns the attribute assignments to apply to data, or
	// false when the stored value needs no change.
	PatchDocument(data ir.IRObject) (ir.IRObject, bool)
}

// registration declares the type pairs a converter handles.
type registration struct {
	name  string
	from  []ir.ConstraintType
	to    []ir.ConstraintType
	build func(attrID string, from, to *ir.Constraint) Converter
}

func (r registration) handles(from, to ir.ConstraintType) bool {
	return contains(r.from, from) && contains(r.to, to)
}

func contains(types []ir.ConstraintType, t ir.ConstraintType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

var textual = []ir.ConstraintType{ir.ConstraintNone, ir.ConstraintText}

// registry is consulted in order; the first matching pair wins.
var registry = []registration{
	{
		name:  "text_to_boolean",
		from:  textual,
		to:    []ir.ConstraintType{ir.ConstraintBoolean},
		build: newTextToBoolean,
	},
	{
		name:  "text_to_duration",
		from:  textual,
		to:    []ir.ConstraintType{ir.ConstraintDuration},
		build: newTextToDuration,
	},
	{
		name:  "text_to_percentage",
		from:  textual,
		to:    []ir.ConstraintType{ir.ConstraintPercentage},
		build: newTextToPercentage,
	},
	{
		name:  "select_to_none",
		from:  []ir.ConstraintType{ir.ConstraintSelect},
		to:    textual,
		build: newSelectToNone,
	},
	{
		name:  "to_select",
		from:  []ir.ConstraintType{ir.ConstraintNone, ir.ConstraintSelect},
		to:    []ir.ConstraintType{ir.ConstraintSelect},
		build: newToSelect,
	},
	{
		name:  "to_file_attachment",
		from:  allTypes(),
		to:    []ir.ConstraintType{ir.ConstraintFileAttachment},
		build: newToFile,
	},
}

func allTypes() []ir.ConstraintType {
	out := make([]ir.ConstraintType, 0, len(ir.ValidConstraintTypes))
	for t := range ir.ValidConstraintTypes {
		out = append(out, t)
	}
	return out
}

// Lookup finds the converter for a constraint change of attribute attrID.
// It returns false when no converter handles the pair; the stored values
// are then left as they are.
func Lookup(attrID string, from, to *ir.Constraint) (Converter, bool) {
	ft, tt := ir.TypeOf(from), ir.TypeOf(to)
	for _, r := range registry {
		if r.handles(ft, tt) {
			return r.build(attrID, from, to), true
		}
	}
	return nil, false
}

// Name returns the name of the converter handling a type pair, or "".
func Name(from, to ir.ConstraintType) string {
	for _, r := range registry {
		if r.handles(from, to) {
			return r.name
		}
	}
	return ""
}

// Patch is the rewrite of one document.
type Patch struct {
	DocumentID string
	Data       ir.IRObject
}

// ConvertAttribute runs the converter for a constraint change over every
// document and returns the patches to persist, in document order.
func ConvertAttribute(attrID string, from, to *ir.Constraint, docs []*ir.Document) []Patch {
	conv, ok := Lookup(attrID, from, to)
	if !ok {
		return nil
	}
	var out []Patch
	for _, doc := range docs {
		if patch, changed := conv.PatchDocument(doc.Data); changed {
			out = append(out, Patch{DocumentID: doc.ID, Data: patch})
		}
	}
	return out
}

// textToBoolean maps locale tokens to booleans. Unknown tokens keep their
// text.
type textToBoolean struct{ attrID string }

func newTextToBoolean(attrID string, _, _ *ir.Constraint) Converter {
	return textToBoolean{attrID: attrID}
}

func (c textToBoolean) PatchDocument(data ir.IRObject) (ir.IRObject, bool) {
	s, ok := data[c.attrID].(ir.IRString)
	if !ok {
		return nil, false
	}
	b, known := ParseBoolean(string(s))
	if !known {
		return nil, false
	}
	return ir.IRObject{c.attrID: ir.IRBool(b)}, true
}

// textToDuration parses unit tokens into milliseconds. Numeric values are
// already durations.
type textToDuration struct {
	attrID string
	conv   Conversions
}

func newTextToDuration(attrID string, _, to *ir.Constraint) Converter {
	return textToDuration{attrID: attrID, conv: DurationConversions(to)}
}

func (c textToDuration) PatchDocument(data ir.IRObject) (ir.IRObject, bool) {
	s, ok := data[c.attrID].(ir.IRString)
	if !ok {
		return nil, false
	}
	if _, numeric := ParseNumber(string(s)); numeric {
		return nil, false
	}
	ms, parsed := ParseDuration(string(s), c.conv)
	if !parsed {
		return nil, false
	}
	return ir.IRObject{c.attrID: ir.IRInt(ms)}, true
}

// textToPercentage delegates to Encode and patches only on a difference.
type textToPercentage struct {
	attrID string
	to     *ir.Constraint
}

func newTextToPercentage(attrID string, _, to *ir.Constraint) Converter {
	return textToPercentage{attrID: attrID, to: to}
}

func (c textToPercentage) PatchDocument(data ir.IRObject) (ir.IRObject, bool) {
	raw, ok := data[c.attrID]
	if !ok || ir.IsEmpty(raw) {
		return nil, false
	}
	encoded := Encode(c.to, raw)
	if sameStored(raw, encoded) {
		return nil, false
	}
	return ir.IRObject{c.attrID: encoded}, true
}

// sameStored compares values the way they are persisted: types matter.
func sameStored(a, b ir.IRValue) bool {
	ab, err1 := ir.MarshalIRValue(a)
	bb, err2 := ir.MarshalIRValue(b)
	return err1 == nil && err2 == nil && string(ab) == string(bb)
}

// selectToNone replaces option values with their labels.
type selectToNone struct {
	attrID string
	labels map[string]string
}

func newSelectToNone(attrID string, from, _ *ir.Constraint) Converter {
	labels := make(map[string]string)
	for _, opt := range SelectOptions(from) {
		labels[opt.Value] = opt.Label()
	}
	return selectToNone{attrID: attrID, labels: labels}
}

func (c selectToNone) PatchDocument(data ir.IRObject) (ir.IRObject, bool) {
	raw, ok := data[c.attrID]
	if !ok || ir.IsEmpty(raw) {
		return nil, false
	}
	values := ir.Values(raw)
	parts := make([]string, 0, len(values))
	for _, v := range values {
		text := ir.Text(v)
		if label, found := c.labels[text]; found {
			text = label
		}
		parts = append(parts, text)
	}
	joined := ir.IRString(strings.Join(parts, ", "))
	if sameStored(raw, joined) {
		return nil, false
	}
	return ir.IRObject{c.attrID: joined}, true
}

// toSelect maps stored values onto the new option list. From a plain value
// the translation is label to value; from a select with a changed option
// list it is old value to new value through the shared label.
type toSelect struct {
	attrID      string
	translation map[string]string
	multi       bool
}

func newToSelect(attrID string, from, to *ir.Constraint) Converter {
	c := toSelect{attrID: attrID, translation: make(map[string]string), multi: IsMultiselect(to)}
	newOptions := SelectOptions(to)
	byLabel := make(map[string]string, len(newOptions))
	for _, opt := range newOptions {
		byLabel[opt.Label()] = opt.Value
	}

	if ir.TypeOf(from) == ir.ConstraintNone {
		for label, value := range byLabel {
			if label != value {
				c.translation[label] = value
			}
		}
		return c
	}

	oldOptions := SelectOptions(from)
	if sameOptions(oldOptions, newOptions) {
		return c
	}
	for _, opt := range oldOptions {
		if value, ok := byLabel[opt.Label()]; ok && value != opt.Value {
			c.translation[opt.Value] = value
		}
	}
	return c
}

func (c toSelect) PatchDocument(data ir.IRObject) (ir.IRObject, bool) {
	if len(c.translation) == 0 {
		return nil, false
	}
	raw, ok := data[c.attrID]
	if !ok || ir.IsEmpty(raw) {
		return nil, false
	}

	changed := false
	translate := func(v ir.IRValue) ir.IRValue {
		if s, isText := v.(ir.IRString); isText {
			if value, found := c.translation[string(s)]; found {
				changed = true
				return ir.IRString(value)
			}
		}
		return v
	}

	var out ir.IRValue
	if arr, isArr := raw.(ir.IRArray); isArr {
		list := make(ir.IRArray, len(arr))
		for i, v := range arr {
			list[i] = translate(v)
		}
		out = list
	} else {
		out = translate(raw)
		if c.multi && changed {
			out = ir.IRArray{out}
		}
	}
	if !changed {
		return nil, false
	}
	return ir.IRObject{c.attrID: out}, true
}

// toFile keeps stored data as is. The translation table exists so the
// dispatch contract has an entry for every type pair ending in a file
// attachment.
type toFile struct {
	attrID      string
	translation map[string]string
}

func newToFile(attrID string, _, _ *ir.Constraint) Converter {
	return toFile{attrID: attrID, translation: map[string]string{"": ""}}
}

func (c toFile) PatchDocument(ir.IRObject) (ir.IRObject, bool) {
	return nil, false
}
