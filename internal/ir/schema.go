package ir

// ConstraintType is the declared value type of an attribute.
type ConstraintType string

const (
	ConstraintNone           ConstraintType = "None"
	ConstraintText           ConstraintType = "Text"
	ConstraintBoolean        ConstraintType = "Boolean"
	ConstraintNumber         ConstraintType = "Number"
	ConstraintPercentage     ConstraintType = "Percentage"
	ConstraintDuration       ConstraintType = "Duration"
	ConstraintSelect         ConstraintType = "Select"
	ConstraintUser           ConstraintType = "User"
	ConstraintDateTime       ConstraintType = "DateTime"
	ConstraintColor          ConstraintType = "Color"
	ConstraintAddress        ConstraintType = "Address"
	ConstraintCoordinates    ConstraintType = "Coordinates"
	ConstraintLink           ConstraintType = "Link"
	ConstraintFileAttachment ConstraintType = "FileAttachment"
	ConstraintAction         ConstraintType = "Action"
	ConstraintView           ConstraintType = "View"
)

// ValidConstraintTypes lists every constraint type the engine understands.
var ValidConstraintTypes = map[ConstraintType]bool{
	ConstraintNone:           true,
	ConstraintText:           true,
	ConstraintBoolean:        true,
	ConstraintNumber:         true,
	ConstraintPercentage:     true,
	ConstraintDuration:       true,
	ConstraintSelect:         true,
	ConstraintUser:           true,
	ConstraintDateTime:       true,
	ConstraintColor:          true,
	ConstraintAddress:        true,
	ConstraintCoordinates:    true,
	ConstraintLink:           true,
	ConstraintFileAttachment: true,
	ConstraintAction:         true,
	ConstraintView:           true,
}

// Constraint is an attribute's declared type plus type-specific configuration
// (decimals, duration schema, select options, ...).
type Constraint struct {
	Type   ConstraintType `json:"type"`
	Config IRObject       `json:"config,omitempty"`
}

// TypeOf returns the constraint type, treating a missing constraint as None.
func TypeOf(c *Constraint) ConstraintType {
	if c == nil || c.Type == "" {
		return ConstraintNone
	}
	return c.Type
}

// Function is a computed-attribute script. Dependencies lists the attribute
// ids whose change re-evaluates the function; empty means any change.
type Function struct {
	JS           string   `json:"js"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// DependsOn reports whether a change of any of the given attributes must
// re-evaluate the function.
func (f *Function) DependsOn(changed []string) bool {
	if f == nil {
		return false
	}
	if len(f.Dependencies) == 0 {
		return true
	}
	for _, dep := range f.Dependencies {
		for _, c := range changed {
			if dep == c {
				return true
			}
		}
	}
	return false
}

// Attribute is a schema-level attribute of a collection or link type.
type Attribute struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Constraint *Constraint `json:"constraint,omitempty"`
	Function   *Function   `json:"function,omitempty"`
	UsageCount int64       `json:"usage_count"`
}

// RuleType distinguishes scripted rules from auto-link rules.
type RuleType string

const (
	RuleScript   RuleType = "script"
	RuleAutoLink RuleType = "auto_link"
)

// RuleTiming selects the triggers a rule reacts to.
type RuleTiming string

const (
	TimingCreate       RuleTiming = "create"
	TimingUpdate       RuleTiming = "update"
	TimingDelete       RuleTiming = "delete"
	TimingCreateUpdate RuleTiming = "create_update"
	TimingCreateDelete RuleTiming = "create_delete"
	TimingUpdateDelete RuleTiming = "update_delete"
	TimingAll          RuleTiming = "all"
)

// Fires reports whether the timing covers the trigger.
func (t RuleTiming) Fires(trigger Trigger) bool {
	switch trigger {
	case TriggerCreated:
		return t == TimingCreate || t == TimingCreateUpdate || t == TimingCreateDelete || t == TimingAll
	case TriggerUpdated:
		return t == TimingUpdate || t == TimingCreateUpdate || t == TimingUpdateDelete || t == TimingAll
	case TriggerRemoved:
		return t == TimingDelete || t == TimingCreateDelete || t == TimingUpdateDelete || t == TimingAll
	default:
		return false
	}
}

// AutoLinkRule keeps documents of two collections linked while a watched
// attribute on each side matches.
type AutoLinkRule struct {
	Collection1 string `json:"collection1"`
	Attribute1  string `json:"attribute1"`
	Collection2 string `json:"collection2"`
	Attribute2  string `json:"attribute2"`
	LinkType    string `json:"link_type"`
}

// Rule is an automation attached to a collection or link type.
type Rule struct {
	ID       string        `json:"id"`
	Name     string        `json:"name,omitempty"`
	Type     RuleType      `json:"type"`
	Timing   RuleTiming    `json:"timing"`
	Script   string        `json:"script,omitempty"`
	AutoLink *AutoLinkRule `json:"auto_link,omitempty"`
}

// Collection groups documents sharing an attribute schema.
type Collection struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Attributes     []Attribute `json:"attributes"`
	Rules          []Rule      `json:"rules,omitempty"`
	DocumentsCount int64       `json:"documents_count"`
}

// Attribute returns the attribute with the given id, or nil.
func (c *Collection) Attribute(id string) *Attribute {
	return findAttribute(c.Attributes, id)
}

// AdjustUsage changes the usage counter of an attribute in memory.
// Unknown attribute ids are ignored.
func (c *Collection) AdjustUsage(attrID string, delta int64) {
	adjustUsage(c.Attributes, attrID, delta)
}

// RulesFor returns the rules whose timing covers the trigger, in
// declaration order.
func (c *Collection) RulesFor(trigger Trigger) []Rule {
	return rulesFor(c.Rules, trigger)
}

// Clone returns a deep copy of the schema object.
func (c *Collection) Clone() *Collection {
	cp := *c
	cp.Attributes = cloneAttributes(c.Attributes)
	cp.Rules = append([]Rule(nil), c.Rules...)
	return &cp
}

// LinkType declares a relation between two collections.
type LinkType struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	CollectionIDs [2]string   `json:"collection_ids"`
	Attributes    []Attribute `json:"attributes"`
	Rules         []Rule      `json:"rules,omitempty"`
	LinksCount    int64       `json:"links_count"`
}

// Attribute returns the attribute with the given id, or nil.
func (l *LinkType) Attribute(id string) *Attribute {
	return findAttribute(l.Attributes, id)
}

// AdjustUsage changes the usage counter of an attribute in memory.
func (l *LinkType) AdjustUsage(attrID string, delta int64) {
	adjustUsage(l.Attributes, attrID, delta)
}

// RulesFor returns the rules whose timing covers the trigger.
func (l *LinkType) RulesFor(trigger Trigger) []Rule {
	return rulesFor(l.Rules, trigger)
}

// Connects reports whether the link type joins the two collections, in
// either order.
func (l *LinkType) Connects(c1, c2 string) bool {
	return (l.CollectionIDs[0] == c1 && l.CollectionIDs[1] == c2) ||
		(l.CollectionIDs[0] == c2 && l.CollectionIDs[1] == c1)
}

// Clone returns a deep copy of the schema object.
func (l *LinkType) Clone() *LinkType {
	cp := *l
	cp.Attributes = cloneAttributes(l.Attributes)
	cp.Rules = append([]Rule(nil), l.Rules...)
	return &cp
}

func findAttribute(attrs []Attribute, id string) *Attribute {
	for i := range attrs {
		if attrs[i].ID == id {
			return &attrs[i]
		}
	}
	return nil
}

func adjustUsage(attrs []Attribute, id string, delta int64) {
	if a := findAttribute(attrs, id); a != nil {
		a.UsageCount += delta
		if a.UsageCount < 0 {
			a.UsageCount = 0
		}
	}
}

func rulesFor(rules []Rule, trigger Trigger) []Rule {
	var out []Rule
	for _, r := range rules {
		if r.Timing.Fires(trigger) {
			out = append(out, r)
		}
	}
	return out
}

func cloneAttributes(attrs []Attribute) []Attribute {
	if attrs == nil {
		return nil
	}
	out := make([]Attribute, len(attrs))
	for i, a := range attrs {
		out[i] = a
		if a.Constraint != nil {
			c := *a.Constraint
			c.Config = a.Constraint.Config.Clone()
			out[i].Constraint = &c
		}
		if a.Function != nil {
			f := *a.Function
			f.Dependencies = append([]string(nil), a.Function.Dependencies...)
			out[i].Function = &f
		}
	}
	return out
}
