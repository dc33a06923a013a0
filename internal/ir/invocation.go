package ir

import "slices"

// Trigger is the kind of change that caused an invocation.
type Trigger string

const (
	TriggerCreated Trigger = "created"
	TriggerUpdated Trigger = "updated"
	TriggerRemoved Trigger = "removed"
)

// ResourceKind says whether an invocation concerns a document or a link.
type ResourceKind string

const (
	KindDocument ResourceKind = "document"
	KindLink     ResourceKind = "link"
)

// Invocation is the derived description of one automation task: the entity
// before and after a committed change, the attributes that changed and the
// user who started the chain. It is what the commit pipeline hands to the
// task scheduler.
type Invocation struct {
	ID            string       `json:"id"`
	RootID        string       `json:"root_id"`
	CorrelationID string       `json:"correlation_id,omitempty"`
	Trigger       Trigger      `json:"trigger"`
	Kind          ResourceKind `json:"kind"`
	CollectionID  string       `json:"collection_id,omitempty"`
	LinkTypeID    string       `json:"link_type_id,omitempty"`

	Document    *Document     `json:"document,omitempty"`
	OldDocument *Document     `json:"old_document,omitempty"`
	Link        *LinkInstance `json:"link,omitempty"`
	OldLink     *LinkInstance `json:"old_link,omitempty"`

	ChangedAttributes []string `json:"changed_attributes,omitempty"`
	User              User     `json:"user"`
	Depth             int      `json:"depth"`
	Seq               int64    `json:"seq"`
}

// Interactive reports whether the invocation was started by a user action
// rather than a passive background trigger.
func (inv *Invocation) Interactive() bool {
	return inv.CorrelationID != ""
}

// ResourceID returns the collection id or link type id the invocation
// belongs to.
func (inv *Invocation) ResourceID() string {
	if inv.Kind == KindLink {
		return inv.LinkTypeID
	}
	return inv.CollectionID
}

// EntityID returns the id of the document or link the invocation handles.
func (inv *Invocation) EntityID() string {
	switch inv.Kind {
	case KindLink:
		if inv.Link != nil {
			return inv.Link.ID
		}
		if inv.OldLink != nil {
			return inv.OldLink.ID
		}
	default:
		if inv.Document != nil {
			return inv.Document.ID
		}
		if inv.OldDocument != nil {
			return inv.OldDocument.ID
		}
	}
	return ""
}

// Data returns the current attribute map of the handled entity, falling
// back to the snapshot before the change for removals.
func (inv *Invocation) Data() IRObject {
	switch inv.Kind {
	case KindLink:
		if inv.Link != nil {
			return inv.Link.Data
		}
		if inv.OldLink != nil {
			return inv.OldLink.Data
		}
	default:
		if inv.Document != nil {
			return inv.Document.Data
		}
		if inv.OldDocument != nil {
			return inv.OldDocument.Data
		}
	}
	return nil
}

// OldData returns the attribute map before the change, or nil on creation.
func (inv *Invocation) OldData() IRObject {
	if inv.Kind == KindLink {
		if inv.OldLink != nil {
			return inv.OldLink.Data
		}
		return nil
	}
	if inv.OldDocument != nil {
		return inv.OldDocument.Data
	}
	return nil
}

// ChangedAttributeIDs diffs two attribute maps and returns the ids whose
// value differs, sorted.
func ChangedAttributeIDs(before, after IRObject) []string {
	var out []string
	for k, v := range after {
		if !Equal(before.Get(k), v) {
			out = append(out, k)
		}
	}
	for k, v := range before {
		if _, ok := after[k]; !ok && !IsEmpty(v) {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}
