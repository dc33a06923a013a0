package ir

import "time"

// Document is a schema-flexible record belonging to exactly one collection.
// ID is empty until the document is persisted.
type Document struct {
	ID           string    `json:"id"`
	CollectionID string    `json:"collection_id"`
	ParentID     string    `json:"parent_id,omitempty"`
	Data         IRObject  `json:"data"`
	CreatedBy    string    `json:"created_by,omitempty"`
	UpdatedBy    string    `json:"updated_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// Clone returns a copy with an independent data map.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	cp := *d
	cp.Data = d.Data.Clone()
	return &cp
}

// LinkInstance is one relation edge between two documents.
type LinkInstance struct {
	ID          string    `json:"id"`
	LinkTypeID  string    `json:"link_type_id"`
	DocumentIDs [2]string `json:"document_ids"`
	Data        IRObject  `json:"data"`
	CreatedBy   string    `json:"created_by,omitempty"`
	UpdatedBy   string    `json:"updated_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// Clone returns a copy with an independent data map.
func (l *LinkInstance) Clone() *LinkInstance {
	if l == nil {
		return nil
	}
	cp := *l
	cp.Data = l.Data.Clone()
	return &cp
}

// Other returns the document id on the opposite end of the link, or "" if
// documentID is not an end of it.
func (l *LinkInstance) Other(documentID string) string {
	switch documentID {
	case l.DocumentIDs[0]:
		return l.DocumentIDs[1]
	case l.DocumentIDs[1]:
		return l.DocumentIDs[0]
	default:
		return ""
	}
}

// EntityRef identifies a document or link that is either already stored or
// only created earlier in the same invocation. Only Persisted and Pending
// implement it.
type EntityRef interface {
	entityRef()
	String() string
}

// Persisted references a stored entity by identifier.
type Persisted string

func (Persisted) entityRef() {}

func (p Persisted) String() string { return string(p) }

// Pending references an entity by the correlation token of its creation
// operation.
type Pending string

func (Pending) entityRef() {}

func (p Pending) String() string { return "pending:" + string(p) }

// RefOf returns a Persisted ref when id is set, otherwise a Pending ref for
// token. Returns nil when both are empty.
func RefOf(id, token string) EntityRef {
	switch {
	case id != "":
		return Persisted(id)
	case token != "":
		return Pending(token)
	default:
		return nil
	}
}

// User is the initiator of an invocation.
type User struct {
	ID     string   `json:"id"`
	Email  string   `json:"email,omitempty"`
	Name   string   `json:"name,omitempty"`
	Groups []string `json:"groups,omitempty"`
}
