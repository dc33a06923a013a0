// Package operation defines the pending mutations and side-effect requests
// one automation invocation produces.
//
// Operation is a sealed sum type. The commit pipeline switches over it
// exhaustively, so a new kind is a compile-time checked change there.
// Operations carry no behavior beyond validity checks.
package operation

import (
	"fmt"

	"github.com/roach88/automaton/internal/ir"
)

// Operation is a pending mutation or side-effect request.
//
// This is a sealed interface - only types in this package implement it.
type Operation interface {
	operation() // Marker method - seals interface to this package
	Kind() Kind
	String() string
}

// Kind names an operation variant.
type Kind string

const (
	KindDocumentCreation Kind = "document_creation"
	KindDocumentPatch    Kind = "document_patch"
	KindDocumentRemoval  Kind = "document_removal"
	KindLinkCreation     Kind = "link_creation"
	KindLinkPatch        Kind = "link_patch"
	KindLinkRemoval      Kind = "link_removal"
	KindUserMessage      Kind = "user_message"
	KindPrintAttribute   Kind = "print_attribute"
	KindNavigation       Kind = "navigation"
	KindSendEmail        Kind = "send_email"
	KindShareView        Kind = "share_view"
)

// DocumentCreation creates a new document. Token stands in for the
// document's identifier until the creation is persisted.
type DocumentCreation struct {
	Token    string
	Document *ir.Document
}

// DocumentPatch sets one attribute of a stored or pending document.
type DocumentPatch struct {
	Target       ir.EntityRef
	CollectionID string
	AttributeID  string
	Value        ir.IRValue
}

// DocumentRemoval deletes a document together with its links.
type DocumentRemoval struct {
	Target       ir.EntityRef
	CollectionID string
}

// LinkCreation creates a link between two documents, either of which may
// still be pending.
type LinkCreation struct {
	Token      string
	LinkTypeID string
	Documents  [2]ir.EntityRef
	Data       ir.IRObject
}

// LinkPatch sets one attribute of a stored or pending link.
type LinkPatch struct {
	Target      ir.EntityRef
	LinkTypeID  string
	AttributeID string
	Value       ir.IRValue
}

// LinkRemoval deletes a stored link.
type LinkRemoval struct {
	Target     ir.EntityRef
	LinkTypeID string
}

// MessageLevel is the severity of a user message.
type MessageLevel string

const (
	LevelInfo    MessageLevel = "info"
	LevelSuccess MessageLevel = "success"
	LevelWarning MessageLevel = "warning"
	LevelError   MessageLevel = "error"
)

// UserMessage asks the client to show a message.
type UserMessage struct {
	Level MessageLevel `json:"level"`
	Text  string       `json:"text"`
}

// PrintRequest asks the client to print an attribute value or free text.
type PrintRequest struct {
	ResourceKind    ir.ResourceKind `json:"resource_kind,omitempty"`
	ResourceID      string          `json:"resource_id,omitempty"`
	AttributeID     string          `json:"attribute_id,omitempty"`
	Text            string          `json:"text,omitempty"`
	SkipPrintDialog bool            `json:"skip_print_dialog,omitempty"`
}

// PrintAttribute wraps a print request.
type PrintAttribute struct {
	PrintRequest
}

// NavigationRequest asks the client to open a view, optionally focused on a
// document.
type NavigationRequest struct {
	ViewID       string `json:"view_id"`
	CollectionID string `json:"collection_id,omitempty"`
	DocumentID   string `json:"document_id,omitempty"`
	Search       string `json:"search,omitempty"`
	NewWindow    bool   `json:"new_window,omitempty"`
}

// Navigation wraps a navigation request.
type Navigation struct {
	NavigationRequest
}

// SendEmailRequest is handed to the mail transport.
type SendEmailRequest struct {
	Subject   string `json:"subject"`
	Recipient string `json:"recipient"`
	Body      string `json:"body"`
	FromName  string `json:"from_name,omitempty"`
}

// SendEmail wraps an email request.
type SendEmail struct {
	SendEmailRequest
}

// ShareViewRequest shares a view with a user.
type ShareViewRequest struct {
	ViewID    string   `json:"view_id"`
	UserEmail string   `json:"user_email"`
	Roles     []string `json:"roles,omitempty"`
}

// ShareView wraps a share request.
type ShareView struct {
	ShareViewRequest
}

func (DocumentCreation) operation() {}
func (DocumentPatch) operation()    {}
func (DocumentRemoval) operation()  {}
func (LinkCreation) operation()     {}
func (LinkPatch) operation()        {}
func (LinkRemoval) operation()      {}
func (UserMessage) operation()      {}
func (PrintAttribute) operation()   {}
func (Navigation) operation()       {}
func (SendEmail) operation()        {}
func (ShareView) operation()        {}

func (DocumentCreation) Kind() Kind { return KindDocumentCreation }
func (DocumentPatch) Kind() Kind    { return KindDocumentPatch }
func (DocumentRemoval) Kind() Kind  { return KindDocumentRemoval }
func (LinkCreation) Kind() Kind     { return KindLinkCreation }
func (LinkPatch) Kind() Kind        { return KindLinkPatch }
func (LinkRemoval) Kind() Kind      { return KindLinkRemoval }
func (UserMessage) Kind() Kind      { return KindUserMessage }
func (PrintAttribute) Kind() Kind   { return KindPrintAttribute }
func (Navigation) Kind() Kind       { return KindNavigation }
func (SendEmail) Kind() Kind        { return KindSendEmail }
func (ShareView) Kind() Kind        { return KindShareView }

func (o DocumentCreation) String() string {
	coll := ""
	if o.Document != nil {
		coll = o.Document.CollectionID
	}
	return fmt.Sprintf("%s(%s, token=%s)", o.Kind(), coll, o.Token)
}

func (o DocumentPatch) String() string {
	return fmt.Sprintf("%s(%s, %s.%s)", o.Kind(), refString(o.Target), o.CollectionID, o.AttributeID)
}

func (o DocumentRemoval) String() string {
	return fmt.Sprintf("%s(%s)", o.Kind(), refString(o.Target))
}

func (o LinkCreation) String() string {
	return fmt.Sprintf("%s(%s, %s-%s, token=%s)", o.Kind(), o.LinkTypeID,
		refString(o.Documents[0]), refString(o.Documents[1]), o.Token)
}

func (o LinkPatch) String() string {
	return fmt.Sprintf("%s(%s, %s.%s)", o.Kind(), refString(o.Target), o.LinkTypeID, o.AttributeID)
}

func (o LinkRemoval) String() string {
	return fmt.Sprintf("%s(%s)", o.Kind(), refString(o.Target))
}

func (o UserMessage) String() string {
	return fmt.Sprintf("%s(%s)", o.Kind(), o.Level)
}

func (o PrintAttribute) String() string {
	return fmt.Sprintf("%s(%s)", o.Kind(), o.ResourceID)
}

func (o Navigation) String() string {
	return fmt.Sprintf("%s(%s)", o.Kind(), o.ViewID)
}

func (o SendEmail) String() string {
	return fmt.Sprintf("%s(%s)", o.Kind(), o.Recipient)
}

func (o ShareView) String() string {
	return fmt.Sprintf("%s(%s, %s)", o.Kind(), o.ViewID, o.UserEmail)
}

func refString(r ir.EntityRef) string {
	if r == nil {
		return "<nil>"
	}
	return r.String()
}

// IsSideEffect reports whether the operation is a client-facing request
// rather than a storage mutation.
func IsSideEffect(op Operation) bool {
	switch op.(type) {
	case UserMessage, PrintAttribute, Navigation, SendEmail, ShareView:
		return true
	default:
		return false
	}
}
