package pipeline

import (
	"encoding/json"

	"github.com/roach88/automaton/internal/ir"
	"github.com/roach88/automaton/internal/operation"
)

// ChangesTracker is the diff one commit produced. It is built during the
// commit and handed to the client notifier afterwards.
//
// Entity lists are in commit order, so the same batch against the same store
// state always yields the same tracker.
type ChangesTracker struct {
	// Collections and LinkTypes hold the schema objects after the commit,
	// carrying the updated counters.
	Collections map[string]*ir.Collection `json:"collections,omitempty"`
	LinkTypes   map[string]*ir.LinkType   `json:"link_types,omitempty"`

	CreatedDocuments []*ir.Document `json:"created_documents,omitempty"`
	UpdatedDocuments []*ir.Document `json:"updated_documents,omitempty"`
	RemovedDocuments []*ir.Document `json:"removed_documents,omitempty"`

	CreatedLinks []*ir.LinkInstance `json:"created_links,omitempty"`
	UpdatedLinks []*ir.LinkInstance `json:"updated_links,omitempty"`
	RemovedLinks []*ir.LinkInstance `json:"removed_links,omitempty"`

	Messages    []operation.UserMessage       `json:"messages,omitempty"`
	Prints      []operation.PrintRequest      `json:"prints,omitempty"`
	Navigations []operation.NavigationRequest `json:"navigations,omitempty"`
	Emails      []operation.SendEmailRequest  `json:"emails,omitempty"`
	Shares      []operation.ShareViewRequest  `json:"shares,omitempty"`

	// Invocations are the cascades derived from this commit, in the order
	// they were submitted.
	Invocations []*ir.Invocation `json:"invocations,omitempty"`

	// Tokens maps the correlation tokens of persisted creations to the ids
	// the store assigned.
	Tokens map[string]string `json:"tokens,omitempty"`
}

func newTracker() *ChangesTracker {
	return &ChangesTracker{
		Collections: make(map[string]*ir.Collection),
		LinkTypes:   make(map[string]*ir.LinkType),
	}
}

// Empty reports whether the commit changed nothing and requested nothing.
func (t *ChangesTracker) Empty() bool {
	return len(t.CreatedDocuments)+len(t.UpdatedDocuments)+len(t.RemovedDocuments)+
		len(t.CreatedLinks)+len(t.UpdatedLinks)+len(t.RemovedLinks)+
		len(t.Messages)+len(t.Prints)+len(t.Navigations)+len(t.Emails)+len(t.Shares) == 0
}

// HasSideEffects reports whether the tracker carries client requests.
func (t *ChangesTracker) HasSideEffects() bool {
	return len(t.Messages)+len(t.Prints)+len(t.Navigations)+len(t.Emails)+len(t.Shares) > 0
}

// Merge appends other's changes. Schema objects from other replace the ones
// already held, since they are newer.
func (t *ChangesTracker) Merge(other *ChangesTracker) {
	if other == nil {
		return
	}
	for id, c := range other.Collections {
		t.Collections[id] = c
	}
	for id, l := range other.LinkTypes {
		t.LinkTypes[id] = l
	}
	t.CreatedDocuments = append(t.CreatedDocuments, other.CreatedDocuments...)
	t.UpdatedDocuments = append(t.UpdatedDocuments, other.UpdatedDocuments...)
	t.RemovedDocuments = append(t.RemovedDocuments, other.RemovedDocuments...)
	t.CreatedLinks = append(t.CreatedLinks, other.CreatedLinks...)
	t.UpdatedLinks = append(t.UpdatedLinks, other.UpdatedLinks...)
	t.RemovedLinks = append(t.RemovedLinks, other.RemovedLinks...)
	t.Messages = append(t.Messages, other.Messages...)
	t.Prints = append(t.Prints, other.Prints...)
	t.Navigations = append(t.Navigations, other.Navigations...)
	t.Emails = append(t.Emails, other.Emails...)
	t.Shares = append(t.Shares, other.Shares...)
	t.Invocations = append(t.Invocations, other.Invocations...)
	for tok, id := range other.Tokens {
		t.setToken(tok, id)
	}
}

func (t *ChangesTracker) setToken(token, id string) {
	if t.Tokens == nil {
		t.Tokens = make(map[string]string)
	}
	t.Tokens[token] = id
}

// JSON renders the tracker as indented JSON. Map keys are sorted, so the
// output is stable.
func (t *ChangesTracker) JSON() ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}
