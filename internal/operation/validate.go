package operation

import (
	"fmt"

	"github.com/roach88/automaton/internal/ir"
)

// Violation describes why one operation of a batch is not complete.
type Violation struct {
	Index     int
	Operation Operation
	Reason    string
}

// String formats the violation for error messages.
func (v Violation) String() string {
	return fmt.Sprintf("operation %d %s: %s", v.Index, v.Operation, v.Reason)
}

// Check validates a batch of operations and returns every violation found.
//
// A patch is complete when it has a target and a non-empty attribute id.
// A pending target must name the token of a creation in the same batch;
// nothing else can ever resolve it. Removals and link creations are held to
// the same reference rule.
func Check(ops []Operation) []Violation {
	docTokens := make(map[string]bool)
	linkTokens := make(map[string]bool)
	for _, op := range ops {
		switch o := op.(type) {
		case DocumentCreation:
			docTokens[o.Token] = true
		case LinkCreation:
			linkTokens[o.Token] = true
		}
	}

	var out []Violation
	add := func(i int, op Operation, reason string) {
		out = append(out, Violation{Index: i, Operation: op, Reason: reason})
	}

	for i, op := range ops {
		switch o := op.(type) {
		case DocumentCreation:
			if o.Token == "" {
				add(i, op, "missing correlation token")
			}
			if o.Document == nil || o.Document.CollectionID == "" {
				add(i, op, "missing collection")
			}
		case DocumentPatch:
			if reason := checkRef(o.Target, docTokens); reason != "" {
				add(i, op, reason)
			}
			if o.AttributeID == "" {
				add(i, op, "missing attribute id")
			}
		case DocumentRemoval:
			if reason := checkRef(o.Target, docTokens); reason != "" {
				add(i, op, reason)
			}
		case LinkCreation:
			if o.Token == "" {
				add(i, op, "missing correlation token")
			}
			if o.LinkTypeID == "" {
				add(i, op, "missing link type")
			}
			for _, ref := range o.Documents {
				if reason := checkRef(ref, docTokens); reason != "" {
					add(i, op, reason)
				}
			}
		case LinkPatch:
			if reason := checkRef(o.Target, linkTokens); reason != "" {
				add(i, op, reason)
			}
			if o.AttributeID == "" {
				add(i, op, "missing attribute id")
			}
		case LinkRemoval:
			if _, ok := o.Target.(ir.Persisted); !ok {
				add(i, op, "link removal needs a stored link")
			}
		case UserMessage, PrintAttribute, Navigation, SendEmail, ShareView:
			// Side effects carry no references.
		}
	}
	return out
}

func checkRef(ref ir.EntityRef, tokens map[string]bool) string {
	switch r := ref.(type) {
	case nil:
		return "missing target"
	case ir.Persisted:
		if r == "" {
			return "missing target"
		}
	case ir.Pending:
		if !tokens[string(r)] {
			return fmt.Sprintf("unresolvable correlation token %q", string(r))
		}
	}
	return ""
}
