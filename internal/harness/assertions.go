package harness

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/automaton/internal/ir"
	"github.com/roach88/automaton/internal/query"
	"github.com/roach88/automaton/internal/store"
)

// AssertionError describes a failed assertion with context for debugging.
type AssertionError struct {
	Type     string
	Expected string
	Got      string
	Context  string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	msg := fmt.Sprintf("assertion %s failed: expected %s, got %s", e.Type, e.Expected, e.Got)
	if e.Context != "" {
		msg += " (" + e.Context + ")"
	}
	return msg
}

func checkAssertion(ctx context.Context, st *store.Store, result *Result, a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		return assertTraceContains(result.Trace, a)
	case AssertTraceCount:
		return assertTraceCount(result.Trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(result.Trace, a)
	case AssertFinalState:
		return assertFinalState(ctx, st, result, a)
	case AssertDocumentCount:
		return assertDocumentCount(ctx, st, a)
	case AssertLinkCount:
		return assertLinkCount(ctx, st, a)
	case AssertMessage:
		return assertMessage(result, a)
	case AssertTaskError:
		return assertTaskError(result, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// matches reports whether an event fits the selector fields of a. Empty
// fields match anything; Changed must be a subset of the event's.
func matches(e TraceEvent, a Assertion) bool {
	if a.Trigger != "" && a.Trigger != e.Trigger {
		return false
	}
	if a.Schema != "" && a.Schema != e.Schema {
		return false
	}
	if a.Entity != "" && a.Entity != e.Entity {
		return false
	}
	for _, attr := range a.Changed {
		if !slices.Contains(e.Changed, attr) {
			return false
		}
	}
	return true
}

func selector(a Assertion) string {
	var parts []string
	for _, p := range []struct{ k, v string }{
		{"trigger", a.Trigger}, {"schema", a.Schema}, {"entity", a.Entity},
	} {
		if p.v != "" {
			parts = append(parts, p.k+"="+p.v)
		}
	}
	if len(a.Changed) > 0 {
		parts = append(parts, "changed="+strings.Join(a.Changed, ","))
	}
	return strings.Join(parts, " ")
}

func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, e := range trace {
		if matches(e, a) {
			return nil
		}
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: "an invocation with " + selector(a),
		Got:      fmt.Sprintf("%d invocations", len(trace)),
		Context:  describe(trace),
	}
}

func assertTraceCount(trace []TraceEvent, a Assertion) error {
	n := 0
	for _, e := range trace {
		if matches(e, a) {
			n++
		}
	}
	if n == a.Count {
		return nil
	}
	expected := fmt.Sprintf("%d invocations", a.Count)
	if sel := selector(a); sel != "" {
		expected += " with " + sel
	}
	return &AssertionError{Type: a.Type, Expected: expected, Got: fmt.Sprintf("%d", n)}
}

// assertTraceOrder checks that the events appear in the given relative
// order. Other events may sit between them.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, e := range trace {
		if next < len(a.Events) && e.String() == a.Events[next] {
			next++
		}
	}
	if next == len(a.Events) {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%q", a.Events[next]),
		Got:      "not found after " + fmt.Sprintf("%q", a.Events[:next]),
		Context:  describe(trace),
	}
}

func describe(trace []TraceEvent) string {
	names := make([]string, len(trace))
	for i, e := range trace {
		names[i] = e.String()
	}
	return "trace: " + strings.Join(names, "; ")
}

func assertFinalState(ctx context.Context, st *store.Store, result *Result, a Assertion) error {
	id := a.Document
	if stored, ok := result.Refs[a.Document]; ok {
		id = stored
	}
	doc, err := st.GetDocument(ctx, id)
	if a.Removed {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return &AssertionError{Type: a.Type, Expected: "removed", Got: "present", Context: "document " + a.Document}
	}
	if errors.Is(err, store.ErrNotFound) {
		return &AssertionError{Type: a.Type, Expected: "present", Got: "removed", Context: "document " + a.Document}
	}
	if err != nil {
		return err
	}

	expect, err := ir.ObjectFromGo(a.Expect)
	if err != nil {
		return fmt.Errorf("assertion %s: %w", a.Type, err)
	}
	for _, key := range expect.SortedKeys() {
		want, got := expect[key], doc.Data.Get(key)
		if ir.Equal(want, got) {
			continue
		}
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s=%s", key, render(want)),
			Got:      render(got),
			Context:  "document " + a.Document,
		}
	}
	return nil
}

func render(v ir.IRValue) string {
	if v == nil {
		return "<unset>"
	}
	data, err := ir.MarshalIRValue(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// assertDocumentCount checks both the collection counter and the stored
// rows, which must agree.
func assertDocumentCount(ctx context.Context, st *store.Store, a Assertion) error {
	c, err := st.GetCollection(ctx, a.Collection)
	if err != nil {
		return err
	}
	docs, err := st.SearchDocuments(ctx, query.Documents{CollectionID: a.Collection})
	if err != nil {
		return err
	}
	return compareCount(a, c.DocumentsCount, len(docs), "collection "+a.Collection)
}

func assertLinkCount(ctx context.Context, st *store.Store, a Assertion) error {
	lt, err := st.GetLinkType(ctx, a.LinkType)
	if err != nil {
		return err
	}
	links, err := st.SearchLinks(ctx, query.Links{LinkTypeID: a.LinkType})
	if err != nil {
		return err
	}
	return compareCount(a, lt.LinksCount, len(links), "link type "+a.LinkType)
}

func compareCount(a Assertion, counter int64, rows int, what string) error {
	if counter == int64(a.Count) && rows == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%d", a.Count),
		Got:      fmt.Sprintf("counter %d, stored %d", counter, rows),
		Context:  what,
	}
}

func assertMessage(result *Result, a Assertion) error {
	for _, m := range result.Messages {
		if a.Level != "" && string(m.Level) != a.Level {
			continue
		}
		if strings.Contains(m.Text, a.Text) {
			return nil
		}
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("message containing %q", a.Text),
		Got:      fmt.Sprintf("%d messages", len(result.Messages)),
	}
}

func assertTaskError(result *Result, a Assertion) error {
	for _, e := range result.TaskErrors {
		if containsFold(e, a.Text) {
			return nil
		}
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("task error containing %q", a.Text),
		Got:      fmt.Sprintf("%d task errors", len(result.TaskErrors)),
	}
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
