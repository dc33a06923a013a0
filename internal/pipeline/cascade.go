package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/roach88/automaton/internal/ir"
)

// cascade is step 10: one invocation per changed entity that has at least
// one rule or function interested in the change.
//
// Invocations derived from a direct user action inherit its correlation id
// and count as interactive. Invocations derived from another invocation are
// passive.
func (c *commit) cascade() error {
	parent := c.batch.Parent
	rootID := ""
	depth := 0
	correlationID := c.batch.CorrelationID
	if parent != nil {
		rootID = parent.RootID
		depth = parent.Depth + 1
		correlationID = ""
	}
	if rootID == "" {
		rootID = c.p.ids.Generate()
	}

	var derived []*ir.Invocation
	for _, id := range c.docOrder {
		if inv := c.documentInvocation(c.docs[id]); inv != nil {
			derived = append(derived, inv)
		}
	}
	for _, id := range c.linkOrder {
		if inv := c.linkInvocation(c.links[id]); inv != nil {
			derived = append(derived, inv)
		}
	}

	for i, inv := range derived {
		inv.RootID = rootID
		inv.CorrelationID = correlationID
		inv.User = c.batch.User
		inv.Depth = depth
		inv.Seq = int64(i)
		id, err := ir.InvocationID(rootID, inv.Trigger, inv.EntityID(), inv.Data(), inv.Seq)
		if err != nil {
			return fmt.Errorf("invocation id: %w", err)
		}
		inv.ID = id

		c.tracker.Invocations = append(c.tracker.Invocations, inv)
		if c.p.sink != nil {
			c.p.sink.Submit(inv)
		}
		slog.Debug("cascade derived",
			"invocation_id", inv.ID,
			"root_id", rootID,
			"trigger", inv.Trigger,
			"kind", inv.Kind,
			"entity_id", inv.EntityID(),
			"depth", depth,
		)
	}
	c.p.metrics.Cascade(len(derived))
	return nil
}

// handledByParent reports whether the parent invocation is handling the
// creation of this entity. Its own writes to the entity fold into that
// creation instead of starting an update cascade.
func (c *commit) handledByParent(kind ir.ResourceKind, id string) bool {
	p := c.batch.Parent
	return p != nil && p.Trigger == ir.TriggerCreated && p.Kind == kind && p.EntityID() == id
}

func (c *commit) documentInvocation(st *entityState) *ir.Invocation {
	coll := c.acc.collections[st.after.CollectionID]
	if coll == nil {
		return nil
	}

	inv := &ir.Invocation{Kind: ir.KindDocument, CollectionID: coll.ID}
	var changed []string
	switch {
	case st.created && st.removed:
		return nil
	case st.created:
		inv.Trigger = ir.TriggerCreated
		inv.Document = decodeDocument(coll, st.after)
		changed = ir.ChangedAttributeIDs(nil, inv.Document.Data)
	case st.removed:
		inv.Trigger = ir.TriggerRemoved
		inv.OldDocument = decodeDocument(coll, st.before)
	case st.updated:
		if c.handledByParent(ir.KindDocument, st.id) {
			c.p.metrics.CascadeSkipped("own_creation")
			return nil
		}
		inv.Trigger = ir.TriggerUpdated
		inv.OldDocument = decodeDocument(coll, st.before)
		inv.Document = decodeDocument(coll, st.after)
		changed = ir.ChangedAttributeIDs(inv.OldDocument.Data, inv.Document.Data)
		if len(changed) == 0 {
			c.p.metrics.CascadeSkipped("unchanged")
			return nil
		}
	default:
		return nil
	}
	inv.ChangedAttributes = changed

	if !eligible(coll.RulesFor(inv.Trigger), coll.Attributes, inv.Trigger, changed) {
		c.p.metrics.CascadeSkipped("no_rules")
		return nil
	}
	return inv
}

func (c *commit) linkInvocation(st *entityState) *ir.Invocation {
	lt := c.acc.linkTypes[st.lAfter.LinkTypeID]
	if lt == nil {
		return nil
	}

	inv := &ir.Invocation{Kind: ir.KindLink, LinkTypeID: lt.ID}
	var changed []string
	switch {
	case st.created && st.removed:
		return nil
	case st.created:
		inv.Trigger = ir.TriggerCreated
		inv.Link = decodeLink(lt, st.lAfter)
		changed = ir.ChangedAttributeIDs(nil, inv.Link.Data)
	case st.removed:
		inv.Trigger = ir.TriggerRemoved
		inv.OldLink = decodeLink(lt, st.lBefore)
	case st.updated:
		if c.handledByParent(ir.KindLink, st.id) {
			c.p.metrics.CascadeSkipped("own_creation")
			return nil
		}
		inv.Trigger = ir.TriggerUpdated
		inv.OldLink = decodeLink(lt, st.lBefore)
		inv.Link = decodeLink(lt, st.lAfter)
		changed = ir.ChangedAttributeIDs(inv.OldLink.Data, inv.Link.Data)
		if len(changed) == 0 {
			c.p.metrics.CascadeSkipped("unchanged")
			return nil
		}
	default:
		return nil
	}
	inv.ChangedAttributes = changed

	if !eligible(lt.RulesFor(inv.Trigger), lt.Attributes, inv.Trigger, changed) {
		c.p.metrics.CascadeSkipped("no_rules")
		return nil
	}
	return inv
}

// eligible reports whether a change has anything to run: a rule timed for
// the trigger, any function of a created entity, or a function depending on
// a changed attribute of an updated one.
func eligible(rules []ir.Rule, attrs []ir.Attribute, trigger ir.Trigger, changed []string) bool {
	if len(rules) > 0 {
		return true
	}
	if trigger == ir.TriggerRemoved {
		return false
	}
	for i := range attrs {
		f := attrs[i].Function
		if f == nil {
			continue
		}
		if trigger == ir.TriggerCreated || f.DependsOn(changed) {
			return true
		}
	}
	return false
}
