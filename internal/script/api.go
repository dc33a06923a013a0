package script

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/roach88/automaton/internal/ir"
	"github.com/roach88/automaton/internal/operation"
)

// install builds the `api` object.
func (b *Bridge) install() *goja.Object {
	api := b.vm.NewObject()
	methods := map[string]func(goja.FunctionCall) (goja.Value, error){
		"createDocument":       b.createDocument,
		"setDocumentAttribute": b.setDocumentAttribute,
		"setLinkAttribute":     b.setLinkAttribute,
		"getDocumentAttribute": b.getDocumentAttribute,
		"getLinkAttribute":     b.getLinkAttribute,
		"removeDocument":       b.removeDocument,
		"linkDocuments":        b.linkDocuments,
		"getParentDocument":    b.getParentDocument,
		"getChildDocuments":    b.getChildDocuments,
		"getSiblings":          b.getSiblings,
		"getLinkedDocuments":   b.getLinkedDocuments,
		"getLinks":             b.getLinks,
		"showMessage":          b.showMessage,
		"printAttribute":       b.printAttribute,
		"printText":            b.printText,
		"navigate":             b.navigate,
		"shareView":            b.shareView,
		"sendEmail":            b.sendEmail,
		"getSequenceNumber":    b.getSequenceNumber,
		"getCurrentUser":       b.getCurrentUser,
	}
	for name, f := range methods {
		_ = api.Set(name, b.wrap(name, f))
	}
	return api
}

// createDocument(collectionId) returns a handle for a new document, or
// null once the created-or-deleted ceiling is reached.
func (b *Bridge) createDocument(call goja.FunctionCall) (goja.Value, error) {
	coll, err := b.collection(argString(call.Argument(0)))
	if err != nil {
		return nil, err
	}
	if !b.allowCreateOrDelete() {
		return goja.Null(), nil
	}
	token := b.ids.Generate()
	doc := &ir.Document{CollectionID: coll.ID, Data: ir.IRObject{}, CreatedBy: b.user.ID}
	b.ops = append(b.ops, operation.DocumentCreation{Token: token, Document: doc.Clone()})
	return b.bindDocument(doc, ir.Pending(token)), nil
}

// setDocumentAttribute(doc, attributeId, value)
func (b *Bridge) setDocumentAttribute(call goja.FunctionCall) (goja.Value, error) {
	h, err := b.documentHandle(call.Argument(0))
	if err != nil {
		return nil, err
	}
	attrID := argString(call.Argument(1))
	value := FromScript(call.Argument(2))
	b.setData(h, attrID, value)
	b.ops = append(b.ops, operation.DocumentPatch{
		Target:       h.ref,
		CollectionID: h.doc.CollectionID,
		AttributeID:  attrID,
		Value:        value,
	})
	return nil, nil
}

// setLinkAttribute(link, attributeId, value)
func (b *Bridge) setLinkAttribute(call goja.FunctionCall) (goja.Value, error) {
	h, err := b.linkHandle(call.Argument(0))
	if err != nil {
		return nil, err
	}
	attrID := argString(call.Argument(1))
	value := FromScript(call.Argument(2))
	b.setData(h, attrID, value)
	b.ops = append(b.ops, operation.LinkPatch{
		Target:      h.ref,
		LinkTypeID:  h.link.LinkTypeID,
		AttributeID: attrID,
		Value:       value,
	})
	return nil, nil
}

// getDocumentAttribute(doc, attributeId) observes writes made earlier in
// the same run.
func (b *Bridge) getDocumentAttribute(call goja.FunctionCall) (goja.Value, error) {
	h, err := b.documentHandle(call.Argument(0))
	if err != nil {
		return nil, err
	}
	return ToScript(b.vm, h.data().Get(argString(call.Argument(1)))), nil
}

// getLinkAttribute(link, attributeId)
func (b *Bridge) getLinkAttribute(call goja.FunctionCall) (goja.Value, error) {
	h, err := b.linkHandle(call.Argument(0))
	if err != nil {
		return nil, err
	}
	return ToScript(b.vm, h.data().Get(argString(call.Argument(1)))), nil
}

// removeDocument(doc). Removing the same document twice is a no-op.
func (b *Bridge) removeDocument(call goja.FunctionCall) (goja.Value, error) {
	h, err := b.documentHandle(call.Argument(0))
	if err != nil {
		return nil, err
	}
	if b.removed[h.ref.String()] || !b.allowCreateOrDelete() {
		return nil, nil
	}
	b.removed[h.ref.String()] = true
	b.ops = append(b.ops, operation.DocumentRemoval{Target: h.ref, CollectionID: h.doc.CollectionID})
	return nil, nil
}

// linkDocuments(doc1, doc2, linkTypeId) returns a handle for the new link,
// or null once the created-or-deleted ceiling is reached.
func (b *Bridge) linkDocuments(call goja.FunctionCall) (goja.Value, error) {
	h1, err := b.documentHandle(call.Argument(0))
	if err != nil {
		return nil, err
	}
	h2, err := b.documentHandle(call.Argument(1))
	if err != nil {
		return nil, err
	}
	lt, err := b.linkType(argString(call.Argument(2)))
	if err != nil {
		return nil, err
	}
	if !b.allowCreateOrDelete() {
		return goja.Null(), nil
	}
	token := b.ids.Generate()
	b.ops = append(b.ops, operation.LinkCreation{
		Token:      token,
		LinkTypeID: lt.ID,
		Documents:  [2]ir.EntityRef{h1.ref, h2.ref},
		Data:       ir.IRObject{},
	})
	link := &ir.LinkInstance{
		LinkTypeID:  lt.ID,
		DocumentIDs: [2]string{endID(h1), endID(h2)},
		Data:        ir.IRObject{},
		CreatedBy:   b.user.ID,
	}
	return b.bindLink(link, ir.Pending(token)), nil
}

// endID is the id of a link end, or its correlation token while the
// document is pending.
func endID(h *handle) string {
	if h.doc.ID != "" {
		return h.doc.ID
	}
	return pendingToken(h.ref)
}

// getParentDocument(doc) returns the parent handle or null.
func (b *Bridge) getParentDocument(call goja.FunctionCall) (goja.Value, error) {
	h, err := b.documentHandle(call.Argument(0))
	if err != nil {
		return nil, err
	}
	ok, err := b.exists(h)
	if err != nil || !ok || h.doc.ParentID == "" || b.removed[h.doc.ParentID] {
		return goja.Null(), err
	}
	parent, err := b.reader.GetDocuments(b.ctx, []string{h.doc.ParentID})
	if err != nil {
		return nil, err
	}
	if len(parent) == 0 {
		return goja.Null(), nil
	}
	return b.bindDocument(parent[0], ir.Persisted(parent[0].ID)), nil
}

// getChildDocuments(doc)
func (b *Bridge) getChildDocuments(call goja.FunctionCall) (goja.Value, error) {
	h, err := b.documentHandle(call.Argument(0))
	if err != nil {
		return nil, err
	}
	ok, err := b.exists(h)
	if err != nil {
		return nil, err
	}
	if !ok || h.doc.ID == "" {
		return b.vm.NewArray(), nil
	}
	children, err := b.reader.ChildDocuments(b.ctx, h.doc.ID)
	if err != nil {
		return nil, err
	}
	return b.bindDocuments(children), nil
}

// getSiblings(doc) returns the other children of the document's parent.
func (b *Bridge) getSiblings(call goja.FunctionCall) (goja.Value, error) {
	h, err := b.documentHandle(call.Argument(0))
	if err != nil {
		return nil, err
	}
	ok, err := b.exists(h)
	if err != nil {
		return nil, err
	}
	if !ok || h.doc.ParentID == "" {
		return b.vm.NewArray(), nil
	}
	children, err := b.reader.ChildDocuments(b.ctx, h.doc.ParentID)
	if err != nil {
		return nil, err
	}
	siblings := children[:0]
	for _, c := range children {
		if c.ID != h.doc.ID {
			siblings = append(siblings, c)
		}
	}
	return b.bindDocuments(siblings), nil
}

// getLinkedDocuments(doc, linkTypeId) returns the documents on the other end
// of the document's links.
func (b *Bridge) getLinkedDocuments(call goja.FunctionCall) (goja.Value, error) {
	h, err := b.documentHandle(call.Argument(0))
	if err != nil {
		return nil, err
	}
	ok, err := b.exists(h)
	if err != nil {
		return nil, err
	}
	if !ok || h.doc.ID == "" {
		return b.vm.NewArray(), nil
	}
	links, err := b.reader.LinksForDocument(b.ctx, h.doc.ID, argString(call.Argument(1)))
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var others []string
	for _, l := range links {
		other := l.Other(h.doc.ID)
		if other != "" && other != h.doc.ID && !seen[other] {
			seen[other] = true
			others = append(others, other)
		}
	}
	docs, err := b.reader.GetDocuments(b.ctx, others)
	if err != nil {
		return nil, err
	}
	return b.bindDocuments(docs), nil
}

// getLinks(doc, linkTypeId)
func (b *Bridge) getLinks(call goja.FunctionCall) (goja.Value, error) {
	h, err := b.documentHandle(call.Argument(0))
	if err != nil {
		return nil, err
	}
	ok, err := b.exists(h)
	if err != nil {
		return nil, err
	}
	if !ok || h.doc.ID == "" {
		return b.vm.NewArray(), nil
	}
	links, err := b.reader.LinksForDocument(b.ctx, h.doc.ID, argString(call.Argument(1)))
	if err != nil {
		return nil, err
	}
	items := make([]interface{}, len(links))
	for i, l := range links {
		items[i] = b.bindLink(l, ir.Persisted(l.ID))
	}
	return b.vm.NewArray(items...), nil
}

// showMessage(level, text). Unknown levels are shown as info.
func (b *Bridge) showMessage(call goja.FunctionCall) (goja.Value, error) {
	if !b.allowMessage() {
		return nil, nil
	}
	level := operation.MessageLevel(argString(call.Argument(0)))
	switch level {
	case operation.LevelInfo, operation.LevelSuccess, operation.LevelWarning, operation.LevelError:
	default:
		level = operation.LevelInfo
	}
	b.ops = append(b.ops, operation.UserMessage{Level: level, Text: argString(call.Argument(1))})
	return nil, nil
}

// printAttribute(docOrLink, attributeId, skipPrintDialog). At most one print
// request is emitted per run.
func (b *Bridge) printAttribute(call goja.FunctionCall) (goja.Value, error) {
	req := operation.PrintRequest{
		AttributeID:     argString(call.Argument(1)),
		SkipPrintDialog: argBool(call.Argument(2)),
	}
	if h, err := b.documentHandle(call.Argument(0)); err == nil {
		req.ResourceKind = ir.KindDocument
		req.ResourceID = idOrToken(h)
	} else if h, linkErr := b.linkHandle(call.Argument(0)); linkErr == nil {
		req.ResourceKind = ir.KindLink
		req.ResourceID = idOrToken(h)
	} else {
		return nil, err
	}
	if b.printed {
		return nil, nil
	}
	b.printed = true
	b.ops = append(b.ops, operation.PrintAttribute{PrintRequest: req})
	return nil, nil
}

// printText(text, skipPrintDialog). Shares the print latch with
// printAttribute.
func (b *Bridge) printText(call goja.FunctionCall) (goja.Value, error) {
	if b.printed {
		return nil, nil
	}
	b.printed = true
	b.ops = append(b.ops, operation.PrintAttribute{PrintRequest: operation.PrintRequest{
		Text:            argString(call.Argument(0)),
		SkipPrintDialog: argBool(call.Argument(1)),
	}})
	return nil, nil
}

// navigate(viewId, doc, search, newWindow). doc may be null.
func (b *Bridge) navigate(call goja.FunctionCall) (goja.Value, error) {
	req := operation.NavigationRequest{
		ViewID:    argString(call.Argument(0)),
		Search:    argString(call.Argument(2)),
		NewWindow: argBool(call.Argument(3)),
	}
	if target := call.Argument(1); !goja.IsUndefined(target) && !goja.IsNull(target) {
		h, err := b.documentHandle(target)
		if err != nil {
			return nil, err
		}
		req.CollectionID = h.doc.CollectionID
		req.DocumentID = idOrToken(h)
	}
	b.ops = append(b.ops, operation.Navigation{NavigationRequest: req})
	return nil, nil
}

// shareView(viewId, userEmail, roles)
func (b *Bridge) shareView(call goja.FunctionCall) (goja.Value, error) {
	var roles []string
	if arr, ok := FromScript(call.Argument(2)).(ir.IRArray); ok {
		for _, r := range arr {
			roles = append(roles, ir.Text(r))
		}
	}
	b.ops = append(b.ops, operation.ShareView{ShareViewRequest: operation.ShareViewRequest{
		ViewID:    argString(call.Argument(0)),
		UserEmail: argString(call.Argument(1)),
		Roles:     roles,
	}})
	return nil, nil
}

// sendEmail(recipient, subject, body, fromName)
func (b *Bridge) sendEmail(call goja.FunctionCall) (goja.Value, error) {
	recipient := argString(call.Argument(0))
	if recipient == "" {
		return nil, fmt.Errorf("missing recipient")
	}
	b.ops = append(b.ops, operation.SendEmail{SendEmailRequest: operation.SendEmailRequest{
		Recipient: recipient,
		Subject:   argString(call.Argument(1)),
		Body:      argString(call.Argument(2)),
		FromName:  argString(call.Argument(3)),
	}})
	return nil, nil
}

// getSequenceNumber(name, digits) allocates the next number of a named
// sequence, zero-padded to digits.
func (b *Bridge) getSequenceNumber(call goja.FunctionCall) (goja.Value, error) {
	name := argString(call.Argument(0))
	if name == "" {
		return nil, fmt.Errorf("missing sequence name")
	}
	n, err := b.reader.NextSequence(b.ctx, name)
	if err != nil {
		return nil, err
	}
	digits := 0
	if d := call.Argument(1); !goja.IsUndefined(d) && !goja.IsNull(d) {
		digits = int(d.ToInteger())
	}
	return b.vm.ToValue(fmt.Sprintf("%0*d", digits, n)), nil
}

// getCurrentUser() returns the email of the user who started the chain.
func (b *Bridge) getCurrentUser(goja.FunctionCall) (goja.Value, error) {
	return b.vm.ToValue(b.user.Email), nil
}

// idOrToken returns the stored id, or the correlation token of a pending
// entity. The commit pipeline rewrites tokens in side-effect requests.
func idOrToken(h *handle) string {
	if p, ok := h.ref.(ir.Pending); ok {
		return string(p)
	}
	return h.ref.String()
}
