package script

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/automaton/internal/ids"
	"github.com/roach88/automaton/internal/ir"
	"github.com/roach88/automaton/internal/metrics"
	"github.com/roach88/automaton/internal/operation"
	"github.com/roach88/automaton/internal/store"
	"github.com/roach88/automaton/internal/testutil"
)

// setupTest opens a store holding a tasks collection, a people collection
// and an assignee link type between them.
func setupTest(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"),
		store.WithIDGenerator(ids.NewSequenceGenerator("id")),
		store.WithClock(testutil.NewStepClock().Now),
	)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	require.NoError(t, s.CreateCollection(ctx, testutil.Collection("tasks",
		testutil.TextAttr("title"), testutil.NumberAttr("estimate"))))
	require.NoError(t, s.CreateCollection(ctx, testutil.Collection("people", testutil.TextAttr("name"))))
	require.NoError(t, s.CreateLinkType(ctx, testutil.LinkType("assignee", "tasks", "people")))
	return s
}

func createDoc(t *testing.T, s *store.Store, collectionID string, data ir.IRObject) *ir.Document {
	t.Helper()
	doc, err := s.CreateDocument(context.Background(), testutil.Doc(collectionID, data))
	require.NoError(t, err)
	return doc
}

func runFor(t *testing.T, r *Runner, doc *ir.Document, src string) (*Result, error) {
	t.Helper()
	return r.Run(context.Background(), Task{
		Name:   "test",
		Source: src,
		Invocation: &ir.Invocation{
			Kind:         ir.KindDocument,
			Trigger:      ir.TriggerUpdated,
			CollectionID: doc.CollectionID,
			Document:     doc,
			User:         ir.User{ID: "u1", Email: "ada@example.com"},
		},
	})
}

func newRunner(s *store.Store, opts ...Option) *Runner {
	return NewRunner(s, append([]Option{WithIDGenerator(ids.NewSequenceGenerator("tok"))}, opts...)...)
}

func TestRun_CompletionValue(t *testing.T) {
	s := setupTest(t)
	doc := createDoc(t, s, "tasks", ir.IRObject{"estimate": ir.IRString("3")})

	res, err := runFor(t, newRunner(s), doc, "thisDocument.data.estimate * 2")
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(6), res.Value)
	assert.Empty(t, res.Operations)
}

func TestCreateDocument_ReadYourWrites(t *testing.T) {
	s := setupTest(t)
	doc := createDoc(t, s, "tasks", nil)

	res, err := runFor(t, newRunner(s), doc, `
		var d = api.createDocument("tasks");
		api.setDocumentAttribute(d, "title", "child");
		[api.getDocumentAttribute(d, "title"), d.data.title, d.id, d.correlationId];
	`)
	require.NoError(t, err)

	assert.True(t, ir.Equal(ir.IRArray{
		ir.IRString("child"), ir.IRString("child"), ir.IRNull{}, ir.IRString("tok-0001"),
	}, res.Value))

	require.Len(t, res.Operations, 2)
	creation, ok := res.Operations[0].(operation.DocumentCreation)
	require.True(t, ok)
	assert.Equal(t, "tok-0001", creation.Token)
	assert.Equal(t, "tasks", creation.Document.CollectionID)
	assert.Equal(t, "u1", creation.Document.CreatedBy)

	patch, ok := res.Operations[1].(operation.DocumentPatch)
	require.True(t, ok)
	assert.Equal(t, ir.Pending("tok-0001"), patch.Target)
	assert.Equal(t, "title", patch.AttributeID)
	assert.Equal(t, ir.IRString("child"), patch.Value)
}

func TestSetDocumentAttribute_ThisDocument(t *testing.T) {
	s := setupTest(t)
	doc := createDoc(t, s, "tasks", ir.IRObject{"title": ir.IRString("old")})

	res, err := runFor(t, newRunner(s), doc, `
		api.setDocumentAttribute(thisDocument, "title", "new");
		api.setDocumentAttribute(thisDocument, "estimate", 2.5);
		thisDocument.data.title;
	`)
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("new"), res.Value)

	require.Len(t, res.Operations, 2)
	second := res.Operations[1].(operation.DocumentPatch)
	assert.Equal(t, ir.Persisted(doc.ID), second.Target)
	assert.True(t, ir.Equal(ir.MustIRDecimal("2.5"), second.Value))
}

func TestLinkDocuments_PendingEnd(t *testing.T) {
	s := setupTest(t)
	task := createDoc(t, s, "tasks", nil)

	res, err := runFor(t, newRunner(s), task, `
		var p = api.createDocument("people");
		var l = api.linkDocuments(thisDocument, p, "assignee");
		api.setLinkAttribute(l, "role", "owner");
		api.getLinkAttribute(l, "role");
	`)
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("owner"), res.Value)

	require.Len(t, res.Operations, 3)
	link := res.Operations[1].(operation.LinkCreation)
	assert.Equal(t, "tok-0002", link.Token)
	assert.Equal(t, "assignee", link.LinkTypeID)
	assert.Equal(t, [2]ir.EntityRef{ir.Persisted(task.ID), ir.Pending("tok-0001")}, link.Documents)

	patch := res.Operations[2].(operation.LinkPatch)
	assert.Equal(t, ir.Pending("tok-0002"), patch.Target)
}

func TestLinkDocuments_PendingEndExposesToken(t *testing.T) {
	s := setupTest(t)
	task := createDoc(t, s, "tasks", nil)

	res, err := runFor(t, newRunner(s), task, `
		var p = api.createDocument("people");
		var l = api.linkDocuments(thisDocument, p, "assignee");
		[l.documentIds[0], l.documentIds[1], p.correlationId];
	`)
	require.NoError(t, err)
	assert.Equal(t, ir.IRArray{ir.IRString(task.ID), ir.IRString("tok-0001"), ir.IRString("tok-0001")}, res.Value)
}

func TestCeiling_CreatedOrDeleted(t *testing.T) {
	s := setupTest(t)
	doc := createDoc(t, s, "tasks", nil)
	m := metrics.NewMetrics(nil)
	r := newRunner(s, WithLimits(Limits{CreatedOrDeleted: 2, Messages: 20}), WithMetrics(m))

	res, err := runFor(t, r, doc, `
		var out = [];
		out.push(api.createDocument("tasks") === null);
		out.push(api.createDocument("tasks") === null);
		out.push(api.createDocument("tasks") === null);
		out.push(api.linkDocuments(thisDocument, thisDocument, "assignee") === null);
		api.removeDocument(thisDocument);
		out;
	`)
	require.NoError(t, err)
	assert.True(t, ir.Equal(ir.IRArray{
		ir.IRBool(false), ir.IRBool(false), ir.IRBool(true), ir.IRBool(true),
	}, res.Value))

	require.Len(t, res.Operations, 2)
	for _, op := range res.Operations {
		assert.Equal(t, operation.KindDocumentCreation, op.Kind())
	}
}

func TestCeiling_Messages(t *testing.T) {
	s := setupTest(t)
	doc := createDoc(t, s, "tasks", nil)
	r := newRunner(s, WithLimits(Limits{CreatedOrDeleted: 10, Messages: 2}))

	res, err := runFor(t, r, doc, `
		for (var i = 0; i < 5; i++) { api.showMessage("warning", "m" + i); }
		api.showMessage("loud", "x");
	`)
	require.NoError(t, err)

	require.Len(t, res.Operations, 2)
	assert.Equal(t, operation.UserMessage{Level: operation.LevelWarning, Text: "m0"}, res.Operations[0])
	assert.Equal(t, operation.UserMessage{Level: operation.LevelWarning, Text: "m1"}, res.Operations[1])
}

func TestShowMessage_UnknownLevelIsInfo(t *testing.T) {
	s := setupTest(t)
	doc := createDoc(t, s, "tasks", nil)

	res, err := runFor(t, newRunner(s), doc, `api.showMessage("loud", "x")`)
	require.NoError(t, err)
	require.Len(t, res.Operations, 1)
	assert.Equal(t, operation.UserMessage{Level: operation.LevelInfo, Text: "x"}, res.Operations[0])
}

func TestPrint_OncePerRun(t *testing.T) {
	s := setupTest(t)
	doc := createDoc(t, s, "tasks", ir.IRObject{"title": ir.IRString("a")})

	res, err := runFor(t, newRunner(s), doc, `
		api.printAttribute(thisDocument, "title", true);
		api.printAttribute(thisDocument, "title", false);
		api.printText("hello");
		api.printText("again");
	`)
	require.NoError(t, err)

	require.Len(t, res.Operations, 1)
	req := res.Operations[0].(operation.PrintAttribute)
	assert.Equal(t, ir.KindDocument, req.ResourceKind)
	assert.Equal(t, doc.ID, req.ResourceID)
	assert.Equal(t, "title", req.AttributeID)
	assert.True(t, req.SkipPrintDialog)
}

func TestSideEffectRequests(t *testing.T) {
	s := setupTest(t)
	doc := createDoc(t, s, "tasks", nil)

	res, err := runFor(t, newRunner(s), doc, `
		api.navigate("board", thisDocument, "open", true);
		api.shareView("board", "bob@example.com", ["Read", "Manage"]);
		api.sendEmail("bob@example.com", "Hi", "Body", "Bot");
		api.getCurrentUser();
	`)
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("ada@example.com"), res.Value)

	require.Len(t, res.Operations, 3)
	assert.Equal(t, operation.Navigation{NavigationRequest: operation.NavigationRequest{
		ViewID: "board", CollectionID: "tasks", DocumentID: doc.ID, Search: "open", NewWindow: true,
	}}, res.Operations[0])
	assert.Equal(t, operation.ShareView{ShareViewRequest: operation.ShareViewRequest{
		ViewID: "board", UserEmail: "bob@example.com", Roles: []string{"Read", "Manage"},
	}}, res.Operations[1])
	assert.Equal(t, operation.SendEmail{SendEmailRequest: operation.SendEmailRequest{
		Recipient: "bob@example.com", Subject: "Hi", Body: "Body", FromName: "Bot",
	}}, res.Operations[2])
}

func TestSendEmail_MissingRecipientFails(t *testing.T) {
	s := setupTest(t)
	doc := createDoc(t, s, "tasks", nil)

	_, err := runFor(t, newRunner(s), doc, `api.sendEmail("", "Hi", "Body")`)
	require.Error(t, err)
	assert.True(t, IsScriptError(err))
	assert.Contains(t, err.Error(), "missing recipient")
}

func TestTraversal(t *testing.T) {
	s := setupTest(t)
	ctx := context.Background()
	parent := createDoc(t, s, "tasks", ir.IRObject{"title": ir.IRString("parent")})
	c1, err := s.CreateDocument(ctx, &ir.Document{CollectionID: "tasks", ParentID: parent.ID, Data: ir.IRObject{"title": ir.IRString("c1")}})
	require.NoError(t, err)
	_, err = s.CreateDocument(ctx, &ir.Document{CollectionID: "tasks", ParentID: parent.ID, Data: ir.IRObject{"title": ir.IRString("c2")}})
	require.NoError(t, err)
	person := createDoc(t, s, "people", ir.IRObject{"name": ir.IRString("ada")})
	_, err = s.CreateLink(ctx, &ir.LinkInstance{LinkTypeID: "assignee", DocumentIDs: [2]string{c1.ID, person.ID}, Data: ir.IRObject{}})
	require.NoError(t, err)

	res, err := runFor(t, newRunner(s), c1, `
		var p = api.getParentDocument(thisDocument);
		[
			p.data.title,
			api.getChildDocuments(p).length,
			api.getSiblings(thisDocument)[0].data.title,
			api.getLinkedDocuments(thisDocument, "assignee")[0].data.name,
			api.getLinks(thisDocument, "").length,
		];
	`)
	require.NoError(t, err)
	assert.True(t, ir.Equal(ir.IRArray{
		ir.IRString("parent"), ir.IRInt(2), ir.IRString("c2"), ir.IRString("ada"), ir.IRInt(1),
	}, res.Value), "got %#v", res.Value)
}

func TestTraversal_SkipsRemovedDocuments(t *testing.T) {
	s := setupTest(t)
	ctx := context.Background()
	parent := createDoc(t, s, "tasks", nil)
	c1, err := s.CreateDocument(ctx, &ir.Document{CollectionID: "tasks", ParentID: parent.ID, Data: ir.IRObject{}})
	require.NoError(t, err)
	_, err = s.CreateDocument(ctx, &ir.Document{CollectionID: "tasks", ParentID: parent.ID, Data: ir.IRObject{}})
	require.NoError(t, err)

	res, err := runFor(t, newRunner(s), c1, `
		var before = api.getSiblings(thisDocument).length;
		api.removeDocument(api.getSiblings(thisDocument)[0]);
		var after = api.getSiblings(thisDocument).length;
		api.removeDocument(thisDocument);
		api.removeDocument(thisDocument);
		[before, after, api.getParentDocument(thisDocument), api.getChildDocuments(thisDocument).length];
	`)
	require.NoError(t, err)
	assert.True(t, ir.Equal(ir.IRArray{ir.IRInt(1), ir.IRInt(0), ir.IRNull{}, ir.IRInt(0)}, res.Value),
		"got %#v", res.Value)

	require.Len(t, res.Operations, 2)
	assert.Equal(t, operation.DocumentRemoval{Target: ir.Persisted(c1.ID), CollectionID: "tasks"}, res.Operations[1])
}

func TestTraversal_DocumentDeletedInStore(t *testing.T) {
	s := setupTest(t)
	ctx := context.Background()
	parent := createDoc(t, s, "tasks", nil)
	child, err := s.CreateDocument(ctx, &ir.Document{CollectionID: "tasks", ParentID: parent.ID, Data: ir.IRObject{}})
	require.NoError(t, err)
	require.NoError(t, s.DeleteDocument(ctx, child.ID))

	res, err := runFor(t, newRunner(s), child, `api.getParentDocument(thisDocument)`)
	require.NoError(t, err)
	assert.Equal(t, ir.IRNull{}, res.Value)
}

func TestGetSequenceNumber(t *testing.T) {
	s := setupTest(t)
	doc := createDoc(t, s, "tasks", nil)

	res, err := runFor(t, newRunner(s), doc, `
		[api.getSequenceNumber("invoice", 4), api.getSequenceNumber("invoice", 4), api.getSequenceNumber("other")];
	`)
	require.NoError(t, err)
	assert.True(t, ir.Equal(ir.IRArray{
		ir.IRString("0001"), ir.IRString("0002"), ir.IRString("1"),
	}, res.Value))
}

func TestRun_FailureCauseSurvivesCatch(t *testing.T) {
	s := setupTest(t)
	doc := createDoc(t, s, "tasks", nil)

	res, err := runFor(t, newRunner(s), doc, `
		api.showMessage("info", "before");
		try { api.createDocument("missing"); } catch (e) {}
		api.showMessage("info", "after");
	`)
	require.Error(t, err)
	assert.True(t, IsScriptError(err))
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Len(t, res.Operations, 2)
}

func TestRun_ScriptException(t *testing.T) {
	s := setupTest(t)
	doc := createDoc(t, s, "tasks", nil)

	res, err := runFor(t, newRunner(s), doc, `
		api.showMessage("info", "first");
		throw new Error("boom");
	`)
	require.Error(t, err)
	assert.True(t, IsScriptError(err))
	assert.Contains(t, err.Error(), "boom")
	assert.Len(t, res.Operations, 1)
}

func TestRun_RemovedTrigger(t *testing.T) {
	s := setupTest(t)
	old := &ir.Document{ID: "gone", CollectionID: "tasks", Data: ir.IRObject{"estimate": ir.IRString("4")}}

	res, err := NewRunner(s).Run(context.Background(), Task{
		Name:   "on-delete",
		Source: `[thisDocument, oldDocument.id, oldDocument.data.estimate]`,
		Invocation: &ir.Invocation{
			Kind:         ir.KindDocument,
			Trigger:      ir.TriggerRemoved,
			CollectionID: "tasks",
			OldDocument:  old,
		},
	})
	require.NoError(t, err)
	assert.True(t, ir.Equal(ir.IRArray{ir.IRNull{}, ir.IRString("gone"), ir.IRInt(4)}, res.Value))
}

func TestRun_LinkInvocation(t *testing.T) {
	s := setupTest(t)
	task := createDoc(t, s, "tasks", nil)
	person := createDoc(t, s, "people", nil)
	link, err := s.CreateLink(context.Background(), &ir.LinkInstance{
		LinkTypeID: "assignee", DocumentIDs: [2]string{task.ID, person.ID}, Data: ir.IRObject{},
	})
	require.NoError(t, err)

	res, err := NewRunner(s).Run(context.Background(), Task{
		Name:   "on-link",
		Source: `api.setLinkAttribute(thisLink, "role", "owner"); thisLink.documentIds[1]`,
		Invocation: &ir.Invocation{
			Kind:       ir.KindLink,
			Trigger:    ir.TriggerCreated,
			LinkTypeID: "assignee",
			Link:       link,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, ir.IRString(person.ID), res.Value)
	require.Len(t, res.Operations, 1)
	assert.Equal(t, ir.Persisted(link.ID), res.Operations[0].(operation.LinkPatch).Target)
}
