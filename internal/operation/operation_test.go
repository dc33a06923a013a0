package operation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/automaton/internal/ir"
)

func TestOperationSealed(t *testing.T) {
	ops := []Operation{
		DocumentCreation{}, DocumentPatch{}, DocumentRemoval{},
		LinkCreation{}, LinkPatch{}, LinkRemoval{},
		UserMessage{}, PrintAttribute{}, Navigation{}, SendEmail{}, ShareView{},
	}

	kinds := make(map[Kind]bool)
	for _, op := range ops {
		kinds[op.Kind()] = true
		assert.NotEmpty(t, op.String())
	}
	assert.Len(t, kinds, len(ops), "every variant has its own kind")
}

func TestIsSideEffect(t *testing.T) {
	assert.True(t, IsSideEffect(UserMessage{Text: "hi"}))
	assert.True(t, IsSideEffect(PrintAttribute{}))
	assert.True(t, IsSideEffect(SendEmail{}))
	assert.False(t, IsSideEffect(DocumentPatch{}))
	assert.False(t, IsSideEffect(LinkRemoval{}))
}

func TestCheckCompleteBatch(t *testing.T) {
	ops := []Operation{
		DocumentCreation{Token: "t1", Document: &ir.Document{CollectionID: "c1"}},
		DocumentPatch{Target: ir.Pending("t1"), CollectionID: "c1", AttributeID: "a1", Value: ir.IRInt(1)},
		DocumentPatch{Target: ir.Persisted("d9"), CollectionID: "c1", AttributeID: "a1", Value: ir.IRInt(2)},
		LinkCreation{Token: "l1", LinkTypeID: "lt", Documents: [2]ir.EntityRef{ir.Pending("t1"), ir.Persisted("d9")}},
		LinkPatch{Target: ir.Pending("l1"), LinkTypeID: "lt", AttributeID: "a9", Value: ir.IRString("x")},
		LinkRemoval{Target: ir.Persisted("l7"), LinkTypeID: "lt"},
		DocumentRemoval{Target: ir.Pending("t1"), CollectionID: "c1"},
		UserMessage{Level: LevelInfo, Text: "ok"},
	}

	assert.Empty(t, Check(ops))
}

func TestCheckReportsAllViolations(t *testing.T) {
	ops := []Operation{
		DocumentPatch{Target: nil, AttributeID: "a1"},
		DocumentPatch{Target: ir.Persisted("d1"), AttributeID: ""},
		DocumentPatch{Target: ir.Pending("nope"), AttributeID: "a1"},
		LinkRemoval{Target: ir.Pending("x")},
		DocumentCreation{Token: "", Document: nil},
	}

	violations := Check(ops)
	require.Len(t, violations, 6)

	assert.Equal(t, 0, violations[0].Index)
	assert.Equal(t, "missing target", violations[0].Reason)
	assert.Equal(t, "missing attribute id", violations[1].Reason)
	assert.Contains(t, violations[2].Reason, `"nope"`)
	assert.Equal(t, 3, violations[3].Index)
	assert.Equal(t, "missing correlation token", violations[4].Reason)
	assert.Equal(t, "missing collection", violations[5].Reason)
	assert.Contains(t, violations[2].String(), "operation 2")
}

func TestCheckLinkPatchNeedsLinkToken(t *testing.T) {
	ops := []Operation{
		DocumentCreation{Token: "t1", Document: &ir.Document{CollectionID: "c1"}},
		LinkPatch{Target: ir.Pending("t1"), LinkTypeID: "lt", AttributeID: "a"},
	}

	violations := Check(ops)
	require.Len(t, violations, 1)
	assert.Equal(t, 1, violations[0].Index)
}
