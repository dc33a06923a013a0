package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/automaton/internal/ir"
	"github.com/roach88/automaton/internal/store"
)

const testProject = `
collection: tasks: {
	attribute: {
		title: {type: "Text"}
		estimate: {type: "Number"}
		double: {
			type: "Number"
			function: {js: "thisDocument.data.estimate ? thisDocument.data.estimate * 2 : null", dependencies: ["estimate"]}
		}
		done: {type: "Text"}
	}
}
collection: people: attribute: name: {type: "Text"}
link_type: assignee: collections: ["tasks", "people"]
`

const testFixture = `
documents:
  - ref: t1
    collection: tasks
    data: {title: write, estimate: 3, done: "yes"}
  - ref: t2
    collection: tasks
    data: {title: read, done: "no"}
  - ref: t3
    collection: tasks
    data: {title: think, done: maybe}
  - ref: ada
    collection: people
    data: {name: Ada}
links:
  - link_type: assignee
    documents: [t1, ada]
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// decodeData runs a command with --format json and decodes the data field
// into v.
func decodeData(t *testing.T, v any, args ...string) {
	t.Helper()
	out, err := runCLI(t, append(args, "--format", "json")...)
	require.NoError(t, err, out)

	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

// seeded applies the test project and seeds the fixture into a fresh
// database. It returns the database path and the fixture refs.
func seeded(t *testing.T) (string, map[string]string) {
	t.Helper()
	db := filepath.Join(t.TempDir(), "test.db")
	_, err := runCLI(t, "apply", writeFile(t, "project.cue", testProject), "--db", db)
	require.NoError(t, err)

	var result SeedResult
	decodeData(t, &result, "seed", writeFile(t, "seed.yaml", testFixture), "--db", db)
	return db, result.Refs
}

func openStore(t *testing.T, db string) *store.Store {
	t.Helper()
	s, err := store.Open(db)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestApply(t *testing.T) {
	db := filepath.Join(t.TempDir(), "test.db")
	project := writeFile(t, "project.cue", testProject)

	out, err := runCLI(t, "apply", project, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "3 created, 0 updated")
	assert.Contains(t, out, "+ collection:tasks")
	assert.Contains(t, out, "+ link_type:assignee")

	var result ApplyResult
	decodeData(t, &result, "apply", project, "--db", db)
	assert.Empty(t, result.Created)
	assert.ElementsMatch(t, []string{"collection:tasks", "collection:people", "link_type:assignee"}, result.Updated)
}

func TestApply_Errors(t *testing.T) {
	tests := []struct {
		name     string
		project  string
		exitCode int
		want     string
	}{
		{
			name:     "does not compile",
			project:  `collection: tasks: attribute: title: type: 3`,
			exitCode: ExitCommandError,
			want:     "compiling project",
		},
		{
			name:     "fails validation",
			project:  `link_type: assignee: collections: ["tasks", "people"]`,
			exitCode: ExitFailure,
			want:     "validation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := filepath.Join(t.TempDir(), "test.db")
			_, err := runCLI(t, "apply", writeFile(t, "project.cue", tt.project), "--db", db)
			require.Error(t, err)
			assert.Equal(t, tt.exitCode, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSeed(t *testing.T) {
	db, refs := seeded(t)
	require.Contains(t, refs, "t1")
	require.Contains(t, refs, "ada")

	s := openStore(t, db)
	doc, err := s.GetDocument(context.Background(), refs["t1"])
	require.NoError(t, err)
	assert.True(t, ir.Equal(ir.IRInt(6), doc.Data["double"]), "functions ran during the seed")

	lt, err := s.GetLinkType(context.Background(), "assignee")
	require.NoError(t, err)
	assert.Equal(t, int64(1), lt.LinksCount)
}

func TestSeed_RejectedBatch(t *testing.T) {
	db := filepath.Join(t.TempDir(), "test.db")
	_, err := runCLI(t, "apply", writeFile(t, "project.cue", testProject), "--db", db)
	require.NoError(t, err)

	fixture := "documents:\n  - collection: tasks\nlinks:\n  - link_type: assignee\n    documents: [ghost, nobody]\n"
	_, err = runCLI(t, "seed", writeFile(t, "seed.yaml", fixture), "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "unknown document ghost")
}

func TestExec(t *testing.T) {
	db, refs := seeded(t)
	script := writeFile(t, "bump.js", `
		api.setDocumentAttribute(thisDocument, "estimate", 10);
		api.showMessage("info", "bumped " + thisDocument.data.title);
	`)

	var tracker struct {
		UpdatedDocuments []*ir.Document `json:"updated_documents"`
		Messages         []struct {
			Text string `json:"text"`
		} `json:"messages"`
	}
	decodeData(t, &tracker, "exec", "--db", db, "--collection", "tasks", "--document", refs["t1"], script)
	require.Len(t, tracker.Messages, 1)
	assert.Equal(t, "bumped write", tracker.Messages[0].Text)
	assert.NotEmpty(t, tracker.UpdatedDocuments)

	doc, err := openStore(t, db).GetDocument(context.Background(), refs["t1"])
	require.NoError(t, err)
	assert.True(t, ir.Equal(ir.IRInt(20), doc.Data["double"]), "the cascade recomputed double")
}

func TestSeed_MetricsOut(t *testing.T) {
	db := filepath.Join(t.TempDir(), "test.db")
	_, err := runCLI(t, "apply", writeFile(t, "project.cue", testProject), "--db", db)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "metrics.prom")
	_, err = runCLI(t, "seed", writeFile(t, "seed.yaml", testFixture), "--db", db, "--metrics-out", out)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `automaton_operations_committed_total{kind="document_creation"} 4`)
	assert.Contains(t, text, "automaton_commit_duration_seconds_count")
}

func TestExec_WrongCollection(t *testing.T) {
	db, refs := seeded(t)
	script := writeFile(t, "noop.js", "1;")

	_, err := runCLI(t, "exec", "--db", db, "--collection", "tasks", "--document", refs["ada"], script)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "belongs to people")
}

func TestConvert(t *testing.T) {
	db, refs := seeded(t)

	var dry ConvertResult
	decodeData(t, &dry, "convert", "--db", db, "--collection", "tasks", "--attribute", "done", "--to", "Boolean", "--dry-run")
	assert.Len(t, dry.Patched, 2)
	assert.True(t, dry.DryRun)

	var result ConvertResult
	decodeData(t, &result, "convert", "--db", db, "--collection", "tasks", "--attribute", "done", "--to", "Boolean")
	assert.Equal(t, "Text", result.From)
	assert.Equal(t, "Boolean", result.To)
	assert.ElementsMatch(t, []string{refs["t1"], refs["t2"]}, result.Patched, "unknown tokens keep their text")

	s := openStore(t, db)
	ctx := context.Background()
	docs, err := s.GetDocuments(ctx, []string{refs["t1"], refs["t2"], refs["t3"]})
	require.NoError(t, err)
	done := map[string]ir.IRValue{}
	for _, d := range docs {
		done[d.ID] = d.Data["done"]
	}
	assert.Equal(t, ir.IRBool(true), done[refs["t1"]])
	assert.Equal(t, ir.IRBool(false), done[refs["t2"]])
	assert.Equal(t, ir.IRString("maybe"), done[refs["t3"]])

	coll, err := s.GetCollection(ctx, "tasks")
	require.NoError(t, err)
	assert.Equal(t, ir.ConstraintBoolean, coll.Attribute("done").Constraint.Type)
}

func TestConvert_DurationUsesConfiguredSchema(t *testing.T) {
	db, _ := seeded(t)
	cfg := writeFile(t, "automaton.cue", `duration: type: "Classic"`)

	_, err := runCLI(t, "convert", "--config", cfg, "--db", db, "--collection", "tasks", "--attribute", "title", "--to", "Duration")
	require.NoError(t, err)

	coll, err := openStore(t, db).GetCollection(context.Background(), "tasks")
	require.NoError(t, err)
	c := coll.Attribute("title").Constraint
	assert.Equal(t, ir.ConstraintDuration, c.Type)
	assert.Equal(t, ir.IRString("Classic"), c.Config["type"])
}

func TestConvert_UnknownType(t *testing.T) {
	_, err := runCLI(t, "convert", "--collection", "tasks", "--attribute", "done", "--to", "Emoji")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `unknown constraint type "Emoji"`)
}

func TestTestCommand(t *testing.T) {
	var result TestResult
	decodeData(t, &result, "test", filepath.Join("..", "harness", "testdata", "scenarios"))
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 3, result.Passed, "%+v", result.Scenarios)

	out, err := runCLI(t, "test", filepath.Join("..", "harness", "testdata", "scenarios"), "--filter", "cycle_*")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ cycle_guard")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommand_Errors(t *testing.T) {
	_, err := runCLI(t, "test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	bad := writeFile(t, "bad.yaml", "name: bad\n")
	out, err := runCLI(t, "test", bad)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ bad.yaml")
}
