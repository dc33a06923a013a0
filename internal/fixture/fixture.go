// Package fixture loads YAML seed data: documents and the links between
// them.
//
//	documents:
//	  - ref: t1
//	    collection: tasks
//	    data: {title: "Write docs", estimate: 3}
//	  - ref: p1
//	    collection: people
//	    data: {name: Ada}
//	links:
//	  - link_type: assignee
//	    documents: [t1, p1]
//	    data: {role: owner}
//
// A fixture becomes one batch of operations. Refs declared in the fixture
// are correlation tokens; any other document name in a link is taken as the
// id of a stored document.
package fixture

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/automaton/internal/ir"
	"github.com/roach88/automaton/internal/operation"
)

// Fixture is a set of documents and links to create together.
type Fixture struct {
	Documents []Document `yaml:"documents"`
	Links     []Link     `yaml:"links,omitempty"`
}

// Document is one document to create.
type Document struct {
	// Ref names the document within the fixture. Optional.
	Ref        string         `yaml:"ref,omitempty"`
	Collection string         `yaml:"collection"`
	Data       map[string]any `yaml:"data,omitempty"`
}

// Link is one link instance to create.
type Link struct {
	Ref       string         `yaml:"ref,omitempty"`
	LinkType  string         `yaml:"link_type"`
	Documents []string       `yaml:"documents"`
	Data      map[string]any `yaml:"data,omitempty"`
}

// Load reads and parses a fixture file.
func Load(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a fixture. Unknown fields are rejected.
func Parse(data []byte) (*Fixture, error) {
	var f Fixture
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("invalid fixture: %w", err)
	}
	return &f, nil
}

func (f *Fixture) validate() error {
	if len(f.Documents) == 0 && len(f.Links) == 0 {
		return fmt.Errorf("fixture declares no documents or links")
	}

	refs := make(map[string]bool)
	declare := func(ref, where string) error {
		if ref == "" {
			return nil
		}
		if refs[ref] {
			return fmt.Errorf("%s: duplicate ref %q", where, ref)
		}
		refs[ref] = true
		return nil
	}

	for i, d := range f.Documents {
		if d.Collection == "" {
			return fmt.Errorf("documents[%d]: collection is required", i)
		}
		if err := declare(d.Ref, fmt.Sprintf("documents[%d]", i)); err != nil {
			return err
		}
	}
	for i, l := range f.Links {
		if l.LinkType == "" {
			return fmt.Errorf("links[%d]: link_type is required", i)
		}
		if len(l.Documents) != 2 || l.Documents[0] == "" || l.Documents[1] == "" {
			return fmt.Errorf("links[%d]: documents must name exactly two documents", i)
		}
		if err := declare(l.Ref, fmt.Sprintf("links[%d]", i)); err != nil {
			return err
		}
	}
	return nil
}

// Operations converts the fixture into creation operations. Documents come
// first, in file order, so links can reference them.
func (f *Fixture) Operations() ([]operation.Operation, error) {
	docRefs := make(map[string]string, len(f.Documents))
	ops := make([]operation.Operation, 0, len(f.Documents)+len(f.Links))

	for i, d := range f.Documents {
		data, err := ir.ObjectFromGo(d.Data)
		if err != nil {
			return nil, fmt.Errorf("documents[%d]: %w", i, err)
		}
		token := tokenFor(d.Ref, "document", i)
		if d.Ref != "" {
			docRefs[d.Ref] = token
		}
		ops = append(ops, operation.DocumentCreation{
			Token:    token,
			Document: &ir.Document{CollectionID: d.Collection, Data: data},
		})
	}

	for i, l := range f.Links {
		data, err := ir.ObjectFromGo(l.Data)
		if err != nil {
			return nil, fmt.Errorf("links[%d]: %w", i, err)
		}
		var docs [2]ir.EntityRef
		for j, name := range l.Documents {
			if token, ok := docRefs[name]; ok {
				docs[j] = ir.Pending(token)
			} else {
				docs[j] = ir.Persisted(name)
			}
		}
		ops = append(ops, operation.LinkCreation{
			Token:      tokenFor(l.Ref, "link", i),
			LinkTypeID: l.LinkType,
			Documents:  docs,
			Data:       data,
		})
	}
	return ops, nil
}

// tokenFor uses the ref as correlation token so that callers can look the
// created entity up by ref afterwards. Unnamed entries get a positional
// token.
func tokenFor(ref, kind string, i int) string {
	if ref != "" {
		return ref
	}
	return fmt.Sprintf("%s-%d", kind, i)
}
