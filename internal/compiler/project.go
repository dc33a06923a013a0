// Package compiler turns CUE project files into the collections and link
// types the engine runs on.
//
// A project declares collections and link types keyed by id:
//
//	collection: tasks: {
//		name: "Tasks"
//		attribute: {
//			title:    {type: "Text"}
//			estimate: {type: "Number", config: {decimals: 1}}
//			double:   {type: "Number", function: {js: "thisDocument.data.estimate * 2", dependencies: ["estimate"]}}
//		}
//		rule: notify: {timing: "create", script: "messages.showMessage('info', 'created')"}
//	}
//	link_type: assignee: collections: ["tasks", "people"]
//
// Files are unified with the embedded #Project schema first, then compiled
// field by field. Compile errors stop at the first problem; Validate reports
// every semantic problem of a compiled project at once.
package compiler

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/automaton/internal/ir"
)

//go:embed schema.cue
var schemaSource []byte

// Project is a compiled project, in declaration order.
type Project struct {
	Collections []*ir.Collection
	LinkTypes   []*ir.LinkType
}

// Collection returns the collection with the given id, or nil.
func (p *Project) Collection(id string) *ir.Collection {
	for _, c := range p.Collections {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// LinkType returns the link type with the given id, or nil.
func (p *Project) LinkType(id string) *ir.LinkType {
	for _, l := range p.LinkTypes {
		if l.ID == id {
			return l
		}
	}
	return nil
}

// CompileString compiles a project from CUE source. filename is only used
// for error positions.
func CompileString(filename, src string) (*Project, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	return CompileProject(v)
}

// LoadFile compiles a single .cue file.
func LoadFile(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project: %w", err)
	}
	return CompileString(path, string(data))
}

// LoadDir compiles the CUE package in dir. All .cue files of the package
// are unified into one project.
func LoadDir(dir string) (*Project, error) {
	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances in %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(inst.Err)
	}
	return CompileProject(ctx.BuildInstance(inst))
}

// Load compiles path, which is either a .cue file or a directory.
func Load(path string) (*Project, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", path, err)
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	if filepath.Ext(path) != ".cue" {
		return nil, fmt.Errorf("project %s: not a .cue file", path)
	}
	return LoadFile(path)
}

// CompileProject unifies v with #Project and compiles it.
func CompileProject(v cue.Value) (*Project, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	schema := v.Context().CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("project schema: %w", err)
	}
	v = v.Unify(schema.LookupPath(cue.ParsePath("#Project")))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	p := &Project{}

	if cv := v.LookupPath(cue.ParsePath("collection")); cv.Exists() {
		iter, err := cv.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			c, err := CompileCollection(iter.Selector().Unquoted(), iter.Value())
			if err != nil {
				return nil, err
			}
			p.Collections = append(p.Collections, c)
		}
	}

	if lv := v.LookupPath(cue.ParsePath("link_type")); lv.Exists() {
		iter, err := lv.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			l, err := CompileLinkType(iter.Selector().Unquoted(), iter.Value())
			if err != nil {
				return nil, err
			}
			p.LinkTypes = append(p.LinkTypes, l)
		}
	}

	return p, nil
}
