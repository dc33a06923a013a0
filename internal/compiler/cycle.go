package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/automaton/internal/ir"
)

// CycleWarning represents a potential cycle between computed attributes.
//
// Cycles are warnings, not errors: a function that writes the value it
// already holds stops the loop, and the engine's cycle detector ends any
// loop that keeps revisiting the same state.
type CycleWarning struct {
	Path    []string `json:"path"` // "tasks.a", "tasks.b", "tasks.a"
	Message string   `json:"message"`
	Level   string   `json:"level"`
}

// AnalyzeCycles finds computed attributes that can re-trigger each other.
//
// For each collection and link type:
//  1. Build attribute → function graph: an edge a → f means a change of a
//     re-evaluates f, whose result changes f's own attribute
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or self-loops
//
// A function without dependencies re-evaluates on any change except its
// own.
func AnalyzeCycles(p *Project) []CycleWarning {
	warnings := []CycleWarning{}
	for _, c := range p.Collections {
		warnings = append(warnings, analyze(c.ID, c.Attributes)...)
	}
	for _, l := range p.LinkTypes {
		warnings = append(warnings, analyze(l.ID, l.Attributes)...)
	}
	return warnings
}

func analyze(owner string, attrs []ir.Attribute) []CycleWarning {
	graph := buildDependencyGraph(attrs)

	var warnings []CycleWarning
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			warnings = append(warnings, cycleSCCToWarning(owner, scc, graph))
		}
	}
	return warnings
}

// dependencyGraph maps attribute id → ids of attributes recomputed when it
// changes.
type dependencyGraph map[string][]string

func buildDependencyGraph(attrs []ir.Attribute) dependencyGraph {
	graph := make(dependencyGraph, len(attrs))
	for _, a := range attrs {
		graph[a.ID] = nil
	}

	for _, f := range attrs {
		if f.Function == nil {
			continue
		}
		if len(f.Function.Dependencies) == 0 {
			for _, a := range attrs {
				if a.ID != f.ID {
					graph[a.ID] = append(graph[a.ID], f.ID)
				}
			}
			continue
		}
		for _, dep := range f.Function.Dependencies {
			if _, ok := graph[dep]; ok {
				graph[dep] = append(graph[dep], f.ID)
			}
		}
	}
	return graph
}

func hasSelfLoop(node string, graph dependencyGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order so results are stable.
func tarjanSCC(graph dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sort.Strings(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

func cycleSCCToWarning(owner string, scc []string, graph dependencyGraph) CycleWarning {
	if len(scc) == 1 {
		id := owner + "." + scc[0]
		return CycleWarning{
			Path:    []string{id, id},
			Message: fmt.Sprintf("Self-triggering function detected: %s → %s", id, id),
			Level:   "warning",
		}
	}

	path := reconstructCyclePath(scc, graph)
	for i := range path {
		path[i] = owner + "." + path[i]
	}
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("Potential cycle detected: %s", strings.Join(path, " → ")),
		Level:   "warning",
	}
}

// reconstructCyclePath walks SCC members from the first node until it gets
// back to it.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	inSCC := make(map[string]bool, len(scc))
	for _, node := range scc {
		inSCC[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if inSCC[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
