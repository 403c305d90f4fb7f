package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/forge/internal/formula"
	"github.com/roach88/forge/internal/ir"
)

// Warning codes (W300-W399)
const (
	WarnUnknownReference = "W301" // formula reads a name that is no field
	WarnRuleCycle        = "W302" // rules may trigger each other
)

// Warning is a finding that does not prevent loading.
//
// Rule cycles are warnings, not errors, because they may be intentional:
//   - clamping rules that rewrite their own field once
//   - ping-pong rules that settle after a condition stops holding
//
// The runtime cascade guard bounds every cycle that does not settle.
type Warning struct {
	Code    string   `json:"code"`
	Field   string   `json:"field"`
	Message string   `json:"message"`
	Path    []string `json:"path,omitempty"` // cycle path: ["a", "b", "a"]
}

func (w Warning) String() string {
	return fmt.Sprintf("[%s] %s: %s", w.Code, w.Field, w.Message)
}

// Analyze reports potential problems Validate does not reject: formula
// references to names that are not fields, and rule cascade cycles.
func Analyze(schema *ir.Schema) []Warning {
	var warnings []Warning
	for i := range schema.EntityTypes {
		et := &schema.EntityTypes[i]
		for j := range et.Fields {
			f := &et.Fields[j]
			if !f.Derived() {
				continue
			}
			for _, dep := range formula.ExtractDependencies(f.Formula) {
				head, _, _ := strings.Cut(dep, ".")
				if _, ok := et.Field(head); ok {
					continue
				}
				warnings = append(warnings, Warning{
					Code:    WarnUnknownReference,
					Field:   fmt.Sprintf("entityTypes[%d].fields[%d].formula", i, j),
					Message: fmt.Sprintf("formula of %q reads {%s}, which is not a field of %q and evaluates to 0", f.ID, dep, et.ID),
				})
			}
		}
	}
	return append(warnings, AnalyzeRuleCycles(schema)...)
}

// AnalyzeRuleCycles performs static cycle analysis on rules.
//
// The algorithm:
//  1. For each entity type, list the events each applicable rule can emit
//     (onChange of its write targets, onRoll, onMessage, trigger_event
//     names, onModifierAdded)
//  2. Add an edge to every applicable rule that event would trigger
//  3. Use Tarjan's algorithm to find strongly connected components
//  4. Report each SCC with size > 1 or self-loops as a potential cycle
//
// Nodes are "<type>/<rule id>" so a global rule appears once per type.
func AnalyzeRuleCycles(schema *ir.Schema) []Warning {
	graph := make(dependencyGraph)
	for i := range schema.EntityTypes {
		et := &schema.EntityTypes[i]
		applicable := append(append([]ir.Rule(nil), et.Rules...), schema.GlobalRules...)

		for _, r := range applicable {
			from := et.ID + "/" + r.ID
			if graph[from] == nil {
				graph[from] = []string{}
			}
			for _, emitted := range emittedEvents(et, r) {
				for _, s := range applicable {
					if triggers(et, s, emitted) {
						graph[from] = append(graph[from], et.ID+"/"+s.ID)
					}
				}
			}
		}
	}

	var warnings []Warning
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}
	return warnings
}

// emitted is an event a rule can cause, with the field it concerns.
type emitted struct {
	name  string
	field string
}

func emittedEvents(et *ir.EntityType, r ir.Rule) []emitted {
	var out []emitted
	for _, eff := range r.Effects {
		field := ""
		if t := ir.EffectTarget(eff); t != "" {
			if f, ok := et.Field(t); ok {
				field = f.ID
			} else {
				continue
			}
		}
		switch e := eff.(type) {
		case ir.SetValue, ir.AddValue, ir.SubtractValue, ir.MultiplyValue:
			out = append(out, emitted{ir.EventChange, field})
		case ir.RollDice:
			if field != "" {
				out = append(out, emitted{ir.EventChange, field})
			}
			out = append(out, emitted{ir.EventRoll, field})
		case ir.ShowMessage:
			out = append(out, emitted{ir.EventMessage, ""})
		case ir.TriggerEvent:
			out = append(out, emitted{e.Event, ""})
		case ir.AddModifier:
			target := ""
			if f, ok := et.Field(e.Target); ok {
				target = f.ID
			}
			out = append(out, emitted{ir.EventModifierAdded, target})
		}
	}
	return out
}

func triggers(et *ir.EntityType, r ir.Rule, ev emitted) bool {
	if r.Trigger != ev.name {
		return false
	}
	if r.FieldFilter == "" {
		return true
	}
	f, ok := et.Field(r.FieldFilter)
	return ok && f.ID == ev.field
}

// dependencyGraph maps a node to the nodes it can trigger.
type dependencyGraph map[string][]string

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph dependencyGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Nodes are visited in sorted order so the result is deterministic.
// Single-node SCCs without self-loops are NOT cycles.
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

		// v is a root node: pop the stack and create an SCC
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

// cycleSCCToWarning converts an SCC to a Warning.
func cycleSCCToWarning(scc []string, graph dependencyGraph) Warning {
	path := reconstructCyclePath(scc, graph)
	if len(scc) == 1 {
		return Warning{
			Code:    WarnRuleCycle,
			Field:   "rules",
			Message: fmt.Sprintf("self-triggering rule: %s -> %s", scc[0], scc[0]),
			Path:    path,
		}
	}
	return Warning{
		Code:    WarnRuleCycle,
		Field:   "rules",
		Message: fmt.Sprintf("potential rule cycle: %s", strings.Join(path, " -> ")),
		Path:    path,
	}
}

// reconstructCyclePath builds a cycle path from an SCC.
//
// Strategy: start at the first node in the SCC, follow edges to other SCC
// members, and stop on returning to the start node.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}
	if len(scc) == 1 {
		return []string{scc[0], scc[0]}
	}

	sccSet := make(map[string]bool)
	for _, node := range scc {
		sccSet[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
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
