// Package order topologically sorts the dependency graph built by package
// dependency, detecting and reporting cycles with human-readable paths
// (spec §4.6).
package order

import (
	"fmt"
	"strings"

	"github.com/giaosudau/sqlflow-go/core"
)

// Labeler maps a step id to its user-visible form (`LOAD orders`,
// `CREATE TABLE orders_clean`, `SOURCE orders`, `EXPORT orders_clean to csv`)
// for cycle error messages.
type Labeler func(stepID string) string

// maxReportedCycles bounds how many cycles a PlanningError enumerates;
// spec §4.6 asks for "up to three cycles plus a count of the rest".
const maxReportedCycles = 3

// Resolve runs Kahn's algorithm over edges (consumer -> depends_on ids,
// covering every known step id including those with no dependencies) and
// returns a linear order consistent with every edge. If a cycle prevents
// full drain, it reports up to three cycles via depth-first search.
func Resolve(stepIDs []string, edges map[string][]string, label Labeler) ([]string, error) {
	inDegree := make(map[string]int, len(stepIDs))
	dependents := make(map[string][]string, len(stepIDs))
	for _, id := range stepIDs {
		inDegree[id] = 0
	}
	// Iterate stepIDs rather than ranging edges directly: edges is a map, and
	// ranging it would make dependents[dep] append order nondeterministic,
	// which would make re-invoking build_plan on the same pipeline produce a
	// different order among independent siblings on different runs.
	for _, consumer := range stepIDs {
		deps, ok := edges[consumer]
		if !ok {
			continue
		}
		inDegree[consumer] = len(deps)
		for _, dep := range deps {
			dependents[dep] = append(dependents[dep], consumer)
		}
	}

	var queue []string
	for _, id := range stepIDs {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	var result []string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)
		for _, dependent := range dependents[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(result) == len(stepIDs) {
		return result, nil
	}

	remaining := map[string]struct{}{}
	for _, id := range stepIDs {
		if inDegree[id] > 0 {
			remaining[id] = struct{}{}
		}
	}
	cycles := findCycles(remaining, edges, label)
	return nil, cyclesError(cycles, len(remaining))
}

// findCycles performs DFS from each unresolved node to build up to
// maxReportedCycles human-readable cycle paths.
func findCycles(remaining map[string]struct{}, edges map[string][]string, label Labeler) []string {
	var cycles []string
	visited := map[string]bool{}

	for node := range remaining {
		if len(cycles) >= maxReportedCycles {
			break
		}
		if visited[node] {
			continue
		}
		if path := dfsCycle(node, edges, remaining, map[string]bool{}, []string{}); path != nil {
			for _, n := range path {
				visited[n] = true
			}
			cycles = append(cycles, formatCycle(path, label))
		}
	}
	return cycles
}

func dfsCycle(node string, edges map[string][]string, remaining map[string]struct{}, onStack map[string]bool, path []string) []string {
	onStack[node] = true
	path = append(path, node)

	for _, dep := range edges[node] {
		if _, ok := remaining[dep]; !ok {
			continue
		}
		if onStack[dep] {
			// Found the cycle: trim path to start at dep.
			for i, n := range path {
				if n == dep {
					return append(append([]string{}, path[i:]...), dep)
				}
			}
		}
		if found := dfsCycle(dep, edges, remaining, onStack, path); found != nil {
			return found
		}
	}

	onStack[node] = false
	return nil
}

func formatCycle(path []string, label Labeler) string {
	parts := make([]string, len(path))
	for i, id := range path {
		if label != nil {
			parts[i] = label(id)
		} else {
			parts[i] = id
		}
	}
	return strings.Join(parts, " -> ")
}

func cyclesError(cycles []string, remainingCount int) error {
	causes := make([]string, 0, len(cycles)+1)
	for _, c := range cycles {
		causes = append(causes, fmt.Sprintf("cycle: %s", c))
	}
	if remainingCount > len(cycles) {
		causes = append(causes, fmt.Sprintf("and %d more step(s) involved in unresolved cycles", remainingCount-len(cycles)))
	}
	return core.NewPlanningError("circular dependency", core.ErrCircularDependency, causes...)
}
