package graph

import (
	"fmt"
	"strings"
)

// CycleError reports a cycle as the path that closes it, e.g. a -> b -> a.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(e.Path, " -> "))
}

// PathTo searches rel depth-first from `from` and returns the path ending at
// target, or false when target is unreachable. A node never reaches itself
// through an empty path; from == target needs a real cycle.
func PathTo(rel Relation, from, target string) ([]string, bool) {
	visited := make(map[string]bool)
	var path []string

	var dfs func(node string) bool
	dfs = func(node string) bool {
		path = append(path, node)
		for _, next := range rel.Successors(node) {
			if next == target {
				path = append(path, next)
				return true
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			if dfs(next) {
				return true
			}
		}
		path = path[:len(path)-1]
		return false
	}

	visited[from] = true
	if dfs(from) {
		return path, true
	}
	return nil, false
}

// Reachable reports whether target can be reached from `from` through rel.
func Reachable(rel Relation, from, target string) bool {
	_, ok := PathTo(rel, from, target)
	return ok
}

// Closure returns every node reachable from `from`, excluding from itself
// unless it sits on a cycle, in discovery order.
func Closure(rel Relation, from string) []string {
	seen := make(map[string]bool)
	var out []string
	stack := []string{from}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range rel.Successors(node) {
			if seen[next] {
				continue
			}
			seen[next] = true
			out = append(out, next)
			stack = append(stack, next)
		}
	}
	return out
}

// TopoSort orders nodes so that every node comes after the nodes it points
// to through rel (prerequisites first), using Kahn's algorithm. Successors
// outside nodes are ignored. On a cycle the returned error is a *CycleError.
func TopoSort(nodes []string, rel Relation) ([]string, error) {
	if len(nodes) == 0 {
		return nil, nil
	}

	nodeSet := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		nodeSet[n] = true
	}

	// in-degree counts unresolved prerequisites; forward maps prerequisite → dependents
	inDegree := make(map[string]int, len(nodes))
	forward := make(map[string][]string)
	for _, n := range nodes {
		inDegree[n] = 0
	}
	for _, n := range nodes {
		for _, pre := range rel.Successors(n) {
			if !nodeSet[pre] {
				continue
			}
			inDegree[n]++
			forward[pre] = append(forward[pre], n)
		}
	}

	var queue []string
	for _, n := range nodes {
		if inDegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	sorted := make([]string, 0, len(nodes))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		sorted = append(sorted, node)

		for _, dependent := range forward[node] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(sorted) == len(nodes) {
		return sorted, nil
	}
	return nil, &CycleError{Path: findCyclePath(nodes, nodeSet, rel, inDegree)}
}

// findCyclePath finds a cycle among the nodes Kahn's algorithm left with a
// non-zero in-degree.
func findCyclePath(nodes []string, nodeSet map[string]bool, rel Relation, inDegree map[string]int) []string {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current path
		black = 2 // finished
	)

	color := make(map[string]int)
	parent := make(map[string]string)
	var cyclePath []string

	var dfs func(node string) bool
	dfs = func(node string) bool {
		color[node] = gray
		for _, next := range rel.Successors(node) {
			if !nodeSet[next] {
				continue
			}
			if color[next] == gray {
				cyclePath = []string{next}
				current := node
				for current != next {
					cyclePath = append(cyclePath, current)
					current = parent[current]
				}
				cyclePath = append(cyclePath, next)
				for i, j := 0, len(cyclePath)-1; i < j; i, j = i+1, j-1 {
					cyclePath[i], cyclePath[j] = cyclePath[j], cyclePath[i]
				}
				return true
			}
			if color[next] == white {
				parent[next] = node
				if dfs(next) {
					return true
				}
			}
		}
		color[node] = black
		return false
	}

	for _, n := range nodes {
		if inDegree[n] > 0 && color[n] == white {
			if dfs(n) {
				return cyclePath
			}
		}
	}
	return []string{"(cycle detected)"}
}
