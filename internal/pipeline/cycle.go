package pipeline

import "slices"

// DetectCycle returns the nodes of a dependency cycle, first node repeated at
// the end, or nil when the graph is acyclic. Nodes are visited in the order
// given so the reported cycle is deterministic.
func DetectCycle(order []string, deps map[string][]string) []string {
	visiting := make(map[string]bool, len(order))
	visited := make(map[string]bool, len(order))
	var stack []string
	var cycle []string

	var dfs func(string) bool
	dfs = func(node string) bool {
		visiting[node] = true
		stack = append(stack, node)

		for _, dep := range deps[node] {
			if visited[dep] {
				continue
			}
			if visiting[dep] {
				idx := slices.Index(stack, dep)
				cycle = append(slices.Clone(stack[idx:]), dep)
				return true
			}
			if dfs(dep) {
				return true
			}
		}

		visiting[node] = false
		visited[node] = true
		stack = stack[:len(stack)-1]
		return false
	}

	for _, id := range order {
		if !visited[id] && dfs(id) {
			break
		}
	}
	return cycle
}
