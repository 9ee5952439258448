package registry

import (
	"slices"
)

// DependencyAnalyzer analyzes the insert graph between templates. An edge
// a -> b means template a contains <insert template="b">.
type DependencyAnalyzer struct {
	registry *TemplateRegistry
}

// NewDependencyAnalyzer creates a new dependency analyzer
func NewDependencyAnalyzer(registry *TemplateRegistry) *DependencyAnalyzer {
	return &DependencyAnalyzer{
		registry: registry,
	}
}

// GetDependencyGraph returns the full dependency graph
func (da *DependencyAnalyzer) GetDependencyGraph() map[string][]string {
	graph := make(map[string][]string)

	da.registry.mutex.RLock()
	defer da.registry.mutex.RUnlock()

	for id, info := range da.registry.templates {
		graph[id] = slices.Clone(info.Inserts)
	}

	return graph
}

// GetDependents returns the templates that insert id, ordered by id
func (da *DependencyAnalyzer) GetDependents(id string) []*TemplateInfo {
	var dependents []*TemplateInfo
	for _, info := range da.registry.GetAll() {
		if slices.Contains(info.Inserts, id) {
			dependents = append(dependents, info)
		}
	}
	return dependents
}

// GetAffected returns id and every template that reaches it through
// inserts, i.e. the templates whose output changes when id changes.
func (da *DependencyAnalyzer) GetAffected(id string) []string {
	graph := da.GetDependencyGraph()
	reverse := make(map[string][]string)
	for from, deps := range graph {
		for _, to := range deps {
			reverse[to] = append(reverse[to], from)
		}
	}

	seen := map[string]bool{id: true}
	queue := []string{id}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, parent := range reverse[current] {
			if !seen[parent] {
				seen[parent] = true
				queue = append(queue, parent)
			}
		}
	}

	affected := make([]string, 0, len(seen))
	for name := range seen {
		affected = append(affected, name)
	}
	slices.Sort(affected)
	return affected
}

// MissingDependencies maps each template to the inserted ids that are not
// registered. Templates without missing inserts are omitted.
func (da *DependencyAnalyzer) MissingDependencies() map[string][]string {
	graph := da.GetDependencyGraph()
	missing := make(map[string][]string)
	for id, deps := range graph {
		for _, dep := range deps {
			if _, ok := graph[dep]; !ok {
				missing[id] = append(missing[id], dep)
			}
		}
	}
	return missing
}

// DetectCircularDependencies detects insert cycles in the graph. Each cycle
// starts and ends with the same id. Traversal is in id order so the result
// is deterministic.
func (da *DependencyAnalyzer) DetectCircularDependencies() [][]string {
	var cycles [][]string
	graph := da.GetDependencyGraph()

	ids := make([]string, 0, len(graph))
	for id := range graph {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	for _, id := range ids {
		if !visited[id] {
			cycles = append(cycles, da.detectCycleDFS(id, graph, visited, recStack, nil)...)
		}
	}

	return cycles
}

// detectCycleDFS performs DFS to detect cycles
func (da *DependencyAnalyzer) detectCycleDFS(id string, graph map[string][]string, visited, recStack map[string]bool, path []string) [][]string {
	var cycles [][]string
	visited[id] = true
	recStack[id] = true
	path = append(path, id)

	for _, dep := range graph[id] {
		if !visited[dep] {
			if _, known := graph[dep]; known {
				cycles = append(cycles, da.detectCycleDFS(dep, graph, visited, recStack, path)...)
			}
		} else if recStack[dep] {
			start := slices.Index(path, dep)
			cycle := make([]string, 0, len(path)-start+1)
			cycle = append(cycle, path[start:]...)
			cycle = append(cycle, dep)
			cycles = append(cycles, cycle)
		}
	}

	recStack[id] = false
	return cycles
}
