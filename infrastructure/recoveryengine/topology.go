package recoveryengine

import (
	"fmt"
	"sort"

	"github.com/R3E-Network/service_layer/domain/recovery"
	ctlerrors "github.com/R3E-Network/service_layer/infrastructure/errors"
)

// plan returns components ordered by ascending priority, breaking ties by
// topological order of the dependency DAG. A cyclic dependency graph is a
// configuration error detected here, before any step executes, per
// spec.md §4.E.
func plan(components []recovery.RecoveryComponent, subset []string) ([]recovery.RecoveryComponent, error) {
	byName := make(map[string]recovery.RecoveryComponent, len(components))
	for _, c := range components {
		byName[c.Name] = c
	}

	selected := components
	if len(subset) > 0 {
		selected = make([]recovery.RecoveryComponent, 0, len(subset))
		for _, name := range subset {
			c, ok := byName[name]
			if !ok {
				return nil, ctlerrors.ConfigError(fmt.Sprintf("unknown recovery component %q", name))
			}
			selected = append(selected, c)
		}
	}

	if err := checkAcyclic(selected, byName); err != nil {
		return nil, err
	}

	ordered := append([]recovery.RecoveryComponent(nil), selected...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })

	return topoSortWithinPriority(ordered, byName), nil
}

// checkAcyclic performs a DFS cycle check over the dependency graph
// restricted to selected's names.
func checkAcyclic(selected []recovery.RecoveryComponent, byName map[string]recovery.RecoveryComponent) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(selected))

	var visit func(name string) error
	visit = func(name string) error {
		switch color[name] {
		case black:
			return nil
		case gray:
			return ctlerrors.CyclicDependency(name)
		}
		color[name] = gray
		comp, ok := byName[name]
		if ok {
			for _, dep := range comp.Dependencies {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		color[name] = black
		return nil
	}

	for _, c := range selected {
		if err := visit(c.Name); err != nil {
			return err
		}
	}
	return nil
}

// topoSortWithinPriority performs a stable topological sort of ordered
// (already sorted by priority) such that every component appears after its
// dependencies, without disturbing relative order between components that
// have no dependency relationship.
func topoSortWithinPriority(ordered []recovery.RecoveryComponent, byName map[string]recovery.RecoveryComponent) []recovery.RecoveryComponent {
	position := make(map[string]int, len(ordered))
	for i, c := range ordered {
		position[c.Name] = i
	}

	visited := make(map[string]bool, len(ordered))
	result := make([]recovery.RecoveryComponent, 0, len(ordered))

	var visit func(c recovery.RecoveryComponent)
	visit = func(c recovery.RecoveryComponent) {
		if visited[c.Name] {
			return
		}
		visited[c.Name] = true
		for _, dep := range c.Dependencies {
			if depIdx, ok := position[dep]; ok {
				visit(ordered[depIdx])
			}
		}
		result = append(result, c)
	}

	for _, c := range ordered {
		visit(c)
	}
	return result
}
