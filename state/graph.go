package state

import (
	"fmt"
	"slices"
	"strings"
)

func parseSymbolList(s string, validSymbols []string) ([]string, error) {
	line := make([]string, 0)
	for _, sym := range strings.Split(strings.TrimSpace(s), ",") {
		x := strings.TrimSpace(sym)
		if x == "" {
			continue
		}
		if !slices.Contains(validSymbols, x) {
			return nil, fmt.Errorf(`%s is not a valid node/group`, x)
		}
		line = append(line, x)
	}
	if len(line) == 0 {
		return nil, fmt.Errorf(`node/group list must not be empty`)
	}
	slices.Sort(line)
	return line, nil
}

/*
ParseGraph expands mesh shorthand into undirected router pairs:

core = A, B, C

edge = D, E

core, edge // every router in core is linked to every router in edge, but not within a group

core, core // full mesh inside core

A, D // a single link

Blank lines are ignored. Groups may reference other groups but not themselves, directly or indirectly.
*/
func ParseGraph(graph []string, nodes []NodeId) ([]Pair[NodeId, NodeId], error) {
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, string(n))
	}

	groups := make(map[string][]string)
	lines := make([]string, 0)
	symbols := slices.Clone(names)

	// pass 0, collect group names so definitions may appear in any order
	for _, line := range graph {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if !strings.Contains(line, "=") {
			continue
		}
		spl := strings.Split(line, "=")
		if len(spl) != 2 {
			return nil, fmt.Errorf("invalid graph: %s. group definition must contain one '='", line)
		}
		grp := strings.TrimSpace(spl[0])
		if slices.Contains(names, grp) {
			return nil, fmt.Errorf("group name must not be a node name: %s", grp)
		}
		symbols = append(symbols, grp)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf(`node/group list must not be empty`)
	}

	// pass 1, parse definitions and pairings
	pairings := make([][]string, 0)
	for _, line := range lines {
		if strings.Contains(line, "=") {
			spl := strings.Split(line, "=")
			grp := strings.TrimSpace(spl[0])
			if _, ok := groups[grp]; ok {
				return nil, fmt.Errorf("duplicate group name: %s", grp)
			}
			lst, err := parseSymbolList(spl[1], symbols)
			if err != nil {
				return nil, err
			}
			groups[grp] = slices.Compact(lst)
			continue
		}
		lst, err := parseSymbolList(line, symbols)
		if err != nil {
			return nil, err
		}
		if len(lst) < 2 {
			return nil, fmt.Errorf("invalid pairing, %v", lst)
		}
		pairings = append(pairings, lst)
	}

	// pass 2, expand groups down to nodes
	expansion := make(map[string][]NodeId)
	visiting := make(map[string]bool)
	var expand func(sym string) ([]NodeId, error)
	expand = func(sym string) ([]NodeId, error) {
		if slices.Contains(names, sym) {
			return []NodeId{NodeId(sym)}, nil
		}
		if exp, ok := expansion[sym]; ok {
			return exp, nil
		}
		if visiting[sym] {
			cycle := make([]string, 0)
			for g, v := range visiting {
				if v {
					cycle = append(cycle, g)
				}
			}
			slices.Sort(cycle)
			return nil, fmt.Errorf("cycle detected in graph: %v", cycle)
		}
		visiting[sym] = true
		out := make([]NodeId, 0)
		for _, member := range groups[sym] {
			exp, err := expand(member)
			if err != nil {
				return nil, err
			}
			out = append(out, exp...)
		}
		visiting[sym] = false
		slices.Sort(out)
		out = slices.Compact(out)
		expansion[sym] = out
		return out, nil
	}
	for grp := range groups {
		if _, err := expand(grp); err != nil {
			return nil, err
		}
	}

	// pass 3, every symbol on a line is linked to every other symbol on that line
	out := make([]Pair[NodeId, NodeId], 0)
	for _, line := range pairings {
		for i, x := range line {
			for _, y := range line[i+1:] {
				xs, _ := expand(x)
				ys, _ := expand(y)
				for _, a := range xs {
					for _, b := range ys {
						if a != b {
							out = append(out, MakeSortedPair(a, b))
						}
					}
				}
			}
		}
	}
	SortPairs(out)
	return slices.Compact(out), nil
}
