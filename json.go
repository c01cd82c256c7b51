package loom

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dogmatiq/loom/internal/topo"
)

// DumpTrace is the JSON form of a Trace.
type DumpTrace struct {
	Message string  `json:"message"`
	Tag     string  `json:"tag,omitempty"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

// DumpEntry is the JSON form of one surviving result in a ShowJSON dump.
type DumpEntry struct {
	Name      string      `json:"name"`
	Built     int         `json:"built"`
	Changed   int         `json:"changed"`
	Depends   [][]int     `json:"depends"`
	Execution float64     `json:"execution"`
	Traces    []DumpTrace `json:"traces,omitempty"`
}

// ShowJSON renders db's status map as a topologically-ordered JSON report.
//
// Only entries whose status carries a Result — Ready, Loaded, or Waiting
// with a prior Result — survive. Each surviving result's depends groups
// are filtered to ids that also survive, then remapped to the compact
// index of their position in the topological order. built and changed are
// remapped to a compact rank over the distinct Step values observed,
// highest step first (rank 0).
func ShowJSON(db *Database) ([]byte, error) {
	type survivor struct {
		id  Id
		key Key
		r   Result
	}

	db.mu.Lock()
	survivors := make([]survivor, 0, len(db.entries))
	surviving := make(map[Id]bool, len(db.entries))

	for id, e := range db.entries {
		var r Result

		switch s := e.status.(type) {
		case Ready:
			r = s.Result
		case Loaded:
			r = s.Result
		case *Waiting:
			if s.Prior == nil {
				continue
			}
			r = *s.Prior
		default:
			continue
		}

		survivors = append(survivors, survivor{id: id, key: e.key, r: r})
		surviving[id] = true
	}
	db.mu.Unlock()

	byID := make(map[Id]survivor, len(survivors))
	deps := make(map[Id][]Id, len(survivors))

	for _, sv := range survivors {
		byID[sv.id] = sv

		var flat []Id
		for _, g := range sv.r.Depends {
			for _, d := range g {
				if surviving[d] {
					flat = append(flat, d)
				}
			}
		}
		deps[sv.id] = flat
	}

	display := func(id Id) string {
		if sv, ok := byID[id]; ok {
			return sv.key.String()
		}
		return fmt.Sprintf("id %d", id)
	}

	order, err := topo.Order(deps, display)
	if err != nil {
		ce := err.(*topo.CycleError)
		return nil, &Error{
			Kind:    DatabaseCyclic,
			Heading: "dependency order emitter found a cycle while building a report",
			Rows:    ce.Keys,
			Body:    fmt.Sprintf("%d offending id(s) not shown", ce.Overflow),
		}
	}

	index := make(map[Id]int, len(order))
	for i, id := range order {
		index[id] = i
	}

	results := make([]Result, len(survivors))
	for i, sv := range survivors {
		results[i] = sv.r
	}
	rank := compactStepRanks(results)

	out := make([]DumpEntry, len(order))
	for i, id := range order {
		sv := byID[id]

		var depGroups [][]int
		for _, g := range sv.r.Depends {
			var group []int
			for _, d := range g {
				if idx, ok := index[d]; ok {
					group = append(group, idx)
				}
			}
			if len(group) > 0 {
				depGroups = append(depGroups, group)
			}
		}

		var traces []DumpTrace
		for _, t := range sv.r.Traces {
			traces = append(traces, DumpTrace{
				Message: t.Message,
				Tag:     t.Tag,
				Start:   t.Start,
				End:     t.End,
			})
		}

		out[i] = DumpEntry{
			Name:      sv.key.String(),
			Built:     rank[sv.r.Built],
			Changed:   rank[sv.r.Changed],
			Depends:   depGroups,
			Execution: sv.r.Execution.Seconds(),
			Traces:    traces,
		}
	}

	return json.MarshalIndent(out, "", "  ")
}

// compactStepRanks assigns the distinct Step values observed in survivors'
// Built and Changed fields a dense rank, highest step first (rank 0), per
// the "most-recent step = 0" display convention — see DESIGN.md for why
// this reading of the open question was chosen.
func compactStepRanks(results []Result) map[Step]int {
	seen := map[Step]struct{}{}
	for _, r := range results {
		seen[r.Built] = struct{}{}
		seen[r.Changed] = struct{}{}
	}

	steps := make([]Step, 0, len(seen))
	for s := range seen {
		steps = append(steps, s)
	}

	sort.Slice(steps, func(i, j int) bool { return steps[i] > steps[j] })

	rank := make(map[Step]int, len(steps))
	for i, s := range steps {
		rank[s] = i
	}

	return rank
}
