package loom

import (
	"time"

	"github.com/dogmatiq/loom/internal/journal"
)

// encodeResult converts a Result into the primitive form the journal
// package persists.
func encodeResult(r Result) journal.Result {
	depends := make([][]uint32, len(r.Depends))
	for i, g := range r.Depends {
		group := make([]uint32, len(g))
		for j, id := range g {
			group[j] = uint32(id)
		}
		depends[i] = group
	}

	traces := make([]journal.Trace, len(r.Traces))
	for i, t := range r.Traces {
		traces[i] = journal.Trace{
			Message: t.Message,
			Tag:     t.Tag,
			Start:   t.Start,
			End:     t.End,
		}
	}

	return journal.Result{
		ValueTag:     r.Value.Tag,
		ValuePayload: r.Value.Payload,
		Built:        uint32(r.Built),
		Changed:      uint32(r.Changed),
		Depends:      depends,
		ExecutionNS:  int64(r.Execution),
		Traces:       traces,
	}
}

// decodeResult reverses encodeResult.
func decodeResult(jr journal.Result) Result {
	depends := make([][]Id, len(jr.Depends))
	for i, g := range jr.Depends {
		group := make([]Id, len(g))
		for j, id := range g {
			group[j] = Id(id)
		}
		depends[i] = group
	}

	traces := make([]Trace, len(jr.Traces))
	for i, t := range jr.Traces {
		traces[i] = Trace{
			Message: t.Message,
			Tag:     t.Tag,
			Start:   t.Start,
			End:     t.End,
		}
	}

	return Result{
		Value:     Value{Tag: jr.ValueTag, Payload: jr.ValuePayload},
		Built:     Step(jr.Built),
		Changed:   Step(jr.Changed),
		Depends:   depends,
		Execution: time.Duration(jr.ExecutionNS),
		Traces:    traces,
	}
}
