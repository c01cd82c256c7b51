package loom

// Stack tracks the chain of keys currently being built, so that a rule
// which (directly or transitively) depends on itself can be detected and
// reported instead of deadlocking.
//
// A Stack is immutable; Push returns a new Stack holding a copy of the
// receiver's ids plus the new frame, so that sibling branches of a
// concurrent build do not observe each other's frames.
type Stack struct {
	top   *frame
	ids   []Id
	idSet map[Id]struct{}
}

type frame struct {
	id  Id
	key Key
}

// Push returns a new Stack with (id, key) as its top frame.
func (s *Stack) Push(id Id, key Key) *Stack {
	ids := append(append([]Id(nil), s.ids...), id)

	idSet := make(map[Id]struct{}, len(ids))
	for k := range s.idSet {
		idSet[k] = struct{}{}
	}
	idSet[id] = struct{}{}

	return &Stack{
		top:   &frame{id, key},
		ids:   ids,
		idSet: idSet,
	}
}

// IDs returns the ids currently on the stack, outermost first.
func (s *Stack) IDs() []Id {
	return append([]Id(nil), s.ids...)
}

// TopKey returns the display form of the key at the top of the stack, or
// "<unknown>" if the stack is empty.
func (s *Stack) TopKey() string {
	if s == nil || s.top == nil {
		return "<unknown>"
	}

	return s.top.key.String()
}

// checkStack returns the first id in ids that is already present on s,
// along with the key it was interned from, and ok == true. If none of ids
// is already on the stack, ok is false.
func checkStack(s *Stack, ids []Id, keys []Key) (id Id, key Key, ok bool) {
	if s == nil {
		return 0, Key{}, false
	}

	for i, candidate := range ids {
		if _, found := s.idSet[candidate]; found {
			return candidate, keys[i], true
		}
	}

	return 0, Key{}, false
}
