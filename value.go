package loom

// Value is an opaque, comparable payload produced by executing a rule.
//
// Like Key, Value is a tag/payload pair so that heterogeneous user types can
// share the same map and equality machinery. Two values with the same Tag
// and Payload are considered unchanged by the scheduler.
type Value struct {
	Tag     string
	Payload string
}

func (v Value) String() string {
	return v.Tag + ":" + v.Payload
}
