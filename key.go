package loom

// Id is an opaque dense handle assigned to a Key by the intern table.
//
// An Id is journaled with its record, and replaying the journal restores
// every journaled id unchanged; ids are not remapped on load.
type Id uint32

// Step is a monotonically increasing counter, incremented once per process
// invocation of a Database.
type Step uint32

// Key is a tagged, comparable identifier for a value that a build produces.
//
// Tag identifies the concrete user type the Key represents (for example a
// file path rule or a configuration lookup); Payload is that type's encoded
// form, produced by a witness.Registry. Two keys are equal if and only if
// both their Tag and Payload are equal — distinct types with coincidentally
// equal payloads are distinct keys.
type Key struct {
	Tag     string
	Payload string
}

// String returns a display form of k suitable for diagnostics.
func (k Key) String() string {
	return k.Tag + ":" + k.Payload
}
