// Package witness is the registry that lets heterogeneous Go types share a
// single encoding used for loom.Key and loom.Value payloads.
//
// It wraps a marshalkit.Marshaler the same way engineoption.go assembles
// one for a Dogma application: register the concrete types a build will
// ever see, build a marshaler backed by the JSON codec, and use its
// produced media type as the tag that lets Decode find its way back to the
// original codec.
package witness

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/dogmatiq/marshalkit"
	"github.com/dogmatiq/marshalkit/codec"
	"github.com/dogmatiq/marshalkit/codec/json"
)

// Registry is a witness: a runtime mapping of type tags to the codec
// needed to decode a persisted payload back into its original Go type.
type Registry struct {
	mu    sync.Mutex
	types []reflect.Type
	seen  map[reflect.Type]struct{}
	m     marshalkit.Marshaler
	dirty bool
}

// New returns an empty Registry. At least one type must be Register'd
// before Encode or Decode can be used.
func New() *Registry {
	return &Registry{
		seen: map[reflect.Type]struct{}{},
	}
}

// Register adds the type of zero to the registry so that values of that
// type can subsequently be encoded and decoded. zero is typically a zero
// value of the type being registered, e.g. r.Register(FileRule{}).
func (r *Registry) Register(zero interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := reflect.TypeOf(zero)

	if _, ok := r.seen[t]; ok {
		return
	}

	r.seen[t] = struct{}{}
	r.types = append(r.types, t)
	r.dirty = true
}

// marshaler lazily (re)builds the underlying marshalkit.Marshaler from the
// currently registered types.
func (r *Registry) marshaler() (marshalkit.Marshaler, error) {
	if !r.dirty && r.m != nil {
		return r.m, nil
	}

	m, err := codec.NewMarshaler(
		r.types,
		[]codec.Codec{
			&json.Codec{},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("witness: build marshaler: %w", err)
	}

	r.m = m
	r.dirty = false

	return m, nil
}

// Encode marshals v, which must be a registered type, into a (tag, payload)
// pair. tag is the media type marshalkit assigned to v's type; payload is
// the encoded bytes, as a string so it can be stored directly in a Key or
// Value.
func (r *Registry) Encode(v interface{}) (tag, payload string, err error) {
	r.mu.Lock()
	m, err := r.marshaler()
	r.mu.Unlock()

	if err != nil {
		return "", "", err
	}

	p, err := m.Marshal(v)
	if err != nil {
		return "", "", fmt.Errorf("witness: encode %T: %w", v, err)
	}

	return p.MediaType, string(p.Data), nil
}

// Decode reverses Encode, reconstructing the original Go value from a
// (tag, payload) pair previously produced by Encode.
func (r *Registry) Decode(tag, payload string) (interface{}, error) {
	r.mu.Lock()
	m, err := r.marshaler()
	r.mu.Unlock()

	if err != nil {
		return nil, err
	}

	v, err := m.Unmarshal(
		marshalkit.Packet{
			MediaType: tag,
			Data:      []byte(payload),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("witness: decode tag %q: %w", tag, err)
	}

	return v, nil
}
