package mapping

import (
	"unsafe"

	"github.com/outofforest/mass"
	"github.com/pkg/errors"

	"github.com/outofforest/heapcore/value"
)

// DefaultBatchSize is the number of mapping headers allocated at once.
const DefaultBatchSize = 256

// Config stores configuration of registry.
type Config struct {
	// Debug turns on consistency checks after every modification of a mapping.
	Debug bool

	// BatchSize is the number of mapping headers allocated at once.
	BatchSize uint64
}

// NewRegistry creates registry of live mappings.
func NewRegistry(config Config) *Registry {
	if config.BatchSize == 0 {
		config.BatchSize = DefaultBatchSize
	}
	return &Registry{
		config:   config,
		mappings: mass.New[Mapping](config.BatchSize),
	}
}

// Registry tracks all the live mappings allocated from it.
type Registry struct {
	config   Config
	mappings *mass.Mass[Mapping]
	first    *Mapping
	count    int
}

// Allocate creates empty mapping with room for capacity entries. The reference is owned by the caller.
func (r *Registry) Allocate(capacity int) *Mapping {
	if capacity < 0 {
		panic(errors.Errorf("negative mapping capacity %d", capacity))
	}

	m := r.mappings.New()
	m.Init()
	m.registry = r
	m.init(capacity)

	m.next = r.first
	if r.first != nil {
		r.first.prev = m
	}
	r.first = m
	r.count++

	return m
}

func (r *Registry) unlink(m *Mapping) {
	if m.prev != nil {
		m.prev.next = m.next
	} else {
		r.first = m.next
	}
	if m.next != nil {
		m.next.prev = m.prev
	}
	m.prev = nil
	m.next = nil
	r.count--
}

// Len returns the number of live mappings.
func (r *Registry) Len() int {
	return r.count
}

// Iterator iterates over live mappings, the most recently allocated first.
func (r *Registry) Iterator() func(yield func(m *Mapping) bool) {
	return func(yield func(m *Mapping) bool) {
		for m := r.first; m != nil; {
			next := m.next
			if !yield(m) {
				return
			}
			m = next
		}
	}
}

// Mappings returns the live mappings.
func (r *Registry) Mappings() []*Mapping {
	ms := make([]*Mapping, 0, r.count)
	for m := range r.Iterator() {
		ms = append(ms, m)
	}
	return ms
}

// Make creates mapping of keys and values taken pairwise from the arrays.
func (r *Registry) Make(keys, vals *value.Array) (*Mapping, error) {
	if keys.Len() != vals.Len() {
		return nil, errors.Wrapf(ErrSizeMismatch, "%d keys and %d values", keys.Len(), vals.Len())
	}

	m := r.Allocate(Slots(keys.Len()))
	for i := range keys.Items {
		m.Insert(keys.Items[i], vals.Items[i])
	}
	return m, nil
}

// Aggregate creates mapping from the list of alternating keys and values.
func (r *Registry) Aggregate(args ...value.Value) (*Mapping, error) {
	if len(args)&1 != 0 {
		return nil, errors.Wrapf(ErrOddArguments, "%d arguments", len(args))
	}

	m := r.Allocate(Slots(len(args) / 2))
	for i := 0; i < len(args); i += 2 {
		m.Insert(args[i], args[i+1])
	}
	return m, nil
}

// Copy creates shallow copy of the mapping.
func (r *Registry) Copy(m *Mapping) *Mapping {
	ret := r.Allocate(Slots(m.size))
	for key, val := range m.Iterator() {
		ret.Insert(key, val)
	}
	return ret
}

// Add creates mapping containing entries of all the mappings. Later mappings override values of earlier ones.
func (r *Registry) Add(ms ...*Mapping) *Mapping {
	var size int
	for _, m := range ms {
		size += m.size
	}

	ret := r.Allocate(Slots(size))
	for _, m := range ms {
		for key, val := range m.Iterator() {
			ret.Insert(key, val)
		}
	}
	return ret
}

// Op is the set operation applied by Merge.
type Op uint8

// Set operations.
const (
	// OpAnd keeps keys present in both mappings, with values of the second one.
	OpAnd Op = iota

	// OpOr keeps keys present in any mapping, values of the second one win.
	OpOr

	// OpSub keeps keys of the first mapping missing in the second one.
	OpSub

	// OpXor keeps keys present in exactly one mapping.
	OpXor
)

// Merge combines keys of two mappings using the set operation.
func (r *Registry) Merge(a, b *Mapping, op Op) *Mapping {
	aKeys, aVals := a.Indices(), a.Values()
	bKeys, bVals := b.Indices(), b.Values()
	defer func() {
		value.FreeRef(aKeys)
		value.FreeRef(aVals)
		value.FreeRef(bKeys)
		value.FreeRef(bVals)
	}()

	var ret *Mapping
	switch op {
	case OpAnd:
		ret = r.Allocate(Slots(min(a.size, b.size)))
		for i, key := range bKeys.Items {
			if a.Lookup(key) != nil {
				ret.Insert(key, bVals.Items[i])
			}
		}
	case OpOr:
		ret = r.Allocate(Slots(a.size + b.size))
		for i, key := range aKeys.Items {
			ret.Insert(key, aVals.Items[i])
		}
		for i, key := range bKeys.Items {
			ret.Insert(key, bVals.Items[i])
		}
	case OpSub:
		ret = r.Allocate(Slots(a.size))
		for i, key := range aKeys.Items {
			if b.Lookup(key) == nil {
				ret.Insert(key, aVals.Items[i])
			}
		}
	case OpXor:
		ret = r.Allocate(Slots(a.size + b.size))
		for i, key := range aKeys.Items {
			if b.Lookup(key) == nil {
				ret.Insert(key, aVals.Items[i])
			}
		}
		for i, key := range bKeys.Items {
			if a.Lookup(key) == nil {
				ret.Insert(key, bVals.Items[i])
			}
		}
	default:
		panic(errors.Errorf("unknown merge operation %d", op))
	}
	return ret
}

// Check verifies consistency of the mapping and panics if it is broken.
func (r *Registry) Check(m *Mapping) {
	if m.Refs() <= 0 {
		panic(errors.Errorf("mapping %d has %d refs", m.ID(), m.Refs()))
	}
	if m.registry != r {
		panic(errors.Errorf("mapping %d belongs to other registry", m.ID()))
	}
	if m.next != nil && m.next.prev != m {
		panic(errors.Errorf("mapping %d: next does not point back", m.ID()))
	}
	if m.prev != nil {
		if m.prev.next != m {
			panic(errors.Errorf("mapping %d: prev does not point forward", m.ID()))
		}
	} else if r.first != m {
		panic(errors.Errorf("mapping %d has no prev but is not the first one", m.ID()))
	}
	if m.size < 0 {
		panic(errors.Errorf("mapping %d has negative size %d", m.ID(), m.size))
	}
	if m.size > (len(m.buckets)+3)*avgLinkLength {
		panic(errors.Errorf("mapping %d of size %d has only %d buckets", m.ID(), m.size, len(m.buckets)))
	}
	if m.size > 0 && (m.keyTypes == 0 || m.valTypes == 0) {
		panic(errors.Errorf("mapping %d of size %d has empty type fields", m.ID(), m.size))
	}

	var count int
	for key, val := range m.Iterator() {
		count++
		if !m.keyTypes.Has(key.Type) {
			panic(errors.Errorf("mapping %d: key types %s lack %s", m.ID(), m.keyTypes, key.Type))
		}
		if !m.valTypes.Has(val.Type) {
			panic(errors.Errorf("mapping %d: value types %s lack %s", m.ID(), m.valTypes, val.Type))
		}
		if key.IsRefCounted() && key.Ref.RefHeader().Freed() {
			panic(errors.Errorf("mapping %d holds freed key", m.ID()))
		}
		if val.IsRefCounted() && val.Ref.RefHeader().Freed() {
			panic(errors.Errorf("mapping %d holds freed value", m.ID()))
		}
	}
	if count != m.size {
		panic(errors.Errorf("mapping %d has %d entries chained but size %d", m.ID(), count, m.size))
	}

	var free int
	for i := m.freeList; i != noEntry; i = m.entries[i].next {
		free++
	}
	if free+m.size != len(m.entries) {
		panic(errors.Errorf("mapping %d: %d free and %d used entries, capacity %d", m.ID(), free, m.size,
			len(m.entries)))
	}
}

// CheckAll verifies consistency of all the mappings.
func (r *Registry) CheckAll() {
	var count int
	for m := range r.Iterator() {
		r.Check(m)
		count++
	}
	if count != r.count {
		panic(errors.Errorf("registry counts %d mappings but %d are linked", r.count, count))
	}
}

// CountMemory returns the number of mappings and the number of bytes they occupy.
func (r *Registry) CountMemory() (int, uint64) {
	var size uint64
	for m := range r.Iterator() {
		size += uint64(unsafe.Sizeof(Mapping{})) +
			uint64(len(m.buckets))*uint64(unsafe.Sizeof(int32(0))) +
			uint64(len(m.entries))*uint64(unsafe.Sizeof(entry{}))
	}
	return r.count, size
}

// ZapAll releases contents of every mapping, breaking all the cycles running through them.
// Mappings not referenced from elsewhere are freed.
func (r *Registry) ZapAll() {
	ms := r.Mappings()
	for _, m := range ms {
		value.AddRef(m)
	}
	for _, m := range ms {
		m.Clear()
	}
	for _, m := range ms {
		value.FreeRef(m)
	}
}
