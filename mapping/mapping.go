package mapping

import (
	"github.com/pkg/errors"

	"github.com/outofforest/heapcore/types"
	"github.com/outofforest/heapcore/value"
)

const (
	avgLinkLength = 4
	minLinkLength = 1
	noEntry       = -1
)

// Slots returns the capacity allocated for mapping expected to hold size entries.
func Slots(size int) int {
	if size == 0 {
		return 0
	}
	return size + size>>4 + 8
}

// Flags are the flags of mapping.
type Flags uint8

const (
	// FlagWeak tells that entries of the mapping are not strong references for the collector.
	FlagWeak Flags = 1 << iota
)

type entry struct {
	key  value.Value
	val  value.Value
	hash uint64
	next int32
}

// Mapping is the hash table keyed and valued by values.
// Entries of a bucket are chained, the most recently inserted or found entry is kept at the head of its chain.
type Mapping struct {
	value.Header

	registry   *Registry
	prev, next *Mapping

	entries  []entry
	buckets  []int32
	freeList int32
	size     int
	keyTypes types.TypeField
	valTypes types.TypeField
	flags    Flags

	scratch []int32
}

func (m *Mapping) init(capacity int) {
	m.size = 0
	m.keyTypes = 0
	m.valTypes = 0
	m.freeList = noEntry

	if capacity == 0 {
		m.entries = nil
		m.buckets = nil
		return
	}

	hashSize := capacity/avgLinkLength + 1
	if hashSize&1 == 0 {
		hashSize++
	}
	m.buckets = make([]int32, hashSize)
	for i := range m.buckets {
		m.buckets[i] = noEntry
	}

	m.entries = make([]entry, capacity)
	for i := range m.entries {
		m.entries[i].next = int32(i + 1)
	}
	m.entries[capacity-1].next = noEntry
	m.freeList = 0
}

// Rehash rebuilds the mapping with room for capacity entries.
// Entries of each chain are reinserted starting from the tail, so their relative order is preserved.
func (m *Mapping) Rehash(capacity int) {
	if capacity < m.size {
		panic(errors.Errorf("rehashing mapping of %d entries to capacity %d", m.size, capacity))
	}

	size := m.size
	oldEntries, oldBuckets := m.entries, m.buckets
	m.init(capacity)

	for _, head := range oldBuckets {
		chain := m.scratch[:0]
		for i := head; i != noEntry; i = oldEntries[i].next {
			chain = append(chain, i)
		}
		for j := len(chain) - 1; j >= 0; j-- {
			e := &oldEntries[chain[j]]
			m.link(e.hash, e.key, e.val)
		}
		m.scratch = chain[:0]
	}

	if m.size != size {
		panic(errors.Errorf("rehash changed size of mapping from %d to %d", size, m.size))
	}
	m.verify()
}

// link puts entry taken from the free list at the head of its bucket. References are moved into the entry.
func (m *Mapping) link(hash uint64, key, val value.Value) int32 {
	i := m.freeList
	bucket := hash % uint64(len(m.buckets))
	m.freeList = m.entries[i].next
	m.entries[i] = entry{
		key:  key,
		val:  val,
		hash: hash,
		next: m.buckets[bucket],
	}
	m.buckets[bucket] = i
	m.size++
	m.keyTypes |= key.Type.Bit()
	m.valTypes |= val.Type.Bit()
	return i
}

// unlink removes entry from its chain and returns it to the free list. References are left to the caller.
func (m *Mapping) unlink(bucket uint64, prev, i int32) entry {
	e := m.entries[i]
	if prev == noEntry {
		m.buckets[bucket] = e.next
	} else {
		m.entries[prev].next = e.next
	}
	m.entries[i] = entry{next: m.freeList}
	m.freeList = i
	m.size--
	return e
}

// find returns index of the entry holding the key and moves it to the head of its chain.
func (m *Mapping) find(hash uint64, key value.Value) int32 {
	bucket := hash % uint64(len(m.buckets))
	prev := int32(noEntry)
	for i := m.buckets[bucket]; i != noEntry; prev, i = i, m.entries[i].next {
		if !value.IsEq(m.entries[i].key, key) {
			continue
		}
		if prev != noEntry {
			m.entries[prev].next = m.entries[i].next
			m.entries[i].next = m.buckets[bucket]
			m.buckets[bucket] = i
		}
		return i
	}
	return noEntry
}

// mayHold tells if some stored key might be equal to the key. Objects and functions may equal keys of other
// tags (Eq hooks, destructed objects equal to 0, functions naming programs), so they are always probed.
func (m *Mapping) mayHold(key value.Value) bool {
	if m.keyTypes&(types.BitObject|types.BitFunction) != 0 {
		return true
	}
	switch key.Type {
	case types.TagObject, types.TagFunction:
		return true
	case types.TagProgram:
		return m.keyTypes&types.BitProgram != 0
	default:
		return m.keyTypes.Has(key.Type)
	}
}

// Insert stores val under key. Existing value is replaced, otherwise new entry is created, growing the mapping
// if there is no free one.
func (m *Mapping) Insert(key, val value.Value) {
	hash := value.Hash(key)
	if m.size > 0 && m.mayHold(key) {
		if i := m.find(hash, key); i != noEntry {
			m.valTypes |= val.Type.Bit()
			value.Assign(&m.entries[i].val, val)
			m.verify()
			return
		}
	}

	if m.freeList == noEntry {
		m.Rehash(m.size*2 + 2)
	}

	key.Retain()
	val.Retain()
	m.link(hash, key, val)
	m.verify()
}

// Lookup returns the slot holding value stored under key, or nil if there is none.
// The slot is borrowed, it stays valid until the mapping is modified.
func (m *Mapping) Lookup(key value.Value) *value.Value {
	if m.size == 0 || !m.mayHold(key) {
		return nil
	}
	i := m.find(value.Hash(key), key)
	if i == noEntry {
		return nil
	}
	return &m.entries[i].val
}

// Index returns value stored under key with a reference owned by the caller, or undefined if there is none.
func (m *Mapping) Index(key value.Value) value.Value {
	slot := m.Lookup(key)
	if slot == nil {
		return value.Undefined()
	}
	v := *slot
	if v.Type == types.TagInt {
		v.Subtype = types.SubtypeNumber
	}
	v.Retain()
	return v
}

// ItemPtr returns the slot of value stored under key if that value is of the tag. Missing key is inserted
// with zero value first. Nil is returned if the stored value is of other tag.
func (m *Mapping) ItemPtr(key value.Value, tag types.Tag) *value.Value {
	hash := value.Hash(key)
	if m.size > 0 && m.mayHold(key) {
		if i := m.find(hash, key); i != noEntry {
			if m.entries[i].val.Type == tag {
				return &m.entries[i].val
			}
			return nil
		}
	}

	if m.freeList == noEntry {
		m.Rehash(m.size*2 + 2)
	}

	key.Retain()
	i := m.link(hash, key, value.Zero())
	m.verify()
	if tag != types.TagInt {
		return nil
	}
	return &m.entries[i].val
}

// Delete removes the entry of the key and returns its value, the reference is moved to the caller.
// Mapping shrinks if it becomes too sparse.
func (m *Mapping) Delete(key value.Value) (value.Value, bool) {
	if m.size == 0 || !m.mayHold(key) {
		return value.Undefined(), false
	}

	bucket := value.Hash(key) % uint64(len(m.buckets))
	prev := int32(noEntry)
	for i := m.buckets[bucket]; i != noEntry; prev, i = i, m.entries[i].next {
		if !value.IsEq(m.entries[i].key, key) {
			continue
		}

		e := m.unlink(bucket, prev, i)
		if m.size < (len(m.buckets)+1)*minLinkLength {
			m.Rehash(Slots(m.size))
		}
		m.verify()
		e.key.Release()
		return e.val, true
	}

	return value.Undefined(), false
}

// MapDelete removes the entry of the key.
func (m *Mapping) MapDelete(key value.Value) {
	v, _ := m.Delete(key)
	v.Release()
}

// FixDestructed removes entries keyed by destructed objects and replaces destructed values by zeros.
func (m *Mapping) FixDestructed() {
	if m.size == 0 || (m.keyTypes|m.valTypes)&(types.BitObject|types.BitFunction) == 0 {
		return
	}

	var keyTypes, valTypes types.TypeField
	var removed []entry
	m.valTypes |= types.BitInt
	for b := range m.buckets {
		bucket := uint64(b)
		prev := int32(noEntry)
		for i := m.buckets[b]; i != noEntry; {
			e := &m.entries[i]
			next := e.next
			value.CheckDestructed(&e.val)
			if e.key.IsDestructed() {
				removed = append(removed, m.unlink(bucket, prev, i))
			} else {
				keyTypes |= e.key.Type.Bit()
				valTypes |= e.val.Type.Bit()
				prev = i
			}
			i = next
		}
	}

	if Slots(m.size) < len(m.buckets)*minLinkLength {
		m.Rehash(Slots(m.size))
	}
	m.keyTypes = keyTypes
	m.valTypes = valTypes
	m.verify()

	for _, e := range removed {
		e.key.Release()
		e.val.Release()
	}
}

// FixTypeField recomputes exact type fields of keys and values.
func (m *Mapping) FixTypeField() {
	var keyTypes, valTypes types.TypeField
	for key, val := range m.Iterator() {
		keyTypes |= key.Type.Bit()
		valTypes |= val.Type.Bit()
	}

	if m.registry.config.Debug {
		if !m.keyTypes.Covers(keyTypes) {
			panic(errors.Errorf("mapping key types %s do not cover %s", m.keyTypes, keyTypes))
		}
		if !m.valTypes.Covers(valTypes) {
			panic(errors.Errorf("mapping value types %s do not cover %s", m.valTypes, valTypes))
		}
	}

	m.keyTypes = keyTypes
	m.valTypes = valTypes
}

// Iterator iterates over entries in bucket order. Mapping must not be modified during iteration.
func (m *Mapping) Iterator() func(yield func(key, val value.Value) bool) {
	return func(yield func(key, val value.Value) bool) {
		for _, head := range m.buckets {
			for i := head; i != noEntry; i = m.entries[i].next {
				if !yield(m.entries[i].key, m.entries[i].val) {
					return
				}
			}
		}
	}
}

// Size returns the number of entries.
func (m *Mapping) Size() int {
	return m.size
}

// Capacity returns the number of entries mapping may hold before it grows.
func (m *Mapping) Capacity() int {
	return len(m.entries)
}

// HashSize returns the number of buckets.
func (m *Mapping) HashSize() int {
	return len(m.buckets)
}

// KeyTypes returns the superset of tags of keys.
func (m *Mapping) KeyTypes() types.TypeField {
	return m.keyTypes
}

// ValTypes returns the superset of tags of values.
func (m *Mapping) ValTypes() types.TypeField {
	return m.valTypes
}

// SetWeak sets or clears the weak flag.
func (m *Mapping) SetWeak(weak bool) {
	if weak {
		m.flags |= FlagWeak
	} else {
		m.flags &^= FlagWeak
	}
}

// IsWeak tells if the mapping is weak.
func (m *Mapping) IsWeak() bool {
	return m.flags&FlagWeak != 0
}

// Flags returns flags of the mapping.
func (m *Mapping) Flags() Flags {
	return m.flags
}

// Registry returns the registry mapping belongs to.
func (m *Mapping) Registry() *Registry {
	return m.registry
}

// Value wraps the mapping into value without adding a reference.
func (m *Mapping) Value() value.Value {
	return value.Wrap(types.TagMapping, m)
}

// FromValue returns the mapping held by the value.
func FromValue(v value.Value) (*Mapping, bool) {
	if v.Type != types.TagMapping {
		return nil, false
	}
	m, ok := v.Ref.(*Mapping)
	return m, ok
}

// Destroy releases entries and removes the mapping from its registry.
func (m *Mapping) Destroy() {
	entries := m.entries
	buckets := m.buckets
	m.registry.unlink(m)
	m.init(0)

	for _, head := range buckets {
		for i := head; i != noEntry; i = entries[i].next {
			entries[i].key.Release()
			entries[i].val.Release()
		}
	}
}

func (m *Mapping) verify() {
	if m.registry.config.Debug {
		m.registry.Check(m)
	}
}
