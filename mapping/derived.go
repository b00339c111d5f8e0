package mapping

import (
	"strconv"
	"strings"

	"github.com/outofforest/heapcore/types"
	"github.com/outofforest/heapcore/value"
)

// Indices returns array of keys in iteration order.
func (m *Mapping) Indices() *value.Array {
	a := value.NewArray(m.size)
	var i int
	for key := range m.Iterator() {
		value.Assign(&a.Items[i], key)
		i++
	}
	a.TypeField = m.keyTypes
	return a
}

// Values returns array of values in iteration order.
func (m *Mapping) Values() *value.Array {
	a := value.NewArray(m.size)
	var i int
	for _, val := range m.Iterator() {
		value.Assign(&a.Items[i], val)
		i++
	}
	a.TypeField = m.valTypes
	return a
}

// ToArray returns array of ({ key, value }) pairs in iteration order.
func (m *Mapping) ToArray() *value.Array {
	a := value.NewArray(m.size)
	var i int
	for key, val := range m.Iterator() {
		key.Retain()
		val.Retain()
		a.Items[i] = value.Wrap(types.TagArray, value.NewArrayFrom(key, val))
		i++
	}
	a.TypeField = types.BitArray
	return a
}

// Replace replaces every value equal to from by to.
func (m *Mapping) Replace(from, to value.Value) {
	for _, head := range m.buckets {
		for i := head; i != noEntry; i = m.entries[i].next {
			if value.IsEq(m.entries[i].val, from) {
				value.Assign(&m.entries[i].val, to)
			}
		}
	}
	m.valTypes |= to.Type.Bit()
	m.verify()
}

// Search returns key of the first entry holding value equal to lookFor, with a reference owned by the caller.
// If start is given the search continues after the entry of that key. Undefined is returned if nothing is found.
func (m *Mapping) Search(lookFor value.Value, start *value.Value) value.Value {
	if m.size == 0 {
		return value.Undefined()
	}

	var bucket int
	i := m.buckets[0]
	if start != nil {
		bucket = int(value.Hash(*start) % uint64(len(m.buckets)))
		for i = m.buckets[bucket]; i != noEntry; i = m.entries[i].next {
			if value.IsEq(m.entries[i].key, *start) {
				break
			}
		}
		if i == noEntry {
			return value.Undefined()
		}
		i = m.entries[i].next
	}

	for {
		for ; i != noEntry; i = m.entries[i].next {
			if value.IsEq(lookFor, m.entries[i].val) {
				key := m.entries[i].key
				key.Retain()
				return key
			}
		}
		bucket++
		if bucket >= len(m.buckets) {
			return value.Undefined()
		}
		i = m.buckets[bucket]
	}
}

// NestedLookup returns the slot of value stored under key2 in the mapping stored under key1.
// If create is set, missing levels are created, the inner mapping with undefined value under key2.
// The slot is borrowed, it stays valid until the inner mapping is modified.
func (m *Mapping) NestedLookup(key1, key2 value.Value, create bool) *value.Value {
	var inner *Mapping
	if slot := m.Lookup(key1); slot != nil && slot.Type == types.TagMapping {
		inner = slot.Ref.(*Mapping)
	} else {
		if !create {
			return nil
		}
		inner = m.registry.Allocate(5)
		m.Insert(key1, inner.Value())
		value.FreeRef(inner)
	}

	if slot := inner.Lookup(key2); slot != nil {
		return slot
	}
	if !create {
		return nil
	}
	inner.Insert(key2, value.Undefined())
	return inner.Lookup(key2)
}

// Equal tells if mappings are structurally equal.
func (m *Mapping) Equal(other *Mapping) bool {
	return m.EqualDeep(other, nil)
}

// EqualDeep tells if other mapping has equal keys holding structurally equal values.
// Entries keyed by destructed objects are removed from both mappings first.
func (m *Mapping) EqualDeep(other value.Ref, p *value.Processing) bool {
	b, ok := other.(*Mapping)
	if !ok {
		return false
	}
	if m == b {
		return true
	}
	if m.size != b.size {
		return false
	}
	if p.Seen(m, b) {
		return true
	}
	curr := p.Push(m, b)

	m.FixDestructed()
	b.FixDestructed()
	if m.size != b.size {
		return false
	}

	keys, vals := m.Indices(), m.Values()
	defer func() {
		value.FreeRef(keys)
		value.FreeRef(vals)
	}()

	for i, key := range keys.Items {
		slot := b.Lookup(key)
		if slot == nil {
			return false
		}
		if !value.LowIsEqual(*slot, vals.Items[i], curr) {
			return false
		}
	}
	return true
}

// CopyRecursively copies the mapping together with all nested containers.
func (m *Mapping) CopyRecursively(p *value.Processing) value.Ref {
	if done, ok := p.Find(m); ok {
		value.AddRef(done)
		return done
	}

	ret := m.registry.Allocate(Slots(m.size))
	ret.flags = m.flags
	curr := p.Push(m, ret)

	keys, vals := m.Indices(), m.Values()
	defer func() {
		value.FreeRef(keys)
		value.FreeRef(vals)
	}()

	for i := range keys.Items {
		key := value.CopyRecursively(keys.Items[i], curr)
		val := value.CopyRecursively(vals.Items[i], curr)
		ret.Insert(key, val)
		key.Release()
		val.Release()
	}
	return ret
}

// DescribeTo renders the mapping.
func (m *Mapping) DescribeTo(b *strings.Builder, p *value.Processing) {
	if m.size == 0 {
		b.WriteString("([ ])")
		return
	}
	if depth, ok := p.Depth(m); ok {
		b.WriteString("@")
		b.WriteString(strconv.Itoa(depth))
		return
	}

	curr := p.Push(m, nil)
	b.WriteString("([ ")
	var n int
	for key, val := range m.Iterator() {
		if n > 0 {
			b.WriteString(", ")
		}
		n++
		value.DescribeTo(b, key, curr)
		b.WriteString(":")
		value.DescribeTo(b, val, curr)
	}
	b.WriteString(" ])")
}
