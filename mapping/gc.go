package mapping

import (
	"github.com/outofforest/heapcore/types"
	"github.com/outofforest/heapcore/value"
)

// GCCheck reports every key and value counted as reference held by the mapping.
// Entries keyed by destructed objects are not counted, destructed values are replaced by zeros.
func (m *Mapping) GCCheck(check func(v value.Value)) {
	if (m.keyTypes|m.valTypes)&types.BitComplex == 0 {
		return
	}

	for _, head := range m.buckets {
		for i := head; i != noEntry; i = m.entries[i].next {
			e := &m.entries[i]
			if e.key.IsDestructed() {
				continue
			}
			check(e.key)
			if e.val.IsDestructed() {
				value.CheckDestructed(&e.val)
				m.valTypes |= types.BitInt
			}
			check(e.val)
		}
	}
}

// GCMark reports keys and values the mapping keeps alive. Weak mapping keeps alive only the objects of
// programs declared exempt from weak freeing.
func (m *Mapping) GCMark(mark func(v value.Value), exempt func(p *value.Program) bool) {
	if (m.keyTypes|m.valTypes)&types.BitComplex == 0 {
		return
	}

	weak := m.IsWeak()
	for _, head := range m.buckets {
		for i := head; i != noEntry; i = m.entries[i].next {
			e := &m.entries[i]
			if e.key.IsDestructed() {
				continue
			}
			if !weak {
				mark(e.key)
				mark(e.val)
				continue
			}
			if o := liveObject(e.key); o != nil && exempt(o.Program) {
				mark(e.key)
			}
			if o := liveObject(e.val); o != nil && exempt(o.Program) {
				mark(e.val)
			}
		}
	}
}

// RemoveIf removes entries matching the predicate and returns their number. Mapping shrinks afterwards
// if it became too sparse.
func (m *Mapping) RemoveIf(remove func(key, val value.Value) bool) int {
	var removed []entry
	for b := range m.buckets {
		prev := int32(noEntry)
		for i := m.buckets[b]; i != noEntry; {
			next := m.entries[i].next
			if remove(m.entries[i].key, m.entries[i].val) {
				removed = append(removed, m.unlink(uint64(b), prev, i))
			} else {
				prev = i
			}
			i = next
		}
	}

	if len(removed) == 0 {
		return 0
	}
	if Slots(m.size) < len(m.buckets)*minLinkLength {
		m.Rehash(Slots(m.size))
	}
	m.verify()

	for _, e := range removed {
		e.key.Release()
		e.val.Release()
	}
	return len(removed)
}

// Clear releases all the entries.
func (m *Mapping) Clear() {
	m.RemoveIf(func(key, val value.Value) bool {
		return true
	})
}

func liveObject(v value.Value) *value.Object {
	if v.Type != types.TagObject {
		return nil
	}
	o := v.Ref.(*value.Object)
	if o.Destructed() {
		return nil
	}
	return o
}
