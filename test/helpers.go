package test

import (
	"sort"

	"github.com/samber/lo"

	"github.com/outofforest/heapcore/mapping"
	"github.com/outofforest/heapcore/types"
	"github.com/outofforest/heapcore/value"
)

// Insert inserts the entry and drops references owned by the caller.
func Insert(m *mapping.Mapping, key, val value.Value) {
	m.Insert(key, val)
	key.Release()
	val.Release()
}

// CollectKeys collects keys of the mapping in iteration order.
func CollectKeys(m *mapping.Mapping) []value.Value {
	keys := []value.Value{}
	for key := range m.Iterator() {
		keys = append(keys, key)
	}
	return keys
}

// CollectIntKeys collects integer keys available in mapping.
func CollectIntKeys(m *mapping.Mapping) []int64 {
	keys := []int64{}
	for key := range m.Iterator() {
		if key.Type == types.TagInt {
			keys = append(keys, key.Int)
		}
	}

	sort.Slice(keys, func(i, j int) bool {
		return keys[i] < keys[j]
	})
	return keys
}

// CollectIntValues collects integer values available in mapping.
func CollectIntValues(m *mapping.Mapping) []int64 {
	vals := []int64{}
	for _, val := range m.Iterator() {
		if val.Type == types.TagInt {
			vals = append(vals, val.Int)
		}
	}

	sort.Slice(vals, func(i, j int) bool {
		return vals[i] < vals[j]
	})
	return vals
}

// CollectStrings collects strings from the array.
func CollectStrings(a *value.Array) []string {
	strs := lo.FilterMap(a.Items, func(v value.Value, _ int) (string, bool) {
		if v.Type != types.TagString {
			return "", false
		}
		return v.Ref.(*value.String).S, true
	})
	sort.Strings(strs)
	return strs
}

// NewCollidingProgram returns program whose objects share the same hash, so all of them fall into the same bucket.
// Objects are equal if they store the same integer in their only storage slot.
func NewCollidingProgram() *value.Program {
	return value.NewProgram(value.ProgramConfig{
		Name:    "Colliding",
		Storage: 1,
		Lfuns: value.Lfuns{
			Hash: func(self *value.Object) int64 {
				return 7
			},
			Eq: func(self *value.Object, other value.Value) bool {
				if other.Type != types.TagObject {
					return false
				}
				o := other.Ref.(*value.Object)
				return !o.Destructed() && o.Program == self.Program && o.Storage[0].Int == self.Storage[0].Int
			},
		},
	})
}

// NewObject clones the program storing id in the first storage slot.
func NewObject(p *value.Program, id int64) value.Value {
	o := value.NewObject(p)
	if len(o.Storage) > 0 {
		o.Storage[0] = value.Int(id)
	}
	return value.Wrap(types.TagObject, o)
}

// ObjectIDs returns ids stored in objects found among the values, in order.
func ObjectIDs(vs []value.Value) []int64 {
	return lo.FilterMap(vs, func(v value.Value, _ int) (int64, bool) {
		if v.Type != types.TagObject {
			return 0, false
		}
		o := v.Ref.(*value.Object)
		if o.Destructed() || len(o.Storage) == 0 {
			return 0, false
		}
		return o.Storage[0].Int, true
	})
}
