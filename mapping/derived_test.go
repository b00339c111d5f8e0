package mapping_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/outofforest/heapcore/mapping"
	"github.com/outofforest/heapcore/test"
	"github.com/outofforest/heapcore/types"
	"github.com/outofforest/heapcore/value"
)

func newIntMapping(r *mapping.Registry, kvs ...int64) *mapping.Mapping {
	m := r.Allocate(0)
	for i := 0; i < len(kvs); i += 2 {
		m.Insert(value.Int(kvs[i]), value.Int(kvs[i+1]))
	}
	return m
}

func insertSelf(m *mapping.Mapping) {
	key := value.Str("self")
	m.Insert(key, m.Value())
	key.Release()
}

func TestMerge(t *testing.T) {
	r := newRegistry()

	a := newIntMapping(r, 1, 10, 2, 20, 3, 30)
	b := newIntMapping(r, 2, 200, 3, 300, 4, 400)
	defer value.FreeRef(a)
	defer value.FreeRef(b)

	tests := []struct {
		name   string
		op     mapping.Op
		keys   []int64
		values []int64
	}{
		{name: "and", op: mapping.OpAnd, keys: []int64{2, 3}, values: []int64{200, 300}},
		{name: "or", op: mapping.OpOr, keys: []int64{1, 2, 3, 4}, values: []int64{10, 200, 300, 400}},
		{name: "sub", op: mapping.OpSub, keys: []int64{1}, values: []int64{10}},
		{name: "xor", op: mapping.OpXor, keys: []int64{1, 4}, values: []int64{10, 400}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			requireT := require.New(t)

			m := r.Merge(a, b, tc.op)
			defer value.FreeRef(m)

			requireT.Equal(tc.keys, test.CollectIntKeys(m))
			requireT.Equal(tc.values, test.CollectIntValues(m))
		})
	}

	require.Equal(t, 3, a.Size())
	require.Equal(t, 3, b.Size())
	r.CheckAll()
}

func TestMergeUnknownOpPanics(t *testing.T) {
	r := newRegistry()

	a := newIntMapping(r)
	defer value.FreeRef(a)

	require.Panics(t, func() {
		r.Merge(a, a, mapping.Op(100))
	})
}

func TestCopyAndAdd(t *testing.T) {
	requireT := require.New(t)
	r := newRegistry()

	a := newIntMapping(r, 1, 10, 2, 20)
	b := newIntMapping(r, 2, 200, 3, 300)
	defer value.FreeRef(a)
	defer value.FreeRef(b)

	c := r.Copy(a)
	defer value.FreeRef(c)
	c.Insert(value.Int(5), value.Int(50))
	requireT.Equal([]int64{1, 2}, test.CollectIntKeys(a))
	requireT.Equal([]int64{1, 2, 5}, test.CollectIntKeys(c))

	sum := r.Add(a, b, c)
	defer value.FreeRef(sum)
	requireT.Equal([]int64{1, 2, 3, 5}, test.CollectIntKeys(sum))
	requireT.Equal(int64(20), sum.Lookup(value.Int(2)).Int)

	requireT.Equal(4, r.Len())
}

func TestMake(t *testing.T) {
	requireT := require.New(t)
	r := newRegistry()

	keys := value.NewArrayFrom(value.Str("a"), value.Str("b"))
	vals := value.NewArrayFrom(value.Int(1), value.Int(2))
	defer value.FreeRef(keys)
	defer value.FreeRef(vals)

	m, err := r.Make(keys, vals)
	requireT.NoError(err)
	defer value.FreeRef(m)
	requireT.Equal(2, m.Size())

	key := value.Str("b")
	requireT.Equal(int64(2), m.Lookup(key).Int)
	key.Release()

	short := value.NewArrayFrom(value.Int(1))
	defer value.FreeRef(short)
	_, err = r.Make(keys, short)
	requireT.True(errors.Is(err, mapping.ErrSizeMismatch))
	requireT.Equal(1, r.Len())
}

func TestAggregate(t *testing.T) {
	requireT := require.New(t)
	r := newRegistry()

	m, err := r.Aggregate(value.Int(1), value.Int(10), value.Int(2), value.Int(20))
	requireT.NoError(err)
	defer value.FreeRef(m)
	requireT.Equal([]int64{1, 2}, test.CollectIntKeys(m))
	requireT.Equal([]int64{10, 20}, test.CollectIntValues(m))

	_, err = r.Aggregate(value.Int(1))
	requireT.True(errors.Is(err, mapping.ErrOddArguments))
}

func TestIndicesAndValues(t *testing.T) {
	requireT := require.New(t)
	r := newRegistry()

	m := r.Allocate(0)
	defer value.FreeRef(m)
	test.Insert(m, value.Str("a"), value.Str("x"))
	test.Insert(m, value.Str("b"), value.Str("y"))

	keys := m.Indices()
	defer value.FreeRef(keys)
	vals := m.Values()
	defer value.FreeRef(vals)
	pairs := m.ToArray()
	defer value.FreeRef(pairs)

	requireT.Equal([]string{"a", "b"}, test.CollectStrings(keys))
	requireT.Equal([]string{"x", "y"}, test.CollectStrings(vals))
	requireT.Equal(types.BitString, keys.TypeField)
	requireT.Equal(2, pairs.Len())

	for i, pair := range pairs.Items {
		requireT.Equal(types.TagArray, pair.Type)
		kv := pair.Ref.(*value.Array)
		requireT.Same(keys.Items[i].Ref, kv.Items[0].Ref)
		requireT.Same(vals.Items[i].Ref, kv.Items[1].Ref)
	}
}

func TestReplace(t *testing.T) {
	requireT := require.New(t)
	r := newRegistry()

	m := newIntMapping(r, 1, 7, 2, 8, 3, 7)
	defer value.FreeRef(m)

	to := value.Str("seven")
	m.Replace(value.Int(7), to)
	to.Release()

	requireT.Equal([]int64{8}, test.CollectIntValues(m))
	requireT.True(m.ValTypes().Has(types.TagString))

	slot := m.Lookup(value.Int(3))
	requireT.Equal(types.TagString, slot.Type)
	requireT.Equal("seven", slot.Ref.(*value.String).S)
}

func TestSearch(t *testing.T) {
	requireT := require.New(t)
	r := newRegistry()

	m := newIntMapping(r, 1, 7, 2, 8, 3, 7)
	defer value.FreeRef(m)

	found := map[int64]bool{}
	key := m.Search(value.Int(7), nil)
	for !key.IsUndefined() {
		requireT.Equal(types.TagInt, key.Type)
		requireT.False(found[key.Int])
		found[key.Int] = true
		key = m.Search(value.Int(7), &key)
	}
	requireT.Equal(map[int64]bool{1: true, 3: true}, found)

	requireT.True(m.Search(value.Int(9), nil).IsUndefined())
	start := value.Int(100)
	requireT.True(m.Search(value.Int(7), &start).IsUndefined())

	empty := r.Allocate(0)
	defer value.FreeRef(empty)
	requireT.True(empty.Search(value.Int(7), nil).IsUndefined())
}

func TestNestedLookup(t *testing.T) {
	requireT := require.New(t)
	r := newRegistry()

	m := r.Allocate(0)
	defer value.FreeRef(m)

	requireT.Nil(m.NestedLookup(value.Int(1), value.Int(2), false))
	requireT.Equal(1, r.Len())

	slot := m.NestedLookup(value.Int(1), value.Int(2), true)
	requireT.NotNil(slot)
	requireT.True(slot.IsUndefined())
	*slot = value.Int(12)
	requireT.Equal(2, r.Len())

	slot = m.NestedLookup(value.Int(1), value.Int(2), false)
	requireT.NotNil(slot)
	requireT.Equal(int64(12), slot.Int)
	requireT.Nil(m.NestedLookup(value.Int(1), value.Int(3), false))

	inner, ok := mapping.FromValue(*m.Lookup(value.Int(1)))
	requireT.True(ok)
	requireT.EqualValues(1, inner.Refs())
	requireT.Equal(5, inner.Capacity())

	// Slot holding something else than mapping is replaced.
	m.Insert(value.Int(4), value.Int(4))
	requireT.Nil(m.NestedLookup(value.Int(4), value.Int(5), false))
	slot = m.NestedLookup(value.Int(4), value.Int(5), true)
	requireT.NotNil(slot)
	requireT.Equal(types.TagMapping, m.Lookup(value.Int(4)).Type)
	requireT.Equal(3, r.Len())
}

func TestEqual(t *testing.T) {
	requireT := require.New(t)
	r := newRegistry()

	a := r.Allocate(0)
	b := r.Allocate(0)
	defer value.FreeRef(a)
	defer value.FreeRef(b)

	test.Insert(a, value.Str("x"), value.Wrap(types.TagArray, value.NewArrayFrom(value.Int(1), value.Int(2))))
	test.Insert(b, value.Str("x"), value.Wrap(types.TagArray, value.NewArrayFrom(value.Int(1), value.Int(2))))

	requireT.False(value.IsEq(a.Value(), b.Value()))
	requireT.True(a.Equal(b))
	requireT.True(value.IsEqual(a.Value(), b.Value()))

	a.Insert(value.Int(1), value.Int(1))
	requireT.False(a.Equal(b))
	b.Insert(value.Int(1), value.Int(2))
	requireT.False(a.Equal(b))
	b.Insert(value.Int(1), value.Int(1))
	requireT.True(a.Equal(b))
}

func TestEqualSelfReferencing(t *testing.T) {
	requireT := require.New(t)
	r := newRegistry()

	a := r.Allocate(0)
	b := r.Allocate(0)

	insertSelf(a)
	insertSelf(b)
	test.Insert(a, value.Str("n"), value.Int(1))
	test.Insert(b, value.Str("n"), value.Int(1))

	requireT.True(a.Equal(b))

	b.Insert(value.Int(0), value.Int(0))
	requireT.False(a.Equal(b))

	r.ZapAll()
	requireT.EqualValues(1, a.Refs())
	requireT.EqualValues(1, b.Refs())
	value.FreeRef(a)
	value.FreeRef(b)
	requireT.Equal(0, r.Len())
}

func TestEqualFixesDestructed(t *testing.T) {
	requireT := require.New(t)
	r := newRegistry()

	p := value.NewProgram(value.ProgramConfig{Name: "Thing"})
	defer value.FreeRef(p)

	a := newIntMapping(r, 1, 0, 2, 2)
	b := newIntMapping(r, 1, 0)
	defer value.FreeRef(a)
	defer value.FreeRef(b)

	key := test.NewObject(p, 0)
	val := test.NewObject(p, 0)
	b.Insert(key, value.Int(2))
	a.Insert(value.Int(1), val)
	key.Ref.(*value.Object).Destruct()
	val.Ref.(*value.Object).Destruct()
	key.Release()
	val.Release()

	// Sizes match until the entry keyed by destructed object is dropped.
	requireT.False(a.Equal(b))
	requireT.Equal(1, b.Size())
	requireT.Equal(types.SubtypeDestructed, a.Lookup(value.Int(1)).Subtype)

	a.MapDelete(value.Int(2))
	requireT.True(a.Equal(b))
}

func TestCopyRecursively(t *testing.T) {
	requireT := require.New(t)
	r := newRegistry()

	m := r.Allocate(0)
	m.SetWeak(true)
	insertSelf(m)
	test.Insert(m, value.Str("list"), value.Wrap(types.TagArray, value.NewArrayFrom(value.Int(1))))

	c := value.CopyRecursively(m.Value(), nil)
	cp, ok := mapping.FromValue(c)
	requireT.True(ok)
	requireT.NotSame(m, cp)
	requireT.True(cp.IsWeak())
	requireT.Equal(2, r.Len())

	key := value.Str("self")
	self := cp.Lookup(key)
	requireT.Same(cp, self.Ref)
	requireT.EqualValues(2, cp.Refs())

	key2 := value.Str("list")
	orig := m.Lookup(key2)
	copied := cp.Lookup(key2)
	requireT.NotSame(orig.Ref, copied.Ref)
	requireT.True(value.IsEqual(*orig, *copied))
	key.Release()
	key2.Release()

	requireT.True(m.Equal(cp))

	r.ZapAll()
	value.FreeRef(m)
	c.Release()
	requireT.Equal(0, r.Len())
}

func TestDescribe(t *testing.T) {
	requireT := require.New(t)
	r := newRegistry()

	m := r.Allocate(0)
	requireT.Equal("([ ])", value.Describe(m.Value()))

	test.Insert(m, value.Str("a"), value.Int(1))
	requireT.Equal(`([ "a":1 ])`, value.Describe(m.Value()))

	key := value.Str("a")
	m.MapDelete(key)
	key.Release()

	test.Insert(m, value.Str("me"), value.Int(0))
	key = value.Str("me")
	m.Insert(key, m.Value())
	key.Release()
	requireT.Equal(`([ "me":@0 ])`, value.Describe(m.Value()))

	r.ZapAll()
	value.FreeRef(m)
}

func TestZapAllBreaksCycles(t *testing.T) {
	requireT := require.New(t)
	r := newRegistry()

	a := r.Allocate(0)
	b := r.Allocate(0)
	a.Insert(value.Int(1), b.Value())
	b.Insert(value.Int(1), a.Value())
	value.FreeRef(a)
	value.FreeRef(b)

	requireT.Equal(2, r.Len())
	r.ZapAll()
	requireT.Equal(0, r.Len())
}

func TestCountMemory(t *testing.T) {
	requireT := require.New(t)
	r := newRegistry()

	count, size := r.CountMemory()
	requireT.Equal(0, count)
	requireT.Zero(size)

	m := r.Allocate(0)
	defer value.FreeRef(m)
	count, empty := r.CountMemory()
	requireT.Equal(1, count)
	requireT.NotZero(empty)

	for i := range int64(100) {
		m.Insert(value.Int(i), value.Int(i))
	}
	_, full := r.CountMemory()
	requireT.Greater(full, empty)
}

func TestAllocateNegativeCapacityPanics(t *testing.T) {
	require.Panics(t, func() {
		newRegistry().Allocate(-1)
	})
}
