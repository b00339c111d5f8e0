package value

import (
	"math"
	"unsafe"

	"github.com/cespare/xxhash"
	"github.com/outofforest/photon"

	"github.com/outofforest/heapcore/types"
)

// Hash computes the session-stable hash of the value. Values equal according to IsEq hash equally.
func Hash(v Value) uint64 {
	v = safeCheckDestructed(v)

	var q uint64
	switch v.Type {
	case types.TagInt:
		q = xxhash.Sum64(photon.NewFromValue(&v.Int).B)
	case types.TagFloat:
		f := v.Float
		if f == 0 {
			// -0 equals 0.
			f = 0
		}
		bits := math.Float64bits(f)
		q = xxhash.Sum64(photon.NewFromValue(&bits).B)
	case types.TagString:
		q = xxhash.Sum64String(v.Ref.(*String).S)
	case types.TagObject:
		o := v.Ref.(*Object)
		if o.Program.Lfuns.Hash != nil {
			h := o.Program.Lfuns.Hash(o)
			q = xxhash.Sum64(photon.NewFromValue(&h).B)
			break
		}
		q = o.ID()
	case types.TagFunction:
		if p := ProgramFromFunction(v); p != nil {
			return Hash(Value{Type: types.TagProgram, Ref: p})
		}
		q = v.Ref.RefHeader().ID() ^ uint64(v.Subtype)<<48
	case types.TagType:
		t := v.Ref.(*TypeInfo)
		q = xxhash.Sum64String(t.Name) ^ uint64(uint32(t.ProgramID))
	case types.TagLvalue:
		q = uint64(uintptr(unsafe.Pointer(v.Lvalue)))
	default:
		q = v.Ref.RefHeader().ID()
	}

	q += q % 997
	q += (q + uint64(v.Type)) * 9248339
	return q
}
