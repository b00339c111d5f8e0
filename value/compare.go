package value

import (
	"math"
	"strings"

	"github.com/pkg/errors"

	"github.com/outofforest/heapcore/types"
)

// Equaler is implemented by payloads compared structurally by LowIsEqual.
type Equaler interface {
	EqualDeep(other Ref, p *Processing) bool
}

// IsIdentical tells if both values denote the very same datum.
func IsIdentical(a, b Value) bool {
	if a.Type != b.Type {
		return false
	}

	switch a.Type {
	case types.TagType, types.TagString, types.TagObject, types.TagMultiset, types.TagProgram, types.TagArray,
		types.TagMapping:
		return a.Ref == b.Ref
	case types.TagInt:
		return a.Int == b.Int
	case types.TagFunction:
		return a.Subtype == b.Subtype && a.Ref == b.Ref
	case types.TagFloat:
		return math.Float64bits(a.Float) == math.Float64bits(b.Float)
	case types.TagLvalue:
		return a.Lvalue == b.Lvalue
	default:
		panic(errors.Errorf("unknown type %d", a.Type))
	}
}

// IsEq tells if values are equal. Objects defining the Eq operator decide on their own.
func IsEq(a, b Value) bool {
	a = safeCheckDestructed(a)
	b = safeCheckDestructed(b)

	if a.Type != b.Type {
		switch {
		case a.Type == types.TagFunction && b.Type == types.TagProgram:
			p := ProgramFromFunction(a)
			return p != nil && Ref(p) == b.Ref
		case a.Type == types.TagProgram && b.Type == types.TagFunction:
			p := ProgramFromFunction(b)
			return p != nil && Ref(p) == a.Ref
		}
		if a.Type == types.TagObject {
			if o := a.Ref.(*Object); o.Program.Lfuns.Eq != nil {
				return o.Program.Lfuns.Eq(o, b)
			}
		}
		if b.Type == types.TagObject {
			if o := b.Ref.(*Object); o.Program.Lfuns.Eq != nil {
				return o.Program.Lfuns.Eq(o, a)
			}
		}
		return false
	}

	switch a.Type {
	case types.TagObject:
		if o := a.Ref.(*Object); o.Program.Lfuns.Eq != nil {
			return o.Program.Lfuns.Eq(o, b)
		}
		if o := b.Ref.(*Object); o.Program.Lfuns.Eq != nil {
			return o.Program.Lfuns.Eq(o, a)
		}
		return a.Ref == b.Ref
	case types.TagMultiset, types.TagProgram, types.TagArray, types.TagMapping:
		return a.Ref == b.Ref
	case types.TagInt:
		return a.Int == b.Int
	case types.TagString:
		return a.Ref == b.Ref || a.Ref.(*String).S == b.Ref.(*String).S
	case types.TagType:
		ta, tb := a.Ref.(*TypeInfo), b.Ref.(*TypeInfo)
		return ta.LessOrEqual(tb) && tb.LessOrEqual(ta)
	case types.TagFunction:
		return a.Subtype == b.Subtype && a.Ref == b.Ref
	case types.TagFloat:
		return a.Float == b.Float
	case types.TagLvalue:
		return a.Lvalue == b.Lvalue
	default:
		panic(errors.Errorf("unknown type %d", a.Type))
	}
}

// IsEqual compares values structurally.
func IsEqual(a, b Value) bool {
	return LowIsEqual(a, b, nil)
}

// LowIsEqual compares values structurally. Pairs of containers already present on the stack are assumed equal,
// so comparison of self-referencing structures terminates.
func LowIsEqual(a, b Value, p *Processing) bool {
	if o := liveObject(a); o != nil && o.Program.Lfuns.Equal != nil {
		return o.Program.Lfuns.Equal(o, b)
	}
	if o := liveObject(b); o != nil && o.Program.Lfuns.Equal != nil {
		return o.Program.Lfuns.Equal(o, a)
	}

	if IsEq(a, b) {
		return true
	}
	if a.Type != b.Type {
		return false
	}

	switch a.Type {
	case types.TagArray:
		a.Ref.(*Array).CheckForDestruct()
		b.Ref.(*Array).CheckForDestruct()
	case types.TagObject, types.TagMapping, types.TagMultiset:
	default:
		return false
	}

	eq, ok := a.Ref.(Equaler)
	if !ok {
		return false
	}
	return eq.EqualDeep(b.Ref, p)
}

// IsLt orders values. Values of incomparable types produce an error.
func IsLt(a, b Value) (bool, error) {
	a = safeCheckDestructed(a)
	b = safeCheckDestructed(b)

	if isTypeLike(a.Type) && isTypeLike(b.Type) {
		if a.Type != types.TagType {
			p := ProgramFromValue(a)
			if p == nil {
				return false, errors.Wrap(ErrBadComparison, "bad argument to comparison")
			}
			t := objectType(p)
			defer FreeRef(t)
			return IsLt(Wrap(types.TagType, t), b)
		}
		if b.Type != types.TagType {
			p := ProgramFromValue(b)
			if p == nil {
				return false, errors.Wrap(ErrBadComparison, "bad argument to comparison")
			}
			t := objectType(p)
			defer FreeRef(t)
			return IsLt(a, Wrap(types.TagType, t))
		}
		return !b.Ref.(*TypeInfo).LessOrEqual(a.Ref.(*TypeInfo)), nil
	}

	if a.Type != b.Type {
		switch {
		case a.Type == types.TagFloat && b.Type == types.TagInt:
			return a.Float < float64(b.Int), nil
		case a.Type == types.TagInt && b.Type == types.TagFloat:
			return float64(a.Int) < b.Float, nil
		case a.Type == types.TagObject:
			return objectLt(a.Ref.(*Object), b)
		case b.Type == types.TagObject:
			return objectGt(b.Ref.(*Object), a)
		}
		return false, errors.Wrapf(ErrIncomparable, "%s < %s", a.Type, b.Type)
	}

	switch a.Type {
	case types.TagObject:
		return objectLt(a.Ref.(*Object), b)
	case types.TagInt:
		return a.Int < b.Int, nil
	case types.TagString:
		return strings.Compare(a.Ref.(*String).S, b.Ref.(*String).S) < 0, nil
	case types.TagFloat:
		return a.Float < b.Float, nil
	default:
		return false, errors.Wrapf(ErrBadComparison, "%s < %s", a.Type, b.Type)
	}
}

// IsTrue tells if value counts as true in conditions.
func IsTrue(v Value) bool {
	switch v.Type {
	case types.TagInt:
		return v.Int != 0
	case types.TagFunction:
		return !v.IsDestructed()
	case types.TagObject:
		o := v.Ref.(*Object)
		if o.Destructed() {
			return false
		}
		if o.Program.Lfuns.Not != nil {
			return !o.Program.Lfuns.Not(o)
		}
		return true
	default:
		return true
	}
}

// CheckDestructed replaces reference to destructed object by zero.
func CheckDestructed(v *Value) {
	if !v.IsDestructed() {
		return
	}
	old := *v
	*v = Value{Type: types.TagInt, Subtype: types.SubtypeDestructed}
	old.Release()
}

// ProgramFromFunction returns the program named by the identifier the function is bound to.
func ProgramFromFunction(v Value) *Program {
	o := v.Object()
	if o == nil || o.Destructed() {
		return nil
	}
	if int(v.Subtype) >= len(o.Program.Identifiers) {
		return nil
	}
	return o.Program.Identifiers[v.Subtype].Program
}

// ProgramFromValue returns the program represented by the value.
func ProgramFromValue(v Value) *Program {
	switch v.Type {
	case types.TagProgram:
		return v.Ref.(*Program)
	case types.TagFunction:
		return ProgramFromFunction(v)
	case types.TagObject:
		return v.Ref.(*Object).Program
	default:
		return nil
	}
}

func safeCheckDestructed(v Value) Value {
	if v.IsDestructed() {
		return Value{Type: types.TagInt, Subtype: types.SubtypeDestructed}
	}
	return v
}

func liveObject(v Value) *Object {
	if v.Type != types.TagObject {
		return nil
	}
	o := v.Ref.(*Object)
	if o.Destructed() {
		return nil
	}
	return o
}

func isTypeLike(t types.Tag) bool {
	return t == types.TagType || t == types.TagFunction || t == types.TagProgram
}

func objectLt(o *Object, other Value) (bool, error) {
	if o.Destructed() {
		return false, errors.Wrap(ErrDestructed, "comparison on destructed object")
	}
	if o.Program.Lfuns.Lt == nil {
		return false, errors.Wrap(ErrMissingLfun, "object lacks `<")
	}
	return o.Program.Lfuns.Lt(o, other), nil
}

func objectGt(o *Object, other Value) (bool, error) {
	if o.Destructed() {
		return false, errors.Wrap(ErrDestructed, "comparison on destructed object")
	}
	if o.Program.Lfuns.Gt == nil {
		return false, errors.Wrap(ErrMissingLfun, "object lacks `>")
	}
	return o.Program.Lfuns.Gt(o, other), nil
}
