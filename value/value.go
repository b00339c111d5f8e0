package value

import (
	"github.com/pkg/errors"

	"github.com/outofforest/heapcore/types"
)

// Value is the tagged representation of every runtime datum.
type Value struct {
	Type    types.Tag
	Subtype uint16
	Int     int64
	Float   float64
	Ref     Ref
	Lvalue  *Lvalue
}

// Lvalue points to an assignable slot.
type Lvalue struct {
	Base  *Value
	Index *Value
}

// Int creates integer value.
func Int(i int64) Value {
	return Value{Type: types.TagInt, Int: i}
}

// Zero returns integer zero.
func Zero() Value {
	return Value{Type: types.TagInt}
}

// Undefined returns the value used to report absent keys.
func Undefined() Value {
	return Value{Type: types.TagInt, Subtype: types.SubtypeUndefined}
}

// Float creates float value.
func Float(f float64) Value {
	return Value{Type: types.TagFloat, Float: f}
}

// Wrap wraps the payload into value of the tag. The reference owned by the caller is moved into the value.
func Wrap(tag types.Tag, ref Ref) Value {
	return Value{Type: tag, Ref: ref}
}

// BoundFunction creates function value calling identifier idx of the object.
// The reference owned by the caller is moved into the value.
func BoundFunction(o *Object, idx uint16) Value {
	if idx == types.FunctionBuiltin {
		panic(errors.Errorf("identifier index %d is reserved for builtins", idx))
	}
	return Value{Type: types.TagFunction, Subtype: idx, Ref: o}
}

// Builtin creates function value of builtin callable.
// The reference owned by the caller is moved into the value.
func Builtin(c *Callable) Value {
	return Value{Type: types.TagFunction, Subtype: types.FunctionBuiltin, Ref: c}
}

// NewLvalue creates lvalue pointing to the slot.
func NewLvalue(base, index *Value) Value {
	return Value{Type: types.TagLvalue, Lvalue: &Lvalue{Base: base, Index: index}}
}

// IsRefCounted tells if the value holds reference-counted payload.
func (v Value) IsRefCounted() bool {
	return v.Type.IsRefCounted() && v.Ref != nil
}

// IsUndefined tells if value is the absent-key sentinel.
func (v Value) IsUndefined() bool {
	return v.Type == types.TagInt && v.Subtype == types.SubtypeUndefined
}

// IsBuiltin tells if value is a builtin function.
func (v Value) IsBuiltin() bool {
	return v.Type == types.TagFunction && v.Subtype == types.FunctionBuiltin
}

// Object returns the object referenced by object value or bound function.
func (v Value) Object() *Object {
	if v.Type != types.TagObject && (v.Type != types.TagFunction || v.Subtype == types.FunctionBuiltin) {
		return nil
	}
	o, _ := v.Ref.(*Object)
	return o
}

// IsDestructed tells if value references an object which has been destructed.
func (v Value) IsDestructed() bool {
	o := v.Object()
	return o != nil && o.Destructed()
}

// Retain adds a reference to the payload.
func (v Value) Retain() {
	if v.IsRefCounted() {
		AddRef(v.Ref)
	}
}

// Release drops a reference to the payload, destroying it when it was the last one.
func (v Value) Release() {
	if v.IsRefCounted() {
		FreeRef(v.Ref)
	}
}

// Assign stores a copy of src in dst, retaining the new payload before releasing the old one.
func Assign(dst *Value, src Value) {
	src.Retain()
	old := *dst
	*dst = src
	old.Release()
}

// AssignNoFree stores a copy of src in dst which is known to hold nothing.
func AssignNoFree(dst *Value, src Value) {
	src.Retain()
	*dst = src
}

// ReleaseAll releases every value in the slice and clears it.
func ReleaseAll(vs []Value) {
	for i := range vs {
		vs[i].Release()
		vs[i] = Value{}
	}
}

// Short is the value payload without the tag. The tag is known from the context it is stored in.
type Short struct {
	Ref   Ref
	Int   int64
	Float float64
}

// ToShort strips the tag from the value.
func ToShort(v Value) Short {
	return Short{Ref: v.Ref, Int: v.Int, Float: v.Float}
}

// FromShort rebuilds the value from short value of tag, adding a reference to the payload.
// An empty reference-counted slot yields integer zero.
func FromShort(s Short, tag types.Tag) Value {
	switch {
	case tag == types.TagInt:
		return Int(s.Int)
	case tag == types.TagFloat:
		return Float(s.Float)
	case s.Ref == nil:
		return Zero()
	}
	AddRef(s.Ref)
	return Value{Type: tag, Ref: s.Ref}
}

// AssignShort stores copy of v in short slot of tag.
func AssignShort(dst *Short, tag types.Tag, v Value) error {
	if v.Type != tag {
		if v.Type == types.TagInt && v.Int == 0 && tag.IsRefCounted() {
			ReleaseShort(dst, tag)
			return nil
		}
		return errors.Wrapf(ErrBadType, "%s assigned to %s slot", v.Type, tag)
	}
	v.Retain()
	ReleaseShort(dst, tag)
	*dst = ToShort(v)
	return nil
}

// ReleaseShort releases the payload stored in the short slot of tag.
func ReleaseShort(s *Short, tag types.Tag) {
	if tag.IsRefCounted() && s.Ref != nil {
		r := s.Ref
		s.Ref = nil
		FreeRef(r)
	}
}
