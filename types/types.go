package types

import "strings"

// UInt64Bits is the number of bits in uint64.
const UInt64Bits = 64

// Tag enumerates kinds of values.
// The order matters: tags up to MaxComplex may form reference cycles, tags up to MaxRefType are reference-counted.
type Tag uint8

const (
	// TagArray is the tag of arrays.
	TagArray Tag = iota

	// TagMapping is the tag of mappings.
	TagMapping

	// TagMultiset is the tag of multisets.
	TagMultiset

	// TagObject is the tag of objects.
	TagObject

	// TagFunction is the tag of functions, both builtin and bound to an object.
	TagFunction

	// TagProgram is the tag of programs (classes).
	TagProgram

	// TagString is the tag of strings.
	TagString

	// TagType is the tag of type values.
	TagType

	// TagInt is the tag of integers.
	TagInt

	// TagFloat is the tag of floats.
	TagFloat

	// TagLvalue is the tag of lvalues.
	TagLvalue
)

const (
	// MaxComplex is the last tag which might participate in reference cycles.
	MaxComplex = TagProgram

	// MaxRefType is the last reference-counted tag.
	MaxRefType = TagType
)

var tagNames = [...]string{
	TagArray:    "array",
	TagMapping:  "mapping",
	TagMultiset: "multiset",
	TagObject:   "object",
	TagFunction: "function",
	TagProgram:  "program",
	TagString:   "string",
	TagType:     "type",
	TagInt:      "int",
	TagFloat:    "float",
	TagLvalue:   "lvalue",
}

// String returns the name of the tag.
func (t Tag) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return "unknown"
}

// Bit returns the type field bit of the tag.
func (t Tag) Bit() TypeField {
	return 1 << t
}

// IsRefCounted tells if values of the tag carry reference-counted payload.
func (t Tag) IsRefCounted() bool {
	return t <= MaxRefType
}

// TypeField is a bitmask over tags.
type TypeField uint32

// Type field bits.
const (
	BitArray    = TypeField(1) << TagArray
	BitMapping  = TypeField(1) << TagMapping
	BitMultiset = TypeField(1) << TagMultiset
	BitObject   = TypeField(1) << TagObject
	BitFunction = TypeField(1) << TagFunction
	BitProgram  = TypeField(1) << TagProgram
	BitString   = TypeField(1) << TagString
	BitType     = TypeField(1) << TagType
	BitInt      = TypeField(1) << TagInt
	BitFloat    = TypeField(1) << TagFloat
	BitLvalue   = TypeField(1) << TagLvalue

	// BitComplex groups tags which might form cycles.
	BitComplex = BitArray | BitMapping | BitMultiset | BitObject | BitFunction | BitProgram
)

// Has tells if the bit of tag is set.
func (f TypeField) Has(t Tag) bool {
	return f&t.Bit() != 0
}

// Covers tells if f is a superset of other.
func (f TypeField) Covers(other TypeField) bool {
	return other&^f == 0
}

// String lists the tags present in the field.
func (f TypeField) String() string {
	names := make([]string, 0, len(tagNames))
	for t := range Tag(len(tagNames)) {
		if f.Has(t) {
			names = append(names, t.String())
		}
	}
	return strings.Join(names, "|")
}

// Int subtypes.
const (
	// SubtypeNumber marks a plain integer.
	SubtypeNumber uint16 = iota

	// SubtypeUndefined marks the "no such key" sentinel. It is numerically zero.
	SubtypeUndefined

	// SubtypeDestructed marks the zero left behind by a reference to a destructed object.
	SubtypeDestructed
)

// FunctionBuiltin is the function subtype of builtin callables.
const FunctionBuiltin uint16 = 0xffff
