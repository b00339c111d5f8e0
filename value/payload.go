package value

import (
	"github.com/pkg/errors"

	"github.com/outofforest/heapcore/types"
)

// String is the reference-counted string payload.
type String struct {
	Header
	S string
}

// NewString creates string payload with one reference owned by the caller.
func NewString(s string) *String {
	str := &String{S: s}
	str.Init()
	return str
}

// Destroy does nothing, strings don't own other payloads.
func (s *String) Destroy() {}

// Str creates string value owning a fresh payload.
func Str(s string) Value {
	return Wrap(types.TagString, NewString(s))
}

// Array is the reference-counted array payload.
type Array struct {
	Header
	Items     []Value
	TypeField types.TypeField
}

// NewArray creates array of size zeros.
func NewArray(size int) *Array {
	a := &Array{
		Items:     make([]Value, size),
		TypeField: types.BitInt,
	}
	for i := range a.Items {
		a.Items[i] = Zero()
	}
	if size == 0 {
		a.TypeField = 0
	}
	a.Init()
	return a
}

// NewArrayFrom creates array taking over the references held by items.
func NewArrayFrom(items ...Value) *Array {
	a := &Array{Items: items}
	a.FixTypeField()
	a.Init()
	return a
}

// Len returns the number of items.
func (a *Array) Len() int {
	return len(a.Items)
}

// Set stores copy of v at index i.
func (a *Array) Set(i int, v Value) {
	Assign(&a.Items[i], v)
	a.TypeField |= v.Type.Bit()
}

// FixTypeField recomputes the exact type field of the array.
func (a *Array) FixTypeField() {
	a.TypeField = 0
	for _, v := range a.Items {
		a.TypeField |= v.Type.Bit()
	}
}

// CheckForDestruct replaces references to destructed objects by zeros.
func (a *Array) CheckForDestruct() {
	if a.TypeField&(types.BitObject|types.BitFunction) == 0 {
		return
	}
	for i := range a.Items {
		CheckDestructed(&a.Items[i])
	}
	a.FixTypeField()
}

// Destroy releases the items.
func (a *Array) Destroy() {
	ReleaseAll(a.Items)
	a.Items = nil
}

// EqualDeep compares arrays item by item.
func (a *Array) EqualDeep(other Ref, p *Processing) bool {
	b, ok := other.(*Array)
	if !ok {
		return false
	}
	if a == b {
		return true
	}
	if len(a.Items) != len(b.Items) {
		return false
	}
	if p.Seen(a, b) {
		return true
	}
	curr := p.Push(a, b)
	for i := range a.Items {
		if !LowIsEqual(a.Items[i], b.Items[i], curr) {
			return false
		}
	}
	return true
}

// CopyRecursively copies array together with all nested containers.
func (a *Array) CopyRecursively(p *Processing) Ref {
	if done, ok := p.Find(a); ok {
		AddRef(done)
		return done
	}
	ret := &Array{
		Items:     make([]Value, len(a.Items)),
		TypeField: a.TypeField,
	}
	ret.Init()
	curr := p.Push(a, ret)
	for i, v := range a.Items {
		ret.Items[i] = CopyRecursively(v, curr)
	}
	return ret
}

// Multiset is the reference-counted set of values.
type Multiset struct {
	Header
	Indices *Array
}

// NewMultiset creates multiset taking over the references held by items.
func NewMultiset(items ...Value) *Multiset {
	m := &Multiset{Indices: NewArrayFrom(items...)}
	m.Init()
	return m
}

// Destroy releases the indices.
func (m *Multiset) Destroy() {
	FreeRef(m.Indices)
	m.Indices = nil
}

// EqualDeep compares indices of both multisets.
func (m *Multiset) EqualDeep(other Ref, p *Processing) bool {
	b, ok := other.(*Multiset)
	if !ok {
		return false
	}
	if m == b {
		return true
	}
	return m.Indices.EqualDeep(b.Indices, p)
}

// CopyRecursively copies multiset together with all nested containers.
func (m *Multiset) CopyRecursively(p *Processing) Ref {
	if done, ok := p.Find(m); ok {
		AddRef(done)
		return done
	}
	ret := &Multiset{}
	ret.Init()
	ret.Indices = m.Indices.CopyRecursively(p.Push(m, ret)).(*Array)
	return ret
}

// ProgramFlags are the flags of program.
type ProgramFlags uint32

const (
	// ProgramNoWeakFree tells that objects of the program must not vanish from weak containers.
	ProgramNoWeakFree ProgramFlags = 1 << iota
)

// Lfuns are the optional operator hooks defined by a program.
type Lfuns struct {
	Eq      func(self *Object, other Value) bool
	Lt      func(self *Object, other Value) bool
	Gt      func(self *Object, other Value) bool
	Equal   func(self *Object, other Value) bool
	Hash    func(self *Object) int64
	Not     func(self *Object) bool
	Destroy func(self *Object)
	Sprintf func(self *Object) string
}

// Identifier is a named member of a program. Constant identifiers may hold a nested program.
type Identifier struct {
	Name    string
	Program *Program
}

// Program is the reference-counted class payload.
type Program struct {
	Header
	ProgramID   int32
	Name        string
	Flags       ProgramFlags
	Lfuns       Lfuns
	Identifiers []Identifier
	Storage     int
}

// ProgramConfig describes program to create.
type ProgramConfig struct {
	ID      int32
	Name    string
	Flags   ProgramFlags
	Lfuns   Lfuns
	Storage int
}

// NewProgram creates program with one reference owned by the caller.
func NewProgram(config ProgramConfig) *Program {
	p := &Program{
		ProgramID: config.ID,
		Name:      config.Name,
		Flags:     config.Flags,
		Lfuns:     config.Lfuns,
		Storage:   config.Storage,
	}
	p.Init()
	return p
}

// AddIdentifier adds member to the program and returns its index. A nested program is retained.
func (p *Program) AddIdentifier(name string, nested *Program) uint16 {
	if nested != nil {
		AddRef(nested)
	}
	p.Identifiers = append(p.Identifiers, Identifier{Name: name, Program: nested})
	return uint16(len(p.Identifiers) - 1)
}

// Destroy releases nested programs.
func (p *Program) Destroy() {
	for i := range p.Identifiers {
		if nested := p.Identifiers[i].Program; nested != nil {
			p.Identifiers[i].Program = nil
			FreeRef(nested)
		}
	}
}

// Object is the reference-counted instance of a program.
// Object is destructed when its program is nil, references to it stay valid but compare as zero.
type Object struct {
	Header
	Program *Program
	Storage []Value
}

// NewObject clones the program. The program is retained by the object.
func NewObject(p *Program) *Object {
	AddRef(p)
	o := &Object{
		Program: p,
		Storage: make([]Value, p.Storage),
	}
	for i := range o.Storage {
		o.Storage[i] = Zero()
	}
	o.Init()
	return o
}

// Destructed tells if the object has been destructed.
func (o *Object) Destructed() bool {
	return o.Program == nil
}

// Set stores copy of v in storage slot i.
func (o *Object) Set(i int, v Value) error {
	if o.Destructed() {
		return errors.WithStack(ErrDestructed)
	}
	if i < 0 || i >= len(o.Storage) {
		return errors.Errorf("storage index %d out of range [0, %d)", i, len(o.Storage))
	}
	Assign(&o.Storage[i], v)
	return nil
}

// Get returns storage slot i without adding a reference.
func (o *Object) Get(i int) (Value, error) {
	if o.Destructed() {
		return Value{}, errors.WithStack(ErrDestructed)
	}
	if i < 0 || i >= len(o.Storage) {
		return Value{}, errors.Errorf("storage index %d out of range [0, %d)", i, len(o.Storage))
	}
	return o.Storage[i], nil
}

// Destruct tears the object down while references to it may still exist.
func (o *Object) Destruct() {
	p := o.Program
	if p == nil {
		return
	}
	if p.Lfuns.Destroy != nil {
		p.Lfuns.Destroy(o)
	}
	o.Program = nil
	ReleaseAll(o.Storage)
	o.Storage = nil
	FreeRef(p)
}

// Destroy destructs the object once the last reference is gone.
func (o *Object) Destroy() {
	o.Destruct()
}

// EqualDeep compares objects of the same program slot by slot.
func (o *Object) EqualDeep(other Ref, p *Processing) bool {
	b, ok := other.(*Object)
	if !ok {
		return false
	}
	if o == b {
		return true
	}
	if o.Program != b.Program || o.Program == nil {
		return false
	}
	if p.Seen(o, b) {
		return true
	}
	curr := p.Push(o, b)
	for i := range o.Storage {
		if !LowIsEqual(o.Storage[i], b.Storage[i], curr) {
			return false
		}
	}
	return true
}

// Callable is the reference-counted builtin function.
type Callable struct {
	Header
	Name string
	Fn   func(args []Value) (Value, error)
}

// NewCallable creates builtin function with one reference owned by the caller.
func NewCallable(name string, fn func(args []Value) (Value, error)) *Callable {
	c := &Callable{Name: name, Fn: fn}
	c.Init()
	return c
}

// Destroy does nothing, callables don't own other payloads.
func (c *Callable) Destroy() {}

// TypeInfo is the reference-counted representation of a type.
type TypeInfo struct {
	Header
	Name      string
	ProgramID int32
}

// TypeMixed is the name of the type every other type is a subtype of.
const TypeMixed = "mixed"

// NewType creates type payload with one reference owned by the caller.
func NewType(name string, programID int32) *TypeInfo {
	t := &TypeInfo{Name: name, ProgramID: programID}
	t.Init()
	return t
}

// Destroy does nothing, types don't own other payloads.
func (t *TypeInfo) Destroy() {}

// LessOrEqual tells if t is a subtype of other.
func (t *TypeInfo) LessOrEqual(other *TypeInfo) bool {
	if other.Name == TypeMixed {
		return true
	}
	return t.Name == other.Name && t.ProgramID == other.ProgramID
}

// objectType returns the type of objects cloned from the program.
func objectType(p *Program) *TypeInfo {
	return NewType("object", p.ProgramID)
}
