package value

import (
	"strconv"
	"strings"

	"github.com/outofforest/heapcore/types"
)

// Describer is implemented by payloads rendering their own contents.
type Describer interface {
	DescribeTo(b *strings.Builder, p *Processing)
}

// Copier is implemented by containers copied by CopyRecursively.
type Copier interface {
	CopyRecursively(p *Processing) Ref
}

// Describe renders the value for debugging. Containers met again while being rendered are printed as @N,
// N being the number of levels up to the enclosing occurrence.
func Describe(v Value) string {
	var b strings.Builder
	DescribeTo(&b, v, nil)
	return b.String()
}

// DescribeTo renders the value into the builder.
func DescribeTo(b *strings.Builder, v Value, p *Processing) {
	switch v.Type {
	case types.TagInt:
		b.WriteString(strconv.FormatInt(v.Int, 10))
	case types.TagFloat:
		b.WriteString(strconv.FormatFloat(v.Float, 'g', -1, 64))
	case types.TagString:
		b.WriteString(strconv.Quote(v.Ref.(*String).S))
	case types.TagType:
		b.WriteString(v.Ref.(*TypeInfo).Name)
	case types.TagProgram:
		b.WriteString("program(")
		b.WriteString(v.Ref.(*Program).Name)
		b.WriteString(")")
	case types.TagFunction:
		switch {
		case v.IsBuiltin():
			b.WriteString(v.Ref.(*Callable).Name)
		case v.IsDestructed():
			b.WriteString("0")
		case int(v.Subtype) >= len(v.Ref.(*Object).Program.Identifiers):
			b.WriteString("function")
		default:
			o := v.Ref.(*Object)
			b.WriteString(o.Program.Name)
			b.WriteString("->")
			b.WriteString(o.Program.Identifiers[v.Subtype].Name)
		}
	case types.TagObject:
		o := v.Ref.(*Object)
		switch {
		case o.Destructed():
			b.WriteString("0")
		case o.Program.Lfuns.Sprintf != nil:
			b.WriteString(o.Program.Lfuns.Sprintf(o))
		default:
			b.WriteString("object(")
			b.WriteString(o.Program.Name)
			b.WriteString(")")
		}
	case types.TagLvalue:
		b.WriteString("lvalue")
	default:
		if d, ok := v.Ref.(Describer); ok {
			d.DescribeTo(b, p)
			return
		}
		b.WriteString(v.Type.String())
	}
}

// DescribeTo renders the array.
func (a *Array) DescribeTo(b *strings.Builder, p *Processing) {
	if depth, ok := p.Depth(a); ok {
		b.WriteString("@")
		b.WriteString(strconv.Itoa(depth))
		return
	}
	if len(a.Items) == 0 {
		b.WriteString("({ })")
		return
	}

	curr := p.Push(a, nil)
	b.WriteString("({ ")
	for i, v := range a.Items {
		if i > 0 {
			b.WriteString(", ")
		}
		DescribeTo(b, v, curr)
	}
	b.WriteString(" })")
}

// DescribeTo renders the multiset.
func (m *Multiset) DescribeTo(b *strings.Builder, p *Processing) {
	if depth, ok := p.Depth(m); ok {
		b.WriteString("@")
		b.WriteString(strconv.Itoa(depth))
		return
	}
	if len(m.Indices.Items) == 0 {
		b.WriteString("(< >)")
		return
	}

	curr := p.Push(m, nil)
	b.WriteString("(< ")
	for i, v := range m.Indices.Items {
		if i > 0 {
			b.WriteString(", ")
		}
		DescribeTo(b, v, curr)
	}
	b.WriteString(" >)")
}

// CopyRecursively copies the value. Arrays, mappings and multisets are copied deeply, references back to
// containers being copied point to their copies. Other payloads are shared. The result is owned by the caller.
func CopyRecursively(v Value, p *Processing) Value {
	switch v.Type {
	case types.TagArray, types.TagMapping, types.TagMultiset:
		if c, ok := v.Ref.(Copier); ok {
			return Wrap(v.Type, c.CopyRecursively(p))
		}
	}
	v.Retain()
	return v
}
