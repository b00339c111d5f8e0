package value

import (
	"sync/atomic"

	"github.com/pkg/errors"
)

var lastID atomic.Uint64

// Ref is implemented by every reference-counted payload.
type Ref interface {
	// RefHeader returns the header holding the reference count.
	RefHeader() *Header

	// Destroy releases everything owned by the payload. It is called exactly once, when the count drops to zero.
	Destroy()
}

// Header is embedded as the first field of every reference-counted payload.
type Header struct {
	refs  int32
	id    uint64
	freed bool
}

// Init sets the count to one and assigns the identity used for hashing.
func (h *Header) Init() {
	h.refs = 1
	h.id = lastID.Add(1)
	h.freed = false
}

// RefHeader returns the header itself.
func (h *Header) RefHeader() *Header {
	return h
}

// Refs returns the current reference count.
func (h *Header) Refs() int32 {
	return h.refs
}

// ID returns the session-unique identity of the payload.
func (h *Header) ID() uint64 {
	return h.id
}

// Freed tells if the payload has already been destroyed.
func (h *Header) Freed() bool {
	return h.freed
}

// AddRef increments the reference count of the payload.
func AddRef(r Ref) {
	h := r.RefHeader()
	if h.refs <= 0 {
		panic(errors.Errorf("reference added to payload %d with %d refs", h.id, h.refs))
	}
	h.refs++
}

// FreeRef decrements the reference count of the payload and destroys it when the count reaches zero.
func FreeRef(r Ref) {
	h := r.RefHeader()
	if h.refs <= 0 {
		panic(errors.Errorf("payload %d released with %d refs", h.id, h.refs))
	}
	h.refs--
	if h.refs == 0 {
		h.freed = true
		r.Destroy()
	}
}
