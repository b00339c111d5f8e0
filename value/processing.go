package value

// Processing is the stack of payload pairs currently being walked by a recursive operation.
// It terminates recursion over self-referencing containers. The nil stack is empty.
type Processing struct {
	A, B Ref
	Next *Processing
}

// Push returns the stack extended by the pair.
func (p *Processing) Push(a, b Ref) *Processing {
	return &Processing{A: a, B: b, Next: p}
}

// Seen tells if the pair is already being processed.
func (p *Processing) Seen(a, b Ref) bool {
	for ; p != nil; p = p.Next {
		if p.A == a && p.B == b {
			return true
		}
	}
	return false
}

// Find returns the counterpart recorded for a.
func (p *Processing) Find(a Ref) (Ref, bool) {
	for ; p != nil; p = p.Next {
		if p.A == a {
			return p.B, true
		}
	}
	return nil, false
}

// Depth returns the distance to the frame processing a.
func (p *Processing) Depth(a Ref) (int, bool) {
	for i := 0; p != nil; i, p = i+1, p.Next {
		if p.A == a {
			return i, true
		}
	}
	return 0, false
}
