package gc

import (
	"context"
	"sync"
	"time"
	"unsafe"

	"github.com/outofforest/logger"
	"github.com/outofforest/photon"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/outofforest/heapcore/alloc"
	"github.com/outofforest/heapcore/mapping"
	"github.com/outofforest/heapcore/types"
	"github.com/outofforest/heapcore/value"
)

const (
	// DefaultInterval is the default period of collection cycles run by Run.
	DefaultInterval = time.Second

	// DefaultBlocksPerPage is the default number of markers kept in one page of the marker allocator.
	DefaultBlocksPerPage = 4096
)

// Hooks are supplied by the host to extend the collector's view of the object graph.
type Hooks struct {
	// IsReferenced tells if the payload is reachable from outside the values known to the collector,
	// e.g. from the interpreter stack.
	IsReferenced func(r value.Ref) bool

	// NoWeakFree tells if objects of the program must not vanish from weak mappings.
	NoWeakFree func(p *value.Program) bool
}

// Config stores configuration of collector.
type Config struct {
	// BlocksPerPage is the number of markers allocated at once.
	BlocksPerPage uint64

	// Interval is the period of cycles run by Run.
	Interval time.Duration

	// Lock is taken by Run for every cycle. It must be the lock guarding all the mutations of values.
	Lock sync.Locker

	Hooks Hooks
}

// Stats summarizes a collection cycle.
type Stats struct {
	Mappings  int
	Checked   int
	Marked    int
	Freed     int
	WeakFreed int
	Duration  time.Duration
}

const (
	flagMarked uint8 = 1 << iota
)

// marker is the per-payload state of a cycle. It lives in memory of the block allocator so it must not hold
// Go pointers.
type marker struct {
	internal int32
	flags    uint8
}

func (mk *marker) marked() bool {
	return mk.flags&flagMarked != 0
}

// NewCollector creates collector of mappings allocated from the registry.
func NewCollector(registry *mapping.Registry, config Config) (*Collector, error) {
	if config.BlocksPerPage == 0 {
		config.BlocksPerPage = DefaultBlocksPerPage
	}
	if config.Interval == 0 {
		config.Interval = DefaultInterval
	}
	if config.Lock == nil {
		config.Lock = &sync.Mutex{}
	}

	blocks, err := alloc.NewBlockAllocator(alloc.Config{
		BlockSize:     uint64(unsafe.Sizeof(marker{})),
		BlocksPerPage: config.BlocksPerPage,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating marker allocator failed")
	}

	return &Collector{
		config:   config,
		registry: registry,
		blocks:   blocks,
		markers:  map[value.Ref]*marker{},
	}, nil
}

// Collector reclaims cycles of mappings and the entries of weak mappings nothing else refers to.
type Collector struct {
	config   Config
	registry *mapping.Registry
	blocks   *alloc.BlockAllocator

	markers map[value.Ref]*marker
	order   []value.Ref
	queue   []value.Ref
	stats   Stats
}

// Collect runs one full cycle. Caller must hold the lock guarding the values.
func (c *Collector) Collect(ctx context.Context) (Stats, error) {
	start := time.Now()
	c.stats = Stats{}
	defer c.reset()

	ms := c.registry.Mappings()
	c.stats.Mappings = len(ms)

	if err := c.check(ms); err != nil {
		return Stats{}, err
	}
	c.mark()
	c.sweep(ms)

	c.stats.Duration = time.Since(start)
	logger.Get(ctx).Debug("Collection cycle finished",
		zap.Int("mappings", c.stats.Mappings),
		zap.Int("checked", c.stats.Checked),
		zap.Int("marked", c.stats.Marked),
		zap.Int("freed", c.stats.Freed),
		zap.Int("weakFreed", c.stats.WeakFreed),
		zap.Duration("duration", c.stats.Duration))

	return c.stats, nil
}

// Run runs collection cycles periodically until context is canceled.
func (c *Collector) Run(ctx context.Context) error {
	log := logger.Get(ctx)
	log.Info("Collector started", zap.Duration("interval", c.config.Interval))
	defer log.Info("Collector stopped")

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return errors.WithStack(ctx.Err())
		case <-ticker.C:
			c.config.Lock.Lock()
			_, err := c.Collect(ctx)
			c.config.Lock.Unlock()
			if err != nil {
				return err
			}
		}
	}
}

// Close releases the memory of the collector.
func (c *Collector) Close() {
	c.reset()
	c.blocks.Close()
}

func (c *Collector) check(ms []*mapping.Mapping) error {
	for _, m := range ms {
		if _, err := c.discover(m); err != nil {
			return err
		}
	}

	var err error
	check := func(v value.Value) {
		if err != nil {
			return
		}
		r := tracked(v)
		if r == nil {
			return
		}
		var mk *marker
		if mk, err = c.discover(r); err != nil {
			return
		}
		mk.internal++
		c.stats.Checked++
	}

	// Payloads discovered while checking are appended, so the loop reaches them too.
	for i := 0; i < len(c.order) && err == nil; i++ {
		switch p := c.order[i].(type) {
		case *mapping.Mapping:
			p.GCCheck(check)
		case *value.Array:
			p.CheckForDestruct()
			for _, v := range p.Items {
				check(v)
			}
		case *value.Multiset:
			check(value.Wrap(types.TagArray, p.Indices))
		case *value.Object:
			if p.Destructed() {
				continue
			}
			check(value.Wrap(types.TagProgram, p.Program))
			for j := range p.Storage {
				value.CheckDestructed(&p.Storage[j])
				check(p.Storage[j])
			}
		case *value.Program:
			for _, id := range p.Identifiers {
				if id.Program != nil {
					check(value.Wrap(types.TagProgram, id.Program))
				}
			}
		}
	}
	return err
}

func (c *Collector) mark() {
	isReferenced := c.config.Hooks.IsReferenced
	for _, r := range c.order {
		if r.RefHeader().Refs() > c.markers[r].internal || (isReferenced != nil && isReferenced(r)) {
			c.markRef(r)
		}
	}

	mark := func(v value.Value) {
		if r := tracked(v); r != nil {
			c.markRef(r)
		}
	}

	for len(c.queue) > 0 {
		r := c.queue[len(c.queue)-1]
		c.queue = c.queue[:len(c.queue)-1]

		switch p := r.(type) {
		case *mapping.Mapping:
			p.GCMark(mark, c.exempt)
		case *value.Array:
			for _, v := range p.Items {
				mark(v)
			}
		case *value.Multiset:
			mark(value.Wrap(types.TagArray, p.Indices))
		case *value.Object:
			if p.Destructed() {
				continue
			}
			mark(value.Wrap(types.TagProgram, p.Program))
			for _, v := range p.Storage {
				mark(v)
			}
		case *value.Program:
			for _, id := range p.Identifiers {
				if id.Program != nil {
					mark(value.Wrap(types.TagProgram, id.Program))
				}
			}
		}
	}
}

func (c *Collector) markRef(r value.Ref) {
	mk := c.markers[r]
	if mk == nil || mk.marked() {
		return
	}
	mk.flags |= flagMarked
	c.stats.Marked++
	c.queue = append(c.queue, r)
}

func (c *Collector) sweep(ms []*mapping.Mapping) {
	doomed := lo.Filter(ms, func(m *mapping.Mapping, _ int) bool {
		return !c.markers[m].marked()
	})
	c.stats.Freed = len(doomed)

	// Extra references keep doomed mappings alive until all of them are emptied, so releasing entries
	// never destroys a mapping which is still going to be cleared.
	for _, m := range doomed {
		value.AddRef(m)
	}
	for _, m := range doomed {
		m.Clear()
	}
	for _, m := range doomed {
		value.FreeRef(m)
	}

	isDead := func(v value.Value) bool {
		r := tracked(v)
		if r == nil {
			return false
		}
		mk := c.markers[r]
		return mk != nil && !mk.marked()
	}
	for _, m := range ms {
		if !m.IsWeak() || !c.markers[m].marked() {
			continue
		}

		value.AddRef(m)
		c.stats.WeakFreed += m.RemoveIf(func(key, val value.Value) bool {
			return isDead(key) || isDead(val)
		})
		value.FreeRef(m)
	}
}

func (c *Collector) exempt(p *value.Program) bool {
	if p.Flags&value.ProgramNoWeakFree != 0 {
		return true
	}
	return c.config.Hooks.NoWeakFree != nil && c.config.Hooks.NoWeakFree(p)
}

func (c *Collector) discover(r value.Ref) (*marker, error) {
	if mk, exists := c.markers[r]; exists {
		return mk, nil
	}

	ptr, err := c.blocks.Alloc()
	if err != nil {
		return nil, errors.Wrap(err, "allocating marker failed")
	}
	mk := photon.FromPointer[marker](ptr)
	*mk = marker{}

	c.markers[r] = mk
	c.order = append(c.order, r)
	return mk, nil
}

func (c *Collector) reset() {
	for _, mk := range c.markers {
		c.blocks.Free(unsafe.Pointer(mk))
	}
	clear(c.markers)
	clear(c.order)
	c.order = c.order[:0]
	c.queue = c.queue[:0]
}

// tracked returns the payload the collector follows for the value, nil if the value can't be a part of a cycle.
func tracked(v value.Value) value.Ref {
	if v.Ref == nil {
		return nil
	}
	switch v.Type {
	case types.TagArray, types.TagMapping, types.TagMultiset, types.TagObject, types.TagProgram:
		return v.Ref
	case types.TagFunction:
		if o := v.Object(); o != nil {
			return o
		}
	}
	return nil
}
