package ylisp

// MemoryShortage is returned (not panicked) by FullCollect when a full
// pass freed less than the pool's minimum-effect threshold -- the pool
// is still usable, but the host should expect PoolExhausted soon.
type MemoryShortage struct {
	Freed    int
	Capacity int
}

func (e MemoryShortage) Error() string {
	return "OutOfMemory: full collection recovered too little memory"
}

// ShouldFullCollect reports whether pool occupancy has crossed the
// configured high-water mark. Callers only act on this at the
// outermost save-point (AtOutermostSavepoint), per the design.
func (p *Pool) ShouldFullCollect() bool {
	return p.occupancy() >= p.gcTriggerPercent
}

// FullCollect runs a full mark-and-sweep pass: clear every gc-mark,
// mark from roots (following pairs and custom-atom Visit), then
// recycle every unmarked, currently-used cell. The caller is
// responsible for having already brought every live context to SAFE
// (Coordinator.WithExclusive) before calling this -- FullCollect does
// not itself coordinate with other threads.
func (p *Pool) FullCollect(roots []Ref) error {
	for i := range p.cells {
		p.cells[i].gcMark = false
	}

	var mark func(Ref)
	mark = func(r Ref) {
		if r.IsPredefined() || r == RefNone {
			return
		}
		c := p.at(r)
		if c.gcMark {
			return
		}
		c.gcMark = true
		p.Visit(r, mark)
	}
	for _, r := range roots {
		mark(r)
	}

	freed := 0
	kept := p.used[:0]
	for _, idx := range p.used {
		if p.cells[idx].gcMark {
			kept = append(kept, idx)
		} else {
			p.recycle(idx)
			freed++
		}
	}
	p.used = kept

	if p.logger != nil {
		p.logger.Debugf("full collect: freed %d/%d cells (usage now %d)", freed, len(p.cells), len(p.used))
	}

	minFreed := int(p.gcMinEffectPercent * float64(len(p.cells)))
	if freed < minFreed {
		return MemoryShortage{Freed: freed, Capacity: len(p.cells)}
	}
	return nil
}

// Stat is a point-in-time snapshot of pool occupancy, modeled on the
// usage/stat reporting the original mempool exposes to its host.
type Stat struct {
	Capacity   int
	Used       int
	Free       int
	Savepoints int
}

// Stat returns a snapshot of the pool's current allocation state.
func (p *Pool) Stat() Stat {
	return Stat{
		Capacity:   len(p.cells),
		Used:       len(p.used),
		Free:       len(p.free),
		Savepoints: len(p.savepoints),
	}
}

// LogStat writes the pool's current usage to logger at debug level,
// the equivalent of the original implementation's periodic stat log.
func (p *Pool) LogStat() {
	if p.logger == nil {
		return
	}
	s := p.Stat()
	p.logger.Debugf("pool stat: used=%d free=%d capacity=%d savepoints=%d", s.Used, s.Free, s.Capacity, s.Savepoints)
}
