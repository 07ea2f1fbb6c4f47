package polar

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Observe-l/tdc-polar/channel"
	"github.com/Observe-l/tdc-polar/drift"
)

// pathSlot owns the complete state of one list path.
type pathSlot struct {
	u      []uint8
	table  *PathTable
	engine *Engine
}

func (p *pathSlot) copyFrom(src *pathSlot) {
	copy(p.u, src.u)
	p.table.CopyFrom(src.table)
	p.engine.CopyFrom(src.engine)
}

type candidate struct {
	slot int
	bit  uint8
	ll   float64
}

// SCLDecoder is a successive cancellation list decoder. With a CRC the
// terminal choice is the first list entry whose CRC word checks; without one,
// or when none checks, it is the most likely entry.
type SCLDecoder struct {
	params   Params
	ch       channel.Params
	model    *drift.Model
	frozen   []bool
	n        int
	listSize int
	crc      *CRC

	slots []*pathSlot
}

// NewSCLDecoder builds a list decoder. params.InfoLength is the message
// length; frozen must leave InfoLength+crc.Len() free positions when crc is
// not nil.
func NewSCLDecoder(params Params, ch channel.Params, model *drift.Model, frozen []bool, listSize int, crc *CRC) (*SCLDecoder, error) {
	if listSize < 1 {
		return nil, errors.New("polar: list size must be at least 1")
	}
	checked := params
	if crc != nil {
		checked.InfoLength += crc.Len()
	}
	n, err := checkShape(checked, frozen)
	if err != nil {
		return nil, err
	}
	return &SCLDecoder{
		params:   params,
		ch:       ch,
		model:    model,
		frozen:   append([]bool(nil), frozen...),
		n:        n,
		listSize: listSize,
		crc:      crc,
	}, nil
}

// Clone returns a decoder with the same configuration and no path state.
func (d *SCLDecoder) Clone() *SCLDecoder {
	c := *d
	c.slots = nil
	return &c
}

// ListSize returns the number of surviving paths.
func (d *SCLDecoder) ListSize() int { return d.listSize }

func (d *SCLDecoder) slot(i int) *pathSlot {
	for len(d.slots) <= i {
		d.slots = append(d.slots, &pathSlot{
			u:      make([]uint8, d.params.CodeLength),
			table:  NewPathTable(d.n),
			engine: NewEngine(d.model, d.n),
		})
	}
	return d.slots[i]
}

// Decode runs list decoding over obs.
func (d *SCLDecoder) Decode(obs []uint8) ([]uint8, error) {
	if len(obs) != d.params.CodeLength {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrObservationLength, len(obs), d.params.CodeLength)
	}
	base := NewChannelLikelihood(obs, d.model.MaxSegment(), d.params.NumSegments, d.ch.Ps, d.ch.PassRatio)

	first := d.slot(0)
	clear(first.u)
	first.table.Reset()
	first.engine.Reset(base)
	active := []int{0}

	cands := make([]candidate, 0, 2*d.listSize)
	survivors := make([]int, d.listSize)
	seen := make([]bool, d.listSize)
	for i := 0; i < d.params.CodeLength; i++ {
		if d.frozen[i] {
			for _, s := range active {
				p := d.slots[s]
				p.u[i] = 0
				p.table.Update(i, 0)
			}
			continue
		}

		cands = cands[:0]
		for _, s := range active {
			p := d.slots[s]
			ll := p.engine.CalcLikelihood(i, p.table)
			cands = append(cands, candidate{slot: s, bit: 0, ll: ll[0]}, candidate{slot: s, bit: 1, ll: ll[1]})
		}
		sort.SliceStable(cands, func(a, b int) bool { return cands[a].ll > cands[b].ll })
		if len(cands) > d.listSize {
			cands = cands[:d.listSize]
		}

		// Free every slot without a survivor, then fork parents with two.
		clear(survivors)
		for _, c := range cands {
			survivors[c.slot]++
		}
		var free []int
		for s := 0; s < d.listSize; s++ {
			if survivors[s] == 0 {
				free = append(free, s)
			}
		}
		clear(seen)
		for k := range cands {
			s := cands[k].slot
			if !seen[s] {
				seen[s] = true
				continue
			}
			dst := free[0]
			free = free[1:]
			d.slot(dst).copyFrom(d.slots[s])
			cands[k].slot = dst
		}

		active = active[:0]
		for _, c := range cands {
			p := d.slots[c.slot]
			p.u[i] = c.bit
			p.table.Update(i, c.bit)
			active = append(active, c.slot)
		}
	}

	if d.crc != nil {
		width := d.params.InfoLength + d.crc.Len()
		for _, s := range active {
			w := ExtractInfo(d.slots[s].u, d.frozen, width)
			if d.crc.Check(w) {
				return w[:d.params.InfoLength], nil
			}
		}
	}
	return ExtractInfo(d.slots[active[0]].u, d.frozen, d.params.InfoLength), nil
}
