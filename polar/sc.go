package polar

import (
	"fmt"

	"github.com/Observe-l/tdc-polar/channel"
	"github.com/Observe-l/tdc-polar/drift"
)

// Decoder recovers an info word from a received word.
type Decoder interface {
	Decode(obs []uint8) ([]uint8, error)
}

// SCDecoder is a single-path successive cancellation decoder.
type SCDecoder struct {
	params Params
	ch     channel.Params
	model  *drift.Model
	frozen []bool
	n      int

	table  *PathTable
	engine *Engine
}

// NewSCDecoder builds a successive-cancellation decoder for frozen.
func NewSCDecoder(params Params, ch channel.Params, model *drift.Model, frozen []bool) (*SCDecoder, error) {
	n, err := checkShape(params, frozen)
	if err != nil {
		return nil, err
	}
	return &SCDecoder{
		params: params,
		ch:     ch,
		model:  model,
		frozen: append([]bool(nil), frozen...),
		n:      n,
		table:  NewPathTable(n),
		engine: NewEngine(model, n),
	}, nil
}

func checkShape(params Params, frozen []bool) (int, error) {
	n, err := params.Exponent()
	if err != nil {
		return 0, err
	}
	if len(frozen) != params.CodeLength {
		return 0, fmt.Errorf("%w: mask length %d, code length %d", ErrFrozenMask, len(frozen), params.CodeLength)
	}
	if free := FreeCount(frozen); free < params.InfoLength {
		return 0, fmt.Errorf("%w: %d free positions for %d info bits", ErrFrozenMask, free, params.InfoLength)
	}
	return n, nil
}

// Clone returns a decoder with the same configuration and its own state.
func (d *SCDecoder) Clone() *SCDecoder {
	return &SCDecoder{
		params: d.params,
		ch:     d.ch,
		model:  d.model,
		frozen: d.frozen,
		n:      d.n,
		table:  NewPathTable(d.n),
		engine: NewEngine(d.model, d.n),
	}
}

// Params returns the code parameters.
func (d *SCDecoder) Params() Params { return d.params }

// FrozenBits returns the mask in use. It must not be modified.
func (d *SCDecoder) FrozenBits() []bool { return d.frozen }

// Init prepares the decoder for a new observation: the path table is zeroed
// and every memo cell invalidated.
func (d *SCDecoder) Init(obs []uint8) error {
	if len(obs) != d.params.CodeLength {
		return fmt.Errorf("%w: got %d, want %d", ErrObservationLength, len(obs), d.params.CodeLength)
	}
	d.table.Reset()
	d.engine.Reset(d.channelLikelihood(obs))
	return nil
}

func (d *SCDecoder) channelLikelihood(obs []uint8) *ChannelLikelihood {
	return NewChannelLikelihood(obs, d.model.MaxSegment(), d.params.NumSegments, d.ch.Ps, d.ch.PassRatio)
}

// CalcLikelihood returns [L0, L1] for raw bit i given the bits already set
// in t. Init must have been called for the current observation.
func (d *SCDecoder) CalcLikelihood(i int, t *PathTable) [2]float64 {
	return d.engine.CalcLikelihood(i, t)
}

// Decode returns the first InfoLength free bits of the decoded word.
func (d *SCDecoder) Decode(obs []uint8) ([]uint8, error) {
	u, err := d.DecodeRaw(obs)
	if err != nil {
		return nil, err
	}
	return ExtractInfo(u, d.frozen, d.params.InfoLength), nil
}

// DecodeRaw returns every decided raw bit, frozen positions included.
func (d *SCDecoder) DecodeRaw(obs []uint8) ([]uint8, error) {
	if err := d.Init(obs); err != nil {
		return nil, err
	}
	u := make([]uint8, d.params.CodeLength)
	for i := range u {
		if !d.frozen[i] {
			ll := d.engine.CalcLikelihood(i, d.table)
			if ll[0] < ll[1] {
				u[i] = 1
			}
		}
		d.table.Update(i, u[i])
	}
	return u, nil
}
