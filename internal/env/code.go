package env

import (
	"github.com/Observe-l/tdc-polar/drift"
	"github.com/Observe-l/tdc-polar/internal/config"
	"github.com/Observe-l/tdc-polar/internal/sim"
	"github.com/Observe-l/tdc-polar/polar"
)

// Code is an encoder together with a factory of independent decoders.
type Code struct {
	Encoder    sim.Encoder
	NewDecoder func() sim.Decoder
	// CRC is nil when the code has no check bits.
	CRC *polar.CRC
}

// NewCode builds the encoder and decoder cfg describes for a frozen mask.
// With a CRC or a list size above one the decoder is SCL, otherwise SC.
func NewCode(cfg config.Config, model *drift.Model, frozen []bool) (*Code, error) {
	poly, err := cfg.CRCPoly()
	if err != nil {
		return nil, err
	}
	p, ch := cfg.PolarParams(), cfg.ChannelParams()
	c := &Code{}
	if poly != nil {
		if c.CRC, err = polar.NewCRC(poly); err != nil {
			return nil, err
		}
		if c.Encoder, err = polar.NewCRCEncoder(p.CodeLength, p.InfoLength, frozen, c.CRC); err != nil {
			return nil, err
		}
	} else if c.Encoder, err = polar.NewEncoder(p.CodeLength, frozen); err != nil {
		return nil, err
	}

	if c.CRC == nil && cfg.Decoder.ListSize == 1 {
		proto, err := polar.NewSCDecoder(p, ch, model, frozen)
		if err != nil {
			return nil, err
		}
		c.NewDecoder = func() sim.Decoder { return proto.Clone() }
		return c, nil
	}
	proto, err := polar.NewSCLDecoder(p, ch, model, frozen, cfg.Decoder.ListSize, c.CRC)
	if err != nil {
		return nil, err
	}
	c.NewDecoder = func() sim.Decoder { return proto.Clone() }
	return c, nil
}
