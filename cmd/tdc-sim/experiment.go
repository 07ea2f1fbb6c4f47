package main

import (
	"fmt"

	"github.com/Observe-l/tdc-polar/channel"
	"github.com/Observe-l/tdc-polar/drift"
	"github.com/Observe-l/tdc-polar/polar"
)

func (a *app) model() (*drift.Model, error) {
	m, err := drift.New(a.cfg.DriftParams(), a.cfg.DriftSource())
	if err != nil {
		return nil, fmt.Errorf("load drift model: %w", err)
	}
	return m, nil
}

// selector ranks positions for the information and check bits of the
// configured code.
func (a *app) selector(model *drift.Model, store polar.RankingStore) (*polar.FrozenBitSelector, error) {
	p := a.cfg.PolarParams()
	p.InfoLength += a.cfg.CRCLen()
	opts := []polar.SelectorOption{polar.WithLogger(a.logger)}
	if store != nil {
		opts = append(opts, polar.WithStore(store))
	}
	return polar.NewFrozenBitSelector(p, channel.New(a.cfg.ChannelParams()), model, a.cfg.Simulation.FrozenTrials, opts...)
}
