// Package metrics exports simulation progress as prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Observe-l/tdc-polar/internal/sim"
	"github.com/Observe-l/tdc-polar/polar"
)

// Collectors implements sim.Observer and records analyzer epochs.
type Collectors struct {
	trialDuration prometheus.Histogram
	trials        prometheus.Counter
	wordErrors    prometheus.Counter
	bitErrors     prometheus.Counter
	ber           prometheus.Gauge
	bler          prometheus.Gauge
	progress      prometheus.Gauge

	analysisSims    prometheus.Gauge
	analysisHamming prometheus.Gauge
	analysisBER     prometheus.Gauge
}

var _ sim.Observer = (*Collectors)(nil)

// New registers the collectors on reg with a constant run label.
func New(reg prometheus.Registerer, run string) *Collectors {
	f := promauto.With(reg)
	labels := prometheus.Labels{"run": run}
	return &Collectors{
		trialDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:        "tdcpolar_trial_duration_seconds",
			Help:        "Wall time of one encode, send and decode trial",
			Buckets:     prometheus.ExponentialBuckets(1e-5, 4, 10),
			ConstLabels: labels,
		}),
		trials: f.NewCounter(prometheus.CounterOpts{
			Name:        "tdcpolar_trials_total",
			Help:        "Finished simulation trials",
			ConstLabels: labels,
		}),
		wordErrors: f.NewCounter(prometheus.CounterOpts{
			Name:        "tdcpolar_word_errors_total",
			Help:        "Trials decoded with at least one wrong bit",
			ConstLabels: labels,
		}),
		bitErrors: f.NewCounter(prometheus.CounterOpts{
			Name:        "tdcpolar_bit_errors_total",
			Help:        "Wrong information bits",
			ConstLabels: labels,
		}),
		ber: f.NewGauge(prometheus.GaugeOpts{
			Name:        "tdcpolar_ber",
			Help:        "Bit error rate after the last epoch",
			ConstLabels: labels,
		}),
		bler: f.NewGauge(prometheus.GaugeOpts{
			Name:        "tdcpolar_bler",
			Help:        "Block error rate after the last epoch",
			ConstLabels: labels,
		}),
		progress: f.NewGauge(prometheus.GaugeOpts{
			Name:        "tdcpolar_progress_ratio",
			Help:        "Fraction of the simulation budget used",
			ConstLabels: labels,
		}),
		analysisSims: f.NewGauge(prometheus.GaugeOpts{
			Name:        "tdcpolar_analysis_simulations",
			Help:        "Cumulative frozen bit selection trials",
			ConstLabels: labels,
		}),
		analysisHamming: f.NewGauge(prometheus.GaugeOpts{
			Name:        "tdcpolar_analysis_frozen_changes",
			Help:        "Positions whose frozen status changed in the last epoch",
			ConstLabels: labels,
		}),
		analysisBER: f.NewGauge(prometheus.GaugeOpts{
			Name:        "tdcpolar_analysis_genie_ber",
			Help:        "Genie-aided bit error rate of the current information set",
			ConstLabels: labels,
		}),
	}
}

// ObserveTrial records one decoded word.
func (c *Collectors) ObserveTrial(elapsed time.Duration, bitErrors int) {
	c.trialDuration.Observe(elapsed.Seconds())
	c.trials.Inc()
	if bitErrors > 0 {
		c.wordErrors.Inc()
		c.bitErrors.Add(float64(bitErrors))
	}
}

// ObserveEpoch publishes the running BER, BLER and progress.
func (c *Collectors) ObserveEpoch(r sim.BERResult) {
	c.ber.Set(r.BER)
	c.bler.Set(r.BLER)
	c.progress.Set(r.Progress)
}

// ObserveAnalysis publishes one frozen-set analysis epoch.
func (c *Collectors) ObserveAnalysis(rep polar.EpochReport) {
	c.analysisSims.Set(float64(rep.Simulations))
	c.analysisHamming.Set(float64(rep.Hamming))
	c.analysisBER.Set(rep.BER)
}
