package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline counts outcomes of the intake pipeline stages. A nil *Pipeline
// is valid and records nothing.
type Pipeline struct {
	classifications *prometheus.CounterVec
	geocodes        *prometheus.CounterVec
	reportsCreated  *prometheus.CounterVec
	transitions     *prometheus.CounterVec
}

// Classification outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Geocode outcomes.
const (
	OutcomeLiteral    = "literal"
	OutcomeResolved   = "resolved"
	OutcomeUnresolved = "unresolved"
)

// NewPipeline registers the pipeline counters with reg.
func NewPipeline(reg prometheus.Registerer) (*Pipeline, error) {
	p := &Pipeline{
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "results_total",
			Help:      "Image classification attempts by outcome.",
		}, []string{"outcome"}),
		geocodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "geocoder",
			Name:      "results_total",
			Help:      "Location resolution attempts by outcome.",
		}, []string{"outcome"}),
		reportsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reports",
			Name:      "created_total",
			Help:      "Reports created by category and severity.",
		}, []string{"category", "severity"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reports",
			Name:      "transitions_total",
			Help:      "Report status changes.",
		}, []string{"from", "to"}),
	}

	for _, c := range []prometheus.Collector{p.classifications, p.geocodes, p.reportsCreated, p.transitions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Pipeline) ObserveClassification(outcome string) {
	if p == nil {
		return
	}
	p.classifications.WithLabelValues(outcome).Inc()
}

func (p *Pipeline) ObserveGeocode(outcome string) {
	if p == nil {
		return
	}
	p.geocodes.WithLabelValues(outcome).Inc()
}

func (p *Pipeline) ObserveReportCreated(category, severity string) {
	if p == nil {
		return
	}
	p.reportsCreated.WithLabelValues(category, severity).Inc()
}

func (p *Pipeline) ObserveTransition(from, to string) {
	if p == nil {
		return
	}
	p.transitions.WithLabelValues(from, to).Inc()
}
