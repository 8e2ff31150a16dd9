package host

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "rowclaim/host"

// Metrics counts runner activity.
type Metrics struct {
	events  metric.Int64Counter
	errors  metric.Int64Counter
	retries metric.Int64Counter
}

// NewMetrics registers the runner's counters with mp, or with the global
// provider when mp is nil.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	var meter metric.Meter
	if mp != nil {
		meter = mp.Meter(meterName)
	} else {
		meter = otel.Meter(meterName)
	}

	events, err := meter.Int64Counter("rowclaim.host.events",
		metric.WithDescription("Trigger events emitted, by kind"),
		metric.WithUnit("{event}"))
	if err != nil {
		return nil, err
	}
	errs, err := meter.Int64Counter("rowclaim.host.activation_errors",
		metric.WithDescription("Activations that ended in an error, by class"),
		metric.WithUnit("{activation}"))
	if err != nil {
		return nil, err
	}
	retries, err := meter.Int64Counter("rowclaim.host.retries",
		metric.WithDescription("Activations retried after a connection error"),
		metric.WithUnit("{activation}"))
	if err != nil {
		return nil, err
	}
	return &Metrics{events: events, errors: errs, retries: retries}, nil
}

func (m *Metrics) eventEmitted(ctx context.Context, kind string) {
	m.events.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) activationFailed(ctx context.Context, class string) {
	m.errors.Add(ctx, 1, metric.WithAttributes(attribute.String("class", class)))
}

func (m *Metrics) retried(ctx context.Context) {
	m.retries.Add(ctx, 1)
}
