package license

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the OpenTelemetry instruments for the license core. All
// methods are nil-receiver safe so the core can run uninstrumented in tests.
type Metrics struct {
	validations     metric.Int64Counter
	issued          metric.Int64Counter
	refunds         metric.Int64Counter
	trialRejections metric.Int64Counter
}

// NewMetrics creates the license instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.validations, err = meter.Int64Counter("license_validations_total",
		metric.WithDescription("License validation attempts by result and code"))
	if err != nil {
		return nil, err
	}
	m.issued, err = meter.Int64Counter("licenses_issued_total",
		metric.WithDescription("Licenses issued by class and source"))
	if err != nil {
		return nil, err
	}
	m.refunds, err = meter.Int64Counter("license_refunds_total",
		metric.WithDescription("Refund events processed"))
	if err != nil {
		return nil, err
	}
	m.trialRejections, err = meter.Int64Counter("trial_rejections_total",
		metric.WithDescription("Trial requests refused by reason"))
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) recordValidation(ctx context.Context, res ValidationResult) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.Bool("success", res.Success),
		attribute.Bool("trial", res.IsTrial),
	}
	if !res.Success {
		attrs = append(attrs, attribute.String("code", string(res.Code)))
	}
	m.validations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) recordIssued(ctx context.Context, class Class, source Platform) {
	if m == nil {
		return
	}
	m.issued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("class", string(class)),
		attribute.String("source", string(source)),
	))
}

func (m *Metrics) recordRefund(ctx context.Context) {
	if m == nil {
		return
	}
	m.refunds.Add(ctx, 1)
}

func (m *Metrics) recordTrialRejection(ctx context.Context, reason Code) {
	if m == nil {
		return
	}
	m.trialRejections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", string(reason)),
	))
}
