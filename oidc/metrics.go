package oidc

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/openrp/rp/oidc"

// Operation names recorded in the "operation" attribute.
const (
	opAuthURL       = "auth_url"
	opExchange      = "exchange"
	opVerifyIDToken = "verify_id_token"
	opUserInfo      = "userinfo"
	opDiscover      = "discover"
)

// metrics holds the instruments used to record relying party outcomes.
type metrics struct {
	operations metric.Int64Counter
	failures   metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	meter := mp.Meter(meterName)
	m := &metrics{}
	var err error
	m.operations, err = meter.Int64Counter(
		"oidc.rp.operations",
		metric.WithDescription("Number of relying party operations by outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oidc.rp.operations counter: %w", err)
	}
	m.failures, err = meter.Int64Counter(
		"oidc.rp.failures",
		metric.WithDescription("Number of failed relying party operations by error kind"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oidc.rp.failures counter: %w", err)
	}
	return m, nil
}

// record counts the operation's outcome and, for a failure, its error kind.
func (m *metrics) record(ctx context.Context, operation string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
	if err != nil {
		m.failures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("kind", KindOf(err).String()),
		))
	}
}
