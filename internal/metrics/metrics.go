// Package metrics records engine counters through the OpenTelemetry metric
// API and optionally exports them over OTLP/gRPC.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
)

const meterName = "github.com/Shivanand-hulikatti/ticket-inventory"

// Recorder holds the engine's instruments. The zero value is not usable;
// a nil *Recorder is, and records nothing.
type Recorder struct {
	purchases       metric.Int64Counter
	released        metric.Int64Counter
	ticketChanges   metric.Int64Counter
	eventChanges    metric.Int64Counter
	retries         metric.Int64Counter
	cascadedTickets metric.Int64Counter
}

// New creates the instruments on the given meter provider.
func New(provider metric.MeterProvider) (*Recorder, error) {
	meter := provider.Meter(meterName)

	var r Recorder
	var errs []error
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit("{count}"))
		errs = append(errs, err)
		return c
	}
	r.purchases = counter("ticketing.purchases", "Ticket purchase attempts by outcome")
	r.released = counter("ticketing.capacity.released", "Capacity units returned to events")
	r.ticketChanges = counter("ticketing.ticket.transitions", "Ticket status transitions")
	r.eventChanges = counter("ticketing.event.transitions", "Event status transitions")
	r.retries = counter("ticketing.retries", "Units of work retried after a concurrent update")
	r.cascadedTickets = counter("ticketing.cascade.tickets", "Tickets transitioned by event cancellation")

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("create instruments: %w", err)
	}
	return &r, nil
}

// NewGlobal creates the instruments on the global meter provider.
func NewGlobal() (*Recorder, error) {
	return New(otel.GetMeterProvider())
}

// Purchase records one purchase attempt. Outcome is "ok" or an error code.
func (r *Recorder) Purchase(ctx context.Context, outcome string) {
	if r == nil {
		return
	}
	r.purchases.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Released records capacity units returned to an event.
func (r *Recorder) Released(ctx context.Context, units int) {
	if r == nil || units == 0 {
		return
	}
	r.released.Add(ctx, int64(units))
}

// TicketTransition records a ticket moving to status to.
func (r *Recorder) TicketTransition(ctx context.Context, to string) {
	if r == nil {
		return
	}
	r.ticketChanges.Add(ctx, 1, metric.WithAttributes(attribute.String("to", to)))
}

// EventTransition records an event moving to status to.
func (r *Recorder) EventTransition(ctx context.Context, to string) {
	if r == nil {
		return
	}
	r.eventChanges.Add(ctx, 1, metric.WithAttributes(attribute.String("to", to)))
}

// Retry records a retried unit of work.
func (r *Recorder) Retry(ctx context.Context, op string) {
	if r == nil {
		return
	}
	r.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// Cascade records tickets transitioned by one event cancellation.
func (r *Recorder) Cascade(ctx context.Context, tickets int, refunded bool) {
	if r == nil || tickets == 0 {
		return
	}
	r.cascadedTickets.Add(ctx, int64(tickets), metric.WithAttributes(attribute.Bool("refunded", refunded)))
}

// ExportConfig configures the OTLP exporter.
type ExportConfig struct {
	ServiceName   string
	CollectorAddr string
	Interval      time.Duration
}

// StartExporter installs an SDK meter provider exporting to an OTLP/gRPC
// collector as the global provider. The returned function flushes and stops it.
func StartExporter(ctx context.Context, cfg ExportConfig) (func(context.Context) error, error) {
	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.CollectorAddr),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	// Not merged with resource.Default(): its schema URL differs from semconv's.
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.TelemetrySDKLanguageGo,
	)

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.Interval))),
	)
	otel.SetMeterProvider(provider)
	return provider.Shutdown, nil
}
