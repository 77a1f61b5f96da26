package operation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Observation is one raw status read from a control-plane API.
type Observation struct {
	// State is the readiness field (job run state, crawler state, query state).
	State string
	// Outcome is the success/failure field, meaningful once the operation is ready.
	Outcome string
	// Detail carries the service-supplied error text, if any.
	Detail string
}

// StatusSource reads the current state of one external operation.
type StatusSource interface {
	Observe(ctx context.Context, target, token string) (Observation, error)
}

// Spec parameterises the generic poller for one operation type.
type Spec struct {
	Name      string
	Ready     func(Observation) bool
	Succeeded func(Observation) bool
}

// Result is what a single check reports back to the orchestrator.
type Result struct {
	Complete     bool
	Failure      bool
	ErrorMessage string
	Token        string
	Status       string
}

// Poller maps an observation onto {still-running, succeeded, failed}.
// It never loops on its own except through Wait.
type Poller struct {
	spec   Spec
	source StatusSource
}

// NewPoller binds a spec to a status source.
func NewPoller(spec Spec, source StatusSource) *Poller {
	return &Poller{spec: spec, source: source}
}

// Name returns the operation name used in failure messages.
func (p *Poller) Name() string {
	return p.spec.Name
}

// Check performs exactly one read-only status query.
func (p *Poller) Check(ctx context.Context, target, token string) (Result, error) {
	tracer := otel.Tracer("cdr.operation")
	ctx, span := tracer.Start(ctx, "operation.check", trace.WithAttributes(
		attribute.String("operation.name", p.spec.Name),
		attribute.String("operation.target", target),
		attribute.String("operation.token", token),
	))
	defer span.End()

	obs, err := p.source.Observe(ctx, target, token)
	if err != nil {
		span.RecordError(err)
		return Result{}, fmt.Errorf("%s poller: observe: %w", p.spec.Name, err)
	}
	span.SetAttributes(attribute.String("operation.state", obs.State), attribute.String("operation.outcome", obs.Outcome))

	if !p.spec.Ready(obs) {
		return Result{Complete: false, Token: token, Status: obs.State}, nil
	}
	if p.spec.Succeeded(obs) {
		return Result{Complete: true, Status: obs.Outcome}, nil
	}
	return Result{
		Complete:     false,
		Failure:      true,
		ErrorMessage: fmt.Sprintf("Error in %s. Status: %s", p.spec.Name, obs.Outcome),
		Status:       obs.Outcome,
	}, nil
}

// Wait re-checks at a fixed interval until the operation is terminal or ctx ends.
func (p *Poller) Wait(ctx context.Context, target, token string, interval time.Duration) (Result, error) {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	for {
		res, err := p.Check(ctx, target, token)
		if err != nil {
			return Result{}, err
		}
		if res.Complete || res.Failure {
			return res, nil
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Result{}, ctx.Err()
		case <-timer.C:
		}
	}
}
