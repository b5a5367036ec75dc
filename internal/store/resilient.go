package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"coldcall-platform/internal/calls"
	"coldcall-platform/internal/session"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

const (
	defaultRetryInitialInterval = 100 * time.Millisecond
	defaultRetryMaxInterval     = time.Second
	defaultRetryMaxElapsed      = 3 * time.Second
)

type ResilientOptions struct {
	Name string

	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RetryMaxElapsed      time.Duration

	// Breaker trips after this many consecutive failures.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	BreakerInterval time.Duration

	Logger *slog.Logger
}

func (o ResilientOptions) withDefaults() ResilientOptions {
	out := o
	if out.Name == "" {
		out.Name = "persistence-gateway"
	}
	if out.RetryInitialInterval <= 0 {
		out.RetryInitialInterval = defaultRetryInitialInterval
	}
	if out.RetryMaxInterval <= 0 {
		out.RetryMaxInterval = defaultRetryMaxInterval
	}
	if out.RetryMaxElapsed <= 0 {
		out.RetryMaxElapsed = defaultRetryMaxElapsed
	}
	if out.BreakerFailures == 0 {
		out.BreakerFailures = 5
	}
	if out.BreakerTimeout <= 0 {
		out.BreakerTimeout = 30 * time.Second
	}
	if out.BreakerInterval <= 0 {
		out.BreakerInterval = 60 * time.Second
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}

// Resilient retries transient gateway errors with exponential backoff and
// fails fast through a circuit breaker while the backend is down.
type Resilient struct {
	next session.Gateway
	cb   *gobreaker.CircuitBreaker
	opts ResilientOptions
	log  *slog.Logger
}

var _ session.Gateway = (*Resilient)(nil)

func NewResilient(next session.Gateway, opts ResilientOptions) *Resilient {
	opts = opts.withDefaults()
	log := opts.Logger.With("component", opts.Name)
	settings := gobreaker.Settings{
		Name:        opts.Name,
		MaxRequests: 3,
		Interval:    opts.BreakerInterval,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		// Caller mistakes say nothing about backend health.
		IsSuccessful: func(err error) bool {
			return err == nil || isCallerError(err)
		},
	}
	return &Resilient{next: next, cb: gobreaker.NewCircuitBreaker(settings), opts: opts, log: log}
}

func (r *Resilient) State() gobreaker.State { return r.cb.State() }

func isCallerError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidField) ||
		errors.Is(err, session.ErrNotFound)
}

func isPermanent(err error) bool {
	return isCallerError(err) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests)
}

func (r *Resilient) policy(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.RetryInitialInterval
	b.MaxInterval = r.opts.RetryMaxInterval
	b.MaxElapsedTime = r.opts.RetryMaxElapsed
	b.Reset()
	return backoff.WithContext(b, ctx)
}

func run[T any](ctx context.Context, r *Resilient, op string, fn func(context.Context) (T, error)) (T, error) {
	notify := func(err error, d time.Duration) {
		r.log.Warn("retrying gateway operation", "op", op, "err", err, "after", d)
	}
	return backoff.RetryNotifyWithData(func() (T, error) {
		v, err := r.cb.Execute(func() (interface{}, error) { return fn(ctx) })
		if err != nil {
			var zero T
			if isPermanent(err) {
				return zero, backoff.Permanent(err)
			}
			return zero, err
		}
		return v.(T), nil
	}, r.policy(ctx), notify)
}

func exec(ctx context.Context, r *Resilient, op string, fn func(context.Context) error) error {
	_, err := run(ctx, r, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func (r *Resilient) LoadContactList(ctx context.Context, workspaceID, listID string) (calls.ContactList, error) {
	return run(ctx, r, "load_contact_list", func(ctx context.Context) (calls.ContactList, error) {
		return r.next.LoadContactList(ctx, workspaceID, listID)
	})
}

func (r *Resilient) CountContacts(ctx context.Context, workspaceID, listID string) (int, error) {
	return run(ctx, r, "count_contacts", func(ctx context.Context) (int, error) {
		return r.next.CountContacts(ctx, workspaceID, listID)
	})
}

func (r *Resilient) ListCallHistory(ctx context.Context, workspaceID, listID string) ([]calls.Record, error) {
	return run(ctx, r, "list_call_history", func(ctx context.Context) ([]calls.Record, error) {
		return r.next.ListCallHistory(ctx, workspaceID, listID)
	})
}

type progressResult struct {
	p     calls.Progress
	found bool
}

func (r *Resilient) GetProgress(ctx context.Context, workspaceID, listID string) (calls.Progress, bool, error) {
	res, err := run(ctx, r, "get_progress", func(ctx context.Context) (progressResult, error) {
		p, found, err := r.next.GetProgress(ctx, workspaceID, listID)
		return progressResult{p: p, found: found}, err
	})
	return res.p, res.found, err
}

func (r *Resilient) SaveCallOutcome(ctx context.Context, rec calls.Record) error {
	return exec(ctx, r, "save_call_outcome", func(ctx context.Context) error {
		return r.next.SaveCallOutcome(ctx, rec)
	})
}

func (r *Resilient) SaveFollowUp(ctx context.Context, ref calls.Ref, kind calls.FollowUpKind, date, clock string) error {
	return exec(ctx, r, "save_follow_up", func(ctx context.Context) error {
		return r.next.SaveFollowUp(ctx, ref, kind, date, clock)
	})
}

func (r *Resilient) SaveNotes(ctx context.Context, ref calls.Ref, content string) error {
	return exec(ctx, r, "save_notes", func(ctx context.Context) error {
		return r.next.SaveNotes(ctx, ref, content)
	})
}

func (r *Resilient) UpdateCallHistoryRecord(ctx context.Context, callID string, fields map[string]any) error {
	return exec(ctx, r, "update_call_history_record", func(ctx context.Context) error {
		return r.next.UpdateCallHistoryRecord(ctx, callID, fields)
	})
}

func (r *Resilient) SaveContactListProgress(ctx context.Context, p calls.Progress) error {
	return exec(ctx, r, "save_contact_list_progress", func(ctx context.Context) error {
		return r.next.SaveContactListProgress(ctx, p)
	})
}
