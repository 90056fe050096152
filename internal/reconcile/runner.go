package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wariline/wariline/internal/accounts"
	"github.com/wariline/wariline/internal/archive"
	"github.com/wariline/wariline/internal/shared"
)

// ExpiryPolicy decides what happens to a blocked account once its block
// period ends.
type ExpiryPolicy string

const (
	// PolicyUnblock flips the account back to active in place.
	PolicyUnblock ExpiryPolicy = "unblock"
	// PolicyArchive moves the account (and per configuration its
	// transactions) to the archive store.
	PolicyArchive ExpiryPolicy = "archive"
)

// Valid reports whether the policy is a known one.
func (p ExpiryPolicy) Valid() bool {
	return p == PolicyUnblock || p == PolicyArchive
}

// AutoUnblockReason is written into the metadata of automatically unblocked
// accounts, same wording the legacy system used.
const AutoUnblockReason = "Période de blocage expirée"

// Archiver is the migrator-side contract.
type Archiver interface {
	Archive(ctx context.Context, acc *accounts.Account, reason archive.Reason) (*archive.ArchivedAccount, error)
}

// Notifier emits domain events; delivery failures never surface here.
type Notifier interface {
	Dispatch(ctx context.Context, event accounts.Event)
}

// Report summarises one reconciliation run.
type Report struct {
	Activated int `json:"activated"`
	Expired   int `json:"expired"`
	Failed    int `json:"failed"`
}

// Config collects the runner dependencies.
type Config struct {
	Accounts accounts.Repository
	Archiver Archiver
	Audit    shared.AuditRecorder
	Notifier Notifier
	Policy   ExpiryPolicy
	// ArchiveOnBlock moves the account to the archive store for the duration
	// of its block instead of keeping the blocked row in the operational
	// store. An hourly sweep restores it once the hold ends.
	ArchiveOnBlock bool
	// Parallelism bounds concurrent per-account processing within one run.
	Parallelism int
	Logger      *slog.Logger
}

// Runner performs one bounded reconciliation pass: activate due scheduled
// blocks, then settle expired blocks per policy. Each account is processed in
// its own transactional scope, so one failure never aborts the batch; the
// failed account is naturally retried on the next run because the same
// predicate re-selects it.
type Runner struct {
	accounts       accounts.Repository
	archiver       Archiver
	audit          shared.AuditRecorder
	notifier       Notifier
	policy         ExpiryPolicy
	archiveOnBlock bool
	parallelism    int
	logger         *slog.Logger
	clock          func() time.Time
}

// NewRunner constructs a Runner.
func NewRunner(cfg Config) *Runner {
	policy := cfg.Policy
	if !policy.Valid() {
		policy = PolicyUnblock
	}
	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = 4
	}
	return &Runner{
		accounts:       cfg.Accounts,
		archiver:       cfg.Archiver,
		audit:          cfg.Audit,
		notifier:       cfg.Notifier,
		policy:         policy,
		archiveOnBlock: cfg.ArchiveOnBlock,
		parallelism:    parallelism,
		logger:         cfg.Logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (r *Runner) WithClock(clock func() time.Time) {
	if r != nil && clock != nil {
		r.clock = clock
	}
}

// Run executes one reconciliation pass. Activations are applied before
// expiries are queried, so a block that both activates and expires between
// two runs still passes through the blocked state and is settled in this same
// pass, never skipped straight to unblocked.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	if r == nil || r.accounts == nil {
		return Report{}, errors.New("reconcile: runner not configured")
	}
	now := r.clock()
	var report Report
	var mu sync.Mutex

	scheduled, err := r.accounts.ListScheduledActivations(ctx, now)
	if err != nil {
		return report, err
	}
	r.forEach(ctx, scheduled, func(ctx context.Context, acc accounts.Account) {
		outcome := r.activate(ctx, &acc, now)
		mu.Lock()
		switch outcome {
		case outcomeApplied:
			report.Activated++
		case outcomeFailed:
			report.Failed++
		}
		mu.Unlock()
	})

	expired, err := r.accounts.ListExpiredBlocked(ctx, now)
	if err != nil {
		return report, err
	}
	r.forEach(ctx, expired, func(ctx context.Context, acc accounts.Account) {
		outcome := r.expire(ctx, &acc, now)
		mu.Lock()
		switch outcome {
		case outcomeApplied:
			report.Expired++
		case outcomeFailed:
			report.Failed++
		}
		mu.Unlock()
	})

	r.log().Info("reconciliation run complete",
		slog.Int("activated", report.Activated),
		slog.Int("expired", report.Expired),
		slog.Int("failed", report.Failed))
	return report, nil
}

type outcome int

const (
	outcomeApplied outcome = iota
	outcomeSkipped
	outcomeFailed
)

// forEach fans processing out over independent accounts. Work on distinct
// accounts shares no mutable state; writes to the same account are serialized
// by the version check, not by this pool.
func (r *Runner) forEach(ctx context.Context, accs []accounts.Account, fn func(context.Context, accounts.Account)) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)
	for _, acc := range accs {
		acc := acc
		g.Go(func() error {
			fn(ctx, acc)
			return nil
		})
	}
	_ = g.Wait()
}

// activate flips a due scheduled block to blocked.
func (r *Runner) activate(ctx context.Context, acc *accounts.Account, now time.Time) outcome {
	decision := accounts.Decide(acc, now)
	if decision.Kind != accounts.TransitionActivate {
		return outcomeSkipped
	}

	err := r.accounts.WithTx(ctx, func(ctx context.Context, repo accounts.Repository) error {
		expected := acc.Metadata.Version
		acc.Status = accounts.StatusBlocked
		acc.Metadata.ClearSchedule()
		acc.Metadata.Touch(now)
		acc.UpdatedAt = now
		return repo.UpdateTransition(ctx, acc, expected)
	})
	switch {
	case errors.Is(err, shared.ErrConcurrentModification):
		// A manual writer got there first; the predicate re-selects the
		// account next run if the block is still due.
		r.log().Debug("activation lost version race", slog.String("numero_compte", acc.Number))
		return outcomeSkipped
	case err != nil:
		r.log().Error("activate block",
			slog.String("id", acc.ID),
			slog.String("numero_compte", acc.Number),
			slog.Any("error", err))
		return outcomeFailed
	}

	r.recordAudit(ctx, "account.block_activated", acc, map[string]any{
		"activation_due": decision.At,
		"version":        acc.Metadata.Version,
	})
	if r.notifier != nil {
		reason := ""
		if acc.Metadata.BlockReason != nil {
			reason = *acc.Metadata.BlockReason
		}
		r.notifier.Dispatch(ctx, accounts.Event{Type: accounts.EventBlocked, Account: acc, Reason: reason})
	}

	if r.archiveOnBlock && r.archiver != nil {
		if _, err := r.archiver.Archive(ctx, acc, archive.ReasonBlockStarted); err != nil {
			if errors.Is(err, shared.ErrConcurrentModification) {
				r.log().Debug("park lost version race", slog.String("numero_compte", acc.Number))
			} else {
				// Copy-before-delete makes this retry-safe; the account stays
				// blocked in the operational store until the move completes.
				r.log().Error("archive blocked account",
					slog.String("numero_compte", acc.Number),
					slog.Any("error", err))
			}
		}
	}
	return outcomeApplied
}

// expire settles a blocked account whose period has ended.
func (r *Runner) expire(ctx context.Context, acc *accounts.Account, now time.Time) outcome {
	decision := accounts.Decide(acc, now)
	if decision.Kind != accounts.TransitionExpire {
		return outcomeSkipped
	}

	if r.policy == PolicyArchive {
		if r.archiver == nil {
			r.log().Error("archive policy configured without an archiver", slog.String("numero_compte", acc.Number))
			return outcomeFailed
		}
		if _, err := r.archiver.Archive(ctx, acc, archive.ReasonBlockExpired); err != nil {
			if errors.Is(err, shared.ErrConcurrentModification) {
				r.log().Debug("archival lost version race", slog.String("numero_compte", acc.Number))
				return outcomeSkipped
			}
			r.log().Error("archive expired account",
				slog.String("id", acc.ID),
				slog.String("numero_compte", acc.Number),
				slog.Any("error", err))
			return outcomeFailed
		}
		r.recordAudit(ctx, "account.archived", acc, map[string]any{
			"reason":     string(archive.ReasonBlockExpired),
			"expiry_due": decision.At,
		})
		return outcomeApplied
	}

	err := r.accounts.WithTx(ctx, func(ctx context.Context, repo accounts.Repository) error {
		expected := acc.Metadata.Version
		reason := AutoUnblockReason
		acc.Status = accounts.StatusActive
		acc.Metadata.AutoUnblockedAt = &now
		acc.Metadata.AutoUnblockReason = &reason
		acc.Metadata.ClearSchedule()
		acc.Metadata.Touch(now)
		acc.UpdatedAt = now
		return repo.UpdateTransition(ctx, acc, expected)
	})
	switch {
	case errors.Is(err, shared.ErrConcurrentModification):
		r.log().Debug("expiry lost version race", slog.String("numero_compte", acc.Number))
		return outcomeSkipped
	case err != nil:
		r.log().Error("auto-unblock account",
			slog.String("id", acc.ID),
			slog.String("numero_compte", acc.Number),
			slog.Any("error", err))
		return outcomeFailed
	}

	r.recordAudit(ctx, "account.auto_unblocked", acc, map[string]any{
		"expiry_due": decision.At,
		"version":    acc.Metadata.Version,
	})
	if r.notifier != nil {
		r.notifier.Dispatch(ctx, accounts.Event{Type: accounts.EventUnblocked, Account: acc, Reason: AutoUnblockReason})
	}
	return outcomeApplied
}

func (r *Runner) recordAudit(ctx context.Context, action string, acc *accounts.Account, meta map[string]any) {
	if r.audit == nil {
		return
	}
	entry := shared.AuditLog{
		Action:   action,
		Entity:   "compte",
		EntityID: acc.ID,
		Meta:     meta,
		At:       r.clock(),
	}
	if err := r.audit.Record(ctx, entry); err != nil {
		r.log().Warn("record audit entry",
			slog.String("action", action),
			slog.String("numero_compte", acc.Number),
			slog.Any("error", err))
	}
}

func (r *Runner) log() *slog.Logger {
	if r != nil && r.logger != nil {
		return r.logger
	}
	return slog.Default()
}
