package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wariline/wariline/internal/accounts"
	"github.com/wariline/wariline/internal/archive"
	"github.com/wariline/wariline/internal/shared"
)

type memoryRepo struct {
	mu       sync.Mutex
	accounts map[string]accounts.Account

	failUpdate map[string]error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		accounts:   make(map[string]accounts.Account),
		failUpdate: make(map[string]error),
	}
}

func (r *memoryRepo) seed(acc accounts.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[acc.ID] = acc
}

func (r *memoryRepo) stored(id string) accounts.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accounts[id]
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, accounts.Repository) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) Create(ctx context.Context, acc *accounts.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.accounts[acc.ID]; exists {
		return nil
	}
	r.accounts[acc.ID] = *acc
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, id string) (*accounts.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[id]
	if !ok || acc.DeletedAt != nil {
		return nil, shared.ErrNotFound
	}
	copied := acc
	return &copied, nil
}

func (r *memoryRepo) GetByNumber(ctx context.Context, number string) (*accounts.Account, error) {
	return nil, shared.ErrNotFound
}

func (r *memoryRepo) List(ctx context.Context, req accounts.ListAccountsRequest) ([]accounts.Account, error) {
	return nil, nil
}

func (r *memoryRepo) ListScheduledActivations(ctx context.Context, now time.Time) ([]accounts.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []accounts.Account
	for _, acc := range r.accounts {
		if acc.DeletedAt != nil || !acc.ScheduledBlockPending() {
			continue
		}
		if acc.Metadata.BlockStartsAt != nil && !acc.Metadata.BlockStartsAt.After(now) {
			out = append(out, acc)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListExpiredBlocked(ctx context.Context, now time.Time) ([]accounts.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []accounts.Account
	for _, acc := range r.accounts {
		if acc.DeletedAt != nil || acc.Status != accounts.StatusBlocked {
			continue
		}
		if acc.Metadata.BlockEndsAt != nil && !acc.Metadata.BlockEndsAt.After(now) {
			out = append(out, acc)
		}
	}
	return out, nil
}

func (r *memoryRepo) UpdateTransition(ctx context.Context, acc *accounts.Account, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failUpdate[acc.ID]; ok {
		return err
	}
	stored, ok := r.accounts[acc.ID]
	if !ok || stored.DeletedAt != nil {
		return shared.ErrNotFound
	}
	if stored.Metadata.Version != expectedVersion {
		return shared.ErrConcurrentModification
	}
	r.accounts[acc.ID] = *acc
	return nil
}

func (r *memoryRepo) SoftDelete(ctx context.Context, acc *accounts.Account, expectedVersion int64) error {
	return errors.New("not used")
}

type fakeArchiver struct {
	mu    sync.Mutex
	calls []struct {
		ID     string
		Reason archive.Reason
	}
	err error
}

func (a *fakeArchiver) Archive(ctx context.Context, acc *accounts.Account, reason archive.Reason) (*archive.ArchivedAccount, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	a.calls = append(a.calls, struct {
		ID     string
		Reason archive.Reason
	}{acc.ID, reason})
	return &archive.ArchivedAccount{OriginalID: acc.ID, Reason: reason}, nil
}

type memoryAudit struct {
	mu      sync.Mutex
	entries []shared.AuditLog
}

func (a *memoryAudit) Record(ctx context.Context, entry shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

func (a *memoryAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

type memoryNotifier struct {
	mu     sync.Mutex
	events []accounts.Event
}

func (n *memoryNotifier) Dispatch(ctx context.Context, event accounts.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func scheduledAccount(id string, startsAt, endsAt time.Time) accounts.Account {
	scheduled := string(accounts.StatusBlocked)
	reason := "demande agence"
	return accounts.Account{
		ID:      id,
		Number:  "WL-" + id,
		OwnerID: "owner-" + id,
		Type:    accounts.TypeSavings,
		Status:  accounts.StatusActive,
		Metadata: accounts.Metadata{
			ScheduledStatus: &scheduled,
			BlockReason:     &reason,
			BlockStartsAt:   &startsAt,
			BlockEndsAt:     &endsAt,
			Version:         1,
		},
	}
}

func blockedAccount(id string, endsAt time.Time) accounts.Account {
	reason := "demande agence"
	return accounts.Account{
		ID:      id,
		Number:  "WL-" + id,
		OwnerID: "owner-" + id,
		Type:    accounts.TypeSavings,
		Status:  accounts.StatusBlocked,
		Metadata: accounts.Metadata{
			BlockReason: &reason,
			BlockEndsAt: &endsAt,
			Version:     2,
		},
	}
}

func newTestRunner(repo *memoryRepo, archiver Archiver, audit shared.AuditRecorder, notifier Notifier, policy ExpiryPolicy, now time.Time) *Runner {
	runner := NewRunner(Config{
		Accounts: repo,
		Archiver: archiver,
		Audit:    audit,
		Notifier: notifier,
		Policy:   policy,
	})
	runner.WithClock(func() time.Time { return now })
	return runner
}

func TestRunActivatesDueScheduledBlocks(t *testing.T) {
	now := time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC)
	repo := newMemoryRepo()
	repo.seed(scheduledAccount("a1", now.Add(-time.Hour), now.Add(30*24*time.Hour)))
	repo.seed(scheduledAccount("a2", now.Add(time.Hour), now.Add(30*24*time.Hour)))

	audit := &memoryAudit{}
	notifier := &memoryNotifier{}
	runner := newTestRunner(repo, nil, audit, notifier, PolicyUnblock, now)

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Activated)
	require.Zero(t, report.Expired)
	require.Zero(t, report.Failed)

	activated := repo.stored("a1")
	require.Equal(t, accounts.StatusBlocked, activated.Status)
	require.Nil(t, activated.Metadata.ScheduledStatus)
	require.EqualValues(t, 2, activated.Metadata.Version)

	untouched := repo.stored("a2")
	require.Equal(t, accounts.StatusActive, untouched.Status)
	require.True(t, untouched.ScheduledBlockPending())

	require.Equal(t, []string{"account.block_activated"}, audit.actions())
	require.Len(t, notifier.events, 1)
	require.Equal(t, accounts.EventBlocked, notifier.events[0].Type)
}

func TestRunActivationBoundaryIsInclusive(t *testing.T) {
	now := time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC)
	repo := newMemoryRepo()
	repo.seed(scheduledAccount("a1", now, now.Add(24*time.Hour)))

	runner := newTestRunner(repo, nil, nil, nil, PolicyUnblock, now)
	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Activated)
}

func TestRunAutoUnblocksExpiredBlocks(t *testing.T) {
	now := time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC)
	repo := newMemoryRepo()
	repo.seed(blockedAccount("b1", now.Add(-time.Minute)))

	audit := &memoryAudit{}
	notifier := &memoryNotifier{}
	runner := newTestRunner(repo, nil, audit, notifier, PolicyUnblock, now)

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Expired)

	settled := repo.stored("b1")
	require.Equal(t, accounts.StatusActive, settled.Status)
	require.Equal(t, AutoUnblockReason, *settled.Metadata.AutoUnblockReason)
	require.Equal(t, now, *settled.Metadata.AutoUnblockedAt)
	require.EqualValues(t, 3, settled.Metadata.Version)

	require.Equal(t, []string{"account.auto_unblocked"}, audit.actions())
	require.Len(t, notifier.events, 1)
	require.Equal(t, accounts.EventUnblocked, notifier.events[0].Type)
	require.Equal(t, AutoUnblockReason, notifier.events[0].Reason)
}

func TestRunSettlesActivationAndExpiryInOnePass(t *testing.T) {
	now := time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC)
	repo := newMemoryRepo()
	// Both boundaries already behind: worker was down across the whole block.
	repo.seed(scheduledAccount("c1", now.Add(-48*time.Hour), now.Add(-24*time.Hour)))

	audit := &memoryAudit{}
	runner := newTestRunner(repo, nil, audit, nil, PolicyUnblock, now)

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Activated)
	require.Equal(t, 1, report.Expired)

	// The account passed through blocked and is active again, with the whole
	// history recorded.
	settled := repo.stored("c1")
	require.Equal(t, accounts.StatusActive, settled.Status)
	require.NotNil(t, settled.Metadata.AutoUnblockedAt)
	require.EqualValues(t, 3, settled.Metadata.Version)
	require.Equal(t, []string{"account.block_activated", "account.auto_unblocked"}, audit.actions())
}

func TestRunArchivePolicySendsExpiredToArchive(t *testing.T) {
	now := time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC)
	repo := newMemoryRepo()
	repo.seed(blockedAccount("d1", now.Add(-time.Minute)))

	archiver := &fakeArchiver{}
	audit := &memoryAudit{}
	runner := newTestRunner(repo, archiver, audit, nil, PolicyArchive, now)

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Expired)

	require.Len(t, archiver.calls, 1)
	require.Equal(t, "d1", archiver.calls[0].ID)
	require.Equal(t, archive.ReasonBlockExpired, archiver.calls[0].Reason)
	require.Equal(t, []string{"account.archived"}, audit.actions())
}

func TestRunArchiveLostRaceIsNotAFailure(t *testing.T) {
	now := time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC)
	repo := newMemoryRepo()
	repo.seed(blockedAccount("d2", now.Add(-time.Minute)))

	// A manual unblock beat the migrator to the account.
	archiver := &fakeArchiver{err: shared.ErrConcurrentModification}
	runner := newTestRunner(repo, archiver, nil, nil, PolicyArchive, now)

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, report.Expired)
	require.Zero(t, report.Failed)
}

func TestRunArchiveFailureCountsAsFailed(t *testing.T) {
	now := time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC)
	repo := newMemoryRepo()
	repo.seed(blockedAccount("e1", now.Add(-time.Minute)))

	archiver := &fakeArchiver{err: errors.New("archive store down")}
	runner := newTestRunner(repo, archiver, nil, nil, PolicyArchive, now)

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, report.Expired)
	require.Equal(t, 1, report.Failed)

	// The source row is untouched; the next run re-selects it.
	require.Equal(t, accounts.StatusBlocked, repo.stored("e1").Status)
}

func TestRunOneFailureDoesNotAbortTheBatch(t *testing.T) {
	now := time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC)
	repo := newMemoryRepo()
	repo.seed(scheduledAccount("f1", now.Add(-time.Hour), now.Add(24*time.Hour)))
	repo.seed(scheduledAccount("f2", now.Add(-time.Hour), now.Add(24*time.Hour)))
	repo.failUpdate["f1"] = errors.New("write timeout")

	runner := newTestRunner(repo, nil, nil, nil, PolicyUnblock, now)

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Activated)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, accounts.StatusBlocked, repo.stored("f2").Status)
}

func TestRunLostVersionRaceIsNotAFailure(t *testing.T) {
	now := time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC)
	repo := newMemoryRepo()
	repo.seed(scheduledAccount("g1", now.Add(-time.Hour), now.Add(24*time.Hour)))
	repo.failUpdate["g1"] = shared.ErrConcurrentModification

	runner := newTestRunner(repo, nil, nil, nil, PolicyUnblock, now)

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, report.Activated)
	require.Zero(t, report.Failed)
}

func TestRunArchiveOnBlockParksActivatedAccounts(t *testing.T) {
	now := time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC)
	repo := newMemoryRepo()
	repo.seed(scheduledAccount("h1", now.Add(-time.Hour), now.Add(30*24*time.Hour)))

	archiver := &fakeArchiver{}
	runner := NewRunner(Config{
		Accounts:       repo,
		Archiver:       archiver,
		Policy:         PolicyUnblock,
		ArchiveOnBlock: true,
	})
	runner.WithClock(func() time.Time { return now })

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Activated)

	require.Len(t, archiver.calls, 1)
	require.Equal(t, archive.ReasonBlockStarted, archiver.calls[0].Reason)
}
