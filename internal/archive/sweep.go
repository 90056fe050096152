package archive

import (
	"context"
	"log/slog"
	"time"
)

// RestoreDue returns hold-expired accounts from the archive store to the
// operational store. Like the reconciliation runner it is a best-effort
// batch: one account failing is logged and does not stop the rest, the next
// sweep re-selects it.
func (m *Migrator) RestoreDue(ctx context.Context, now time.Time) (restored, failed int, err error) {
	due, err := m.ArchiveRepo.ListDueForRestore(ctx, now)
	if err != nil {
		return 0, 0, err
	}
	for i := range due {
		arch := &due[i]
		if _, err := m.Unarchive(ctx, arch); err != nil {
			failed++
			m.log().Error("restore archived account",
				slog.String("original_id", arch.OriginalID),
				slog.String("numero_compte", arch.Number),
				slog.Any("error", err))
			continue
		}
		restored++
	}
	return restored, failed, nil
}
