package maintenance

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/event"
	"github.com/louisbranch/walletsaga/internal/services/ledger/storage"
)

type outboxRow struct {
	Stream        string `json:"stream"`
	Seq           uint64 `json:"seq"`
	EventType     string `json:"event_type"`
	Status        string `json:"status"`
	AttemptCount  int    `json:"attempt_count"`
	NextAttemptAt string `json:"next_attempt_at"`
	LastError     string `json:"last_error,omitempty"`
}

type outboxSummary struct {
	Pending         int    `json:"pending"`
	Processing      int    `json:"processing"`
	Failed          int    `json:"failed"`
	Dead            int    `json:"dead"`
	OldestStream    string `json:"oldest_stream,omitempty"`
	OldestSeq       uint64 `json:"oldest_seq,omitempty"`
	OldestPendingAt string `json:"oldest_pending_at,omitempty"`
}

type outboxReport struct {
	Mode    string        `json:"mode"`
	Status  string        `json:"status,omitempty"`
	Limit   int           `json:"limit"`
	Summary outboxSummary `json:"summary"`
	Rows    []outboxRow   `json:"rows"`
}

type outboxRequeueDeadResult struct {
	Mode     string `json:"mode"`
	Limit    int    `json:"limit"`
	Requeued int    `json:"requeued"`
}

func runOutboxReport(ctx context.Context, inspector outboxInspector, status string, limit int, jsonOutput bool, out io.Writer) error {
	if inspector == nil {
		return fmt.Errorf("outbox inspector is not configured")
	}
	if limit <= 0 {
		return fmt.Errorf("outbox limit must be > 0")
	}
	filter := strings.ToLower(strings.TrimSpace(status))

	summary, err := inspector.GetOutboxSummary(ctx)
	if err != nil {
		return fmt.Errorf("read outbox summary: %w", err)
	}
	entries, err := inspector.ListOutboxEntries(ctx, storage.OutboxStatus(filter), limit)
	if err != nil {
		return fmt.Errorf("list outbox rows: %w", err)
	}

	report := outboxReport{
		Mode:   "outbox",
		Status: filter,
		Limit:  limit,
		Summary: outboxSummary{
			Pending:      summary.PendingCount,
			Processing:   summary.ProcessingCount,
			Failed:       summary.FailedCount,
			Dead:         summary.DeadCount,
			OldestStream: summary.OldestStream,
			OldestSeq:    summary.OldestSeq,
		},
		Rows: make([]outboxRow, 0, len(entries)),
	}
	if !summary.OldestPendingAt.IsZero() {
		report.Summary.OldestPendingAt = summary.OldestPendingAt.UTC().Format(time.RFC3339)
	}
	for _, entry := range entries {
		report.Rows = append(report.Rows, outboxRow{
			Stream:        event.StreamKey(entry.AggregateType, entry.AggregateID),
			Seq:           entry.Seq,
			EventType:     string(entry.EventType),
			Status:        string(entry.Status),
			AttemptCount:  entry.AttemptCount,
			NextAttemptAt: entry.NextAttemptAt.UTC().Format(time.RFC3339),
			LastError:     entry.LastError,
		})
	}
	if jsonOutput {
		return writeJSON(out, report)
	}

	fmt.Fprintf(out, "Outbox summary: pending=%d processing=%d failed=%d dead=%d\n",
		report.Summary.Pending, report.Summary.Processing, report.Summary.Failed, report.Summary.Dead)
	if report.Summary.OldestStream == "" || report.Summary.OldestPendingAt == "" {
		fmt.Fprintln(out, "Oldest pending/failed row: none")
	} else {
		fmt.Fprintf(out, "Oldest pending/failed row: %s@%d next_attempt_at=%s\n",
			report.Summary.OldestStream, report.Summary.OldestSeq, report.Summary.OldestPendingAt)
	}
	if filter == "" {
		fmt.Fprintf(out, "Rows (all statuses, limit=%d):\n", limit)
	} else {
		fmt.Fprintf(out, "Rows (status=%s, limit=%d):\n", filter, limit)
	}
	for _, row := range report.Rows {
		fmt.Fprintf(out, "- %s@%d status=%s attempts=%d next_attempt_at=%s type=%s\n",
			row.Stream, row.Seq, row.Status, row.AttemptCount, row.NextAttemptAt, row.EventType)
		if strings.TrimSpace(row.LastError) != "" {
			fmt.Fprintf(out, "  last_error=%s\n", row.LastError)
		}
	}
	return nil
}

func runOutboxRequeueDeadRows(ctx context.Context, requeuer outboxRequeuer, limit int, now time.Time, jsonOutput bool, out io.Writer) error {
	if requeuer == nil {
		return fmt.Errorf("outbox requeuer is not configured")
	}
	if limit <= 0 {
		return fmt.Errorf("outbox requeue limit must be > 0")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	requeued, err := requeuer.RequeueDeadOutboxEntries(ctx, limit, now)
	if err != nil {
		return fmt.Errorf("requeue dead outbox rows: %w", err)
	}
	if jsonOutput {
		return writeJSON(out, outboxRequeueDeadResult{Mode: "outbox-requeue-dead", Limit: limit, Requeued: requeued})
	}
	fmt.Fprintf(out, "Requeued dead outbox rows: %d (limit=%d)\n", requeued, limit)
	return nil
}

type attemptRow struct {
	EventID      string `json:"event_id"`
	EventType    string `json:"event_type"`
	Consumer     string `json:"consumer"`
	Outcome      string `json:"outcome"`
	AttemptCount int    `json:"attempt_count"`
	LastError    string `json:"last_error,omitempty"`
	CreatedAt    string `json:"created_at"`
}

func runAttemptsReport(ctx context.Context, lister attemptLister, limit int, jsonOutput bool, out io.Writer) error {
	if lister == nil {
		return fmt.Errorf("attempt lister is not configured")
	}
	attempts, err := lister.ListAttempts(ctx, limit)
	if err != nil {
		return fmt.Errorf("list attempts: %w", err)
	}
	rows := make([]attemptRow, 0, len(attempts))
	for _, attempt := range attempts {
		rows = append(rows, attemptRow{
			EventID:      attempt.EventID,
			EventType:    attempt.EventType,
			Consumer:     attempt.Consumer,
			Outcome:      attempt.Outcome,
			AttemptCount: attempt.AttemptCount,
			LastError:    attempt.LastError,
			CreatedAt:    attempt.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	if jsonOutput {
		return writeJSON(out, struct {
			Mode     string       `json:"mode"`
			Attempts []attemptRow `json:"attempts"`
		}{Mode: "attempts", Attempts: rows})
	}
	fmt.Fprintf(out, "Recent attempts (limit=%d):\n", limit)
	for _, row := range rows {
		fmt.Fprintf(out, "- %s %s consumer=%s outcome=%s attempts=%d at=%s\n",
			row.EventID, row.EventType, row.Consumer, row.Outcome, row.AttemptCount, row.CreatedAt)
		if strings.TrimSpace(row.LastError) != "" {
			fmt.Fprintf(out, "  last_error=%s\n", row.LastError)
		}
	}
	return nil
}
