package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/example/worship-scheduler/internal/persistence"
	"github.com/example/worship-scheduler/internal/scheduler"
)

type conflictsDocument struct {
	Conflicts []ScheduleConflict `json:"conflicts"`
}

func (d *conflictsDocument) normalize() {
	if d.Conflicts == nil {
		d.Conflicts = []ScheduleConflict{}
	}
}

// ConflictLog persists detected conflicts until a leader resolves them.
type ConflictLog struct {
	docs        documentStore[conflictsDocument]
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewConflictLog constructs a conflict log with the provided dependencies.
func NewConflictLog(store persistence.StateStore, idGenerator func() string, now func() time.Time) *ConflictLog {
	return NewConflictLogWithLogger(store, idGenerator, now, nil)
}

// NewConflictLogWithLogger constructs a conflict log with a specified logger.
func NewConflictLogWithLogger(store persistence.StateStore, idGenerator func() string, now func() time.Time, logger *slog.Logger) *ConflictLog {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &ConflictLog{
		docs: newDocumentStore(store, func() conflictsDocument {
			return conflictsDocument{Conflicts: []ScheduleConflict{}}
		}),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (l *ConflictLog) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, l.logger, "ConflictLog", operation, attrs...)
}

// Record stores a detected conflict. An unresolved record for the same
// member, date, service, instrument and type is returned instead of a copy.
func (l *ConflictLog) Record(ctx context.Context, teamID string, detected scheduler.Conflict) (conflict ScheduleConflict, err error) {
	if l == nil {
		err = fmt.Errorf("ConflictLog is nil")
		return
	}

	logger := l.loggerWith(ctx, "Record",
		"team_id", teamID,
		"member_id", detected.MemberID,
		"service_date", detected.ServiceDate.String(),
		"conflict_type", detected.Type,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to record conflict", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("conflict_id", conflict.ID).InfoContext(ctx, "conflict recorded")
	}()

	_, err = l.docs.update(ctx, persistence.ConflictsNamespace(teamID), func(doc *conflictsDocument) error {
		for _, existing := range doc.Conflicts {
			if !existing.IsResolved && sameConflict(existing, detected) {
				conflict = existing
				return nil
			}
		}
		createdAt := detected.CreatedAt
		if createdAt.IsZero() {
			createdAt = l.now()
		}
		conflict = ScheduleConflict{
			ID:             l.idGenerator(),
			TeamID:         teamID,
			MemberID:       detected.MemberID,
			MemberName:     detected.MemberName,
			ServiceDate:    detected.ServiceDate,
			ServiceName:    detected.ServiceName,
			InstrumentID:   detected.InstrumentID,
			InstrumentName: detected.InstrumentName,
			ConflictType:   detected.Type,
			CreatedAt:      createdAt,
		}
		doc.Conflicts = append(doc.Conflicts, conflict)
		return nil
	})
	return
}

// List returns the team's conflicts, newest first.
func (l *ConflictLog) List(ctx context.Context, teamID string, unresolvedOnly bool) ([]ScheduleConflict, error) {
	if l == nil {
		return nil, fmt.Errorf("ConflictLog is nil")
	}
	doc, err := l.docs.load(ctx, persistence.ConflictsNamespace(teamID))
	if err != nil {
		return nil, err
	}
	out := make([]ScheduleConflict, 0, len(doc.Conflicts))
	for _, c := range doc.Conflicts {
		if unresolvedOnly && c.IsResolved {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Resolve marks a conflict resolved. Resolving twice keeps the first ResolvedAt.
func (l *ConflictLog) Resolve(ctx context.Context, params ResolveConflictParams) (conflict ScheduleConflict, err error) {
	if l == nil {
		err = fmt.Errorf("ConflictLog is nil")
		return
	}

	logger := l.loggerWith(ctx, "Resolve",
		"principal_id", params.Principal.MemberID,
		"team_id", params.TeamID,
		"conflict_id", params.ConflictID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to resolve conflict", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "conflict resolved")
	}()

	if !params.Principal.IsLeader {
		err = ErrUnauthorized
		return
	}

	_, err = l.docs.update(ctx, persistence.ConflictsNamespace(params.TeamID), func(doc *conflictsDocument) error {
		for i := range doc.Conflicts {
			if doc.Conflicts[i].ID != params.ConflictID {
				continue
			}
			if !doc.Conflicts[i].IsResolved {
				resolvedAt := l.now()
				doc.Conflicts[i].IsResolved = true
				doc.Conflicts[i].ResolvedAt = &resolvedAt
			}
			conflict = doc.Conflicts[i]
			return nil
		}
		return fmt.Errorf("conflict %q: %w", params.ConflictID, ErrNotFound)
	})
	return
}

func sameConflict(existing ScheduleConflict, detected scheduler.Conflict) bool {
	return existing.MemberID == detected.MemberID &&
		existing.ServiceDate == detected.ServiceDate &&
		existing.ServiceName == detected.ServiceName &&
		existing.InstrumentID == detected.InstrumentID &&
		existing.ConflictType == detected.Type
}
