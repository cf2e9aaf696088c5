package audit

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealroom-backend/pkg/db/models"
	"github.com/angelmondragon/dealroom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dealroom-backend/pkg/errors"
	"github.com/angelmondragon/dealroom-backend/pkg/pagination"
)

// Entry describes one state change inside a room. Detail is marshalled to JSON.
type Entry struct {
	RoomID     uuid.UUID
	ActorID    *uuid.UUID
	Action     enums.AuditAction
	TargetType enums.AuditTargetType
	TargetID   *uuid.UUID
	Detail     any
}

// StatusChange is the detail fragment used whenever a status field moves.
type StatusChange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Recorder appends audit entries inside the caller's transaction.
type Recorder interface {
	Record(ctx context.Context, tx *gorm.DB, entry Entry) error
}

// Service exposes the append and query surface of the audit trail.
type Service interface {
	Recorder
	List(ctx context.Context, params ListParams) (*ListResult, error)
}

// ListParams pages through a room's audit history.
type ListParams struct {
	RoomID uuid.UUID
	Limit  int
	Cursor string
}

// ListResult holds one page of entries, newest first.
type ListResult struct {
	Items  []models.AuditLogEntry `json:"items"`
	Cursor string                 `json:"cursor"`
}

type service struct {
	repo Repository
}

// NewService wires the audit trail.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "audit repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Record(ctx context.Context, tx *gorm.DB, entry Entry) error {
	if entry.RoomID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "audit room id required")
	}
	if !entry.Action.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid audit action %q", entry.Action)
	}
	if !entry.TargetType.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid audit target %q", entry.TargetType)
	}

	row := &models.AuditLogEntry{
		RoomID:     entry.RoomID,
		ActorID:    entry.ActorID,
		Action:     entry.Action,
		TargetType: entry.TargetType,
		TargetID:   entry.TargetID,
	}
	if entry.Detail != nil {
		detail, err := json.Marshal(entry.Detail)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode audit detail")
		}
		row.Detail = detail
	}

	if err := s.repo.WithTx(tx).Create(ctx, row); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record audit entry")
	}
	return nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.RoomID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "room id required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.List(ctx, listParams{
		RoomID: params.RoomID,
		Limit:  pagination.LimitWithBuffer(params.Limit),
		Cursor: cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list audit entries")
	}

	items, next := pagination.Trim(rows, params.Limit, func(row models.AuditLogEntry) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return &ListResult{Items: items, Cursor: next}, nil
}
