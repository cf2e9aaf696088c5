package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/dealroom-backend/pkg/db/models"
	"github.com/angelmondragon/dealroom-backend/pkg/enums"
	"github.com/angelmondragon/dealroom-backend/pkg/logger"
)

// Notice is a single alert addressed to one user.
type Notice struct {
	UserID  uuid.UUID
	RoomID  *uuid.UUID
	Kind    enums.NotificationKind
	Message string
	Link    *string
}

// Notifier delivers notices. Delivery is fire-and-forget: implementations
// never report failure to the caller.
type Notifier interface {
	Notify(ctx context.Context, notices ...Notice)
}

type failureCounter interface {
	IncNotificationFailure(kind string)
}

// Dispatcher stores notices in each recipient's inbox.
type Dispatcher struct {
	repo    Repository
	logg    *logger.Logger
	metrics failureCounter
}

// NewDispatcher builds the inbox-backed notifier. metrics may be nil.
func NewDispatcher(repo Repository, logg *logger.Logger, metrics failureCounter) (*Dispatcher, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Dispatcher{repo: repo, logg: logg, metrics: metrics}, nil
}

// Notify writes every notice, collecting failures into one logged error.
func (d *Dispatcher) Notify(ctx context.Context, notices ...Notice) {
	var errs error
	failed := 0
	for _, notice := range notices {
		if err := d.deliver(ctx, notice); err != nil {
			errs = multierr.Append(errs, err)
			failed++
			if d.metrics != nil {
				d.metrics.IncNotificationFailure(string(notice.Kind))
			}
		}
	}
	if errs == nil {
		return
	}

	logCtx := d.logg.WithFields(ctx, map[string]any{
		"failed": failed,
		"total":  len(notices),
	})
	d.logg.Error(logCtx, "notification dispatch incomplete", errs)
}

func (d *Dispatcher) deliver(ctx context.Context, notice Notice) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notify %s: panic: %v", notice.UserID, r)
		}
	}()

	if notice.UserID == uuid.Nil {
		return fmt.Errorf("notify: recipient required")
	}
	if !notice.Kind.IsValid() {
		return fmt.Errorf("notify %s: invalid kind %q", notice.UserID, notice.Kind)
	}
	row := &models.Notification{
		UserID:  notice.UserID,
		RoomID:  notice.RoomID,
		Kind:    notice.Kind,
		Message: notice.Message,
		Link:    notice.Link,
	}
	if err := d.repo.Create(ctx, row); err != nil {
		return fmt.Errorf("notify %s: %w", notice.UserID, err)
	}
	return nil
}

// Fanout addresses template to every participant except the excluded users.
// Each user receives at most one notice.
func Fanout(participants []models.RoomParticipant, template Notice, exclude ...uuid.UUID) []Notice {
	skip := make(map[uuid.UUID]struct{}, len(exclude)+len(participants))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	notices := make([]Notice, 0, len(participants))
	for _, p := range participants {
		if _, ok := skip[p.UserID]; ok {
			continue
		}
		skip[p.UserID] = struct{}{}
		notice := template
		notice.UserID = p.UserID
		notices = append(notices, notice)
	}
	return notices
}

// RoomLink is the in-app path for a room.
func RoomLink(roomID uuid.UUID) *string {
	link := "/rooms/" + roomID.String()
	return &link
}
