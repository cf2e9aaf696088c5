package rooms

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/dealroom-backend/pkg/db"
	"github.com/angelmondragon/dealroom-backend/pkg/db/models"
	"github.com/angelmondragon/dealroom-backend/pkg/enums"
	"github.com/angelmondragon/dealroom-backend/pkg/pagination"
)

// Repository persists rooms and participants and answers the guard queries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, room *models.Room) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Room, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Room, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.RoomStatus) (int64, error)
	AddParticipant(ctx context.Context, participant *models.RoomParticipant) error
	ListParticipants(ctx context.Context, roomID uuid.UUID) ([]models.RoomParticipant, error)
	ListForUser(ctx context.Context, params listRoomsParams) ([]models.Room, error)
	HasAcceptedOffer(ctx context.Context, roomID uuid.UUID) (bool, error)
	CountSettlements(ctx context.Context, roomID uuid.UUID) (total int64, completed int64, err error)
	LoadDetail(ctx context.Context, roomID uuid.UUID) (*detailRows, error)
}

type listRoomsParams struct {
	UserID uuid.UUID
	Status *enums.RoomStatus
	Limit  int
	Cursor *pagination.Cursor
}

type detailRows struct {
	Offers      []models.Offer
	Documents   []models.Document
	Settlements []models.Settlement
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the rooms repository to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, room *models.Room) error {
	return r.db.WithContext(ctx).Create(room).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	var room models.Room
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&room).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

// LockByID loads the room and holds its row lock for the rest of the transaction.
func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	var room models.Room
	if err := dbpkg.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&room).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

// UpdateStatus moves the room only if it is still in from.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.RoomStatus) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Room{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	return result.RowsAffected, result.Error
}

func (r *repository) AddParticipant(ctx context.Context, participant *models.RoomParticipant) error {
	return r.db.WithContext(ctx).Create(participant).Error
}

func (r *repository) ListParticipants(ctx context.Context, roomID uuid.UUID) ([]models.RoomParticipant, error) {
	var participants []models.RoomParticipant
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&participants).Error
	return participants, err
}

func (r *repository) ListForUser(ctx context.Context, params listRoomsParams) ([]models.Room, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Room{}).
		Joins("JOIN room_participants rp ON rp.room_id = rooms.id").
		Where("rp.user_id = ?", params.UserID)
	if params.Status != nil {
		query = query.Where("rooms.status = ?", *params.Status)
	}

	var rooms []models.Room
	err := pagination.Keyset(query, "rooms", params.Cursor).
		Select("rooms.*").
		Limit(params.Limit).
		Find(&rooms).Error
	return rooms, err
}

func (r *repository) HasAcceptedOffer(ctx context.Context, roomID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Offer{}).
		Where("room_id = ? AND status = ?", roomID, enums.OfferStatusAccepted).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) CountSettlements(ctx context.Context, roomID uuid.UUID) (int64, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.Settlement{}).
		Where("room_id = ?", roomID).
		Count(&total).Error; err != nil {
		return 0, 0, err
	}
	var completed int64
	if err := r.db.WithContext(ctx).
		Model(&models.Settlement{}).
		Where("room_id = ? AND status = ?", roomID, enums.SettlementStatusCompleted).
		Count(&completed).Error; err != nil {
		return 0, 0, err
	}
	return total, completed, nil
}

func (r *repository) LoadDetail(ctx context.Context, roomID uuid.UUID) (*detailRows, error) {
	var rows detailRows
	db := r.db.WithContext(ctx)
	if err := db.Where("room_id = ?", roomID).Order("version ASC").Find(&rows.Offers).Error; err != nil {
		return nil, err
	}
	if err := db.Where("room_id = ?", roomID).Order("created_at ASC").Find(&rows.Documents).Error; err != nil {
		return nil, err
	}
	if err := db.Where("room_id = ?", roomID).Order("created_at ASC").Find(&rows.Settlements).Error; err != nil {
		return nil, err
	}
	return &rows, nil
}
