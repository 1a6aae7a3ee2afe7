package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/handshake/core"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// modelRecord is the database row behind core.Model
type modelRecord struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name         string    `gorm:"not null"`
	Type         string    `gorm:"not null"`
	Description  string
	OwnerAddress string `gorm:"not null;index"`
	ModelFileCID string `gorm:"column:model_file_cid;not null"`
	MetadataCID  string `gorm:"column:metadata_cid;not null"`
	ModelHash    string `gorm:"not null;uniqueIndex:idx_models_model_hash"`
	Size         int64
	Version      string                      `gorm:"not null"`
	Parents      datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	Likes        int                         `gorm:"not null;default:0"`
	CreatedAt    time.Time                   `gorm:"index"`
	UpdatedAt    time.Time
}

func (modelRecord) TableName() string { return "models" }

func (r *modelRecord) toModel() core.Model {
	parents := []string(r.Parents)
	if parents == nil {
		parents = []string{}
	}
	return core.Model{
		ID:           r.ID.String(),
		Name:         r.Name,
		Type:         r.Type,
		Description:  r.Description,
		OwnerAddress: r.OwnerAddress,
		ModelFileCID: r.ModelFileCID,
		MetadataCID:  r.MetadataCID,
		ModelHash:    r.ModelHash,
		Size:         r.Size,
		Version:      r.Version,
		Parents:      parents,
		Likes:        r.Likes,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// GormRegistry is a Postgres implementation of ports.ModelRegistry.
// Hash uniqueness is the unique index idx_models_model_hash.
type GormRegistry struct {
	db *gorm.DB
}

// NewConnection opens Postgres and migrates the models table
func NewConnection(dsn string, logLevel logger.LogLevel) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate creates or updates the models table
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&modelRecord{})
}

// NewGormRegistry wraps an open connection
func NewGormRegistry(db *gorm.DB) *GormRegistry {
	return &GormRegistry{db: db}
}

// Exists reports whether a model with hash is stored
func (r *GormRegistry) Exists(ctx context.Context, hash string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&modelRecord{}).Where("model_hash = ?", hash).Limit(1).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check model hash: %w", err)
	}
	return count > 0, nil
}

// FindByID loads a model by id; ids that are not uuids are not found
func (r *GormRegistry) FindByID(ctx context.Context, id string) (*core.Model, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, core.ErrNotFound
	}

	var rec modelRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", uid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	m := rec.toModel()
	return &m, nil
}

// FindByHash loads the model registered under hash
func (r *GormRegistry) FindByHash(ctx context.Context, hash string) (*core.Model, error) {
	var rec modelRecord
	if err := r.db.WithContext(ctx).First(&rec, "model_hash = ?", hash).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	m := rec.toModel()
	return &m, nil
}

// FindByOwner returns the models of one wallet ordered by creation time
func (r *GormRegistry) FindByOwner(ctx context.Context, owner string) ([]core.Model, error) {
	return r.find(ctx, r.db.WithContext(ctx).Where("owner_address = ?", core.NormalizeAddress(owner)))
}

// List returns every model ordered by creation time
func (r *GormRegistry) List(ctx context.Context) ([]core.Model, error) {
	return r.find(ctx, r.db.WithContext(ctx))
}

func (r *GormRegistry) find(ctx context.Context, q *gorm.DB) ([]core.Model, error) {
	var recs []modelRecord
	if err := q.Order("created_at ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	out := make([]core.Model, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].toModel())
	}
	return out, nil
}

// Register inserts the model and lets the unique index decide duplicates
func (r *GormRegistry) Register(ctx context.Context, model *core.Model) (*core.Model, error) {
	id := uuid.New()
	if model.ID != "" {
		parsed, err := uuid.Parse(model.ID)
		if err != nil {
			return nil, core.Validationf("model id must be a uuid")
		}
		id = parsed
	}

	rec := modelRecord{
		ID:           id,
		Name:         model.Name,
		Type:         model.Type,
		Description:  model.Description,
		OwnerAddress: core.NormalizeAddress(model.OwnerAddress),
		ModelFileCID: model.ModelFileCID,
		MetadataCID:  model.MetadataCID,
		ModelHash:    model.ModelHash,
		Size:         model.Size,
		Version:      model.Version,
		Parents:      datatypes.JSONSlice[string](model.Parents),
		Likes:        model.Likes,
	}
	if rec.Parents == nil {
		rec.Parents = datatypes.JSONSlice[string]{}
	}

	err := r.db.WithContext(ctx).Create(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, r.conflict(ctx, model.ModelHash)
		}
		return nil, fmt.Errorf("failed to insert model: %w", err)
	}

	m := rec.toModel()
	return &m, nil
}

func (r *GormRegistry) conflict(ctx context.Context, hash string) error {
	existing, err := r.FindByHash(ctx, hash)
	if err != nil {
		return fmt.Errorf("failed to load conflicting model: %w", err)
	}
	return &core.ConflictError{ExistingID: existing.ID, Hash: hash}
}
