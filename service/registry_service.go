package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/layer-3/handshake/core"
	"github.com/layer-3/handshake/ports"
)

// DefaultSignedURLTTL bounds how long an upload credential stays usable
const DefaultSignedURLTTL = 30 * time.Minute

var modelHashRe = regexp.MustCompile(`^[0-9a-f]{64}$`)

// RegistryService is the server half of the upload flow plus catalog reads
type RegistryService struct {
	registry ports.ModelRegistry
	blobs    ports.BlobStore
	eventPub ports.EventPublisher
	logger   *slog.Logger

	signedURLTTL time.Duration
	now          func() time.Time
}

// NewRegistryService creates a registry service
func NewRegistryService(
	registry ports.ModelRegistry,
	blobs ports.BlobStore,
	eventPub ports.EventPublisher,
	signedURLTTL time.Duration,
	logger *slog.Logger,
) *RegistryService {
	if signedURLTTL <= 0 {
		signedURLTTL = DefaultSignedURLTTL
	}
	return &RegistryService{
		registry:     registry,
		blobs:        blobs,
		eventPub:     eventPub,
		logger:       logger,
		signedURLTTL: signedURLTTL,
		now:          time.Now,
	}
}

// NormalizeHash lowercases a hex digest and checks its shape
func NormalizeHash(hash string) (string, error) {
	hash = strings.ToLower(strings.TrimSpace(hash))
	if !modelHashRe.MatchString(hash) {
		return "", core.Validationf("hash must be 64 hex characters")
	}
	return hash, nil
}

// CheckHash reports whether a digest is already registered.
// The answer is advisory, Confirm re-checks at insert time. A string that is
// not a digest can never have been registered, so it reports false.
func (s *RegistryService) CheckHash(ctx context.Context, hash string) (bool, error) {
	hash, err := NormalizeHash(hash)
	if err != nil {
		return false, nil
	}

	exists, err := s.registry.Exists(ctx, hash)
	if err != nil {
		return false, s.persistenceError(ctx, "hash check failed", err)
	}
	return exists, nil
}

// Get returns the model with the given id or core.ErrNotFound
func (s *RegistryService) Get(ctx context.Context, id string) (*core.Model, error) {
	model, err := s.registry.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, err
		}
		return nil, s.persistenceError(ctx, "model lookup failed", err)
	}
	return model, nil
}

// List returns every registered model
func (s *RegistryService) List(ctx context.Context) ([]core.Model, error) {
	models, err := s.registry.List(ctx)
	if err != nil {
		return nil, s.persistenceError(ctx, "model listing failed", err)
	}
	return models, nil
}

// ListByOwner returns the models registered by one wallet
func (s *RegistryService) ListByOwner(ctx context.Context, owner string) ([]core.Model, error) {
	models, err := s.registry.FindByOwner(ctx, core.NormalizeAddress(owner))
	if err != nil {
		return nil, s.persistenceError(ctx, "model listing failed", err)
	}
	return models, nil
}

// SignedUploadURL returns a time-boxed direct-upload URL for fileName.
// Callers must have authenticated the request already.
func (s *RegistryService) SignedUploadURL(ctx context.Context, fileName string) (string, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return "", core.Validationf("file name can not be empty")
	}

	signedURL, err := s.blobs.CreateSignedUploadURL(ctx, fileName, s.signedURLTTL)
	if err != nil {
		return "", s.storageError(ctx, "signed url creation failed", err)
	}
	return signedURL, nil
}

// Confirm registers an artifact the caller has already uploaded.
//
// The metadata document is pinned before the record is written, so a
// record never points at missing metadata. A failure after the artifact
// upload leaves the blob pinned without a record; the client repeats the
// whole flow.
func (s *RegistryService) Confirm(ctx context.Context, owner string, in core.ConfirmInput) (*core.Model, error) {
	owner = core.NormalizeAddress(owner)
	if owner == "" {
		return nil, core.ErrUnauthenticated
	}

	model, err := s.validate(ctx, owner, in)
	if err != nil {
		return nil, err
	}

	// Fail fast before pinning metadata; the unique index stays authoritative
	existing, err := s.registry.FindByHash(ctx, model.ModelHash)
	switch {
	case err == nil:
		return nil, &core.ConflictError{ExistingID: existing.ID, Hash: model.ModelHash}
	case !errors.Is(err, core.ErrNotFound):
		return nil, s.persistenceError(ctx, "hash check failed", err)
	}

	metadataCID, err := s.blobs.UploadJSON(ctx, model.Name+"-metadata", s.metadata(model))
	if err != nil {
		s.logger.ErrorContext(ctx, "artifact left pinned without registry record",
			"file_cid", model.ModelFileCID, "hash", model.ModelHash)
		return nil, s.storageError(ctx, "metadata upload failed", err)
	}
	model.MetadataCID = metadataCID

	created, err := s.registry.Register(ctx, model)
	if err != nil {
		var conflict *core.ConflictError
		if errors.As(err, &conflict) || errors.Is(err, core.ErrValidation) {
			return nil, err
		}
		s.logger.ErrorContext(ctx, "artifact left pinned without registry record",
			"file_cid", model.ModelFileCID, "metadata_cid", metadataCID, "hash", model.ModelHash)
		return nil, s.persistenceError(ctx, "model registration failed", err)
	}

	s.logger.InfoContext(ctx, "model confirmed", "id", created.ID, "name", created.Name, "owner", owner)

	if err := s.eventPub.PublishModelRegistered(ctx, created.ID, created.ModelHash, created.OwnerAddress); err != nil {
		s.logger.WarnContext(ctx, "failed to publish model registered event", "err", err)
	}

	return created, nil
}

func (s *RegistryService) validate(ctx context.Context, owner string, in core.ConfirmInput) (*core.Model, error) {
	name := strings.TrimSpace(in.Name)
	fileCID := strings.TrimSpace(in.ModelFileCID)
	if name == "" || fileCID == "" || strings.TrimSpace(in.Hash) == "" {
		return nil, core.Validationf("missing required fields (name, cid, hash)")
	}

	hash, err := NormalizeHash(in.Hash)
	if err != nil {
		return nil, err
	}

	if in.Size < 0 {
		return nil, core.Validationf("size can not be negative")
	}

	modelType := strings.TrimSpace(in.Type)
	if modelType == "" {
		modelType = core.DefaultModelType
	}

	version := strings.TrimSpace(in.Version)
	if version == "" {
		version = core.DefaultModelVersion
	}

	parents := make([]string, 0, len(in.Parents))
	seen := make(map[string]bool, len(in.Parents))
	for _, id := range in.Parents {
		if seen[id] {
			continue
		}
		seen[id] = true

		// Parents must already exist, which also rules out cycles
		if _, err := s.registry.FindByID(ctx, id); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return nil, core.Validationf("unknown parent model %s", id)
			}
			return nil, s.persistenceError(ctx, "parent lookup failed", err)
		}
		parents = append(parents, id)
	}

	return &core.Model{
		Name:         name,
		Type:         modelType,
		Description:  strings.TrimSpace(in.Description),
		OwnerAddress: owner,
		ModelFileCID: fileCID,
		ModelHash:    hash,
		Size:         in.Size,
		Version:      version,
		Parents:      parents,
		Likes:        0,
	}, nil
}

func (s *RegistryService) metadata(m *core.Model) core.Metadata {
	description := m.Description
	if description == "" {
		description = "Uploaded to Handshake by " + m.OwnerAddress
	}

	return core.Metadata{
		Name:        m.Name,
		Description: description,
		ExternalURL: s.blobs.GatewayURL(m.ModelFileCID),
		Attributes: []core.MetadataAttribute{
			{TraitType: "Type", Value: m.Type},
			{TraitType: "Size", Value: m.Size},
			{TraitType: "Hash", Value: m.ModelHash},
			{TraitType: "Date", Value: s.now().UTC().Format(time.RFC3339)},
		},
	}
}

func (s *RegistryService) persistenceError(ctx context.Context, msg string, err error) error {
	s.logger.ErrorContext(ctx, msg, "err", err)
	if errors.Is(err, core.ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %w", core.ErrPersistence, err)
}

func (s *RegistryService) storageError(ctx context.Context, msg string, err error) error {
	s.logger.ErrorContext(ctx, msg, "err", err)
	if errors.Is(err, core.ErrUpstreamStorage) {
		return err
	}
	return fmt.Errorf("%w: %w", core.ErrUpstreamStorage, err)
}
