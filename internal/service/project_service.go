package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sorapixel/studio/internal/imaging"
	"github.com/sorapixel/studio/internal/models"
)

var ErrProjectNotFound = errors.New("project not found")

const projectWebPQuality = 85

type ProjectStore interface {
	Create(ctx context.Context, p *models.Project) error
	FindForAccount(ctx context.Context, accountID, id string) (*models.Project, error)
	List(ctx context.Context, accountID string, kind models.GenerationKind, limit, offset int) ([]models.Project, error)
	Delete(ctx context.Context, accountID, id string) (bool, error)
}

type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	ProjectKey(accountID, title, contentType string) string
}

type ProjectImageInput struct {
	Label string
	Image image.Image
}

type ProjectInput struct {
	AccountID string
	Kind      models.GenerationKind
	Title     string
	Images    []ProjectImageInput
}

type ProjectService struct {
	store ProjectStore
	blobs BlobStore
	ttl   time.Duration
	log   zerolog.Logger
}

func NewProjectService(store ProjectStore, blobs BlobStore, signedURLTTL time.Duration, log zerolog.Logger) *ProjectService {
	if signedURLTTL <= 0 {
		signedURLTTL = time.Hour
	}
	return &ProjectService{store: store, blobs: blobs, ttl: signedURLTTL, log: log.With().Str("component", "projects").Logger()}
}

// Save uploads every image as WebP and stores the project row. Objects already
// uploaded are removed again when a later step fails.
func (s *ProjectService) Save(ctx context.Context, in ProjectInput) (*models.Project, error) {
	if len(in.Images) == 0 {
		return nil, fmt.Errorf("project has no images")
	}
	p := &models.Project{
		ID:        uuid.NewString(),
		AccountID: in.AccountID,
		Title:     in.Title,
		Kind:      in.Kind,
	}
	for _, img := range in.Images {
		data, err := imaging.EncodeWebP(img.Image, projectWebPQuality)
		if err != nil {
			s.cleanup(ctx, p.Images)
			return nil, fmt.Errorf("encode %s: %w", img.Label, err)
		}
		key := s.blobs.ProjectKey(in.AccountID, in.Title, "image/webp")
		if err := s.blobs.Put(ctx, key, data, "image/webp"); err != nil {
			s.cleanup(ctx, p.Images)
			return nil, fmt.Errorf("upload %s: %w", img.Label, err)
		}
		p.Images = append(p.Images, models.ProjectImage{Label: img.Label, StoragePath: key, Size: len(data)})
	}
	if err := s.store.Create(ctx, p); err != nil {
		s.cleanup(ctx, p.Images)
		return nil, fmt.Errorf("save project: %w", err)
	}
	return p, nil
}

func (s *ProjectService) cleanup(ctx context.Context, images []models.ProjectImage) {
	for _, img := range images {
		if err := s.blobs.Delete(context.WithoutCancel(ctx), img.StoragePath); err != nil {
			s.log.Warn().Err(err).Str("key", img.StoragePath).Msg("remove orphaned project image")
		}
	}
}

// Get returns the project with signed URLs for each image.
func (s *ProjectService) Get(ctx context.Context, accountID, id string) (*models.Project, error) {
	p, err := s.store.FindForAccount(ctx, accountID, id)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	if p == nil {
		return nil, ErrProjectNotFound
	}
	for i := range p.Images {
		url, err := s.blobs.SignedURL(ctx, p.Images[i].StoragePath, s.ttl)
		if err != nil {
			s.log.Warn().Err(err).Str("project_id", p.ID).Str("key", p.Images[i].StoragePath).Msg("sign project image")
			continue
		}
		p.Images[i].URL = url
	}
	return p, nil
}

func (s *ProjectService) List(ctx context.Context, accountID string, kind models.GenerationKind, limit, offset int) ([]models.Project, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	projects, err := s.store.List(ctx, accountID, kind, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

func (s *ProjectService) Delete(ctx context.Context, accountID, id string) error {
	p, err := s.store.FindForAccount(ctx, accountID, id)
	if err != nil {
		return fmt.Errorf("load project: %w", err)
	}
	if p == nil {
		return ErrProjectNotFound
	}
	deleted, err := s.store.Delete(ctx, accountID, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if !deleted {
		return ErrProjectNotFound
	}
	s.cleanup(ctx, p.Images)
	return nil
}
