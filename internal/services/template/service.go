// Package template implements manager-facing checklist template editing:
// versioning, item CRUD, ordering and example media.
package template

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	cherrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/media"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	maxUploadSlots  = 20
	templateKeyTmpl = "checklists/templates/%s/items/%s/examples/%s.%s"
)

// Store is the template persistence surface the editing service consumes
type Store interface {
	Create(ctx context.Context, template *models.Template) error
	GetByID(ctx context.Context, tenantID string, id string) (*models.Template, error)
	GetCurrent(ctx context.Context, tenantID string, unitID string) (*models.Template, error)
	ListItems(ctx context.Context, templateID string) ([]models.TemplateItem, error)
	GetItem(ctx context.Context, templateID string, key string) (*models.TemplateItem, error)
	CreateItem(ctx context.Context, item *models.TemplateItem) error
	CreateItems(ctx context.Context, items []models.TemplateItem) error
	UpdateItem(ctx context.Context, item *models.TemplateItem) error
	DeleteItem(ctx context.Context, templateID string, key string) error
	UpdateItemOrders(ctx context.Context, templateID string, keys []string) error
	MaxItemOrder(ctx context.Context, templateID string) (int, error)
	ListExampleMedia(ctx context.Context, templateItemID string) ([]models.ExampleMedia, error)
	CreateExampleMedia(ctx context.Context, m *models.ExampleMedia) error
	DeleteExampleMedia(ctx context.Context, id string) error
}

// Service edits checklist templates
type Service struct {
	store  Store
	media  media.ObjectStore
	logger ectologger.Logger
}

// NewService creates the template editing service
func NewService(store Store, objectStore media.ObjectStore, logger ectologger.Logger) *Service {
	return &Service{
		store:  store,
		media:  objectStore,
		logger: logger,
	}
}

// GetCurrent returns the unit's highest-version template with items and
// example media hydrated, or nil when the unit has no template.
func (s *Service) GetCurrent(ctx context.Context, tenantID string, unitID string) (*models.Template, error) {
	ctx, span := tracing.StartSpan(ctx, "template.Service.GetCurrent")
	defer span.End()

	tmpl, err := s.store.GetCurrent(ctx, tenantID, unitID)
	if err != nil || tmpl == nil {
		return nil, err
	}
	return s.hydrate(ctx, tmpl)
}

// Get returns one template version with items and example media hydrated
func (s *Service) Get(ctx context.Context, tenantID string, id string) (*models.Template, error) {
	ctx, span := tracing.StartSpan(ctx, "template.Service.Get")
	defer span.End()

	tmpl, err := s.store.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, tmpl)
}

func (s *Service) hydrate(ctx context.Context, tmpl *models.Template) (*models.Template, error) {
	items, err := s.store.ListItems(ctx, tmpl.ID)
	if err != nil {
		return nil, err
	}
	for idx := range items {
		exampleMedia, err := s.store.ListExampleMedia(ctx, items[idx].ID)
		if err != nil {
			return nil, err
		}
		items[idx].ExampleMedia = exampleMedia
	}
	tmpl.Items = items
	return tmpl, nil
}

// CreateVersion creates the next template version for a unit, cloning the
// current version's items. The first version for a unit starts empty.
func (s *Service) CreateVersion(ctx context.Context, tenantID string, unitID string) (*models.Template, error) {
	ctx, span := tracing.StartSpan(ctx, "template.Service.CreateVersion")
	defer span.End()

	current, err := s.store.GetCurrent(ctx, tenantID, unitID)
	if err != nil {
		return nil, err
	}

	version := 1
	var sourceItems []models.TemplateItem
	if current != nil {
		version = current.Version + 1
		sourceItems, err = s.store.ListItems(ctx, current.ID)
		if err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	tmpl := &models.Template{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		UnitID:    unitID,
		Version:   version,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, tmpl); err != nil {
		return nil, err
	}

	if len(sourceItems) > 0 {
		clones := make([]models.TemplateItem, 0, len(sourceItems))
		for _, item := range sourceItems {
			clones = append(clones, models.TemplateItem{
				ID:            uuid.New().String(),
				TemplateID:    tmpl.ID,
				Key:           item.Key,
				Title:         item.Title,
				Description:   item.Description,
				Type:          item.Type,
				Required:      item.Required,
				RequiresPhoto: item.RequiresPhoto,
				PhotoMin:      item.PhotoMin,
				SortOrder:     item.SortOrder,
				CreatedAt:     now,
			})
		}
		if err := s.store.CreateItems(ctx, clones); err != nil {
			return nil, err
		}
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"template_id": tmpl.ID,
		"unit_id":     unitID,
		"version":     version,
		"item_count":  len(sourceItems),
	}).Info("Created template version")

	return s.hydrate(ctx, tmpl)
}

// AddItem appends one item to a template. New items default to the end of
// the ordering unless an explicit sort order is given.
func (s *Service) AddItem(ctx context.Context, tenantID string, templateID string, req models.CreateTemplateItemRequest) (*models.Template, error) {
	ctx, span := tracing.StartSpan(ctx, "template.Service.AddItem")
	defer span.End()

	tmpl, err := s.store.GetByID(ctx, tenantID, templateID)
	if err != nil {
		return nil, err
	}
	if !req.Type.IsValid() {
		return nil, cherrors.NewInvalidValue("unknown item type %q", req.Type)
	}

	var order int
	if req.SortOrder != nil {
		order = *req.SortOrder
	} else {
		max, err := s.store.MaxItemOrder(ctx, tmpl.ID)
		if err != nil {
			return nil, err
		}
		order = max + 1
	}

	item := &models.TemplateItem{
		ID:            uuid.New().String(),
		TemplateID:    tmpl.ID,
		Key:           req.Key,
		Title:         req.Title,
		Description:   req.Description,
		Type:          req.Type,
		Required:      req.Required,
		RequiresPhoto: req.RequiresPhoto,
		PhotoMin:      req.PhotoMin,
		SortOrder:     order,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.CreateItem(ctx, item); err != nil {
		return nil, err
	}

	return s.hydrate(ctx, tmpl)
}

// UpdateItem patches one template item by key
func (s *Service) UpdateItem(ctx context.Context, tenantID string, templateID string, key string, req models.UpdateTemplateItemRequest) (*models.Template, error) {
	ctx, span := tracing.StartSpan(ctx, "template.Service.UpdateItem")
	defer span.End()

	tmpl, err := s.store.GetByID(ctx, tenantID, templateID)
	if err != nil {
		return nil, err
	}

	item, err := s.store.GetItem(ctx, tmpl.ID, key)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		item.Title = *req.Title
	}
	if req.Description != nil {
		item.Description = req.Description
	}
	if req.Type != nil {
		if !req.Type.IsValid() {
			return nil, cherrors.NewInvalidValue("unknown item type %q", *req.Type)
		}
		item.Type = *req.Type
	}
	if req.Required != nil {
		item.Required = *req.Required
	}
	if req.RequiresPhoto != nil {
		item.RequiresPhoto = *req.RequiresPhoto
	}
	if req.PhotoMin != nil {
		item.PhotoMin = req.PhotoMin
	}

	if err := s.store.UpdateItem(ctx, item); err != nil {
		return nil, err
	}

	return s.hydrate(ctx, tmpl)
}

// RemoveItem deletes one template item by key
func (s *Service) RemoveItem(ctx context.Context, tenantID string, templateID string, key string) (*models.Template, error) {
	ctx, span := tracing.StartSpan(ctx, "template.Service.RemoveItem")
	defer span.End()

	tmpl, err := s.store.GetByID(ctx, tenantID, templateID)
	if err != nil {
		return nil, err
	}

	if err := s.store.DeleteItem(ctx, tmpl.ID, key); err != nil {
		return nil, err
	}

	return s.hydrate(ctx, tmpl)
}

// UpdateItemOrder applies a caller-supplied full ordering of item keys,
// assigning sort order by position. Keys absent from the list keep their
// previous order value.
func (s *Service) UpdateItemOrder(ctx context.Context, tenantID string, templateID string, keys []string) (*models.Template, error) {
	ctx, span := tracing.StartSpan(ctx, "template.Service.UpdateItemOrder")
	defer span.End()

	tmpl, err := s.store.GetByID(ctx, tenantID, templateID)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, cherrors.NewInvalidValue("item key ordering must not be empty")
	}

	if err := s.store.UpdateItemOrders(ctx, tmpl.ID, keys); err != nil {
		return nil, err
	}

	return s.hydrate(ctx, tmpl)
}

// AddItemExampleMedia attaches example media to a template item. The caller
// either supplies a pre-resolved URL or the object key is resolved through
// object storage.
func (s *Service) AddItemExampleMedia(ctx context.Context, tenantID string, templateID string, key string, req models.AddExampleMediaRequest) (*models.Template, error) {
	ctx, span := tracing.StartSpan(ctx, "template.Service.AddItemExampleMedia")
	defer span.End()

	tmpl, err := s.store.GetByID(ctx, tenantID, templateID)
	if err != nil {
		return nil, err
	}

	item, err := s.store.GetItem(ctx, tmpl.ID, key)
	if err != nil {
		return nil, err
	}

	var url string
	switch {
	case req.URL != nil && *req.URL != "":
		url = *req.URL
	case s.media != nil:
		url, err = s.media.GetURL(ctx, req.ObjectKey, media.GetURLExpiry)
		if err != nil {
			return nil, cherrors.NewMediaUnavailable("failed to resolve example media URL: %s", err)
		}
	default:
		return nil, cherrors.NewMediaUnavailable("object storage is not configured and no URL was supplied")
	}

	existing, err := s.store.ListExampleMedia(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	order := 0
	for _, m := range existing {
		if m.SortOrder > order {
			order = m.SortOrder
		}
	}

	exampleMedia := &models.ExampleMedia{
		ID:             uuid.New().String(),
		TemplateItemID: item.ID,
		URL:            url,
		ObjectKey:      req.ObjectKey,
		MimeType:       req.MimeType,
		Caption:        req.Caption,
		SortOrder:      order + 1,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.CreateExampleMedia(ctx, exampleMedia); err != nil {
		return nil, err
	}

	return s.hydrate(ctx, tmpl)
}

// RemoveItemExampleMedia deletes one example media row by id
func (s *Service) RemoveItemExampleMedia(ctx context.Context, tenantID string, templateID string, mediaID string) (*models.Template, error) {
	ctx, span := tracing.StartSpan(ctx, "template.Service.RemoveItemExampleMedia")
	defer span.End()

	tmpl, err := s.store.GetByID(ctx, tenantID, templateID)
	if err != nil {
		return nil, err
	}

	if err := s.store.DeleteExampleMedia(ctx, mediaID); err != nil {
		return nil, err
	}

	return s.hydrate(ctx, tmpl)
}

// GetExampleMediaUploadURLs issues presigned upload slots for example media
// on one template item.
func (s *Service) GetExampleMediaUploadURLs(ctx context.Context, tenantID string, templateID string, key string, count int, mimeTypes []string) ([]models.PresignedUpload, error) {
	ctx, span := tracing.StartSpan(ctx, "template.Service.GetExampleMediaUploadURLs")
	defer span.End()

	if count < 1 || count > maxUploadSlots {
		return nil, cherrors.NewInvalidValue("upload slot count must be between 1 and %d", maxUploadSlots)
	}
	if s.media == nil {
		return nil, cherrors.NewMediaUnavailable("object storage is not configured")
	}

	tmpl, err := s.store.GetByID(ctx, tenantID, templateID)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetItem(ctx, tmpl.ID, key); err != nil {
		return nil, err
	}

	uploads := make([]models.PresignedUpload, 0, count)
	for i := 0; i < count; i++ {
		mimeType := media.DefaultMimeType
		if i < len(mimeTypes) && mimeTypes[i] != "" {
			mimeType = mimeTypes[i]
		}

		objectKey := fmt.Sprintf(templateKeyTmpl, tmpl.ID, key, uuid.New().String(), media.ExtensionFor(mimeType))
		url, err := s.media.IssuePutURL(ctx, objectKey, mimeType, media.PutURLExpiry)
		if err != nil {
			return nil, cherrors.NewMediaUnavailable("failed to issue upload URL: %s", err)
		}

		uploads = append(uploads, models.PresignedUpload{
			URL:       url,
			ObjectKey: objectKey,
			MimeType:  mimeType,
			ExpiresIn: int(media.PutURLExpiry.Seconds()),
		})
	}

	metrics.UploadURLsIssued.WithLabelValues("template").Add(float64(count))
	return uploads, nil
}
