// Package checklist implements the checklist lifecycle engine: instance
// creation from templates or predecessor stages, draft synchronization,
// answers and photo attachments, submission validation, the
// DRAFT -> SUBMITTED -> LOCKED state machine, and stage promotion.
package checklist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	cherrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/media"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	syncLockTTL     = 10 * time.Second
	maxUploadSlots  = 20
	instanceKeyTmpl = "checklists/instances/%s/items/%s/%s.%s"
)

// TemplateStore is the template persistence surface the engine consumes
type TemplateStore interface {
	GetCurrent(ctx context.Context, tenantID string, unitID string) (*models.Template, error)
	ListItems(ctx context.Context, templateID string) ([]models.TemplateItem, error)
}

// InstanceStore is the instance persistence surface the engine consumes
type InstanceStore interface {
	Create(ctx context.Context, instance *models.Instance) error
	Get(ctx context.Context, tenantID string, id string) (*models.Instance, error)
	FindByUnitAndStage(ctx context.Context, tenantID string, unitID string, stage models.Stage) (*models.Instance, error)
	FindByCleaningAndStage(ctx context.Context, tenantID string, cleaningID string, stage models.Stage) (*models.Instance, error)
	FindByRepairAndStage(ctx context.Context, tenantID string, repairID string, stage models.Stage) (*models.Instance, error)
	UpdateStatus(ctx context.Context, tenantID string, id string, status models.InstanceStatus) error
	ListItems(ctx context.Context, instanceID string) ([]models.InstanceItem, error)
	CreateItem(ctx context.Context, item *models.InstanceItem) error
	CreateItems(ctx context.Context, items []models.InstanceItem) error
	UpdateItem(ctx context.Context, item *models.InstanceItem) error
	DeleteItem(ctx context.Context, instanceID string, key string) error
	ListAnswers(ctx context.Context, instanceID string) ([]models.Answer, error)
	UpsertAnswer(ctx context.Context, answer *models.Answer) error
	ListAttachments(ctx context.Context, instanceID string) ([]models.Attachment, error)
	CreateAttachment(ctx context.Context, attachment *models.Attachment) error
	DeleteAttachment(ctx context.Context, id string) (bool, error)
}

// Service is the checklist lifecycle engine. The media store and locker are
// optional; without a media store, upload/attach paths that need URL
// generation fail with MediaUnavailable, and without a locker concurrent
// draft syncs fall back on the store's (instance_id, key) unique index.
type Service struct {
	templates TemplateStore
	instances InstanceStore
	media     media.ObjectStore
	locker    *redis.Locker
	logger    ectologger.Logger
}

// NewService creates the checklist lifecycle engine
func NewService(templates TemplateStore, instances InstanceStore, objectStore media.ObjectStore, locker *redis.Locker, logger ectologger.Logger) *Service {
	return &Service{
		templates: templates,
		instances: instances,
		media:     objectStore,
		locker:    locker,
		logger:    logger,
	}
}

// CreateInstance creates a DRAFT instance for a unit and stage, sourcing its
// items from a predecessor-stage sibling, the unit's current template, or
// nothing (ad-hoc repairs), in that order of precedence.
func (s *Service) CreateInstance(ctx context.Context, tenantID string, req models.CreateInstanceRequest) (*models.Instance, error) {
	ctx, span := tracing.StartSpan(ctx, "checklist.Service.CreateInstance")
	defer span.End()

	if !req.Stage.IsValid() {
		return nil, cherrors.NewInvalidValue("unknown stage %q", req.Stage)
	}

	now := time.Now().UTC()
	instance := &models.Instance{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		UnitID:     req.UnitID,
		Stage:      req.Stage,
		Status:     models.InstanceStatusDraft,
		CleaningID: req.CleaningID,
		RepairID:   req.RepairID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	sourceItems, source, err := s.resolveSourceItems(ctx, tenantID, instance, req.IsPlannedInspection)
	if err != nil {
		return nil, err
	}

	if err := s.instances.Create(ctx, instance); err != nil {
		return nil, err
	}

	if len(sourceItems) > 0 {
		clones := cloneItems(instance.ID, sourceItems, now)
		if err := s.instances.CreateItems(ctx, clones); err != nil {
			return nil, err
		}
	}

	metrics.InstancesCreatedTotal.WithLabelValues(string(req.Stage), source).Inc()
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"instance_id": instance.ID,
		"unit_id":     req.UnitID,
		"stage":       req.Stage,
		"source":      source,
		"item_count":  len(sourceItems),
	}).Info("Created checklist instance")

	return s.GetInstance(ctx, tenantID, instance.ID)
}

// resolveSourceItems picks where the new instance's items come from and
// stamps templateId/templateVersion on the instance when the template was
// actually consulted. Returned source is "sibling", "template" or "empty".
func (s *Service) resolveSourceItems(ctx context.Context, tenantID string, instance *models.Instance, isPlannedInspection bool) ([]models.InstanceItem, string, error) {
	// predecessor-stage siblings win over the template so cleaner-added
	// custom items carry forward through the pipeline
	sibling, err := s.findSibling(ctx, tenantID, instance)
	if err != nil {
		return nil, "", err
	}
	if sibling != nil {
		items, err := s.instances.ListItems(ctx, sibling.ID)
		if err != nil {
			return nil, "", err
		}
		if len(items) > 0 {
			return items, "sibling", nil
		}
	}

	if instance.Stage.IsRepair() {
		// ad-hoc repairs start empty; only a planned inspection consults
		// the unit's template
		if instance.Stage != models.StageRepairInspection || !isPlannedInspection {
			return nil, "empty", nil
		}
	}

	tmpl, err := s.templates.GetCurrent(ctx, tenantID, instance.UnitID)
	if err != nil {
		return nil, "", err
	}
	if tmpl == nil {
		return nil, "", cherrors.NewMissingTemplate("no checklist template exists for unit %s", instance.UnitID)
	}

	tmplItems, err := s.templates.ListItems(ctx, tmpl.ID)
	if err != nil {
		return nil, "", err
	}

	instance.TemplateID = &tmpl.ID
	version := tmpl.Version
	instance.TemplateVersion = &version

	return templateItemsToInstanceItems(tmplItems), "template", nil
}

// findSibling locates the predecessor-stage instance whose items seed the
// new one: PRE_CLEANING for CLEANING, CLEANING for FINAL_REPORT, and
// REPAIR_INSPECTION for REPAIR_RESULT.
func (s *Service) findSibling(ctx context.Context, tenantID string, instance *models.Instance) (*models.Instance, error) {
	switch {
	case instance.Stage == models.StageCleaning && instance.CleaningID != nil:
		return s.instances.FindByCleaningAndStage(ctx, tenantID, *instance.CleaningID, models.StagePreCleaning)
	case instance.Stage == models.StageFinalReport && instance.CleaningID != nil:
		return s.instances.FindByCleaningAndStage(ctx, tenantID, *instance.CleaningID, models.StageCleaning)
	case instance.Stage == models.StageRepairResult && instance.RepairID != nil:
		return s.instances.FindByRepairAndStage(ctx, tenantID, *instance.RepairID, models.StageRepairInspection)
	}
	return nil, nil
}

// GetInstance returns a fully hydrated instance, syncing it against its
// upstream sources first when it is still DRAFT.
func (s *Service) GetInstance(ctx context.Context, tenantID string, id string) (*models.Instance, error) {
	ctx, span := tracing.StartSpan(ctx, "checklist.Service.GetInstance")
	defer span.End()

	instance, err := s.instances.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, cherrors.NewNotFound("checklist instance %s not found", id)
	}

	return s.syncAndHydrate(ctx, tenantID, instance)
}

// GetByUnitAndStage returns the most recent instance for a unit and stage,
// or nil when none exists.
func (s *Service) GetByUnitAndStage(ctx context.Context, tenantID string, unitID string, stage models.Stage) (*models.Instance, error) {
	ctx, span := tracing.StartSpan(ctx, "checklist.Service.GetByUnitAndStage")
	defer span.End()

	instance, err := s.instances.FindByUnitAndStage(ctx, tenantID, unitID, stage)
	if err != nil || instance == nil {
		return nil, err
	}
	return s.syncAndHydrate(ctx, tenantID, instance)
}

// GetByCleaningAndStage returns the most recent instance for a cleaning and
// stage, or nil when none exists.
func (s *Service) GetByCleaningAndStage(ctx context.Context, tenantID string, cleaningID string, stage models.Stage) (*models.Instance, error) {
	ctx, span := tracing.StartSpan(ctx, "checklist.Service.GetByCleaningAndStage")
	defer span.End()

	instance, err := s.instances.FindByCleaningAndStage(ctx, tenantID, cleaningID, stage)
	if err != nil || instance == nil {
		return nil, err
	}
	return s.syncAndHydrate(ctx, tenantID, instance)
}

// GetByRepairAndStage returns the most recent instance for a repair and
// stage, or nil when none exists.
func (s *Service) GetByRepairAndStage(ctx context.Context, tenantID string, repairID string, stage models.Stage) (*models.Instance, error) {
	ctx, span := tracing.StartSpan(ctx, "checklist.Service.GetByRepairAndStage")
	defer span.End()

	instance, err := s.instances.FindByRepairAndStage(ctx, tenantID, repairID, stage)
	if err != nil || instance == nil {
		return nil, err
	}
	return s.syncAndHydrate(ctx, tenantID, instance)
}

func (s *Service) syncAndHydrate(ctx context.Context, tenantID string, instance *models.Instance) (*models.Instance, error) {
	if err := s.syncDraft(ctx, tenantID, instance); err != nil {
		return nil, err
	}
	return s.hydrate(ctx, instance)
}

// syncDraft appends items that appeared on the instance's upstream sources
// since the last read: the referenced template version first, then the
// PRE_CLEANING sibling for CLEANING-stage instances. Existing items are
// never touched, deleted or re-ordered. SUBMITTED and LOCKED instances are
// frozen snapshots and skip sync entirely.
func (s *Service) syncDraft(ctx context.Context, tenantID string, instance *models.Instance) error {
	ctx, span := tracing.StartSpan(ctx, "checklist.Service.syncDraft")
	defer span.End()

	if instance.Status != models.InstanceStatusDraft {
		return nil
	}

	if s.locker != nil {
		lock, err := s.locker.Acquire(ctx, "checklist:sync:"+instance.ID, syncLockTTL)
		if err == nil {
			defer lock.Release(ctx)
		} else if !errors.Is(err, redis.ErrLockNotAcquired) {
			s.logger.WithContext(ctx).WithError(err).Warn("Sync lock unavailable, relying on unique index")
		}
		// lost the race: proceed anyway, duplicate appends are absorbed below
	}

	existing, err := s.instances.ListItems(ctx, instance.ID)
	if err != nil {
		return err
	}

	keys := make(map[string]bool, len(existing))
	for _, item := range existing {
		keys[item.Key] = true
	}

	var pending []models.InstanceItem

	if instance.TemplateID != nil {
		tmplItems, err := s.templates.ListItems(ctx, *instance.TemplateID)
		if err != nil {
			return err
		}
		for _, item := range templateItemsToInstanceItems(tmplItems) {
			if !keys[item.Key] {
				keys[item.Key] = true
				pending = append(pending, item)
			}
		}
	}

	if instance.Stage == models.StageCleaning && instance.CleaningID != nil {
		sibling, err := s.instances.FindByCleaningAndStage(ctx, tenantID, *instance.CleaningID, models.StagePreCleaning)
		if err != nil {
			return err
		}
		if sibling != nil {
			siblingItems, err := s.instances.ListItems(ctx, sibling.ID)
			if err != nil {
				return err
			}
			for _, item := range siblingItems {
				if !keys[item.Key] {
					keys[item.Key] = true
					pending = append(pending, item)
				}
			}
		}
	}

	now := time.Now().UTC()
	for _, source := range pending {
		clone := cloneItem(instance.ID, source, now)
		if err := s.instances.CreateItem(ctx, &clone); err != nil {
			// a concurrent sync already appended this key
			if cherrors.IsKind(err, cherrors.KindDuplicateKey) {
				continue
			}
			return err
		}
		metrics.SyncItemsAppended.Inc()
	}

	return nil
}

func (s *Service) hydrate(ctx context.Context, instance *models.Instance) (*models.Instance, error) {
	items, err := s.instances.ListItems(ctx, instance.ID)
	if err != nil {
		return nil, err
	}
	answers, err := s.instances.ListAnswers(ctx, instance.ID)
	if err != nil {
		return nil, err
	}
	attachments, err := s.instances.ListAttachments(ctx, instance.ID)
	if err != nil {
		return nil, err
	}

	instance.Items = items
	instance.Answers = answers
	instance.Attachments = attachments
	return instance, nil
}

// Answer records the value and note for one item, overwriting any previous
// answer for the same item. PHOTO_ONLY items never accept a value.
func (s *Service) Answer(ctx context.Context, tenantID string, instanceID string, itemKey string, req models.AnswerRequest) (*models.Instance, error) {
	ctx, span := tracing.StartSpan(ctx, "checklist.Service.Answer")
	defer span.End()

	instance, item, err := s.getDraftItem(ctx, tenantID, instanceID, itemKey)
	if err != nil {
		return nil, err
	}

	if item.Type == models.ItemTypePhotoOnly && len(req.Value) > 0 && string(req.Value) != "null" {
		return nil, cherrors.NewInvalidValue("item %s accepts only photo attachments, not values", itemKey)
	}

	now := time.Now().UTC()
	answer := &models.Answer{
		ID:         uuid.New().String(),
		InstanceID: instance.ID,
		ItemKey:    itemKey,
		Value:      req.Value,
		Note:       req.Note,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.instances.UpsertAnswer(ctx, answer); err != nil {
		return nil, err
	}

	return s.hydrate(ctx, instance)
}

// GetAttachmentUploadURLs issues presigned upload slots for photos on one
// item. Each slot gets a fresh object key; mimeTypes may be shorter than
// count, in which case remaining slots default to image/jpeg.
func (s *Service) GetAttachmentUploadURLs(ctx context.Context, tenantID string, instanceID string, itemKey string, count int, mimeTypes []string) ([]models.PresignedUpload, error) {
	ctx, span := tracing.StartSpan(ctx, "checklist.Service.GetAttachmentUploadURLs")
	defer span.End()

	if count < 1 || count > maxUploadSlots {
		return nil, cherrors.NewInvalidValue("upload slot count must be between 1 and %d", maxUploadSlots)
	}
	if s.media == nil {
		return nil, cherrors.NewMediaUnavailable("object storage is not configured")
	}

	instance, _, err := s.getItem(ctx, tenantID, instanceID, itemKey)
	if err != nil {
		return nil, err
	}

	uploads := make([]models.PresignedUpload, 0, count)
	for i := 0; i < count; i++ {
		mimeType := media.DefaultMimeType
		if i < len(mimeTypes) && mimeTypes[i] != "" {
			mimeType = mimeTypes[i]
		}

		objectKey := fmt.Sprintf(instanceKeyTmpl, instance.ID, itemKey, uuid.New().String(), media.ExtensionFor(mimeType))
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

	metrics.UploadURLsIssued.WithLabelValues("instance").Add(float64(count))
	return uploads, nil
}

// Attach appends one photo attachment to an item. The caller either supplies
// a pre-resolved URL or the object key is resolved through object storage.
func (s *Service) Attach(ctx context.Context, tenantID string, instanceID string, itemKey string, req models.AttachRequest) (*models.Instance, error) {
	ctx, span := tracing.StartSpan(ctx, "checklist.Service.Attach")
	defer span.End()

	instance, _, err := s.getDraftItem(ctx, tenantID, instanceID, itemKey)
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
			return nil, cherrors.NewMediaUnavailable("failed to resolve attachment URL: %s", err)
		}
	default:
		return nil, cherrors.NewMediaUnavailable("object storage is not configured and no URL was supplied")
	}

	objectKey := req.ObjectKey
	attachment := &models.Attachment{
		ID:         uuid.New().String(),
		InstanceID: instance.ID,
		ItemKey:    itemKey,
		URL:        url,
		ObjectKey:  &objectKey,
		Caption:    req.Caption,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.instances.CreateAttachment(ctx, attachment); err != nil {
		return nil, err
	}

	return s.hydrate(ctx, instance)
}

// RemoveAttachment deletes an attachment by id, reporting whether it existed
func (s *Service) RemoveAttachment(ctx context.Context, id string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "checklist.Service.RemoveAttachment")
	defer span.End()

	return s.instances.DeleteAttachment(ctx, id)
}

// Submit validates every required item and transitions DRAFT -> SUBMITTED.
// Required photo items need at least photoMin attachments; other required
// items need an answer. Validation failures name every offending item title.
func (s *Service) Submit(ctx context.Context, tenantID string, id string) (*models.Instance, error) {
	ctx, span := tracing.StartSpan(ctx, "checklist.Service.Submit")
	defer span.End()

	instance, err := s.GetInstance(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if instance.Status != models.InstanceStatusDraft {
		metrics.SubmissionsTotal.WithLabelValues(string(instance.Stage), "illegal_state").Inc()
		return nil, cherrors.NewIllegalState("cannot submit checklist in status %s", instance.Status)
	}

	started := time.Now()
	missing := validateSubmission(instance)
	metrics.SubmissionValidationDuration.Observe(time.Since(started).Seconds())

	if len(missing) > 0 {
		metrics.SubmissionsTotal.WithLabelValues(string(instance.Stage), "rejected").Inc()
		return nil, cherrors.NewValidationFailed(missing)
	}

	if err := s.instances.UpdateStatus(ctx, tenantID, id, models.InstanceStatusSubmitted); err != nil {
		return nil, err
	}
	instance.Status = models.InstanceStatusSubmitted

	metrics.SubmissionsTotal.WithLabelValues(string(instance.Stage), "accepted").Inc()
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"instance_id": instance.ID,
		"stage":       instance.Stage,
	}).Info("Checklist submitted")

	return instance, nil
}

// validateSubmission returns the titles of every required item that is not
// yet satisfied, in item order.
func validateSubmission(instance *models.Instance) []string {
	photoCounts := make(map[string]int, len(instance.Attachments))
	for _, attachment := range instance.Attachments {
		photoCounts[attachment.ItemKey]++
	}
	answered := make(map[string]bool, len(instance.Answers))
	for _, answer := range instance.Answers {
		answered[answer.ItemKey] = true
	}

	var missing []string
	for _, item := range instance.Items {
		if !item.Required {
			continue
		}
		if item.RequiresPhoto {
			if photoCounts[item.Key] < item.MinPhotos() {
				missing = append(missing, item.Title)
			}
			continue
		}
		if !answered[item.Key] {
			missing = append(missing, item.Title)
		}
	}
	return missing
}

// Lock transitions SUBMITTED -> LOCKED. A locked instance is terminal.
func (s *Service) Lock(ctx context.Context, tenantID string, id string) (*models.Instance, error) {
	ctx, span := tracing.StartSpan(ctx, "checklist.Service.Lock")
	defer span.End()

	instance, err := s.GetInstance(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if instance.Status != models.InstanceStatusSubmitted {
		return nil, cherrors.NewIllegalState("cannot lock checklist in status %s", instance.Status)
	}

	if err := s.instances.UpdateStatus(ctx, tenantID, id, models.InstanceStatusLocked); err != nil {
		return nil, err
	}
	instance.Status = models.InstanceStatusLocked

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"instance_id": instance.ID,
		"stage":       instance.Stage,
	}).Info("Checklist locked")

	return instance, nil
}

// Promote clones a submitted or locked instance's full item set into a fresh
// DRAFT instance at the next pipeline stage, recording the lineage through
// parentInstanceId.
func (s *Service) Promote(ctx context.Context, tenantID string, fromID string, toStage models.Stage) (*models.Instance, error) {
	ctx, span := tracing.StartSpan(ctx, "checklist.Service.Promote")
	defer span.End()

	if !toStage.IsValid() {
		return nil, cherrors.NewInvalidValue("unknown stage %q", toStage)
	}

	source, err := s.GetInstance(ctx, tenantID, fromID)
	if err != nil {
		return nil, err
	}
	if source.Status == models.InstanceStatusDraft {
		return nil, cherrors.NewIllegalState("Cannot promote draft checklist")
	}

	now := time.Now().UTC()
	parentID := source.ID
	promoted := &models.Instance{
		ID:               uuid.New().String(),
		TenantID:         tenantID,
		UnitID:           source.UnitID,
		Stage:            toStage,
		Status:           models.InstanceStatusDraft,
		TemplateID:       source.TemplateID,
		TemplateVersion:  source.TemplateVersion,
		CleaningID:       source.CleaningID,
		RepairID:         source.RepairID,
		ParentInstanceID: &parentID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.instances.Create(ctx, promoted); err != nil {
		return nil, err
	}

	if len(source.Items) > 0 {
		clones := cloneItems(promoted.ID, source.Items, now)
		if err := s.instances.CreateItems(ctx, clones); err != nil {
			return nil, err
		}
	}

	metrics.PromotionsTotal.WithLabelValues(string(toStage)).Inc()
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"from_instance_id": source.ID,
		"to_instance_id":   promoted.ID,
		"to_stage":         toStage,
		"item_count":       len(source.Items),
	}).Info("Promoted checklist instance")

	return s.GetInstance(ctx, tenantID, promoted.ID)
}

// AddItem appends a custom item to a DRAFT instance
func (s *Service) AddItem(ctx context.Context, tenantID string, instanceID string, req models.AddItemRequest) (*models.Instance, error) {
	ctx, span := tracing.StartSpan(ctx, "checklist.Service.AddItem")
	defer span.End()

	instance, err := s.getDraft(ctx, tenantID, instanceID)
	if err != nil {
		return nil, err
	}
	if !req.Type.IsValid() {
		return nil, cherrors.NewInvalidValue("unknown item type %q", req.Type)
	}

	items, err := s.instances.ListItems(ctx, instance.ID)
	if err != nil {
		return nil, err
	}

	order := 0
	for _, item := range items {
		if item.SortOrder > order {
			order = item.SortOrder
		}
	}
	order++
	if req.SortOrder != nil {
		order = *req.SortOrder
	}

	item := &models.InstanceItem{
		ID:            uuid.New().String(),
		InstanceID:    instance.ID,
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
	if err := s.instances.CreateItem(ctx, item); err != nil {
		return nil, err
	}

	return s.hydrate(ctx, instance)
}

// UpdateItem patches an item on a DRAFT instance
func (s *Service) UpdateItem(ctx context.Context, tenantID string, instanceID string, itemKey string, req models.UpdateItemRequest) (*models.Instance, error) {
	ctx, span := tracing.StartSpan(ctx, "checklist.Service.UpdateItem")
	defer span.End()

	instance, item, err := s.getDraftItem(ctx, tenantID, instanceID, itemKey)
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
	if req.SortOrder != nil {
		item.SortOrder = *req.SortOrder
	}

	if err := s.instances.UpdateItem(ctx, item); err != nil {
		return nil, err
	}

	return s.hydrate(ctx, instance)
}

// RemoveItem deletes an item from a DRAFT instance
func (s *Service) RemoveItem(ctx context.Context, tenantID string, instanceID string, itemKey string) (*models.Instance, error) {
	ctx, span := tracing.StartSpan(ctx, "checklist.Service.RemoveItem")
	defer span.End()

	instance, _, err := s.getDraftItem(ctx, tenantID, instanceID, itemKey)
	if err != nil {
		return nil, err
	}

	if err := s.instances.DeleteItem(ctx, instance.ID, itemKey); err != nil {
		return nil, err
	}

	return s.hydrate(ctx, instance)
}

func (s *Service) getDraft(ctx context.Context, tenantID string, instanceID string) (*models.Instance, error) {
	instance, err := s.instances.Get(ctx, tenantID, instanceID)
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, cherrors.NewNotFound("checklist instance %s not found", instanceID)
	}
	if instance.Status != models.InstanceStatusDraft {
		return nil, cherrors.NewIllegalState("checklist in status %s cannot be modified", instance.Status)
	}
	return instance, nil
}

func (s *Service) getItem(ctx context.Context, tenantID string, instanceID string, itemKey string) (*models.Instance, *models.InstanceItem, error) {
	instance, err := s.instances.Get(ctx, tenantID, instanceID)
	if err != nil {
		return nil, nil, err
	}
	if instance == nil {
		return nil, nil, cherrors.NewNotFound("checklist instance %s not found", instanceID)
	}

	items, err := s.instances.ListItems(ctx, instance.ID)
	if err != nil {
		return nil, nil, err
	}
	for idx := range items {
		if items[idx].Key == itemKey {
			return instance, &items[idx], nil
		}
	}
	return nil, nil, cherrors.NewNotFound("item %s not found on checklist instance %s", itemKey, instanceID)
}

func (s *Service) getDraftItem(ctx context.Context, tenantID string, instanceID string, itemKey string) (*models.Instance, *models.InstanceItem, error) {
	instance, item, err := s.getItem(ctx, tenantID, instanceID, itemKey)
	if err != nil {
		return nil, nil, err
	}
	if instance.Status != models.InstanceStatusDraft {
		return nil, nil, cherrors.NewIllegalState("checklist in status %s cannot be modified", instance.Status)
	}
	return instance, item, nil
}

func cloneItem(instanceID string, source models.InstanceItem, now time.Time) models.InstanceItem {
	return models.InstanceItem{
		ID:            uuid.New().String(),
		InstanceID:    instanceID,
		Key:           source.Key,
		Title:         source.Title,
		Description:   source.Description,
		Type:          source.Type,
		Required:      source.Required,
		RequiresPhoto: source.RequiresPhoto,
		PhotoMin:      source.PhotoMin,
		SortOrder:     source.SortOrder,
		CreatedAt:     now,
	}
}

func cloneItems(instanceID string, source []models.InstanceItem, now time.Time) []models.InstanceItem {
	clones := make([]models.InstanceItem, 0, len(source))
	for _, item := range source {
		clones = append(clones, cloneItem(instanceID, item, now))
	}
	return clones
}

func templateItemsToInstanceItems(items []models.TemplateItem) []models.InstanceItem {
	converted := make([]models.InstanceItem, 0, len(items))
	for _, item := range items {
		converted = append(converted, models.InstanceItem{
			Key:           item.Key,
			Title:         item.Title,
			Description:   item.Description,
			Type:          item.Type,
			Required:      item.Required,
			RequiresPhoto: item.RequiresPhoto,
			PhotoMin:      item.PhotoMin,
			SortOrder:     item.SortOrder,
		})
	}
	return converted
}
