package instance

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/Ramsey-B/fern/pkg/database"
	cherrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}

var instanceColumns = []string{
	"id", "tenant_id", "unit_id", "stage", "status",
	"template_id", "template_version", "cleaning_id", "repair_id",
	"parent_instance_id", "created_at", "updated_at",
}

// Repository handles checklist instance persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new instance repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new instance row
func (r *Repository) Create(ctx context.Context, instance *models.Instance) error {
	ctx, span := tracing.StartSpan(ctx, "instance.Repository.Create")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("checklist_instances")
	sb.Cols(instanceColumns...)
	sb.Values(
		instance.ID, instance.TenantID, instance.UnitID, instance.Stage, instance.Status,
		instance.TemplateID, instance.TemplateVersion, instance.CleaningID, instance.RepairID,
		instance.ParentInstanceID, instance.CreatedAt, instance.UpdatedAt,
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create instance")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create instance")
	}

	return nil
}

// Get retrieves an instance row by ID, nil when absent
func (r *Repository) Get(ctx context.Context, tenantID string, id string) (*models.Instance, error) {
	ctx, span := tracing.StartSpan(ctx, "instance.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(instanceColumns...)
	sb.From("checklist_instances")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var instance models.Instance
	if err := r.db.GetContext(ctx, &instance, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get instance")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get instance")
	}

	return &instance, nil
}

func (r *Repository) findOne(ctx context.Context, conds func(sb *sqlbuilder.SelectBuilder) []string) (*models.Instance, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(instanceColumns...)
	sb.From("checklist_instances")
	sb.Where(conds(sb)...)
	sb.OrderBy("created_at DESC")
	sb.Limit(1)

	query, args := sb.Build()
	var instance models.Instance
	if err := r.db.GetContext(ctx, &instance, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find instance")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find instance")
	}

	return &instance, nil
}

// FindByUnitAndStage retrieves the most recent instance for a unit and stage
func (r *Repository) FindByUnitAndStage(ctx context.Context, tenantID string, unitID string, stage models.Stage) (*models.Instance, error) {
	ctx, span := tracing.StartSpan(ctx, "instance.Repository.FindByUnitAndStage")
	defer span.End()

	return r.findOne(ctx, func(sb *sqlbuilder.SelectBuilder) []string {
		return []string{
			sb.Equal("tenant_id", tenantID),
			sb.Equal("unit_id", unitID),
			sb.Equal("stage", stage),
		}
	})
}

// FindByCleaningAndStage retrieves the most recent instance for a cleaning and stage
func (r *Repository) FindByCleaningAndStage(ctx context.Context, tenantID string, cleaningID string, stage models.Stage) (*models.Instance, error) {
	ctx, span := tracing.StartSpan(ctx, "instance.Repository.FindByCleaningAndStage")
	defer span.End()

	return r.findOne(ctx, func(sb *sqlbuilder.SelectBuilder) []string {
		return []string{
			sb.Equal("tenant_id", tenantID),
			sb.Equal("cleaning_id", cleaningID),
			sb.Equal("stage", stage),
		}
	})
}

// FindByRepairAndStage retrieves the most recent instance for a repair and stage
func (r *Repository) FindByRepairAndStage(ctx context.Context, tenantID string, repairID string, stage models.Stage) (*models.Instance, error) {
	ctx, span := tracing.StartSpan(ctx, "instance.Repository.FindByRepairAndStage")
	defer span.End()

	return r.findOne(ctx, func(sb *sqlbuilder.SelectBuilder) []string {
		return []string{
			sb.Equal("tenant_id", tenantID),
			sb.Equal("repair_id", repairID),
			sb.Equal("stage", stage),
		}
	})
}

// UpdateStatus transitions an instance's status
func (r *Repository) UpdateStatus(ctx context.Context, tenantID string, id string, status models.InstanceStatus) error {
	ctx, span := tracing.StartSpan(ctx, "instance.Repository.UpdateStatus")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("checklist_instances")
	sb.Set(
		sb.Assign("status", status),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update instance status")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update instance status")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return cherrors.NewNotFound("checklist instance %s not found", id)
	}

	return nil
}

// ListItems retrieves an instance's items ordered by sort order
func (r *Repository) ListItems(ctx context.Context, instanceID string) ([]models.InstanceItem, error) {
	ctx, span := tracing.StartSpan(ctx, "instance.Repository.ListItems")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "instance_id", "key", "title", "description", "item_type", "required", "requires_photo", "photo_min", "sort_order", "created_at")
	sb.From("checklist_instance_items")
	sb.Where(sb.Equal("instance_id", instanceID))
	sb.OrderBy("sort_order ASC", "created_at ASC")

	query, args := sb.Build()
	var items []models.InstanceItem
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list instance items")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list instance items")
	}

	return items, nil
}

// CreateItem inserts a single instance item. A concurrent writer that lost
// the race on (instance_id, key) gets DuplicateKey from the unique index.
func (r *Repository) CreateItem(ctx context.Context, item *models.InstanceItem) error {
	ctx, span := tracing.StartSpan(ctx, "instance.Repository.CreateItem")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("checklist_instance_items")
	sb.Cols("id", "instance_id", "key", "title", "description", "item_type", "required", "requires_photo", "photo_min", "sort_order", "created_at")
	sb.Values(item.ID, item.InstanceID, item.Key, item.Title, item.Description, item.Type, item.Required, item.RequiresPhoto, item.PhotoMin, item.SortOrder, item.CreatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return cherrors.NewDuplicateKey("item key %s already exists on instance %s", item.Key, item.InstanceID)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create instance item")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create instance item")
	}

	return nil
}

// CreateItems inserts a batch of instance items
func (r *Repository) CreateItems(ctx context.Context, items []models.InstanceItem) error {
	ctx, span := tracing.StartSpan(ctx, "instance.Repository.CreateItems")
	defer span.End()

	if len(items) == 0 {
		return nil
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("checklist_instance_items")
	sb.Cols("id", "instance_id", "key", "title", "description", "item_type", "required", "requires_photo", "photo_min", "sort_order", "created_at")
	for _, item := range items {
		sb.Values(item.ID, item.InstanceID, item.Key, item.Title, item.Description, item.Type, item.Required, item.RequiresPhoto, item.PhotoMin, item.SortOrder, item.CreatedAt)
	}

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return cherrors.NewDuplicateKey("duplicate item key on instance %s", items[0].InstanceID)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create instance items")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create instance items")
	}

	return nil
}

// UpdateItem writes an instance item's mutable fields back by (instance_id, key)
func (r *Repository) UpdateItem(ctx context.Context, item *models.InstanceItem) error {
	ctx, span := tracing.StartSpan(ctx, "instance.Repository.UpdateItem")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("checklist_instance_items")
	sb.Set(
		sb.Assign("title", item.Title),
		sb.Assign("description", item.Description),
		sb.Assign("item_type", item.Type),
		sb.Assign("required", item.Required),
		sb.Assign("requires_photo", item.RequiresPhoto),
		sb.Assign("photo_min", item.PhotoMin),
		sb.Assign("sort_order", item.SortOrder),
	)
	sb.Where(
		sb.Equal("instance_id", item.InstanceID),
		sb.Equal("key", item.Key),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update instance item")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update instance item")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return cherrors.NewNotFound("instance item %s not found", item.Key)
	}

	return nil
}

// DeleteItem removes an instance item by key
func (r *Repository) DeleteItem(ctx context.Context, instanceID string, key string) error {
	ctx, span := tracing.StartSpan(ctx, "instance.Repository.DeleteItem")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("checklist_instance_items")
	sb.Where(
		sb.Equal("instance_id", instanceID),
		sb.Equal("key", key),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete instance item")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete instance item")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return cherrors.NewNotFound("instance item %s not found", key)
	}

	return nil
}

// ListAnswers retrieves all answers on an instance
func (r *Repository) ListAnswers(ctx context.Context, instanceID string) ([]models.Answer, error) {
	ctx, span := tracing.StartSpan(ctx, "instance.Repository.ListAnswers")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "instance_id", "item_key", "value", "note", "created_at", "updated_at")
	sb.From("checklist_answers")
	sb.Where(sb.Equal("instance_id", instanceID))
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var answers []models.Answer
	if err := r.db.SelectContext(ctx, &answers, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list answers")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list answers")
	}

	return answers, nil
}

// UpsertAnswer records an answer, overwriting value and note on re-answer.
// The (instance_id, item_key) unique index guarantees one answer per item.
func (r *Repository) UpsertAnswer(ctx context.Context, answer *models.Answer) error {
	ctx, span := tracing.StartSpan(ctx, "instance.Repository.UpsertAnswer")
	defer span.End()

	sb := database.NewInsertBuilder()
	sb.InsertInto("checklist_answers")
	sb.Cols("id", "instance_id", "item_key", "value", "note", "created_at", "updated_at")
	sb.Values(answer.ID, answer.InstanceID, answer.ItemKey, answer.Value, answer.Note, answer.CreatedAt, answer.UpdatedAt)

	ub := sb.OnConflict("instance_id", "item_key")
	ub.Set(
		ub.Assign("value", database.Excluded("value")),
		ub.Assign("note", database.Excluded("note")),
		ub.Assign("updated_at", database.Excluded("updated_at")),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to upsert answer")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert answer")
	}

	return nil
}

// ListAttachments retrieves all attachments on an instance
func (r *Repository) ListAttachments(ctx context.Context, instanceID string) ([]models.Attachment, error) {
	ctx, span := tracing.StartSpan(ctx, "instance.Repository.ListAttachments")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "instance_id", "item_key", "url", "object_key", "caption", "created_at")
	sb.From("checklist_attachments")
	sb.Where(sb.Equal("instance_id", instanceID))
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var attachments []models.Attachment
	if err := r.db.SelectContext(ctx, &attachments, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list attachments")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list attachments")
	}

	return attachments, nil
}

// CreateAttachment appends an attachment row
func (r *Repository) CreateAttachment(ctx context.Context, attachment *models.Attachment) error {
	ctx, span := tracing.StartSpan(ctx, "instance.Repository.CreateAttachment")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("checklist_attachments")
	sb.Cols("id", "instance_id", "item_key", "url", "object_key", "caption", "created_at")
	sb.Values(attachment.ID, attachment.InstanceID, attachment.ItemKey, attachment.URL, attachment.ObjectKey, attachment.Caption, attachment.CreatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create attachment")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create attachment")
	}

	return nil
}

// DeleteAttachment removes an attachment by id, reporting whether a row existed
func (r *Repository) DeleteAttachment(ctx context.Context, id string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "instance.Repository.DeleteAttachment")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("checklist_attachments")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete attachment")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete attachment")
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}
