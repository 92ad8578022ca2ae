package template

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

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

// Repository handles checklist template persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new template repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new template version row
func (r *Repository) Create(ctx context.Context, template *models.Template) error {
	ctx, span := tracing.StartSpan(ctx, "template.Repository.Create")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("checklist_templates")
	sb.Cols("id", "tenant_id", "unit_id", "version", "created_at", "updated_at")
	sb.Values(template.ID, template.TenantID, template.UnitID, template.Version, template.CreatedAt, template.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return cherrors.NewDuplicateKey("template version %d already exists for unit %s", template.Version, template.UnitID)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create template")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create template")
	}

	return nil
}

// GetByID retrieves a template row by ID
func (r *Repository) GetByID(ctx context.Context, tenantID string, id string) (*models.Template, error) {
	ctx, span := tracing.StartSpan(ctx, "template.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "unit_id", "version", "created_at", "updated_at")
	sb.From("checklist_templates")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var template models.Template
	if err := r.db.GetContext(ctx, &template, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cherrors.NewNotFound("template %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get template")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get template")
	}

	return &template, nil
}

// GetCurrent retrieves the highest-version template row for a unit, or nil
// when the unit has no template at all.
func (r *Repository) GetCurrent(ctx context.Context, tenantID string, unitID string) (*models.Template, error) {
	ctx, span := tracing.StartSpan(ctx, "template.Repository.GetCurrent")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "unit_id", "version", "created_at", "updated_at")
	sb.From("checklist_templates")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("unit_id", unitID),
	)
	sb.OrderBy("version DESC")
	sb.Limit(1)

	query, args := sb.Build()
	var template models.Template
	if err := r.db.GetContext(ctx, &template, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get current template")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get current template")
	}

	return &template, nil
}

// ListItems retrieves a template's items ordered by sort order
func (r *Repository) ListItems(ctx context.Context, templateID string) ([]models.TemplateItem, error) {
	ctx, span := tracing.StartSpan(ctx, "template.Repository.ListItems")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "template_id", "key", "title", "description", "item_type", "required", "requires_photo", "photo_min", "sort_order", "created_at")
	sb.From("checklist_template_items")
	sb.Where(sb.Equal("template_id", templateID))
	sb.OrderBy("sort_order ASC", "created_at ASC")

	query, args := sb.Build()
	var items []models.TemplateItem
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list template items")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list template items")
	}

	return items, nil
}

// GetItem retrieves a single template item by key
func (r *Repository) GetItem(ctx context.Context, templateID string, key string) (*models.TemplateItem, error) {
	ctx, span := tracing.StartSpan(ctx, "template.Repository.GetItem")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "template_id", "key", "title", "description", "item_type", "required", "requires_photo", "photo_min", "sort_order", "created_at")
	sb.From("checklist_template_items")
	sb.Where(
		sb.Equal("template_id", templateID),
		sb.Equal("key", key),
	)

	query, args := sb.Build()
	var item models.TemplateItem
	if err := r.db.GetContext(ctx, &item, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cherrors.NewNotFound("template item %s not found", key)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get template item")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get template item")
	}

	return &item, nil
}

// CreateItem inserts a single template item
func (r *Repository) CreateItem(ctx context.Context, item *models.TemplateItem) error {
	ctx, span := tracing.StartSpan(ctx, "template.Repository.CreateItem")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("checklist_template_items")
	sb.Cols("id", "template_id", "key", "title", "description", "item_type", "required", "requires_photo", "photo_min", "sort_order", "created_at")
	sb.Values(item.ID, item.TemplateID, item.Key, item.Title, item.Description, item.Type, item.Required, item.RequiresPhoto, item.PhotoMin, item.SortOrder, item.CreatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return cherrors.NewDuplicateKey("item key %s already exists on template %s", item.Key, item.TemplateID)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create template item")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create template item")
	}

	return nil
}

// CreateItems inserts a batch of template items (used when cloning a version)
func (r *Repository) CreateItems(ctx context.Context, items []models.TemplateItem) error {
	ctx, span := tracing.StartSpan(ctx, "template.Repository.CreateItems")
	defer span.End()

	if len(items) == 0 {
		return nil
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("checklist_template_items")
	sb.Cols("id", "template_id", "key", "title", "description", "item_type", "required", "requires_photo", "photo_min", "sort_order", "created_at")
	for _, item := range items {
		sb.Values(item.ID, item.TemplateID, item.Key, item.Title, item.Description, item.Type, item.Required, item.RequiresPhoto, item.PhotoMin, item.SortOrder, item.CreatedAt)
	}

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return cherrors.NewDuplicateKey("duplicate item key on template %s", items[0].TemplateID)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create template items")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create template items")
	}

	return nil
}

// UpdateItem writes a template item's mutable fields back by (template_id, key)
func (r *Repository) UpdateItem(ctx context.Context, item *models.TemplateItem) error {
	ctx, span := tracing.StartSpan(ctx, "template.Repository.UpdateItem")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("checklist_template_items")
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
		sb.Equal("template_id", item.TemplateID),
		sb.Equal("key", item.Key),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update template item")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update template item")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return cherrors.NewNotFound("template item %s not found", item.Key)
	}

	return nil
}

// DeleteItem removes a template item (and its example media via FK cascade)
func (r *Repository) DeleteItem(ctx context.Context, templateID string, key string) error {
	ctx, span := tracing.StartSpan(ctx, "template.Repository.DeleteItem")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("checklist_template_items")
	sb.Where(
		sb.Equal("template_id", templateID),
		sb.Equal("key", key),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete template item")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete template item")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return cherrors.NewNotFound("template item %s not found", key)
	}

	return nil
}

// UpdateItemOrders assigns sort_order = position + 1 for every key in order.
// Runs inside one transaction so a half-applied ordering never persists.
func (r *Repository) UpdateItemOrders(ctx context.Context, templateID string, keys []string) error {
	ctx, span := tracing.StartSpan(ctx, "template.Repository.UpdateItemOrders")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	for idx, key := range keys {
		sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
		sb.Update("checklist_template_items")
		sb.Set(sb.Assign("sort_order", idx+1))
		sb.Where(
			sb.Equal("template_id", templateID),
			sb.Equal("key", key),
		)

		query, args := sb.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error("Failed to update template item order")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update template item order")
		}
	}

	return tx.Commit(ctx)
}

// MaxItemOrder returns the highest sort_order on a template, 0 when empty
func (r *Repository) MaxItemOrder(ctx context.Context, templateID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "template.Repository.MaxItemOrder")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COALESCE(MAX(sort_order), 0)")
	sb.From("checklist_template_items")
	sb.Where(sb.Equal("template_id", templateID))

	query, args := sb.Build()
	var max int
	if err := r.db.GetContext(ctx, &max, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get max item order")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get max item order")
	}

	return max, nil
}

// ListExampleMedia retrieves example media for a template item ordered by sort order
func (r *Repository) ListExampleMedia(ctx context.Context, templateItemID string) ([]models.ExampleMedia, error) {
	ctx, span := tracing.StartSpan(ctx, "template.Repository.ListExampleMedia")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "template_item_id", "url", "object_key", "mime_type", "caption", "sort_order", "created_at")
	sb.From("checklist_template_example_media")
	sb.Where(sb.Equal("template_item_id", templateItemID))
	sb.OrderBy("sort_order ASC", "created_at ASC")

	query, args := sb.Build()
	var media []models.ExampleMedia
	if err := r.db.SelectContext(ctx, &media, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list example media")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list example media")
	}

	return media, nil
}

// CreateExampleMedia appends one example media row to a template item
func (r *Repository) CreateExampleMedia(ctx context.Context, media *models.ExampleMedia) error {
	ctx, span := tracing.StartSpan(ctx, "template.Repository.CreateExampleMedia")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("checklist_template_example_media")
	sb.Cols("id", "template_item_id", "url", "object_key", "mime_type", "caption", "sort_order", "created_at")
	sb.Values(media.ID, media.TemplateItemID, media.URL, media.ObjectKey, media.MimeType, media.Caption, media.SortOrder, media.CreatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create example media")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create example media")
	}

	return nil
}

// DeleteExampleMedia removes one example media row by id
func (r *Repository) DeleteExampleMedia(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "template.Repository.DeleteExampleMedia")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("checklist_template_example_media")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete example media")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete example media")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return cherrors.NewNotFound("example media %s not found", id)
	}

	return nil
}
