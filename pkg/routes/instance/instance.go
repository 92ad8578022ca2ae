package instance

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/services/checklist"
	fcontext "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/validate"
)

// Register registers checklist instance routes
func Register(g *echo.Group) {
	g.POST("", CreateInstance)
	g.GET("", FindInstance)
	g.GET("/:id", GetInstance)
	g.POST("/:id/submit", SubmitInstance)
	g.POST("/:id/lock", LockInstance)
	g.POST("/:id/promote", PromoteInstance)
	g.POST("/:id/items", AddItem)
	g.PUT("/:id/items/:key", UpdateItem)
	g.DELETE("/:id/items/:key", RemoveItem)
	g.PUT("/:id/items/:key/answer", AnswerItem)
	g.POST("/:id/items/:key/uploads", GetUploadURLs)
	g.POST("/:id/items/:key/attachments", AttachToItem)
	g.DELETE("/attachments/:attachmentId", RemoveAttachment)
}

func getService(ctx echo.Context) (echo.Context, *checklist.Service, error) {
	reqCtx, svc, err := ectoinject.GetContext[*checklist.Service](ctx.Request().Context())
	if err != nil {
		return ctx, nil, httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	ctx.SetRequest(ctx.Request().WithContext(reqCtx))
	return ctx, svc, nil
}

// CreateInstance creates a checklist instance for a unit and stage
func CreateInstance(c echo.Context) error {
	c, svc, err := getService(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	tenantID := fcontext.GetTenantID(ctx)

	var req models.CreateInstanceRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return err
	}

	instance, err := svc.CreateInstance(ctx, tenantID, req)
	if err != nil {
		return err
	}

	if ctx, emitter, err := ectoinject.GetContext[*events.Emitter](ctx); err == nil {
		_ = emitter.EmitInstanceCreated(ctx, tenantID, instance)
	}

	return c.JSON(http.StatusCreated, instance)
}

// FindInstance looks up the most recent instance for a unit, cleaning or
// repair at a given stage
func FindInstance(c echo.Context) error {
	c, svc, err := getService(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	tenantID := fcontext.GetTenantID(ctx)

	stage := models.Stage(c.QueryParam("stage"))
	if stage == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "stage query parameter is required")
	}

	var instance *models.Instance
	switch {
	case c.QueryParam("unit_id") != "":
		instance, err = svc.GetByUnitAndStage(ctx, tenantID, c.QueryParam("unit_id"), stage)
	case c.QueryParam("cleaning_id") != "":
		instance, err = svc.GetByCleaningAndStage(ctx, tenantID, c.QueryParam("cleaning_id"), stage)
	case c.QueryParam("repair_id") != "":
		instance, err = svc.GetByRepairAndStage(ctx, tenantID, c.QueryParam("repair_id"), stage)
	default:
		return httperror.NewHTTPError(http.StatusBadRequest, "one of unit_id, cleaning_id or repair_id is required")
	}
	if err != nil {
		return err
	}
	if instance == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "no checklist instance found")
	}

	return c.JSON(http.StatusOK, instance)
}

// GetInstance gets a checklist instance by ID
func GetInstance(c echo.Context) error {
	c, svc, err := getService(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	tenantID := fcontext.GetTenantID(ctx)

	instance, err := svc.GetInstance(ctx, tenantID, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, instance)
}

// SubmitInstance validates and submits a draft checklist
func SubmitInstance(c echo.Context) error {
	c, svc, err := getService(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	tenantID := fcontext.GetTenantID(ctx)

	instance, err := svc.Submit(ctx, tenantID, c.Param("id"))
	if err != nil {
		return err
	}

	if ctx, emitter, err := ectoinject.GetContext[*events.Emitter](ctx); err == nil {
		_ = emitter.EmitInstanceSubmitted(ctx, tenantID, instance)
	}

	return c.JSON(http.StatusOK, instance)
}

// LockInstance locks a submitted checklist
func LockInstance(c echo.Context) error {
	c, svc, err := getService(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	tenantID := fcontext.GetTenantID(ctx)

	instance, err := svc.Lock(ctx, tenantID, c.Param("id"))
	if err != nil {
		return err
	}

	if ctx, emitter, err := ectoinject.GetContext[*events.Emitter](ctx); err == nil {
		_ = emitter.EmitInstanceLocked(ctx, tenantID, instance)
	}

	return c.JSON(http.StatusOK, instance)
}

// PromoteInstanceRequest is the request body for promoting an instance
type PromoteInstanceRequest struct {
	ToStage models.Stage `json:"to_stage" validate:"required"`
}

// PromoteInstance clones a completed checklist into the next pipeline stage
func PromoteInstance(c echo.Context) error {
	c, svc, err := getService(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	tenantID := fcontext.GetTenantID(ctx)

	var req PromoteInstanceRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return err
	}

	instance, err := svc.Promote(ctx, tenantID, c.Param("id"), req.ToStage)
	if err != nil {
		return err
	}

	if ctx, emitter, err := ectoinject.GetContext[*events.Emitter](ctx); err == nil {
		_ = emitter.EmitInstancePromoted(ctx, tenantID, instance)
	}

	return c.JSON(http.StatusCreated, instance)
}

// AddItem adds a custom item to a draft instance
func AddItem(c echo.Context) error {
	c, svc, err := getService(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	tenantID := fcontext.GetTenantID(ctx)

	var req models.AddItemRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return err
	}

	instance, err := svc.AddItem(ctx, tenantID, c.Param("id"), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, instance)
}

// UpdateItem patches an item on a draft instance
func UpdateItem(c echo.Context) error {
	c, svc, err := getService(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	tenantID := fcontext.GetTenantID(ctx)

	var req models.UpdateItemRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	instance, err := svc.UpdateItem(ctx, tenantID, c.Param("id"), c.Param("key"), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, instance)
}

// RemoveItem deletes an item from a draft instance
func RemoveItem(c echo.Context) error {
	c, svc, err := getService(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	tenantID := fcontext.GetTenantID(ctx)

	instance, err := svc.RemoveItem(ctx, tenantID, c.Param("id"), c.Param("key"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, instance)
}

// AnswerItem records the answer for one item
func AnswerItem(c echo.Context) error {
	c, svc, err := getService(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	tenantID := fcontext.GetTenantID(ctx)

	var req models.AnswerRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	instance, err := svc.Answer(ctx, tenantID, c.Param("id"), c.Param("key"), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, instance)
}

// UploadURLsRequest is the request body for presigned upload slots
type UploadURLsRequest struct {
	Count     int      `json:"count"`
	MimeTypes []string `json:"mime_types,omitempty"`
}

// GetUploadURLs issues presigned upload URLs for photos on one item
func GetUploadURLs(c echo.Context) error {
	c, svc, err := getService(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	tenantID := fcontext.GetTenantID(ctx)

	var req UploadURLsRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Count == 0 {
		req.Count = 1
	}

	uploads, err := svc.GetAttachmentUploadURLs(ctx, tenantID, c.Param("id"), c.Param("key"), req.Count, req.MimeTypes)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, uploads)
}

// AttachToItem appends a photo attachment to an item
func AttachToItem(c echo.Context) error {
	c, svc, err := getService(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	tenantID := fcontext.GetTenantID(ctx)

	var req models.AttachRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return err
	}

	instance, err := svc.Attach(ctx, tenantID, c.Param("id"), c.Param("key"), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, instance)
}

// RemoveAttachment deletes an attachment by id
func RemoveAttachment(c echo.Context) error {
	c, svc, err := getService(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	deleted, err := svc.RemoveAttachment(ctx, c.Param("attachmentId"))
	if err != nil {
		return err
	}
	if !deleted {
		return httperror.NewHTTPError(http.StatusNotFound, "attachment not found")
	}

	return c.NoContent(http.StatusNoContent)
}
