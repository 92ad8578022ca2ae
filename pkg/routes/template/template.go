package template

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/services/template"
	fcontext "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/validate"
)

// Register registers checklist template routes
func Register(g *echo.Group) {
	g.GET("/current", GetCurrentTemplate)
	g.GET("/:id", GetTemplate)
	g.POST("/versions", CreateTemplateVersion)
	g.PUT("/:id/items/order", UpdateItemOrder)
	g.POST("/:id/items", AddItem)
	g.PUT("/:id/items/:key", UpdateItem)
	g.DELETE("/:id/items/:key", RemoveItem)
	g.POST("/:id/items/:key/example-media", AddExampleMedia)
	g.POST("/:id/items/:key/example-media/uploads", GetExampleMediaUploadURLs)
	g.DELETE("/:id/example-media/:mediaId", RemoveExampleMedia)
}

func getService(ctx echo.Context) (echo.Context, *template.Service, error) {
	reqCtx, svc, err := ectoinject.GetContext[*template.Service](ctx.Request().Context())
	if err != nil {
		return ctx, nil, httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	ctx.SetRequest(ctx.Request().WithContext(reqCtx))
	return ctx, svc, nil
}

// GetCurrentTemplate gets a unit's current (highest version) template
func GetCurrentTemplate(c echo.Context) error {
	c, svc, err := getService(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	tenantID := fcontext.GetTenantID(ctx)

	unitID := c.QueryParam("unit_id")
	if unitID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "unit_id query parameter is required")
	}

	tmpl, err := svc.GetCurrent(ctx, tenantID, unitID)
	if err != nil {
		return err
	}
	if tmpl == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "no checklist template exists for unit")
	}

	return c.JSON(http.StatusOK, tmpl)
}

// GetTemplate gets one template version by ID
func GetTemplate(c echo.Context) error {
	c, svc, err := getService(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	tenantID := fcontext.GetTenantID(ctx)

	tmpl, err := svc.Get(ctx, tenantID, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, tmpl)
}

// CreateTemplateVersionRequest is the request body for creating a version
type CreateTemplateVersionRequest struct {
	UnitID string `json:"unit_id" validate:"required"`
}

// CreateTemplateVersion creates the next template version for a unit,
// cloning the current version's items
func CreateTemplateVersion(c echo.Context) error {
	c, svc, err := getService(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	tenantID := fcontext.GetTenantID(ctx)

	var req CreateTemplateVersionRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return err
	}

	tmpl, err := svc.CreateVersion(ctx, tenantID, req.UnitID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, tmpl)
}

// AddItem adds an item to a template
func AddItem(c echo.Context) error {
	c, svc, err := getService(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	tenantID := fcontext.GetTenantID(ctx)

	var req models.CreateTemplateItemRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return err
	}

	tmpl, err := svc.AddItem(ctx, tenantID, c.Param("id"), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, tmpl)
}

// UpdateItem patches a template item
func UpdateItem(c echo.Context) error {
	c, svc, err := getService(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	tenantID := fcontext.GetTenantID(ctx)

	var req models.UpdateTemplateItemRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	tmpl, err := svc.UpdateItem(ctx, tenantID, c.Param("id"), c.Param("key"), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, tmpl)
}

// RemoveItem deletes a template item
func RemoveItem(c echo.Context) error {
	c, svc, err := getService(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	tenantID := fcontext.GetTenantID(ctx)

	tmpl, err := svc.RemoveItem(ctx, tenantID, c.Param("id"), c.Param("key"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, tmpl)
}

// UpdateItemOrderRequest is the request body for reordering template items
type UpdateItemOrderRequest struct {
	Keys []string `json:"keys" validate:"required,min=1"`
}

// UpdateItemOrder applies a full ordering of item keys to a template
func UpdateItemOrder(c echo.Context) error {
	c, svc, err := getService(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	tenantID := fcontext.GetTenantID(ctx)

	var req UpdateItemOrderRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return err
	}

	tmpl, err := svc.UpdateItemOrder(ctx, tenantID, c.Param("id"), req.Keys)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, tmpl)
}

// AddExampleMedia attaches example media to a template item
func AddExampleMedia(c echo.Context) error {
	c, svc, err := getService(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	tenantID := fcontext.GetTenantID(ctx)

	var req models.AddExampleMediaRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return err
	}

	tmpl, err := svc.AddItemExampleMedia(ctx, tenantID, c.Param("id"), c.Param("key"), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, tmpl)
}

// RemoveExampleMedia deletes one example media row from a template
func RemoveExampleMedia(c echo.Context) error {
	c, svc, err := getService(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	tenantID := fcontext.GetTenantID(ctx)

	tmpl, err := svc.RemoveItemExampleMedia(ctx, tenantID, c.Param("id"), c.Param("mediaId"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, tmpl)
}

// ExampleMediaUploadsRequest is the request body for presigned upload slots
type ExampleMediaUploadsRequest struct {
	Count     int      `json:"count"`
	MimeTypes []string `json:"mime_types,omitempty"`
}

// GetExampleMediaUploadURLs issues presigned upload URLs for example media
func GetExampleMediaUploadURLs(c echo.Context) error {
	c, svc, err := getService(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	tenantID := fcontext.GetTenantID(ctx)

	var req ExampleMediaUploadsRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Count == 0 {
		req.Count = 1
	}

	uploads, err := svc.GetExampleMediaUploadURLs(ctx, tenantID, c.Param("id"), c.Param("key"), req.Count, req.MimeTypes)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, uploads)
}
