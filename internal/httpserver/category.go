package httpserver

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/pedrohba/store-api/internal/logging"
	"github.com/pedrohba/store-api/internal/service"
	"github.com/pedrohba/store-api/internal/transport"
)

type CategoryHTTP struct {
	Svc     *service.CategoryService
	Catalog *service.CatalogService
}

func (h *CategoryHTTP) GetCategories(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "category.list")

	categories, err := h.Svc.GetCategories(ctx)
	if err != nil {
		l.Error("get_categories_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return c.JSON(http.StatusOK, categories)
}

func (h *CategoryHTTP) GetCategory(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "category.get")

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		l.Warn("get_category_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "id is not a uuid")
	}

	category, err := h.Svc.GetCategory(ctx, id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			l.Warn("get_category_error", "status", 404, "error", err)
			return echo.NewHTTPError(http.StatusNotFound, "category not found")
		}
		l.Error("get_category_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return c.JSON(http.StatusOK, category)
}

func (h *CategoryHTTP) GetCategoryProducts(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "category.products")

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		l.Warn("category_products_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "id is not a uuid")
	}

	products, err := h.Catalog.GetProductsByCategory(ctx, id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			l.Warn("category_products_error", "status", 404, "error", err)
			return echo.NewHTTPError(http.StatusNotFound, "category not found")
		}
		l.Error("category_products_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return c.JSON(http.StatusOK, products)
}

func (h *CategoryHTTP) CreateCategory(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "category.create")

	var req transport.CreateCategoryRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("create_category_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	category, err := h.Svc.CreateCategory(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			l.Warn("create_category_error", "status", 400, "error", err)
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrConflict):
			l.Warn("create_category_error", "status", 409, "error", err)
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			l.Error("create_category_error", "status", 500, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
		}
	}

	l.Info("category created", "categoryID", category.ID)
	return c.JSON(http.StatusCreated, category)
}

func (h *CategoryHTTP) PatchCategory(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "category.patch")

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		l.Warn("patch_category_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "id is not a uuid")
	}

	var req transport.PatchCategoryRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("patch_category_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	category, err := h.Svc.PatchCategory(ctx, req, id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			l.Warn("patch_category_error", "status", 400, "error", err)
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrNotFound):
			l.Warn("patch_category_error", "status", 404, "error", err)
			return echo.NewHTTPError(http.StatusNotFound, "category not found")
		case errors.Is(err, service.ErrConflict):
			l.Warn("patch_category_error", "status", 409, "error", err)
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			l.Error("patch_category_error", "status", 500, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
		}
	}

	return c.JSON(http.StatusOK, category)
}

func (h *CategoryHTTP) DeleteCategory(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "category.delete")

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		l.Warn("delete_category_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "id is not a uuid")
	}

	if err := h.Svc.DeleteCategory(ctx, id); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			l.Warn("delete_category_error", "status", 404, "error", err)
			return echo.NewHTTPError(http.StatusNotFound, "category not found")
		}
		l.Error("delete_category_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return c.JSON(http.StatusOK, map[string]any{"deleted": id})
}
