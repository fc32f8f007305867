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

type CartHTTP struct {
	Svc *service.CartService
}

func (h *CartHTTP) CreateCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.create")

	var req transport.CreateCartRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("create_cart_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	cart, err := h.Svc.CreateCart(ctx, req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			l.Warn("create_cart_error", "status", 400, "error", err)
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrConflict):
			l.Warn("create_cart_error", "status", 409, "error", err)
			return echo.NewHTTPError(http.StatusConflict, "user already has a cart")
		default:
			l.Error("create_cart_error", "status", 500, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
		}
	}

	l.Info("cart created", "cartID", cart.ID)
	return c.JSON(http.StatusCreated, cart)
}

func (h *CartHTTP) AddItemToCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.add_item")

	cartID, err := uuid.Parse(c.Param("cartId"))
	if err != nil {
		l.Warn("add_item_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "cart id is not a uuid")
	}

	var req transport.AddItemToCartRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("add_item_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	item, err := h.Svc.AddItemToCart(ctx, cartID, req.ProductID, req.Quantity)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			l.Warn("add_item_error", "status", 400, "error", err)
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrNotFound):
			l.Warn("add_item_error", "status", 404, "error", err)
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrConflict):
			l.Warn("add_item_error", "status", 409, "error", err)
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			l.Error("add_item_error", "status", 500, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
		}
	}

	l.Info("item added to cart", "cartID", cartID, "productID", item.ProductID, "quantity", item.Quantity)
	return c.JSON(http.StatusCreated, item)
}

func (h *CartHTTP) RemoveItemFromCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.remove_item")

	cartID, err := uuid.Parse(c.Param("cartId"))
	if err != nil {
		l.Warn("remove_item_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "cart id is not a uuid")
	}

	var req transport.RemoveItemFromCartRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("remove_item_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if err := h.Svc.RemoveItemFromCart(ctx, cartID, req.ProductID); err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			l.Warn("remove_item_error", "status", 400, "error", err)
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrNotFound):
			l.Warn("remove_item_error", "status", 404, "error", err)
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		default:
			l.Error("remove_item_error", "status", 500, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
		}
	}

	l.Info("item removed from cart", "cartID", cartID, "productID", req.ProductID)
	return c.JSON(http.StatusOK, map[string]any{"removed": req.ProductID})
}

func (h *CartHTTP) GetCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.get")

	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		l.Warn("get_cart_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "user id is not a uuid")
	}

	// a user without a cart is a valid empty result, not a 404
	view, err := h.Svc.GetCart(ctx, userID)
	if err != nil {
		l.Error("get_cart_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	if view == nil {
		return c.JSON(http.StatusOK, nil)
	}

	return c.JSON(http.StatusOK, view)
}

func (h *CartHTTP) DeleteCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.delete")

	cartID, err := uuid.Parse(c.Param("cartId"))
	if err != nil {
		l.Warn("delete_cart_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "cart id is not a uuid")
	}

	if err := h.Svc.DeleteCart(ctx, cartID); err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			l.Warn("delete_cart_error", "status", 404, "error", err)
			return echo.NewHTTPError(http.StatusNotFound, "cart not found")
		default:
			l.Error("delete_cart_error", "status", 500, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
		}
	}

	l.Info("cart deleted", "cartID", cartID)
	return c.JSON(http.StatusOK, map[string]any{"deleted": cartID})
}
