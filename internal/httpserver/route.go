package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	authmw "github.com/pedrohba/store-api/internal/middleware/auth"
)

type Deps struct {
	AuthHandler     *AuthHTTP
	UserHandler     *UserHTTP
	ProductHandler  *ProductHTTP
	CategoryHandler *CategoryHTTP
	CartHandler     *CartHTTP
	JWTSecret       []byte
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	mw := authmw.NewMiddleware(d.JWTSecret)

	v1 := e.Group("/api/v1")

	auth := v1.Group("/auth")
	auth.POST("/register", d.AuthHandler.Register)
	auth.POST("/login", d.AuthHandler.Login)
	auth.POST("/refresh", d.AuthHandler.Refresh)
	auth.POST("/logout", d.AuthHandler.LogOut)

	users := v1.Group("/users")
	users.GET("", d.UserHandler.GetUsers, mw.AdminOnly)
	users.GET("/me", d.UserHandler.GetMe, mw.RequireAuth)
	users.PATCH("/me", d.UserHandler.UpdateMe, mw.RequireAuth)
	users.GET("/:id", d.UserHandler.GetUser, mw.AdminOnly)
	users.DELETE("/:id", d.UserHandler.DeleteUser, mw.AdminOnly)

	products := v1.Group("/products")
	products.GET("", d.ProductHandler.GetProducts)
	products.GET("/search", d.ProductHandler.SearchProducts)
	products.GET("/:id", d.ProductHandler.GetProduct)
	products.POST("", d.ProductHandler.CreateProduct, mw.AdminOnly)
	products.PATCH("/:id", d.ProductHandler.PatchProduct, mw.AdminOnly)
	products.DELETE("/:id", d.ProductHandler.DeleteProduct, mw.AdminOnly)

	categories := v1.Group("/categories")
	categories.GET("", d.CategoryHandler.GetCategories)
	categories.GET("/:id", d.CategoryHandler.GetCategory)
	categories.GET("/:id/products", d.CategoryHandler.GetCategoryProducts)
	categories.POST("", d.CategoryHandler.CreateCategory, mw.AdminOnly)
	categories.PATCH("/:id", d.CategoryHandler.PatchCategory, mw.AdminOnly)
	categories.DELETE("/:id", d.CategoryHandler.DeleteCategory, mw.AdminOnly)

	carts := v1.Group("/carts", mw.RequireAuth)
	carts.POST("", d.CartHandler.CreateCart)
	carts.GET("/:userId", d.CartHandler.GetCart)
	carts.DELETE("/:cartId", d.CartHandler.DeleteCart)
	carts.POST("/:cartId/items", d.CartHandler.AddItemToCart)
	carts.DELETE("/:cartId/items", d.CartHandler.RemoveItemFromCart)
}
