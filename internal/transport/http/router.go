package httpserver

import (
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/akovalyov/shop-backend/internal/handlers"
	"github.com/akovalyov/shop-backend/internal/service/token"
)

type Deps struct {
	DB            *gorm.DB
	AuthHandler   *handlers.AuthHandler
	StoreHandler  *handlers.StoreHandler
	OrderHandler  *handlers.OrderHandler
	SearchHandler *handlers.SearchHandler
	Tokens        *token.Service
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	v1 := e.Group("/api/v1")

	v1.POST("/register", d.AuthHandler.Register)
	v1.POST("/login", d.AuthHandler.Login)
	v1.POST("/logout", d.AuthHandler.LogOut)
	v1.GET("/search", d.SearchHandler.Search)

	store := v1.Group("/store")
	store.GET("/categories", d.StoreHandler.GetCategories)
	store.GET("/categories/:slug/products", d.StoreHandler.GetProducts)
	store.GET("/categories/:slug/filter", d.StoreHandler.GetFilters)
	store.GET("/product/:slug", d.StoreHandler.GetProduct, d.Tokens.OptionalAuth)
	store.POST("/product/:slug/favorite", d.StoreHandler.AddFavorite, d.Tokens.RequireAuth)
	store.DELETE("/product/:slug/favorite", d.StoreHandler.DeleteFavorite, d.Tokens.RequireAuth)

	admin := v1.Group("/admin", d.Tokens.RequireAdmin)
	admin.POST("/products", d.StoreHandler.CreateProduct)
	admin.PATCH("/products/:id", d.StoreHandler.PatchProduct)
	admin.DELETE("/products/:id", d.StoreHandler.DeleteProduct)

	order := v1.Group("/order")
	order.POST("", d.OrderHandler.Create, d.Tokens.OptionalAuth)
	order.POST("/paycallback", d.OrderHandler.PayCallback)
	order.GET("", d.OrderHandler.List, d.Tokens.RequireAuth)
	order.GET("/:id", d.OrderHandler.Detail, d.Tokens.RequireAuth)
}
