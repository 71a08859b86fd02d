package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/akovalyov/shop-backend/internal/models"
	"github.com/akovalyov/shop-backend/internal/mykafka"
	"github.com/akovalyov/shop-backend/internal/service/catalog"
	"github.com/akovalyov/shop-backend/internal/service/filter"
	"github.com/akovalyov/shop-backend/internal/service/token"
	"github.com/akovalyov/shop-backend/internal/util"
)

type StoreHandler struct {
	DB       *gorm.DB
	ES       *elasticsearch.Client
	ESIndex  string
	Producer *mykafka.Producer
}

func (h *StoreHandler) publish(c echo.Context, key string, event map[string]any) {
	if h.Producer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "product_events", key, event); err != nil {
		c.Logger().Errorf("Kafka publish error: %v", err)
	}
}

// indexProduct mirrors the product into Elasticsearch, best-effort.
func (h *StoreHandler) indexProduct(c echo.Context, p models.Product) {
	if h.ES == nil {
		return
	}
	body, err := json.Marshal(p)
	if err != nil {
		c.Logger().Errorf("ES marshal error: %v", err)
		return
	}
	res, err := h.ES.Index(
		h.ESIndex,
		bytes.NewReader(body),
		h.ES.Index.WithDocumentID(strconv.FormatUint(uint64(p.ID), 10)),
		h.ES.Index.WithContext(c.Request().Context()),
	)
	if err != nil {
		c.Logger().Errorf("ES index error: %v", err)
		return
	}
	res.Body.Close()
}

func (h *StoreHandler) deleteProductIndex(c echo.Context, id uint) {
	if h.ES == nil {
		return
	}
	res, err := h.ES.Delete(
		h.ESIndex,
		strconv.FormatUint(uint64(id), 10),
		h.ES.Delete.WithContext(c.Request().Context()),
	)
	if err != nil {
		c.Logger().Errorf("ES delete error: %v", err)
		return
	}
	res.Body.Close()
}

// GetCategories renders the nested category tree.
func (h *StoreHandler) GetCategories(c echo.Context) error {
	tree, err := catalog.Tree(h.DB)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, tree)
}

// GetProducts lists published products of a category subtree, filtered and
// ordered by the query parameters.
func (h *StoreHandler) GetProducts(c echo.Context) error {
	cat, err := catalog.BySlug(h.DB, c.Param("slug"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "category not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	subtree, err := catalog.Subtree(h.DB, cat.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	qs := h.DB.Model(&models.Product{}).
		Where("category_id IN ?", subtree).
		Where("is_published = ?", true)

	params := filter.ParseParams(c.QueryParams())
	qs, err = filter.Apply(h.DB, qs, params)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	var items []models.Product
	if err := qs.Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

// GetFilters returns the facet listing for a category subtree.
func (h *StoreHandler) GetFilters(c echo.Context) error {
	cat, err := catalog.BySlug(h.DB, c.Param("slug"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "category not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	subtree, err := catalog.Subtree(h.DB, cat.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	facets, err := filter.ForCategories(h.DB, subtree)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, facets)
}

// GetProduct returns the product detail with its options/values and, for an
// authenticated customer, the favorite flag.
func (h *StoreHandler) GetProduct(c echo.Context) error {
	var prod models.Product
	if err := h.DB.Where("slug = ?", c.Param("slug")).First(&prod).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "product not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	var opts []filter.FacetOption
	err := h.DB.Model(&models.Option{}).
		Distinct("options.id", "options.name").
		Joins("JOIN product_option_values ON product_option_values.option_id = options.id").
		Where("product_option_values.product_id = ?", prod.ID).
		Scan(&opts).Error
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	for i := range opts {
		opts[i].Values = []filter.FacetValue{}
		err := h.DB.Model(&models.Value{}).
			Distinct("option_values.id", "option_values.name").
			Joins("JOIN product_option_values ON product_option_values.value_id = option_values.id").
			Where("product_option_values.product_id = ? AND option_values.option_id = ?", prod.ID, opts[i].ID).
			Scan(&opts[i].Values).Error
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}

	favorite := false
	if userID := token.CurrentUserID(c); userID != nil {
		var count int64
		h.DB.Model(&models.Favorite{}).
			Where("product_id = ? AND user_id = ?", prod.ID, *userID).
			Count(&count)
		favorite = count > 0
	}

	return c.JSON(http.StatusOK, echo.Map{
		"id":             prod.ID,
		"name":           prod.Name,
		"slug":           prod.Slug,
		"price":          prod.Price,
		"discount_price": prod.DiscountPrice,
		"description":    prod.Description,
		"options":        opts,
		"favorite":       favorite,
	})
}

func (h *StoreHandler) AddFavorite(c echo.Context) error {
	userID := token.CurrentUserID(c)
	if userID == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "login required")
	}

	var prod models.Product
	if err := h.DB.Where("slug = ?", c.Param("slug")).First(&prod).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "product not found")
	}

	var count int64
	h.DB.Model(&models.Favorite{}).
		Where("product_id = ? AND user_id = ?", prod.ID, *userID).
		Count(&count)
	if count > 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "An error has occurred"})
	}

	fav := models.Favorite{ProductID: prod.ID, UserID: *userID}
	if err := h.DB.Create(&fav).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, echo.Map{"detail": "User added product"})
}

func (h *StoreHandler) DeleteFavorite(c echo.Context) error {
	userID := token.CurrentUserID(c)
	if userID == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "login required")
	}

	err := h.DB.
		Where("user_id = ? AND product_id IN (?)", *userID,
			h.DB.Model(&models.Product{}).Select("id").Where("slug = ?", c.Param("slug"))).
		Delete(&models.Favorite{}).Error
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, echo.Map{"detail": "User deleted product"})
}

type productRequest struct {
	CategoryID    uint     `json:"category_id"`
	Name          string   `json:"name"`
	Price         float64  `json:"price"`
	DiscountPrice *float64 `json:"discount_price"`
	Description   string   `json:"description"`
	IsPublished   *bool    `json:"is_published"`
}

func validateProduct(req productRequest) map[string]string {
	errs := map[string]string{}
	if req.Name == "" {
		errs["name"] = "This field may not be blank."
	}
	if req.Price <= 0 {
		errs["price"] = "Price must be positive."
	}
	if req.DiscountPrice != nil {
		if *req.DiscountPrice == 0 {
			errs["discount_price"] = "Discount price can't be 0. Maybe you wanted to leave it empty"
		} else if *req.DiscountPrice >= req.Price {
			errs["discount_price"] = fmt.Sprintf("Discount price: %v must be less than price: %v", *req.DiscountPrice, req.Price)
		}
	}
	return errs
}

func (h *StoreHandler) CreateProduct(c echo.Context) error {
	var req productRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}
	if errs := validateProduct(req); len(errs) > 0 {
		return c.JSON(http.StatusBadRequest, errs)
	}

	var cat models.Category
	if err := h.DB.First(&cat, req.CategoryID).Error; err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"category_id": "Category does not exist."})
	}

	prod := models.Product{
		CategoryID:    req.CategoryID,
		Name:          req.Name,
		Slug:          util.Slugify(req.Name),
		Price:         req.Price,
		DiscountPrice: req.DiscountPrice,
		Description:   req.Description,
		IsPublished:   true,
	}
	if req.IsPublished != nil {
		prod.IsPublished = *req.IsPublished
	}

	if err := h.DB.Create(&prod).Error; err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}

	h.indexProduct(c, prod)
	h.publish(c, fmt.Sprint(prod.ID), map[string]any{
		"type":      "product_created",
		"productID": prod.ID,
		"name":      prod.Name,
	})

	return c.JSON(http.StatusCreated, prod)
}

func (h *StoreHandler) PatchProduct(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var prod models.Product
	if err := h.DB.First(&prod, id).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "product not found")
	}

	var req productRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}
	if errs := validateProduct(req); len(errs) > 0 {
		return c.JSON(http.StatusBadRequest, errs)
	}

	prod.Name = req.Name
	prod.Price = req.Price
	prod.DiscountPrice = req.DiscountPrice
	prod.Description = req.Description
	if req.CategoryID != 0 {
		prod.CategoryID = req.CategoryID
	}
	if req.IsPublished != nil {
		prod.IsPublished = *req.IsPublished
	}

	if err := h.DB.Save(&prod).Error; err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}

	h.indexProduct(c, prod)
	h.publish(c, fmt.Sprint(prod.ID), map[string]any{
		"type":      "product_updated",
		"productID": prod.ID,
		"name":      prod.Name,
	})

	return c.JSON(http.StatusOK, prod)
}

func (h *StoreHandler) DeleteProduct(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	if err := h.DB.Delete(&models.Product{}, id).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	h.deleteProductIndex(c, uint(id))
	h.publish(c, fmt.Sprint(id), map[string]any{
		"type":      "product_deleted",
		"productID": id,
	})

	return c.NoContent(http.StatusNoContent)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}
