package filter

import (
	"fmt"
	"net/url"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/akovalyov/shop-backend/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func ptr(v float64) *float64 { return &v }

type fixture struct {
	category models.Category
	laptopA  models.Product // price 100, discount 80
	laptopB  models.Product // price 150
	phoneC   models.Product // price 90, discount 85
	color    models.Option
	size     models.Option
	black    models.Value
	silver   models.Value
	inch156  models.Value
}

func seed(t *testing.T, db *gorm.DB) fixture {
	t.Helper()
	f := fixture{}

	f.category = models.Category{Name: "Electronics", Slug: "electronics"}
	require.NoError(t, db.Create(&f.category).Error)

	f.laptopA = models.Product{CategoryID: f.category.ID, Name: "Laptop Alpha", Slug: "laptop-alpha", Price: 100, DiscountPrice: ptr(80), IsPublished: true}
	f.laptopB = models.Product{CategoryID: f.category.ID, Name: "Laptop Beta", Slug: "laptop-beta", Price: 150, IsPublished: true}
	f.phoneC = models.Product{CategoryID: f.category.ID, Name: "Phone Gamma", Slug: "phone-gamma", Price: 90, DiscountPrice: ptr(85), IsPublished: true}
	require.NoError(t, db.Create(&f.laptopA).Error)
	require.NoError(t, db.Create(&f.laptopB).Error)
	require.NoError(t, db.Create(&f.phoneC).Error)

	f.color = models.Option{Name: "Color"}
	f.size = models.Option{Name: "Screen size"}
	require.NoError(t, db.Create(&f.color).Error)
	require.NoError(t, db.Create(&f.size).Error)

	f.black = models.Value{OptionID: f.color.ID, Name: "black"}
	f.silver = models.Value{OptionID: f.color.ID, Name: "silver"}
	f.inch156 = models.Value{OptionID: f.size.ID, Name: "15.6 inch"}
	require.NoError(t, db.Create(&f.black).Error)
	require.NoError(t, db.Create(&f.silver).Error)
	require.NoError(t, db.Create(&f.inch156).Error)

	assignments := []models.ProductOptionValue{
		{ProductID: f.laptopA.ID, OptionID: f.color.ID, ValueID: f.black.ID},
		{ProductID: f.laptopA.ID, OptionID: f.size.ID, ValueID: f.inch156.ID},
		{ProductID: f.laptopB.ID, OptionID: f.color.ID, ValueID: f.silver.ID},
		{ProductID: f.laptopB.ID, OptionID: f.size.ID, ValueID: f.inch156.ID},
		{ProductID: f.phoneC.ID, OptionID: f.color.ID, ValueID: f.black.ID},
	}
	require.NoError(t, db.Create(&assignments).Error)

	return f
}

func (f fixture) baseQuery(db *gorm.DB) *gorm.DB {
	return db.Model(&models.Product{}).
		Where("category_id = ?", f.category.ID).
		Where("is_published = ?", true)
}

func names(t *testing.T, qs *gorm.DB) []string {
	t.Helper()
	var prods []models.Product
	require.NoError(t, qs.Find(&prods).Error)
	out := make([]string, len(prods))
	for i, p := range prods {
		out[i] = p.Name
	}
	return out
}

func TestParseValueIDs(t *testing.T) {
	require.Nil(t, ParseValueIDs(""))
	require.Equal(t, []uint{29, 30}, ParseValueIDs("29,30"))
	require.Equal(t, []uint{18, 20}, ParseValueIDs("12qw,18, 20"))
	require.Nil(t, ParseValueIDs("abc,,-5"))
}

func TestByValuesSingleOption(t *testing.T) {
	db := newTestDB(t)
	f := seed(t, db)

	qs, err := ByValues(db, f.baseQuery(db), []uint{f.black.ID})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"Laptop Alpha", "Phone Gamma"}, names(t, qs))
}

func TestByValuesOrWithinOption(t *testing.T) {
	db := newTestDB(t)
	f := seed(t, db)

	qs, err := ByValues(db, f.baseQuery(db), []uint{f.black.ID, f.silver.ID})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"Laptop Alpha", "Laptop Beta", "Phone Gamma"}, names(t, qs))
}

func TestByValuesAndAcrossOptions(t *testing.T) {
	db := newTestDB(t)
	f := seed(t, db)

	qs, err := ByValues(db, f.baseQuery(db), []uint{f.black.ID, f.inch156.ID})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"Laptop Alpha"}, names(t, qs))
}

func TestByPriceUsesEffectivePrice(t *testing.T) {
	db := newTestDB(t)
	f := seed(t, db)

	// Laptop Alpha costs 100 with discount 80: price_min=90 must exclude it.
	qs := ByPrice(f.baseQuery(db), ptr(90), nil)
	require.ElementsMatch(t, []string{"Laptop Beta"}, names(t, qs))

	// Inclusive bound: price_min=80 keeps it.
	qs = ByPrice(f.baseQuery(db), ptr(80), nil)
	require.ElementsMatch(t, []string{"Laptop Alpha", "Laptop Beta", "Phone Gamma"}, names(t, qs))

	qs = ByPrice(f.baseQuery(db), nil, ptr(85))
	require.ElementsMatch(t, []string{"Laptop Alpha", "Phone Gamma"}, names(t, qs))
}

func TestByName(t *testing.T) {
	db := newTestDB(t)
	f := seed(t, db)

	qs := ByName(f.baseQuery(db), "LAPTOP")
	require.ElementsMatch(t, []string{"Laptop Alpha", "Laptop Beta"}, names(t, qs))
}

func TestOrderByPrice(t *testing.T) {
	db := newTestDB(t)
	f := seed(t, db)

	got := names(t, OrderByPrice(f.baseQuery(db), "price"))
	require.Equal(t, []string{"Laptop Alpha", "Phone Gamma", "Laptop Beta"}, got)

	got = names(t, OrderByPrice(f.baseQuery(db), "-price"))
	require.Equal(t, []string{"Laptop Beta", "Phone Gamma", "Laptop Alpha"}, got)
}

func TestApplyComposesFilters(t *testing.T) {
	db := newTestDB(t)
	f := seed(t, db)

	params := ParseParams(url.Values{
		"value":     {fmt.Sprintf("%d,%d", f.black.ID, f.silver.ID)},
		"q":         {"laptop"},
		"price_min": {"80"},
		"price_max": {"200"},
		"o":         {"-price"},
	})
	qs, err := Apply(db, f.baseQuery(db), params)
	require.NoError(t, err)
	require.Equal(t, []string{"Laptop Beta", "Laptop Alpha"}, names(t, qs))
}

func TestParseParamsIgnoresMalformedPrices(t *testing.T) {
	p := ParseParams(url.Values{
		"price_min": {"abc"},
		"price_max": {""},
		"value":     {"1,x,2"},
	})
	require.Nil(t, p.PriceMin)
	require.Nil(t, p.PriceMax)
	require.Equal(t, []uint{1, 2}, p.ValueIDs)
}

func TestForCategories(t *testing.T) {
	db := newTestDB(t)
	f := seed(t, db)

	// Material is configured as a facet but has no values on any product:
	// it must still be listed, with an empty value list.
	material := models.Option{Name: "Material"}
	require.NoError(t, db.Create(&material).Error)

	filters := []models.ProductFilter{
		{CategoryID: f.category.ID, OptionID: f.color.ID, Position: 1},
		{CategoryID: f.category.ID, OptionID: f.size.ID, Position: 2},
		{CategoryID: f.category.ID, OptionID: material.ID, Position: 3},
	}
	require.NoError(t, db.Create(&filters).Error)

	facets, err := ForCategories(db, []uint{f.category.ID})
	require.NoError(t, err)

	require.Equal(t, float64(80), facets.PriceMin)
	require.Equal(t, float64(150), facets.PriceMax)

	require.Len(t, facets.Options, 3)
	require.Equal(t, "Color", facets.Options[0].Name)
	require.Equal(t, "Screen size", facets.Options[1].Name)
	require.Equal(t, "Material", facets.Options[2].Name)

	require.Len(t, facets.Options[0].Values, 2)
	require.Len(t, facets.Options[1].Values, 1)
	require.Empty(t, facets.Options[2].Values)
}

func TestForCategoriesHidesHiddenFilters(t *testing.T) {
	db := newTestDB(t)
	f := seed(t, db)

	filters := []models.ProductFilter{
		{CategoryID: f.category.ID, OptionID: f.color.ID, Position: 1},
		{CategoryID: f.category.ID, OptionID: f.size.ID, Position: 2, Hide: true},
	}
	require.NoError(t, db.Create(&filters).Error)

	facets, err := ForCategories(db, []uint{f.category.ID})
	require.NoError(t, err)
	require.Len(t, facets.Options, 1)
	require.Equal(t, "Color", facets.Options[0].Name)
}
