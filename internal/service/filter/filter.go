package filter

import (
	"net/url"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/akovalyov/shop-backend/internal/models"
)

// Params are the recognized listing query parameters. All are optional and
// composable; filters are ANDed together.
type Params struct {
	ValueIDs []uint
	PriceMin *float64
	PriceMax *float64
	Search   string
	Sort     string
}

// ParseParams reads filter parameters from the query string. Malformed value
// ids and prices are ignored rather than rejected.
func ParseParams(q url.Values) Params {
	p := Params{
		ValueIDs: ParseValueIDs(q.Get("value")),
		Search:   q.Get("q"),
		Sort:     q.Get("o"),
	}
	if v, err := strconv.ParseFloat(q.Get("price_min"), 64); err == nil {
		p.PriceMin = &v
	}
	if v, err := strconv.ParseFloat(q.Get("price_max"), 64); err == nil {
		p.PriceMax = &v
	}
	return p
}

// ParseValueIDs splits a comma-separated id list, dropping tokens that do not
// parse.
func ParseValueIDs(raw string) []uint {
	if raw == "" {
		return nil
	}
	var ids []uint
	for _, tok := range strings.Split(raw, ",") {
		id, err := strconv.ParseUint(strings.TrimSpace(tok), 10, 32)
		if err != nil {
			continue
		}
		ids = append(ids, uint(id))
	}
	return ids
}

// ByValues narrows qs to products matching the selected facet values: the
// selected ids are grouped by their owning option, and a product must carry at
// least one value from every represented option (AND across options, OR
// within one).
func ByValues(db, qs *gorm.DB, ids []uint) (*gorm.DB, error) {
	if len(ids) == 0 {
		return qs, nil
	}

	var vals []models.Value
	if err := db.Where("id IN ?", ids).Find(&vals).Error; err != nil {
		return nil, err
	}

	byOption := make(map[uint][]uint)
	for _, v := range vals {
		byOption[v.OptionID] = append(byOption[v.OptionID], v.ID)
	}

	for _, group := range byOption {
		sub := db.Model(&models.ProductOptionValue{}).
			Select("product_id").
			Where("value_id IN ?", group)
		qs = qs.Where("products.id IN (?)", sub)
	}
	return qs, nil
}

// ByPrice applies inclusive bounds against the effective price (discount if
// present, base price otherwise).
func ByPrice(qs *gorm.DB, min, max *float64) *gorm.DB {
	if min != nil {
		qs = qs.Where("COALESCE(discount_price, price) >= ?", *min)
	}
	if max != nil {
		qs = qs.Where("COALESCE(discount_price, price) <= ?", *max)
	}
	return qs
}

// ByName is a case-insensitive substring match on the product name.
func ByName(qs *gorm.DB, search string) *gorm.DB {
	if search == "" {
		return qs
	}
	return qs.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(search)+"%")
}

// OrderByPrice sorts by effective price. Ties are broken by the raw price in
// the same direction so products with a null discount keep a deterministic
// order.
func OrderByPrice(qs *gorm.DB, sort string) *gorm.DB {
	switch sort {
	case "price":
		return qs.Order("COALESCE(discount_price, price) ASC").Order("price ASC")
	case "-price":
		return qs.Order("COALESCE(discount_price, price) DESC").Order("price DESC")
	}
	return qs
}

// Apply composes every filter as a conjunction over qs, with the sort applied
// last.
func Apply(db, qs *gorm.DB, p Params) (*gorm.DB, error) {
	qs, err := ByValues(db, qs, p.ValueIDs)
	if err != nil {
		return nil, err
	}
	qs = ByPrice(qs, p.PriceMin, p.PriceMax)
	qs = ByName(qs, p.Search)
	qs = OrderByPrice(qs, p.Sort)
	return qs, nil
}

type FacetValue struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

type FacetOption struct {
	ID     uint         `json:"id"`
	Name   string       `json:"name"`
	Values []FacetValue `json:"values" gorm:"-"`
}

type Facets struct {
	PriceMin float64       `json:"price_min"`
	PriceMax float64       `json:"price_max"`
	Options  []FacetOption `json:"options"`
}

// ForCategories builds the facet listing for a category subtree: every option
// configured through a non-hidden ProductFilter row, ordered by position, each
// with the values actually assigned to at least one product in the subtree.
// Options without matching values are kept with an empty value list. The
// subtree's min/max effective prices are aggregated alongside.
func ForCategories(db *gorm.DB, categoryIDs []uint) (*Facets, error) {
	var opts []FacetOption
	err := db.Model(&models.ProductFilter{}).
		Select("options.id AS id, options.name AS name, MIN(product_filters.position) AS position").
		Joins("JOIN options ON options.id = product_filters.option_id").
		Where("product_filters.category_id IN ? AND product_filters.hide = ?", categoryIDs, false).
		Group("options.id, options.name").
		Order("position ASC").
		Scan(&opts).Error
	if err != nil {
		return nil, err
	}

	for i := range opts {
		opts[i].Values = []FacetValue{}
		err := db.Model(&models.Value{}).
			Distinct("option_values.id", "option_values.name").
			Joins("JOIN product_option_values ON product_option_values.value_id = option_values.id").
			Joins("JOIN products ON products.id = product_option_values.product_id").
			Where("products.category_id IN ? AND option_values.option_id = ?", categoryIDs, opts[i].ID).
			Order("option_values.id ASC").
			Scan(&opts[i].Values).Error
		if err != nil {
			return nil, err
		}
	}

	var bounds struct {
		PriceMin *float64
		PriceMax *float64
	}
	err = db.Model(&models.Product{}).
		Select("MIN(COALESCE(discount_price, price)) AS price_min, MAX(COALESCE(discount_price, price)) AS price_max").
		Where("category_id IN ? AND is_published = ?", categoryIDs, true).
		Scan(&bounds).Error
	if err != nil {
		return nil, err
	}

	facets := &Facets{Options: opts}
	if facets.Options == nil {
		facets.Options = []FacetOption{}
	}
	if bounds.PriceMin != nil {
		facets.PriceMin = *bounds.PriceMin
	}
	if bounds.PriceMax != nil {
		facets.PriceMax = *bounds.PriceMax
	}
	return facets, nil
}
