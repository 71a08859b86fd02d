package catalog

import (
	"gorm.io/gorm"

	"github.com/akovalyov/shop-backend/internal/models"
)

// Node is one category with its children, for the public categories listing.
type Node struct {
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Children []Node `json:"children"`
}

// Subtree resolves the id set of a category and all of its descendants. The
// resolved set is passed into the filter engine explicitly; nothing is cached
// between requests.
func Subtree(db *gorm.DB, rootID uint) ([]uint, error) {
	var cats []models.Category
	if err := db.Find(&cats).Error; err != nil {
		return nil, err
	}

	children := make(map[uint][]uint, len(cats))
	for _, cat := range cats {
		if cat.ParentID != nil {
			children[*cat.ParentID] = append(children[*cat.ParentID], cat.ID)
		}
	}

	ids := []uint{rootID}
	for queue := []uint{rootID}; len(queue) > 0; {
		id := queue[0]
		queue = queue[1:]
		for _, child := range children[id] {
			ids = append(ids, child)
			queue = append(queue, child)
		}
	}
	return ids, nil
}

// BySlug loads a category by its slug.
func BySlug(db *gorm.DB, slug string) (*models.Category, error) {
	var cat models.Category
	if err := db.Where("slug = ?", slug).First(&cat).Error; err != nil {
		return nil, err
	}
	return &cat, nil
}

// Tree builds the nested category tree, skipping hidden categories and their
// subtrees.
func Tree(db *gorm.DB) ([]Node, error) {
	var cats []models.Category
	if err := db.Order("name ASC").Find(&cats).Error; err != nil {
		return nil, err
	}

	byParent := make(map[uint][]models.Category)
	var roots []models.Category
	for _, cat := range cats {
		if cat.Hide {
			continue
		}
		if cat.ParentID == nil {
			roots = append(roots, cat)
		} else {
			byParent[*cat.ParentID] = append(byParent[*cat.ParentID], cat)
		}
	}

	var build func(cat models.Category) Node
	build = func(cat models.Category) Node {
		node := Node{Name: cat.Name, Slug: cat.Slug, Children: []Node{}}
		for _, child := range byParent[cat.ID] {
			node.Children = append(node.Children, build(child))
		}
		return node
	}

	tree := make([]Node, 0, len(roots))
	for _, root := range roots {
		tree = append(tree, build(root))
	}
	return tree, nil
}
