package feed

// Recognized item categories
const (
	CategoryWorld      = "World"
	CategoryPolitics   = "Politics"
	CategoryBusiness   = "Business"
	CategoryTechnology = "Technology"
	CategoryCulture    = "Culture"
)

// DefaultCategory is assigned when a source has no recognized category
const DefaultCategory = CategoryCulture

var knownCategories = map[string]bool{
	CategoryWorld:      true,
	CategoryPolitics:   true,
	CategoryBusiness:   true,
	CategoryTechnology: true,
	CategoryCulture:    true,
}

// Classifier assigns a category to every item of a feed based on the feed's
// configured category. Unknown sources and unrecognized categories map to
// DefaultCategory.
type Classifier struct {
	bySource map[string]string
}

// NewClassifier builds a classifier from a feed-to-category mapping
func NewClassifier(sourceCategories map[string]string) *Classifier {
	bySource := make(map[string]string, len(sourceCategories))
	for feedID, category := range sourceCategories {
		if knownCategories[category] {
			bySource[feedID] = category
		}
	}
	return &Classifier{bySource: bySource}
}

// Classify returns the category for items of the given feed
func (c *Classifier) Classify(feedID string) string {
	if category, ok := c.bySource[feedID]; ok {
		return category
	}
	return DefaultCategory
}
