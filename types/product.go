package types

import "time"

// Image is a stored product image: the public URL served to clients and
// the object storage key used to delete it later.
type Image struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

// Product represents a catalog entry.
type Product struct {
	ID          int    `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description" db:"description"`
	Brand       string `json:"brand" db:"brand"`
	Category    string `json:"category" db:"category"`

	Price        float64 `json:"price" db:"price"`
	Currency     string  `json:"currency" db:"currency"`
	CountInStock int     `json:"count_in_stock" db:"count_in_stock"`

	Thumbnail Image   `json:"thumbnail" db:"thumbnail"`
	Images    []Image `json:"images" db:"images"`

	Rating     float64 `json:"rating" db:"rating"`
	NumReviews int     `json:"num_reviews" db:"num_reviews"`

	SkinTypes   []string `json:"skin_types" db:"skin_types"`
	Concerns    []string `json:"concerns" db:"concerns"`
	Ingredients []string `json:"ingredients" db:"ingredients"`
	Volume      string   `json:"volume,omitempty" db:"volume"`
	Shade       string   `json:"shade,omitempty" db:"shade"`

	IsFeatured bool `json:"is_featured" db:"is_featured"`
	IsActive   bool `json:"is_active" db:"is_active"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ImageKeys returns the storage keys of every image attached to the
// product, thumbnail included.
func (p Product) ImageKeys() []string {
	keys := make([]string, 0, len(p.Images)+1)
	if p.Thumbnail.Key != "" {
		keys = append(keys, p.Thumbnail.Key)
	}
	for _, img := range p.Images {
		if img.Key != "" {
			keys = append(keys, img.Key)
		}
	}
	return keys
}
