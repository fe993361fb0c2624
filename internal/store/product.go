package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/cosmetica/apiserver/types"
)

// ProductRepository handles persistence for catalog products.
type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

const productColumns = `id, name, description, brand, category, price, currency, count_in_stock,
		thumbnail, images, rating, num_reviews, skin_types, concerns, ingredients,
		volume, shade, is_featured, is_active, created_at, updated_at`

func (r *ProductRepository) List(ctx context.Context, offset, limit int) ([]types.Product, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	const countQuery = `SELECT COUNT(1) FROM products`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, err
	}

	const listQuery = `
		SELECT ` + productColumns + `
		FROM products
		ORDER BY id
		OFFSET $1 LIMIT $2`
	rows, err := r.db.QueryContext(ctx, listQuery, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	products, err := collectProducts(rows, limit)
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func (r *ProductRepository) Get(ctx context.Context, id int) (types.Product, error) {
	const query = `
		SELECT ` + productColumns + `
		FROM products
		WHERE id = $1`
	return scanProduct(r.db.QueryRowContext(ctx, query, id))
}

// GetByNameBrandCategory supports the duplicate check performed before
// creation.
func (r *ProductRepository) GetByNameBrandCategory(ctx context.Context, name, brand, category string) (types.Product, error) {
	const query = `
		SELECT ` + productColumns + `
		FROM products
		WHERE name = $1 AND brand = $2 AND category = $3`
	return scanProduct(r.db.QueryRowContext(ctx, query, name, brand, category))
}

func (r *ProductRepository) ListByCategory(ctx context.Context, category string) ([]types.Product, error) {
	const query = `
		SELECT ` + productColumns + `
		FROM products
		WHERE category = $1
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProducts(rows, 16)
}

func (r *ProductRepository) Create(ctx context.Context, product types.Product) (types.Product, error) {
	now := time.Now()
	product.CreatedAt = now
	product.UpdatedAt = now

	thumbJSON, imagesJSON, skinJSON, concernsJSON, ingredientsJSON, err := marshalProductJSON(product)
	if err != nil {
		return types.Product{}, err
	}

	const query = `
		INSERT INTO products (name, description, brand, category, price, currency, count_in_stock,
			thumbnail, images, rating, num_reviews, skin_types, concerns, ingredients,
			volume, shade, is_featured, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		product.Name,
		product.Description,
		product.Brand,
		product.Category,
		product.Price,
		product.Currency,
		product.CountInStock,
		thumbJSON,
		imagesJSON,
		product.Rating,
		product.NumReviews,
		skinJSON,
		concernsJSON,
		ingredientsJSON,
		product.Volume,
		product.Shade,
		product.IsFeatured,
		product.IsActive,
		product.CreatedAt,
		product.UpdatedAt,
	).Scan(&product.ID); err != nil {
		return types.Product{}, err
	}
	return product, nil
}

func (r *ProductRepository) Update(ctx context.Context, product types.Product) (types.Product, error) {
	product.UpdatedAt = time.Now()

	thumbJSON, imagesJSON, skinJSON, concernsJSON, ingredientsJSON, err := marshalProductJSON(product)
	if err != nil {
		return types.Product{}, err
	}

	const query = `
		UPDATE products
		SET name = $1,
			description = $2,
			brand = $3,
			category = $4,
			price = $5,
			currency = $6,
			count_in_stock = $7,
			thumbnail = $8,
			images = $9,
			rating = $10,
			num_reviews = $11,
			skin_types = $12,
			concerns = $13,
			ingredients = $14,
			volume = $15,
			shade = $16,
			is_featured = $17,
			is_active = $18,
			updated_at = $19
		WHERE id = $20`
	result, err := r.db.ExecContext(
		ctx,
		query,
		product.Name,
		product.Description,
		product.Brand,
		product.Category,
		product.Price,
		product.Currency,
		product.CountInStock,
		thumbJSON,
		imagesJSON,
		product.Rating,
		product.NumReviews,
		skinJSON,
		concernsJSON,
		ingredientsJSON,
		product.Volume,
		product.Shade,
		product.IsFeatured,
		product.IsActive,
		product.UpdatedAt,
		product.ID,
	)
	if err != nil {
		return types.Product{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Product{}, err
	}
	if affected == 0 {
		return types.Product{}, ErrNotFound
	}
	return product, nil
}

func (r *ProductRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM products WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func marshalProductJSON(product types.Product) (thumb, images, skin, concerns, ingredients []byte, err error) {
	if thumb, err = json.Marshal(product.Thumbnail); err != nil {
		return
	}
	if images, err = json.Marshal(product.Images); err != nil {
		return
	}
	if skin, err = json.Marshal(product.SkinTypes); err != nil {
		return
	}
	if concerns, err = json.Marshal(product.Concerns); err != nil {
		return
	}
	ingredients, err = json.Marshal(product.Ingredients)
	return
}

func collectProducts(rows *sql.Rows, sizeHint int) ([]types.Product, error) {
	products := make([]types.Product, 0, sizeHint)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func scanProduct(row rowScanner) (types.Product, error) {
	var product types.Product
	var thumbJSON, imagesJSON, skinJSON, concernsJSON, ingredientsJSON []byte
	err := row.Scan(
		&product.ID,
		&product.Name,
		&product.Description,
		&product.Brand,
		&product.Category,
		&product.Price,
		&product.Currency,
		&product.CountInStock,
		&thumbJSON,
		&imagesJSON,
		&product.Rating,
		&product.NumReviews,
		&skinJSON,
		&concernsJSON,
		&ingredientsJSON,
		&product.Volume,
		&product.Shade,
		&product.IsFeatured,
		&product.IsActive,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Product{}, ErrNotFound
		}
		return types.Product{}, err
	}
	_ = json.Unmarshal(thumbJSON, &product.Thumbnail)
	_ = json.Unmarshal(imagesJSON, &product.Images)
	_ = json.Unmarshal(skinJSON, &product.SkinTypes)
	_ = json.Unmarshal(concernsJSON, &product.Concerns)
	_ = json.Unmarshal(ingredientsJSON, &product.Ingredients)
	return product, nil
}
