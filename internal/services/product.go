package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/cosmetica/apiserver/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProductRepository defines persistence operations for products.
type ProductRepository interface {
	List(ctx context.Context, offset, limit int) ([]types.Product, int, error)
	Get(ctx context.Context, id int) (types.Product, error)
	GetByNameBrandCategory(ctx context.Context, name, brand, category string) (types.Product, error)
	ListByCategory(ctx context.Context, category string) ([]types.Product, error)
	Create(ctx context.Context, product types.Product) (types.Product, error)
	Update(ctx context.Context, product types.Product) (types.Product, error)
	Delete(ctx context.Context, id int) error
}

// MediaStore is the object storage surface the product service needs.
type MediaStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
}

// Upload is an in-memory image file received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ProductService encapsulates product use-cases, including image upload
// orchestration against object storage.
type ProductService struct {
	repo          ProductRepository
	media         MediaStore
	publicBaseURL string
	logger        *zap.Logger
}

func NewProductService(repo ProductRepository, media MediaStore, publicBaseURL string, logger *zap.Logger) *ProductService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductService{
		repo:          repo,
		media:         media,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger,
	}
}

func (s *ProductService) List(ctx context.Context, offset, limit int) ([]types.Product, int, error) {
	return s.repo.List(ctx, offset, limit)
}

func (s *ProductService) Get(ctx context.Context, id int) (types.Product, error) {
	return s.repo.Get(ctx, id)
}

func (s *ProductService) GetByNameBrandCategory(ctx context.Context, name, brand, category string) (types.Product, error) {
	return s.repo.GetByNameBrandCategory(ctx, name, brand, category)
}

func (s *ProductService) ListByCategory(ctx context.Context, category string) ([]types.Product, error) {
	return s.repo.ListByCategory(ctx, category)
}

// Create uploads the provided images, then persists the product. If the
// database write fails, the freshly uploaded objects are removed again.
func (s *ProductService) Create(ctx context.Context, product types.Product, thumbnail *Upload, gallery []Upload) (types.Product, error) {
	uploaded, err := s.attachImages(ctx, &product, thumbnail, gallery)
	if err != nil {
		return types.Product{}, err
	}

	created, err := s.repo.Create(ctx, product)
	if err != nil {
		s.cleanupObjects(uploaded)
		return types.Product{}, err
	}
	return created, nil
}

// Update persists the product. A provided thumbnail replaces the existing
// one; a provided gallery replaces the whole existing gallery. Replaced
// objects are deleted best-effort after the database write succeeds.
func (s *ProductService) Update(ctx context.Context, product types.Product, thumbnail *Upload, gallery []Upload) (types.Product, error) {
	existing, err := s.repo.Get(ctx, product.ID)
	if err != nil {
		return types.Product{}, err
	}

	product.Thumbnail = existing.Thumbnail
	product.Images = existing.Images

	var replaced []string
	if thumbnail != nil && existing.Thumbnail.Key != "" {
		replaced = append(replaced, existing.Thumbnail.Key)
	}
	if len(gallery) > 0 {
		for _, img := range existing.Images {
			if img.Key != "" {
				replaced = append(replaced, img.Key)
			}
		}
	}

	uploaded, err := s.attachImages(ctx, &product, thumbnail, gallery)
	if err != nil {
		return types.Product{}, err
	}

	updated, err := s.repo.Update(ctx, product)
	if err != nil {
		s.cleanupObjects(uploaded)
		return types.Product{}, err
	}

	s.cleanupObjects(replaced)
	return updated, nil
}

// Delete removes the product row, then its stored images best-effort.
func (s *ProductService) Delete(ctx context.Context, id int) error {
	product, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.cleanupObjects(product.ImageKeys())
	return nil
}

func (s *ProductService) attachImages(ctx context.Context, product *types.Product, thumbnail *Upload, gallery []Upload) ([]string, error) {
	var uploaded []string

	if thumbnail != nil {
		image, err := s.putImage(ctx, *thumbnail)
		if err != nil {
			s.cleanupObjects(uploaded)
			return nil, err
		}
		uploaded = append(uploaded, image.Key)
		product.Thumbnail = image
	}

	if len(gallery) > 0 {
		images := make([]types.Image, 0, len(gallery))
		for _, file := range gallery {
			image, err := s.putImage(ctx, file)
			if err != nil {
				s.cleanupObjects(uploaded)
				return nil, err
			}
			uploaded = append(uploaded, image.Key)
			images = append(images, image)
		}
		product.Images = images
	}

	return uploaded, nil
}

func (s *ProductService) putImage(ctx context.Context, file Upload) (types.Image, error) {
	key := "products/" + uuid.NewString() + strings.ToLower(path.Ext(file.Filename))
	err := s.media.Put(ctx, key, bytes.NewReader(file.Data), int64(len(file.Data)), file.ContentType)
	if err != nil {
		return types.Image{}, fmt.Errorf("upload image: %w", err)
	}
	return types.Image{
		URL: s.publicBaseURL + "/" + key,
		Key: key,
	}, nil
}

func (s *ProductService) cleanupObjects(keys []string) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := s.media.Delete(context.Background(), key); err != nil {
			s.logger.Warn("failed to delete stored image", zap.String("key", key), zap.Error(err))
		}
	}
}
