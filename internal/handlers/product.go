package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/cosmetica/apiserver/config"
	"github.com/cosmetica/apiserver/internal/services"
	"github.com/cosmetica/apiserver/internal/store"
	"github.com/cosmetica/apiserver/types"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	defaultPage        = 1
	defaultLimit       = 20
	maxLimit           = 100
	maxMultipartMemory = 32 << 20
	maxImageBytes      = 5 << 20

	formFieldName        = "name"
	formFieldDesc        = "description"
	formFieldBrand       = "brand"
	formFieldCategory    = "category"
	formFieldPrice       = "price"
	formFieldCurrency    = "currency"
	formFieldStock       = "count_in_stock"
	formFieldSkinTypes   = "skin_types"
	formFieldConcerns    = "concerns"
	formFieldIngredients = "ingredients"
	formFieldVolume      = "volume"
	formFieldShade       = "shade"
	formFieldFeatured    = "is_featured"
	formFileThumbnail    = "thumbnail"
	formFileImages       = "images"
)

// ProductHandler provides HTTP handlers for the catalog.
type ProductHandler struct {
	productService *services.ProductService
	logger         *zap.Logger
}

func NewProductHandler(productService *services.ProductService, logger *zap.Logger) *ProductHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductHandler{
		productService: productService,
		logger:         logger,
	}
}

// ProductRouter registers product routes. All routes require
// authentication; mutations additionally require elevated roles.
func ProductRouter(
	r chi.Router,
	productService *services.ProductService,
	authMiddleware func(http.Handler) http.Handler,
	roles config.RolesConfig,
	logger *zap.Logger,
) {
	handler := NewProductHandler(productService, logger)
	editors := RequireRoles(roles.AdminCode, roles.EditorCode)
	admins := RequireRoles(roles.AdminCode)

	r.Use(authMiddleware)
	r.Get("/", handler.ListProducts)
	r.With(editors).Post("/", handler.CreateProduct)
	r.Get("/categories", handler.ListByCategory)
	r.Route("/{productID}", func(r chi.Router) {
		r.Get("/", handler.GetProduct)
		r.With(editors).Put("/", handler.UpdateProduct)
		r.With(admins).Delete("/", handler.DeleteProduct)
	})
}

// ProductListData is the paginated list payload.
type ProductListData struct {
	Items []types.Product `json:"items"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
	Total int             `json:"total"`
}

func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.productService.List(r.Context(), offset, limit)
	if err != nil {
		h.logger.Error("list products failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list products")
		return
	}
	if total == 0 {
		writeError(w, http.StatusNotFound, "No product was found at this time")
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: fmt.Sprintf("%d products found", total),
		Data: ProductListData{
			Items: items,
			Page:  page,
			Limit: limit,
			Total: total,
		},
	})
}

func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseProductID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "A valid product ID is required for this operation")
		return
	}

	product, err := h.productService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Cannot find product with ID %d provided", id))
			return
		}
		h.logger.Error("get product failed", zap.Int("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch product")
		return
	}

	writeJSON(w, http.StatusOK, Response{Success: true, Message: "ok", Data: product})
}

func (h *ProductHandler) ListByCategory(w http.ResponseWriter, r *http.Request) {
	category := strings.TrimSpace(r.URL.Query().Get("category"))
	if category == "" {
		writeError(w, http.StatusBadRequest, "Category query parameter is required")
		return
	}

	products, err := h.productService.ListByCategory(r.Context(), category)
	if err != nil {
		h.logger.Error("list by category failed", zap.String("category", category), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch products")
		return
	}
	if len(products) == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("No product found in the selected category: %s", category))
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: fmt.Sprintf("%d products found", len(products)),
		Data:    products,
	})
}

func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	req, err := parseProductForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.productService.GetByNameBrandCategory(r.Context(), req.Product.Name, req.Product.Brand, req.Product.Category); err == nil {
		writeError(w, http.StatusConflict, fmt.Sprintf("Product with the name '%s' already exists", req.Product.Name))
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		h.logger.Error("product duplicate check failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create product")
		return
	}

	created, err := h.productService.Create(r.Context(), req.Product, req.Thumbnail, req.Gallery)
	if err != nil {
		h.logger.Error("create product failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to create product due to server error")
		return
	}

	writeJSON(w, http.StatusCreated, Response{
		Success: true,
		Message: "Product successfully created",
		Data:    created,
	})
}

func (h *ProductHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseProductID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "A valid product ID is required for this operation")
		return
	}

	req, err := parseProductForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Product.ID = id

	updated, err := h.productService.Update(r.Context(), req.Product, req.Thumbnail, req.Gallery)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("No product found with ID %d", id))
			return
		}
		h.logger.Error("update product failed", zap.Int("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Server error during product update")
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: fmt.Sprintf("Product with the ID %d is successfully updated", id),
		Data:    updated,
	})
}

func (h *ProductHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseProductID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "A valid product ID is required for this operation")
		return
	}

	if err := h.productService.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Cannot find product with the ID %d to delete", id))
			return
		}
		h.logger.Error("delete product failed", zap.Int("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error deleting product")
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: fmt.Sprintf("Product with the ID %d has been successfully deleted", id),
	})
}

// ProductUpsertRequest is the parsed multipart form payload.
type ProductUpsertRequest struct {
	Product   types.Product
	Thumbnail *services.Upload
	Gallery   []services.Upload
}

func parsePagination(r *http.Request) (page, limit, offset int, err error) {
	page = defaultPage
	limit = defaultLimit

	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, 0, errors.New("invalid page")
		}
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return 0, 0, 0, errors.New("invalid limit")
		}
	}

	if limit > maxLimit {
		limit = maxLimit
	}

	offset = (page - 1) * limit
	return page, limit, offset, nil
}

func parseProductID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "productID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("invalid product id")
	}
	return id, nil
}

func parseProductForm(r *http.Request) (ProductUpsertRequest, error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return ProductUpsertRequest{}, errors.New("invalid multipart form")
	}

	name := strings.TrimSpace(r.FormValue(formFieldName))
	if name == "" {
		return ProductUpsertRequest{}, errors.New("name is required")
	}
	description := strings.TrimSpace(r.FormValue(formFieldDesc))
	if description == "" {
		return ProductUpsertRequest{}, errors.New("description is required")
	}
	brand := strings.TrimSpace(r.FormValue(formFieldBrand))
	if brand == "" {
		return ProductUpsertRequest{}, errors.New("brand is required")
	}
	category := strings.TrimSpace(r.FormValue(formFieldCategory))
	if category == "" {
		return ProductUpsertRequest{}, errors.New("category is required")
	}

	price, err := parseOptionalFloat(r.FormValue(formFieldPrice))
	if err != nil || price < 0 {
		return ProductUpsertRequest{}, errors.New("invalid price")
	}
	stock, err := parseOptionalInt(r.FormValue(formFieldStock))
	if err != nil || stock < 0 {
		return ProductUpsertRequest{}, errors.New("invalid stock count")
	}

	currency := strings.TrimSpace(r.FormValue(formFieldCurrency))
	if currency == "" {
		currency = "USD"
	}

	product := types.Product{
		Name:         name,
		Description:  description,
		Brand:        brand,
		Category:     category,
		Price:        price,
		Currency:     currency,
		CountInStock: stock,
		SkinTypes:    parseList(r.FormValue(formFieldSkinTypes)),
		Concerns:     parseList(r.FormValue(formFieldConcerns)),
		Ingredients:  parseList(r.FormValue(formFieldIngredients)),
		Volume:       strings.TrimSpace(r.FormValue(formFieldVolume)),
		Shade:        strings.TrimSpace(r.FormValue(formFieldShade)),
		IsFeatured:   strings.EqualFold(strings.TrimSpace(r.FormValue(formFieldFeatured)), "true"),
		IsActive:     true,
	}

	thumbnail, gallery, err := parseImageFiles(r.MultipartForm)
	if err != nil {
		return ProductUpsertRequest{}, err
	}

	return ProductUpsertRequest{
		Product:   product,
		Thumbnail: thumbnail,
		Gallery:   gallery,
	}, nil
}

func parseImageFiles(form *multipart.Form) (*services.Upload, []services.Upload, error) {
	if form == nil {
		return nil, nil, nil
	}

	var thumbnail *services.Upload
	if files := form.File[formFileThumbnail]; len(files) > 0 {
		if len(files) > 1 {
			return nil, nil, errors.New("only one thumbnail is allowed")
		}
		upload, err := readImageFile(files[0])
		if err != nil {
			return nil, nil, err
		}
		thumbnail = &upload
	}

	var gallery []services.Upload
	for _, fileHeader := range form.File[formFileImages] {
		upload, err := readImageFile(fileHeader)
		if err != nil {
			return nil, nil, err
		}
		gallery = append(gallery, upload)
	}

	return thumbnail, gallery, nil
}

func readImageFile(fileHeader *multipart.FileHeader) (services.Upload, error) {
	contentType := fileHeader.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return services.Upload{}, errors.New("only image files are allowed")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return services.Upload{}, fmt.Errorf("failed to read image file: %w", err)
	}
	data, err := readFileLimited(file, maxImageBytes)
	_ = file.Close()
	if err != nil {
		return services.Upload{}, err
	}

	return services.Upload{
		Filename:    fileHeader.Filename,
		ContentType: contentType,
		Data:        data,
	}, nil
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.New("failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, errors.New("uploaded file too large")
	}
	return data, nil
}

func parseOptionalInt(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}

func parseOptionalFloat(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	return strconv.ParseFloat(value, 64)
}

func parseList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if value := strings.TrimSpace(part); value != "" {
			values = append(values, value)
		}
	}
	return values
}
