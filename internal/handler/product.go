package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/product"
)

type sizeDTO struct {
	Name      string `json:"name"`
	Available int    `json:"available"`
}

type productDTO struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Title           string          `json:"title"`
	Category        string          `json:"category"`
	Image           string          `json:"image"`
	MRP             decimal.Decimal `json:"mrp"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	SellingPrice    decimal.Decimal `json:"selling_price"`
	Tags            []string        `json:"tags"`
	Sizes           []sizeDTO       `json:"sizes"`
}

func toProductDTO(p product.Product) productDTO {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return productDTO{
		ID:              p.ID,
		Name:            p.Name,
		Title:           p.Title,
		Category:        p.Category,
		Image:           p.Image,
		MRP:             p.MRP,
		DiscountPercent: p.DiscountPercent,
		SellingPrice:    p.SellingPrice,
		Tags:            tags,
		Sizes: mapSlice(p.Sizes, func(s product.Size) sizeDTO {
			return sizeDTO{Name: s.Name, Available: s.Available}
		}),
	}
}

// GET /api/v1/products returns every product in the catalog.
func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	list, err := h.Products.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(list, toProductDTO))
}

// GET /api/v1/products/{product}
func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Products.GetByID(r.Context(), chi.URLParam(r, "product"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(*p))
}
