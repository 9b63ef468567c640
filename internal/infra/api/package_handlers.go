package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"vendor-billing/internal/domain/model"
	"vendor-billing/internal/usecase"
)

type packageCreateRequest struct {
	Name                  string          `json:"name"`
	Description           string          `json:"description"`
	Price                 decimal.Decimal `json:"price"`
	Currency              string          `json:"currency"`
	Duration              int             `json:"duration"`
	DurationUnit          string          `json:"duration_unit"`
	ProductLimit          int             `json:"product_limit"`
	FeaturedProductsLimit int             `json:"featured_products_limit"`
}

func (s *Server) handleListPackages(w http.ResponseWriter, r *http.Request) {
	pkgs, err := s.deps.Packages.ListActive(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items := make([]Package, 0, len(pkgs))
	for _, p := range pkgs {
		items = append(items, toPackage(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleGetPackage(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Packages.Get(r.Context(), chi.URLParam(r, "packageId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPackage(p))
}

func (s *Server) handleCreatePackage(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	var req packageCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.deps.Packages.Create(r.Context(), actor, usecase.PackageInput{
		Name:                  req.Name,
		Description:           req.Description,
		Price:                 req.Price,
		Currency:              req.Currency,
		Duration:              req.Duration,
		DurationUnit:          model.DurationUnit(req.DurationUnit),
		ProductLimit:          req.ProductLimit,
		FeaturedProductsLimit: req.FeaturedProductsLimit,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPackage(p))
}

func (s *Server) handleDeactivatePackage(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	p, err := s.deps.Packages.Deactivate(r.Context(), actor, chi.URLParam(r, "packageId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPackage(p))
}
