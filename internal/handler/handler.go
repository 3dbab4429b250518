package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"influencer-gifting-api/internal/commerce"
	"influencer-gifting-api/internal/database"
	"influencer-gifting-api/internal/models"
	"influencer-gifting-api/internal/service"
	"influencer-gifting-api/internal/validation"
)

// Handler provides HTTP handlers for the API.
type Handler struct {
	service     *service.Service
	maxBodySize int64
	logger      *zap.Logger
}

// NewHandlerOptions holds options for creating a handler.
type NewHandlerOptions struct {
	MaxBodySize int64
	Logger      *zap.Logger
}

// DefaultHandlerOptions returns default handler options.
func DefaultHandlerOptions() NewHandlerOptions {
	return NewHandlerOptions{
		MaxBodySize: 1 << 20, // 1MB default
	}
}

// NewHandler creates a new handler instance.
func NewHandler(svc *service.Service) *Handler {
	return NewHandlerWithOptions(svc, DefaultHandlerOptions())
}

// NewHandlerWithOptions creates a new handler instance with custom options.
func NewHandlerWithOptions(svc *service.Service, opts NewHandlerOptions) *Handler {
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = DefaultHandlerOptions().MaxBodySize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Handler{
		service:     svc,
		maxBodySize: opts.MaxBodySize,
		logger:      opts.Logger,
	}
}

// Register mounts every API route on r.
func (h *Handler) Register(r chi.Router) {
	// Claim form.
	r.Route("/public/campaigns/{slug}", func(r chi.Router) {
		r.Get("/", h.GetCampaignPage)
		r.Post("/eligibility", h.PreviewEligibility)
		r.Post("/claims", h.SubmitClaim)
	})

	// Merchant dashboard.
	r.Route("/campaigns", func(r chi.Router) {
		r.Post("/", h.CreateCampaign)
		r.Get("/", h.ListCampaigns)
		r.Post("/{id}/archive", h.ArchiveCampaign)
	})

	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.ListOrders)
		r.Post("/{id}/sync", h.SyncOrder)
	})

	r.Route("/duplicate-attempts", func(r chi.Router) {
		r.Get("/", h.ListDuplicateAttempts)
		r.Post("/{id}/accept", h.AcceptDuplicate)
		r.Post("/{id}/decline", h.DeclineDuplicate)
	})

	r.Route("/merchants", func(r chi.Router) {
		r.Post("/", h.UpsertMerchant)
		r.Get("/{shop}/usage", h.GetUsage)
	})

	r.Get("/products", h.ListProducts)
	r.Post("/webhooks/register", h.RegisterWebhooks)

	r.Route("/features", func(r chi.Router) {
		r.Get("/", h.ListFeatures)
		r.Put("/{name}", h.SetFeature)
	})
}

// CreateCampaign handles POST /campaigns
func (h *Handler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req models.CreateCampaignRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	req.Name = validation.SanitizeString(req.Name)
	req.MerchantID = validation.SanitizeString(req.MerchantID)
	req.Shop = validation.SanitizeString(req.Shop)
	for i := range req.SelectedProductIDs {
		req.SelectedProductIDs[i] = validation.SanitizeString(req.SelectedProductIDs[i])
	}

	campaign, err := h.service.CreateCampaign(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, campaign)
}

// ListCampaigns handles GET /campaigns
func (h *Handler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := h.service.ListCampaigns(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if campaigns == nil {
		campaigns = []models.Campaign{}
	}

	h.respondJSON(w, http.StatusOK, campaigns)
}

// ArchiveCampaign handles POST /campaigns/{id}/archive
func (h *Handler) ArchiveCampaign(w http.ResponseWriter, r *http.Request) {
	id := validation.SanitizeString(chi.URLParam(r, "id"))

	campaign, err := h.service.ArchiveCampaign(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, campaign)
}

// GetCampaignPage handles GET /public/campaigns/{slug}
func (h *Handler) GetCampaignPage(w http.ResponseWriter, r *http.Request) {
	slug := validation.SanitizeString(chi.URLParam(r, "slug"))

	page, err := h.service.GetCampaignPage(r.Context(), slug)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, page)
}

// PreviewEligibility handles POST /public/campaigns/{slug}/eligibility
func (h *Handler) PreviewEligibility(w http.ResponseWriter, r *http.Request) {
	slug := validation.SanitizeString(chi.URLParam(r, "slug"))

	var claim models.ClaimAttempt
	if !h.decodeJSON(w, r, &claim) {
		return
	}

	resp, err := h.service.PreviewEligibility(r.Context(), slug, claim)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// SubmitClaim handles POST /public/campaigns/{slug}/claims
func (h *Handler) SubmitClaim(w http.ResponseWriter, r *http.Request) {
	slug := validation.SanitizeString(chi.URLParam(r, "slug"))

	var claim models.ClaimAttempt
	if !h.decodeJSON(w, r, &claim) {
		return
	}

	resp, err := h.service.SubmitClaim(r.Context(), slug, claim)
	if err != nil {
		if !errors.Is(err, service.ErrCommerceSync) || resp.Order == nil {
			h.respondServiceError(w, err)
			return
		}
		// The claim is committed; resubmitting would create a second order.
		h.logger.Warn("claim committed without platform order",
			zap.String("order_id", resp.Order.ID), zap.Error(err))
		resp.SyncError = commerceErrorMessage
	}

	switch resp.Outcome {
	case models.ClaimAccepted:
		h.respondJSON(w, http.StatusCreated, resp)
	case models.ClaimDuplicate:
		h.respondJSON(w, http.StatusAccepted, resp)
	default:
		h.respondJSON(w, http.StatusUnprocessableEntity, resp)
	}
}

// ListOrders handles GET /orders
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.limitParam(w, r)
	if !ok {
		return
	}

	orders, err := h.service.ListOrders(r.Context(), limit)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}

	h.respondJSON(w, http.StatusOK, models.OrdersResponse{Orders: orders})
}

// SyncOrder handles POST /orders/{id}/sync
func (h *Handler) SyncOrder(w http.ResponseWriter, r *http.Request) {
	id := validation.SanitizeString(chi.URLParam(r, "id"))

	order, err := h.service.SyncOrder(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, order)
}

// ListDuplicateAttempts handles GET /duplicate-attempts
func (h *Handler) ListDuplicateAttempts(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.limitParam(w, r)
	if !ok {
		return
	}
	campaignID := validation.SanitizeString(r.URL.Query().Get("campaign_id"))

	attempts, err := h.service.ListDuplicateAttempts(r.Context(), campaignID, limit)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if attempts == nil {
		attempts = []models.DuplicateAttempt{}
	}

	h.respondJSON(w, http.StatusOK, models.DuplicateAttemptsResponse{Attempts: attempts})
}

// AcceptDuplicate handles POST /duplicate-attempts/{id}/accept
func (h *Handler) AcceptDuplicate(w http.ResponseWriter, r *http.Request) {
	id := validation.SanitizeString(chi.URLParam(r, "id"))

	order, err := h.service.AcceptDuplicate(r.Context(), id)
	if err != nil {
		if !errors.Is(err, service.ErrCommerceSync) || order.ID == "" {
			h.respondServiceError(w, err)
			return
		}
		// The order stays pending and is retried through /orders/{id}/sync.
		h.logger.Warn("duplicate accepted without platform order",
			zap.String("order_id", order.ID), zap.Error(err))
	}

	h.respondJSON(w, http.StatusCreated, order)
}

// DeclineDuplicate handles POST /duplicate-attempts/{id}/decline
func (h *Handler) DeclineDuplicate(w http.ResponseWriter, r *http.Request) {
	id := validation.SanitizeString(chi.URLParam(r, "id"))

	if err := h.service.DeclineDuplicate(r.Context(), id); err != nil {
		h.respondServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UpsertMerchant handles POST /merchants
func (h *Handler) UpsertMerchant(w http.ResponseWriter, r *http.Request) {
	var req models.MerchantRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	usage, err := h.service.UpsertMerchant(r.Context(), models.Merchant{
		Shop:        req.Shop,
		ActivePlan:  validation.SanitizeString(req.ActivePlan),
		AccessToken: validation.SanitizeString(req.AccessToken),
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, usage)
}

// GetUsage handles GET /merchants/{shop}/usage
func (h *Handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	shop := validation.SanitizeString(chi.URLParam(r, "shop"))

	usage, err := h.service.GetUsage(r.Context(), shop)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, usage)
}

// ListProducts handles GET /products?shop=
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	shop := validation.SanitizeString(r.URL.Query().Get("shop"))

	products, err := h.service.ListProducts(r.Context(), shop)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if products == nil {
		products = []models.Product{}
	}

	h.respondJSON(w, http.StatusOK, products)
}

// RegisterWebhooks handles POST /webhooks/register
func (h *Handler) RegisterWebhooks(w http.ResponseWriter, r *http.Request) {
	var req models.ShopRequest
	if r.ContentLength != 0 && !h.decodeJSON(w, r, &req) {
		return
	}

	hooks, err := h.service.RegisterWebhooks(r.Context(), validation.SanitizeString(req.Shop))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, hooks)
}

// ListFeatures handles GET /features
func (h *Handler) ListFeatures(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.service.Features().List())
}

// SetFeature handles PUT /features/{name}
func (h *Handler) SetFeature(w http.ResponseWriter, r *http.Request) {
	name := validation.SanitizeString(chi.URLParam(r, "name"))

	var req models.FeatureRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	if !h.service.Features().Set(name, req.Enabled) {
		h.respondError(w, http.StatusNotFound, "unknown feature: "+name)
		return
	}

	h.respondJSON(w, http.StatusOK, h.service.Features().List())
}

// decodeJSON reads a size-limited JSON body into dst, responding with 400
// or 413 on failure.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	// Limit request body size to prevent abuse
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			h.respondError(w, http.StatusBadRequest, "request body is required")
		case errors.As(err, &maxErr):
			h.respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
		default:
			h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		}
		return false
	}
	return true
}

func (h *Handler) limitParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(validation.SanitizeString(raw))
	if err != nil || limit < 0 {
		h.respondError(w, http.StatusBadRequest, "invalid 'limit' parameter, must be a non-negative integer")
		return 0, false
	}
	return limit, true
}

// commerceErrorMessage is the only commerce failure text shown to callers;
// the full error chain is logged.
const commerceErrorMessage = "store order could not be created"

// respondServiceError maps service and store errors onto HTTP statuses.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	var verr *validation.ValidationError
	var uerr *commerce.UserError

	switch {
	case errors.As(err, &verr):
		h.respondErrorCode(w, http.StatusBadRequest, "validation_error", verr.Error())
	case errors.Is(err, database.ErrNotFound):
		h.respondErrorCode(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, database.ErrAlreadyResolved):
		h.respondErrorCode(w, http.StatusConflict, "already_resolved", "duplicate attempt was already resolved")
	case errors.Is(err, database.ErrSlugTaken):
		h.respondErrorCode(w, http.StatusConflict, "slug_taken", "slug is already in use")
	case errors.Is(err, database.ErrOrderLimitReached):
		h.respondErrorCode(w, http.StatusConflict, "order_limit_reached", "campaign has reached its order limit")
	case errors.Is(err, service.ErrCommerceSync),
		errors.Is(err, commerce.ErrMissingCredentials),
		errors.As(err, &uerr):
		h.logger.Warn("commerce request failed", zap.Error(err))
		h.respondErrorCode(w, http.StatusBadGateway, "commerce_error", commerceErrorMessage)
	default:
		h.logger.Error("request failed", zap.Error(err))
		h.respondErrorCode(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// respondJSON sends a JSON response with the given status code.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response with the given status code and message.
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, models.ErrorResponse{Error: message})
}

func (h *Handler) respondErrorCode(w http.ResponseWriter, status int, code, message string) {
	h.respondJSON(w, status, models.ErrorResponse{Error: message, Code: code})
}
