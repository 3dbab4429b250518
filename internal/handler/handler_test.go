package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"influencer-gifting-api/internal/commerce"
	"influencer-gifting-api/internal/database"
	"influencer-gifting-api/internal/features"
	"influencer-gifting-api/internal/models"
	"influencer-gifting-api/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const campaignBody = `{
	"name": "Summer Seeding",
	"slug": "summer-seeding",
	"products": [
		{"id": "gid://shopify/Product/1", "variantId": "gid://shopify/ProductVariant/11", "title": "Serum", "price": "$25.00", "status": "ACTIVE"},
		{"productId": 2, "variant_id": "22", "name": "Cleanser", "price": 15.5}
	],
	"selected_product_ids": ["11", "22"],
	"item_limit": "1",
	"shipping_zone": "World",
	"block_duplicate_orders": true
}`

const claimBody = `{
	"product_ids": ["11"],
	"contact": {"first_name": "Maya", "last_name": "Lopez", "email": "a@b.com", "instagram": "@maya"},
	"address": "12 Harbour Street, Sydney"
}`

func setupTestHandler(t *testing.T, opts service.Options) (*Handler, func()) {
	dbPath := filepath.Join(t.TempDir(), "test_handler.db")
	db, err := database.NewDB(database.DriverSQLite, dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	svc := service.NewService(db, opts)
	h := NewHandler(svc)

	cleanup := func() {
		db.Close()
	}

	return h, cleanup
}

func setupRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	h.Register(r)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return r
}

func doRequest(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func createCampaign(t *testing.T, r http.Handler, body string) models.Campaign {
	t.Helper()

	rr := doRequest(r, "POST", "/campaigns", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	var campaign models.Campaign
	if err := json.Unmarshal(rr.Body.Bytes(), &campaign); err != nil {
		t.Fatalf("Failed to unmarshal campaign: %v", err)
	}
	return campaign
}

func TestHealthCheck(t *testing.T) {
	h, cleanup := setupTestHandler(t, service.Options{})
	defer cleanup()

	rr := doRequest(setupRouter(h), "GET", "/health", "")

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}

	if rr.Body.String() != "OK" {
		t.Errorf("Expected body 'OK', got '%s'", rr.Body.String())
	}
}

func TestCreateCampaign_Success(t *testing.T) {
	h, cleanup := setupTestHandler(t, service.Options{})
	defer cleanup()

	r := setupRouter(h)
	campaign := createCampaign(t, r, campaignBody)

	if campaign.Slug != "summer-seeding" {
		t.Errorf("Expected slug summer-seeding, got %s", campaign.Slug)
	}
	if _, err := uuid.Parse(campaign.ID); err != nil {
		t.Errorf("Expected uuid id, got %s", campaign.ID)
	}

	rr := doRequest(r, "GET", "/public/campaigns/summer-seeding", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	var page models.CampaignPage
	if err := json.Unmarshal(rr.Body.Bytes(), &page); err != nil {
		t.Fatalf("Failed to unmarshal page: %v", err)
	}
	if len(page.Products) != 2 {
		t.Errorf("Expected 2 products, got %d", len(page.Products))
	}
	if page.Products[1].Title != "Cleanser" || page.Products[1].ID != "2" {
		t.Errorf("Expected alternate spellings to be decoded, got %+v", page.Products[1])
	}

	rr = doRequest(r, "GET", "/campaigns", "")
	var list []models.Campaign
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("Failed to unmarshal list: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("Expected 1 campaign, got %d", len(list))
	}
}

func TestCreateCampaign_InvalidJSON(t *testing.T) {
	h, cleanup := setupTestHandler(t, service.Options{})
	defer cleanup()

	rr := doRequest(setupRouter(h), "POST", "/campaigns", "invalid json")

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}

	var response models.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal error response: %v", err)
	}

	if response.Error == "" {
		t.Error("Expected error message in response")
	}
}

func TestCreateCampaign_EmptyBody(t *testing.T) {
	h, cleanup := setupTestHandler(t, service.Options{})
	defer cleanup()

	rr := doRequest(setupRouter(h), "POST", "/campaigns", "")

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
}

func TestCreateCampaign_ValidationError(t *testing.T) {
	h, cleanup := setupTestHandler(t, service.Options{})
	defer cleanup()

	rr := doRequest(setupRouter(h), "POST", "/campaigns", `{"name": "", "selected_product_ids": ["1"]}`)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	var response models.ErrorResponse
	json.Unmarshal(rr.Body.Bytes(), &response)
	if response.Code != "validation_error" {
		t.Errorf("Expected validation_error code, got %q", response.Code)
	}
}

func TestCreateCampaign_SlugTaken(t *testing.T) {
	h, cleanup := setupTestHandler(t, service.Options{})
	defer cleanup()

	r := setupRouter(h)
	createCampaign(t, r, campaignBody)

	rr := doRequest(r, "POST", "/campaigns", campaignBody)
	if rr.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", rr.Code)
	}
}

func TestCreateCampaign_BodyTooLarge(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test_handler.db")
	db, err := database.NewDB(database.DriverSQLite, dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer db.Close()

	h := NewHandlerWithOptions(service.NewService(db, service.Options{}), NewHandlerOptions{MaxBodySize: 32})

	rr := doRequest(setupRouter(h), "POST", "/campaigns", campaignBody)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status 413, got %d", rr.Code)
	}
}

func TestGetCampaignPage_NotFound(t *testing.T) {
	h, cleanup := setupTestHandler(t, service.Options{})
	defer cleanup()

	rr := doRequest(setupRouter(h), "GET", "/public/campaigns/missing", "")

	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}
}

func TestClaimFlow_DuplicateAccepted(t *testing.T) {
	h, cleanup := setupTestHandler(t, service.Options{})
	defer cleanup()

	r := setupRouter(h)
	createCampaign(t, r, campaignBody)

	rr := doRequest(r, "POST", "/public/campaigns/summer-seeding/claims", claimBody)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(r, "POST", "/public/campaigns/summer-seeding/claims", claimBody)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	var claim models.ClaimResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &claim); err != nil {
		t.Fatalf("Failed to unmarshal claim response: %v", err)
	}
	if claim.Outcome != models.ClaimDuplicate || claim.DuplicateAttemptID == "" {
		t.Fatalf("Expected duplicate with attempt id, got %+v", claim)
	}

	rr = doRequest(r, "GET", "/duplicate-attempts", "")
	var attempts models.DuplicateAttemptsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &attempts); err != nil {
		t.Fatalf("Failed to unmarshal attempts: %v", err)
	}
	if len(attempts.Attempts) != 1 {
		t.Fatalf("Expected 1 attempt, got %d", len(attempts.Attempts))
	}

	path := "/duplicate-attempts/" + claim.DuplicateAttemptID + "/accept"
	rr = doRequest(r, "POST", path, "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(r, "POST", path, "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 on second accept, got %d", rr.Code)
	}

	rr = doRequest(r, "GET", "/orders?limit=10", "")
	var orders models.OrdersResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &orders); err != nil {
		t.Fatalf("Failed to unmarshal orders: %v", err)
	}
	if len(orders.Orders) != 2 {
		t.Errorf("Expected 2 orders, got %d", len(orders.Orders))
	}

	rr = doRequest(r, "GET", "/duplicate-attempts", "")
	json.Unmarshal(rr.Body.Bytes(), &attempts)
	if len(attempts.Attempts) != 0 {
		t.Errorf("Expected no pending attempts, got %d", len(attempts.Attempts))
	}
}

func TestClaimFlow_DuplicateDeclined(t *testing.T) {
	h, cleanup := setupTestHandler(t, service.Options{})
	defer cleanup()

	r := setupRouter(h)
	createCampaign(t, r, campaignBody)

	doRequest(r, "POST", "/public/campaigns/summer-seeding/claims", claimBody)
	rr := doRequest(r, "POST", "/public/campaigns/summer-seeding/claims", claimBody)

	var claim models.ClaimResponse
	json.Unmarshal(rr.Body.Bytes(), &claim)

	rr = doRequest(r, "POST", "/duplicate-attempts/"+claim.DuplicateAttemptID+"/decline", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(r, "POST", "/duplicate-attempts/"+claim.DuplicateAttemptID+"/accept", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 after decline, got %d", rr.Code)
	}
}

func TestDuplicateAttempt_InvalidID(t *testing.T) {
	h, cleanup := setupTestHandler(t, service.Options{})
	defer cleanup()

	rr := doRequest(setupRouter(h), "POST", "/duplicate-attempts/invalid-uuid/accept", "")

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
}

func TestSubmitClaim_Rejected(t *testing.T) {
	h, cleanup := setupTestHandler(t, service.Options{})
	defer cleanup()

	r := setupRouter(h)
	createCampaign(t, r, campaignBody)

	body := strings.Replace(claimBody, `["11"]`, `["11", "22"]`, 1)
	rr := doRequest(r, "POST", "/public/campaigns/summer-seeding/claims", body)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected status 422, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	var claim models.ClaimResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &claim); err != nil {
		t.Fatalf("Failed to unmarshal claim response: %v", err)
	}
	if claim.Code != "item_limit_exceeded" {
		t.Errorf("Expected item_limit_exceeded, got %s", claim.Code)
	}
}

func TestPreviewEligibility(t *testing.T) {
	h, cleanup := setupTestHandler(t, service.Options{})
	defer cleanup()

	r := setupRouter(h)
	createCampaign(t, r, campaignBody)

	rr := doRequest(r, "POST", "/public/campaigns/summer-seeding/eligibility", claimBody)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	var preview models.EligibilityResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &preview); err != nil {
		t.Fatalf("Failed to unmarshal preview: %v", err)
	}
	if !preview.Allowed || preview.SelectedTotal != "25.00" || preview.ItemLimit != 1 {
		t.Errorf("Unexpected preview: %+v", preview)
	}

	rr = doRequest(r, "GET", "/orders", "")
	var orders models.OrdersResponse
	json.Unmarshal(rr.Body.Bytes(), &orders)
	if len(orders.Orders) != 0 {
		t.Errorf("Expected preview to create no orders, got %d", len(orders.Orders))
	}
}

func TestArchiveCampaign(t *testing.T) {
	h, cleanup := setupTestHandler(t, service.Options{})
	defer cleanup()

	r := setupRouter(h)
	campaign := createCampaign(t, r, campaignBody)

	rr := doRequest(r, "POST", "/campaigns/"+campaign.ID+"/archive", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(r, "GET", "/public/campaigns/summer-seeding", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for archived campaign, got %d", rr.Code)
	}

	rr = doRequest(r, "POST", "/campaigns/"+uuid.New().String()+"/archive", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown campaign, got %d", rr.Code)
	}
}

func TestListOrders_InvalidLimit(t *testing.T) {
	h, cleanup := setupTestHandler(t, service.Options{})
	defer cleanup()

	rr := doRequest(setupRouter(h), "GET", "/orders?limit=abc", "")

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
}

func TestSubmitClaim_CommerceFailureReturnsCommittedOrder(t *testing.T) {
	fake := commerce.NewFake()
	fake.Err = errors.New("platform unavailable: dial tcp 10.0.0.7:443")
	h, cleanup := setupTestHandler(t, service.Options{
		Platform: fake,
		Features: features.Defaults(false, false, true, false),
	})
	defer cleanup()

	r := setupRouter(h)
	createCampaign(t, r, campaignBody)

	rr := doRequest(r, "POST", "/public/campaigns/summer-seeding/claims", claimBody)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201 for a committed claim, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	var claim models.ClaimResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &claim); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if claim.Outcome != models.ClaimAccepted || claim.Order == nil {
		t.Fatalf("Expected accepted claim with its order, got %+v", claim)
	}
	if claim.Order.Status != models.OrderPending {
		t.Errorf("Expected pending order, got %s", claim.Order.Status)
	}
	if claim.SyncError == "" {
		t.Error("Expected sync_error to be reported")
	}
	if strings.Contains(rr.Body.String(), "10.0.0.7") {
		t.Errorf("Internal error detail leaked: %s", rr.Body.String())
	}

	rr = doRequest(r, "GET", "/orders", "")
	var orders models.OrdersResponse
	json.Unmarshal(rr.Body.Bytes(), &orders)
	if len(orders.Orders) != 1 || orders.Orders[0].ID != claim.Order.ID {
		t.Fatalf("Expected exactly the returned order to be stored, got %+v", orders.Orders)
	}

	rr = doRequest(r, "POST", "/orders/"+claim.Order.ID+"/sync", "")
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("Expected status 502 while the platform is down, got %d", rr.Code)
	}
	var response models.ErrorResponse
	json.Unmarshal(rr.Body.Bytes(), &response)
	if response.Code != "commerce_error" {
		t.Errorf("Expected commerce_error, got %q", response.Code)
	}
	if response.Error != commerceErrorMessage {
		t.Errorf("Expected fixed commerce message, got %q", response.Error)
	}

	fake.Err = nil
	rr = doRequest(r, "POST", "/orders/"+claim.Order.ID+"/sync", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	var order models.Order
	json.Unmarshal(rr.Body.Bytes(), &order)
	if order.Status != models.OrderDraftCreated {
		t.Errorf("Expected draft_created, got %s", order.Status)
	}
}

func TestAcceptDuplicate_OrderLimitReached(t *testing.T) {
	h, cleanup := setupTestHandler(t, service.Options{})
	defer cleanup()

	r := setupRouter(h)
	body := strings.Replace(campaignBody, `"item_limit": "1",`, `"item_limit": "1", "order_limit_per_link": 2,`, 1)
	createCampaign(t, r, body)

	rr := doRequest(r, "POST", "/public/campaigns/summer-seeding/claims", claimBody)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(r, "POST", "/public/campaigns/summer-seeding/claims", claimBody)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	var claim models.ClaimResponse
	json.Unmarshal(rr.Body.Bytes(), &claim)

	other := `{
	"product_ids": ["11"],
	"contact": {"first_name": "Lena", "last_name": "Park", "email": "lena@example.com", "instagram": "@lena"},
	"address": "4 Bridge Road, Melbourne"
}`
	rr = doRequest(r, "POST", "/public/campaigns/summer-seeding/claims", other)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201 for the last slot, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(r, "POST", "/duplicate-attempts/"+claim.DuplicateAttemptID+"/accept", "")
	if rr.Code != http.StatusConflict {
		t.Fatalf("Expected status 409 on a full campaign, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	var response models.ErrorResponse
	json.Unmarshal(rr.Body.Bytes(), &response)
	if response.Code != "order_limit_reached" {
		t.Errorf("Expected order_limit_reached, got %q", response.Code)
	}

	rr = doRequest(r, "GET", "/duplicate-attempts", "")
	var attempts models.DuplicateAttemptsResponse
	json.Unmarshal(rr.Body.Bytes(), &attempts)
	if len(attempts.Attempts) != 1 {
		t.Errorf("Expected the attempt to stay pending, got %d", len(attempts.Attempts))
	}

	rr = doRequest(r, "GET", "/orders", "")
	var orders models.OrdersResponse
	json.Unmarshal(rr.Body.Bytes(), &orders)
	if len(orders.Orders) != 2 {
		t.Errorf("Expected 2 orders, got %d", len(orders.Orders))
	}
}

func TestProductsAndWebhooks(t *testing.T) {
	available := true
	fake := commerce.NewFake(models.Product{ID: "1", Title: "Serum", Price: "25.00", AvailableForSale: &available})
	h, cleanup := setupTestHandler(t, service.Options{Platform: fake})
	defer cleanup()

	r := setupRouter(h)

	rr := doRequest(r, "GET", "/products?shop=brand.myshopify.com", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	var products []models.Product
	if err := json.Unmarshal(rr.Body.Bytes(), &products); err != nil {
		t.Fatalf("Failed to unmarshal products: %v", err)
	}
	if len(products) != 1 || products[0].Title != "Serum" {
		t.Errorf("Unexpected products: %+v", products)
	}

	rr = doRequest(r, "POST", "/webhooks/register", `{"shop": "brand.myshopify.com"}`)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d. Body: %s", rr.Code, rr.Body.String())
	}
}

func TestMerchantUsage(t *testing.T) {
	h, cleanup := setupTestHandler(t, service.Options{})
	defer cleanup()

	r := setupRouter(h)

	rr := doRequest(r, "POST", "/merchants", `{"shop": "brand.myshopify.com", "active_plan": "growth", "access_token": "shpat_x"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(r, "GET", "/merchants/brand.myshopify.com/usage", "")
	var usage models.Usage
	if err := json.Unmarshal(rr.Body.Bytes(), &usage); err != nil {
		t.Fatalf("Failed to unmarshal usage: %v", err)
	}
	if usage.ActivePlan != "GROWTH" || usage.NextPlan != "UNLIMITED" {
		t.Errorf("Unexpected usage: %+v", usage)
	}
	if strings.Contains(rr.Body.String(), "shpat_x") {
		t.Error("Access token must never be returned")
	}

	rr = doRequest(r, "POST", "/merchants", `{"shop": ""}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
}

func TestFeatures(t *testing.T) {
	h, cleanup := setupTestHandler(t, service.Options{})
	defer cleanup()

	r := setupRouter(h)

	rr := doRequest(r, "PUT", "/features/"+features.FeatureForceDraft, `{"enabled": true}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	var flags []features.FeatureFlag
	if err := json.Unmarshal(rr.Body.Bytes(), &flags); err != nil {
		t.Fatalf("Failed to unmarshal flags: %v", err)
	}
	found := false
	for _, f := range flags {
		if f.Name == features.FeatureForceDraft {
			found = f.Enabled
		}
	}
	if !found {
		t.Error("Expected force_draft to be enabled")
	}

	rr = doRequest(r, "PUT", "/features/unknown", `{"enabled": true}`)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}
}
