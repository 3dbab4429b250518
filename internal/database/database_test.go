package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"influencer-gifting-api/internal/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewDB(DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func newCampaign(slug string, createdAt time.Time) models.Campaign {
	return models.Campaign{
		ID:        uuid.New().String(),
		Shop:      "glow.myshopify.com",
		Name:      "Campaign " + slug,
		Slug:      slug,
		Status:    models.CampaignActive,
		CreatedAt: createdAt,
		CampaignConfig: models.CampaignConfig{
			SelectedProductIDs:   []string{"101", "102"},
			ItemLimit:            models.Int(2),
			MaxCartValue:         "75.5",
			BlockDuplicateOrders: true,
			ShippingZone:         "United States",
		},
	}
}

func TestCampaignLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	older := newCampaign("spring-drop", base)
	newer := newCampaign("summer-glow", base.Add(time.Hour))
	require.NoError(t, db.CreateCampaign(ctx, older))
	require.NoError(t, db.CreateCampaign(ctx, newer))

	dup := newCampaign("summer-glow", base)
	assert.ErrorIs(t, db.CreateCampaign(ctx, dup), ErrSlugTaken)

	got, err := db.GetCampaignBySlug(ctx, "summer-glow")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID)
	assert.Equal(t, models.FlexNumber("2"), got.ItemLimit)
	assert.Equal(t, models.FlexNumber("75.5"), got.MaxCartValue)
	assert.True(t, got.BlockDuplicateOrders)
	assert.Equal(t, models.FlexNumber("0"), got.ClaimsCount)
	assert.True(t, got.CreatedAt.Equal(newer.CreatedAt))

	list, err := db.ListActiveCampaigns(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID, "newest first")

	require.NoError(t, db.CreateOrder(ctx, newOrder(newer.ID, "a@b.com", "", base), 0))
	require.NoError(t, db.CreateOrder(ctx, newOrder(newer.ID, "c@d.com", "", base), 0))
	got, err = db.GetCampaign(ctx, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FlexNumber("2"), got.ClaimsCount)

	require.NoError(t, db.ArchiveCampaign(ctx, newer.ID))
	_, err = db.GetCampaignBySlug(ctx, "summer-glow")
	assert.ErrorIs(t, err, ErrNotFound, "archived campaigns are not served by slug")

	got, err = db.GetCampaign(ctx, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignArchived, got.Status)

	list, err = db.ListActiveCampaigns(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.ErrorIs(t, db.ArchiveCampaign(ctx, "missing"), ErrNotFound)
}

func TestCampaignProducts(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	available := false
	inventory := 3
	products := []models.Product{
		{ID: "gid://shopify/Product/2", VariantID: "gid://shopify/ProductVariant/22", Title: "Serum", Price: "$24.00", Status: "ACTIVE", AvailableForSale: &available, InventoryQuantity: &inventory},
		{ID: "gid://shopify/Product/1", Title: "Balm", Price: "12"},
	}
	require.NoError(t, db.SaveCampaignProducts(ctx, "c1", products))

	got, err := db.ListCampaignProducts(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Serum", got[0].Title, "saved order is kept")
	require.NotNil(t, got[0].AvailableForSale)
	assert.False(t, *got[0].AvailableForSale)
	require.NotNil(t, got[0].InventoryQuantity)
	assert.Equal(t, 3, *got[0].InventoryQuantity)
	assert.Nil(t, got[1].AvailableForSale)
	assert.Nil(t, got[1].InventoryQuantity)
	assert.Equal(t, models.Amount("$24.00"), got[0].Price)

	require.NoError(t, db.SaveCampaignProducts(ctx, "c1", products[1:]))
	got, err = db.ListCampaignProducts(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, got, 1, "saving replaces the snapshot")
}

func seedCampaign(t *testing.T, db *DB, cfg models.CampaignConfig) models.Campaign {
	t.Helper()

	c := newCampaign("seed-"+uuid.New().String()[:8], time.Now())
	c.CampaignConfig = cfg
	require.NoError(t, db.CreateCampaign(context.Background(), c))
	return c
}

func newOrder(campaignID, email, handle string, createdAt time.Time) models.Order {
	return models.Order{
		ID:               uuid.New().String(),
		CampaignID:       campaignID,
		InfluencerName:   "Maya Lopez",
		InfluencerEmail:  email,
		InfluencerHandle: handle,
		Items:            []models.Product{{ID: "101", Title: "Serum", Price: "24"}},
		ShippingAddress:  models.ShippingAddress{Structured: &models.Address{Address1: "1 Main St", City: "Austin", Country: "United States"}},
		Status:           models.OrderPending,
		TermsConsent:     true,
		CreatedAt:        createdAt,
	}
}

func TestFindOrderByCampaignAndIdentity(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()
	c1 := seedCampaign(t, db, models.CampaignConfig{}).ID

	require.NoError(t, db.CreateOrder(ctx, newOrder(c1, "a@b.com", "@maya", now), 0))

	tests := []struct {
		name       string
		campaignID string
		identity   models.Identity
		want       bool
	}{
		{"same email", c1, models.Identity{Email: "a@b.com"}, true},
		{"instagram equals stored handle", c1, models.Identity{Email: "x@y.com", Instagram: "@maya"}, true},
		{"tiktok equals stored handle", c1, models.Identity{Tiktok: "@maya"}, true},
		{"other campaign", "c2", models.Identity{Email: "a@b.com"}, false},
		{"no match", c1, models.Identity{Email: "x@y.com", Instagram: "@other"}, false},
		{"empty identity", c1, models.Identity{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.FindOrderByCampaignAndIdentity(ctx, tt.campaignID, tt.identity)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCreateOrder_EnforcesOrderLimit(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	c := seedCampaign(t, db, models.CampaignConfig{OrderLimitPerLink: models.Int(2)})
	now := time.Now()

	require.NoError(t, db.CreateOrder(ctx, newOrder(c.ID, "a@b.com", "", now), 2))
	require.NoError(t, db.CreateOrder(ctx, newOrder(c.ID, "c@d.com", "", now), 2))

	rejected := newOrder(c.ID, "e@f.com", "", now)
	assert.ErrorIs(t, db.CreateOrder(ctx, rejected, 2), ErrOrderLimitReached)

	_, err := db.GetOrder(ctx, rejected.ID)
	assert.ErrorIs(t, err, ErrNotFound, "a refused claim leaves no order behind")

	got, err := db.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FlexNumber("2"), got.ClaimsCount)

	assert.ErrorIs(t, db.CreateOrder(ctx, newOrder("missing", "a@b.com", "", now), 2), ErrNotFound)
	assert.ErrorIs(t, db.CreateOrder(ctx, newOrder("missing", "a@b.com", "", now), 0), ErrNotFound)
}

func TestCreateOrder_ConcurrentClaimsStopAtLimit(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	c := seedCampaign(t, db, models.CampaignConfig{OrderLimitPerLink: models.Int(1)})

	const claimants = 30
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		refused  int
		failures []error
	)
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := db.CreateOrder(ctx, newOrder(c.ID, fmt.Sprintf("user%d@example.com", i), "", time.Now()), 1)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, ErrOrderLimitReached):
				refused++
			default:
				failures = append(failures, err)
			}
		}(i)
	}
	wg.Wait()

	require.Empty(t, failures)
	assert.Equal(t, 1, accepted)
	assert.Equal(t, claimants-1, refused)

	orders, err := db.ListOrders(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestOrders(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	c1 := seedCampaign(t, db, models.CampaignConfig{}).ID

	first := newOrder(c1, "a@b.com", "", base)
	second := newOrder(c1, "c@d.com", "", base.Add(time.Minute))
	second.ShippingAddress = models.ShippingAddress{Raw: "12 Long Road Avenue"}
	require.NoError(t, db.CreateOrder(ctx, first, 0))
	require.NoError(t, db.CreateOrder(ctx, second, 0))

	orders, err := db.ListOrders(ctx, 10)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, second.ID, orders[0].ID)
	assert.Equal(t, "12 Long Road Avenue", orders[0].ShippingAddress.Raw)
	require.NotNil(t, orders[1].ShippingAddress.Structured)
	assert.Equal(t, "Austin", orders[1].ShippingAddress.Structured.City)
	assert.True(t, orders[1].TermsConsent)

	orders, err = db.ListOrders(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	require.NoError(t, db.UpdateOrderCommerce(ctx, first.ID, "gid://shopify/DraftOrder/9", "#D9", models.OrderDraftCreated))
	got, err := db.GetOrder(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderDraftCreated, got.Status)
	assert.Equal(t, "#D9", got.ShopifyOrderNumber)

	_, err = db.GetOrder(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, db.UpdateOrderCommerce(ctx, "missing", "", "", models.OrderPending), ErrNotFound)
}

func newAttempt(campaignID string, createdAt time.Time) models.DuplicateAttempt {
	return models.DuplicateAttempt{
		ID:         uuid.New().String(),
		CampaignID: campaignID,
		InfluencerInfo: models.InfluencerInfo{
			FirstName: "Maya",
			LastName:  "Lopez",
			Email:     "a@b.com",
			Tiktok:    "@maya",
			Address:   "12 Long Road Avenue",
			Items:     []models.Product{{ID: "101", Title: "Serum", Price: "24"}},
		},
		Reason:    models.DuplicateReason,
		CreatedAt: createdAt,
	}
}

func TestDuplicateAttempts_Accept(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	c1 := seedCampaign(t, db, models.CampaignConfig{}).ID

	attempt := newAttempt(c1, time.Now())
	require.NoError(t, db.InsertDuplicateAttempt(ctx, attempt))

	attempts, err := db.ListDuplicateAttempts(ctx, c1, 50)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, models.DecisionPending, attempts[0].Decision)
	assert.Equal(t, "Maya Lopez", attempts[0].InfluencerInfo.DisplayName())

	orderID := uuid.New().String()
	order, err := db.AcceptDuplicateAttempt(ctx, attempt.ID, 0, func(a models.DuplicateAttempt) models.Order {
		return models.Order{
			ID:               orderID,
			CampaignID:       a.CampaignID,
			InfluencerName:   a.InfluencerInfo.DisplayName(),
			InfluencerEmail:  a.InfluencerInfo.Email,
			InfluencerHandle: a.InfluencerInfo.Handle(),
			Items:            a.InfluencerInfo.Items,
			ShippingAddress:  models.ShippingAddress{Raw: a.InfluencerInfo.Address},
			Status:           models.OrderPending,
			CreatedAt:        time.Now(),
		}
	})
	require.NoError(t, err)
	assert.Equal(t, orderID, order.ID)

	stored, err := db.GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, "@maya", stored.InfluencerHandle)

	attempts, err = db.ListDuplicateAttempts(ctx, c1, 50)
	require.NoError(t, err)
	assert.Empty(t, attempts)

	campaign, err := db.GetCampaign(ctx, c1)
	require.NoError(t, err)
	assert.Equal(t, models.FlexNumber("1"), campaign.ClaimsCount)

	_, err = db.AcceptDuplicateAttempt(ctx, attempt.ID, 0, func(models.DuplicateAttempt) models.Order {
		t.Fatal("order must not be built for a resolved attempt")
		return models.Order{}
	})
	assert.ErrorIs(t, err, ErrNotFound)

	orders, err := db.ListOrders(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestDuplicateAttempts_AcceptRespectsOrderLimit(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	c := seedCampaign(t, db, models.CampaignConfig{OrderLimitPerLink: models.Int(1)})

	require.NoError(t, db.CreateOrder(ctx, newOrder(c.ID, "first@example.com", "", time.Now()), 1))

	attempt := newAttempt(c.ID, time.Now())
	require.NoError(t, db.InsertDuplicateAttempt(ctx, attempt))

	_, err := db.AcceptDuplicateAttempt(ctx, attempt.ID, 1, func(a models.DuplicateAttempt) models.Order {
		return newOrder(a.CampaignID, a.InfluencerInfo.Email, "", time.Now())
	})
	assert.ErrorIs(t, err, ErrOrderLimitReached)

	pending, err := db.ListDuplicateAttempts(ctx, c.ID, 50)
	require.NoError(t, err)
	require.Len(t, pending, 1, "the attempt stays pending for a later decision")

	orders, err := db.ListOrders(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestDuplicateAttempts_DeclineAndFilter(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Now()

	a1 := newAttempt("c1", base)
	a2 := newAttempt("c2", base.Add(time.Second))
	require.NoError(t, db.InsertDuplicateAttempt(ctx, a1))
	require.NoError(t, db.InsertDuplicateAttempt(ctx, a2))

	all, err := db.ListDuplicateAttempts(ctx, "", 50)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, a2.ID, all[0].ID)

	require.NoError(t, db.DeclineDuplicateAttempt(ctx, a1.ID))
	assert.ErrorIs(t, db.DeclineDuplicateAttempt(ctx, a1.ID), ErrNotFound)

	remaining, err := db.ListDuplicateAttempts(ctx, "c1", 50)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	orders, err := db.ListOrders(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, orders, "declining never creates an order")
}

func TestMerchants(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.GetMerchantByShop(ctx, "glow.myshopify.com")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.IncrementMerchantClaims(ctx, "glow.myshopify.com"))
	require.NoError(t, db.IncrementMerchantClaims(ctx, "glow.myshopify.com"))

	m, err := db.GetMerchantByShop(ctx, "glow.myshopify.com")
	require.NoError(t, err)
	assert.Equal(t, "FREE", m.ActivePlan)
	assert.Equal(t, 2, m.TotalClaimsCount)

	require.NoError(t, db.UpsertMerchant(ctx, models.Merchant{Shop: "glow.myshopify.com", ActivePlan: "GROWTH", AccessToken: "shpat_x"}))
	m, err = db.GetMerchantByShop(ctx, "glow.myshopify.com")
	require.NoError(t, err)
	assert.Equal(t, "GROWTH", m.ActivePlan)
	assert.Equal(t, 2, m.TotalClaimsCount, "plan changes keep the counter")
	assert.Equal(t, "shpat_x", m.AccessToken)
}

func TestRebind(t *testing.T) {
	pg := New(nil, DriverPostgres)
	assert.Equal(t, "a = $1 AND b = $2 LIMIT $3", pg.rebind("a = ? AND b = ? LIMIT ?"))

	lite := New(nil, DriverSQLite)
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func TestNewDB_UnsupportedDriver(t *testing.T) {
	_, err := NewDB("mysql", "whatever")
	assert.Error(t, err)
}
