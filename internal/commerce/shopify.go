package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"influencer-gifting-api/internal/models"
)

// ErrMissingCredentials is returned when no shop or access token is known.
var ErrMissingCredentials = errors.New("missing shop domain or access token")

// webhookTopics are the subscriptions kept in sync with stored claims.
var webhookTopics = []struct {
	topic string
	path  string
}{
	{"APP_UNINSTALLED", "/webhooks/app/uninstalled"},
	{"DRAFT_ORDERS_DELETE", "/webhooks/draft-order-deleted"},
	{"FULFILLMENTS_CREATE", "/webhooks/fulfillment-created"},
	{"ORDERS_CANCELLED", "/webhooks/order-cancelled"},
	{"ORDERS_CREATE", "/webhooks/order-created"},
}

// ShopifyConfig configures the Admin GraphQL client.
type ShopifyConfig struct {
	APIVersion  string
	ShopDomain  string
	AccessToken string
	OrderMode   OrderMode
	AppURL      string
	// BaseURL overrides https://{shop}; used against local stand-ins.
	BaseURL string
	Timeout time.Duration
}

// ShopifyClient implements Platform against the Shopify Admin GraphQL API.
type ShopifyClient struct {
	cfg    ShopifyConfig
	http   *http.Client
	logger *zap.Logger
}

// NewShopifyClient creates a client. Credentials in the config are defaults
// for calls that do not carry their own.
func NewShopifyClient(cfg ShopifyConfig, logger *zap.Logger) *ShopifyClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.OrderMode == "" {
		cfg.OrderMode = ModeDraft
	}
	return &ShopifyClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type graphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code,omitempty"`
	} `json:"extensions,omitempty"`
}

type graphQLResponse[T any] struct {
	Data   T              `json:"data"`
	Errors []graphQLError `json:"errors"`
}

func postGraphQL[T any](ctx context.Context, c *ShopifyClient, creds Credentials, operation, query string, variables any) (T, error) {
	var zero T

	ctx, span := otel.Tracer("commerce").Start(ctx, "shopify."+operation)
	defer span.End()
	span.SetAttributes(attribute.String("shopify.shop", creds.Shop))

	endpoint := c.endpoint(creds.Shop)

	b, err := json.Marshal(map[string]any{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return zero, fmt.Errorf("failed to encode %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return zero, fmt.Errorf("failed to build %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", creds.AccessToken)

	res, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return zero, fmt.Errorf("%s request failed: %w", operation, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return zero, fmt.Errorf("failed to read %s response: %w", operation, err)
	}
	span.SetAttributes(attribute.Int("http.status_code", res.StatusCode))

	if res.StatusCode >= http.StatusBadRequest {
		c.logger.Warn("shopify request rejected",
			zap.String("operation", operation),
			zap.String("shop", creds.Shop),
			zap.Int("status", res.StatusCode),
		)
		span.SetStatus(codes.Error, res.Status)
		return zero, fmt.Errorf("%s returned status %d", operation, res.StatusCode)
	}

	var out graphQLResponse[T]
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, fmt.Errorf("failed to decode %s response: %w", operation, err)
	}

	if len(out.Errors) > 0 {
		msgs := make([]string, 0, len(out.Errors))
		for _, e := range out.Errors {
			msgs = append(msgs, e.Message)
		}
		span.SetStatus(codes.Error, "graphql errors")
		return zero, fmt.Errorf("%s: graphql errors: %s", operation, strings.Join(msgs, "; "))
	}

	return out.Data, nil
}

func (c *ShopifyClient) endpoint(shop string) string {
	base := c.cfg.BaseURL
	if base == "" {
		base = "https://" + shop
	}
	return fmt.Sprintf("%s/admin/api/%s/graphql.json", strings.TrimRight(base, "/"), c.cfg.APIVersion)
}

func (c *ShopifyClient) resolve(creds Credentials) (Credentials, error) {
	if creds.Shop == "" {
		creds.Shop = c.cfg.ShopDomain
	}
	if creds.AccessToken == "" && creds.Shop == c.cfg.ShopDomain {
		creds.AccessToken = c.cfg.AccessToken
	}
	if creds.Shop == "" || creds.AccessToken == "" {
		return creds, ErrMissingCredentials
	}
	return creds, nil
}

const draftOrderCreateMutation = `mutation draftOrderCreate($input: DraftOrderInput!) {
  draftOrderCreate(input: $input) {
    draftOrder { id name }
    userErrors { field message }
  }
}`

const orderCreateMutation = `mutation orderCreate($order: OrderCreateOrderInput!) {
  orderCreate(order: $order) {
    order { id name }
    userErrors { field message }
  }
}`

type createdOrder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CreateDraftOrderOrOrder creates a fully discounted draft order, or a real
// order when the request or client is in order mode.
func (c *ShopifyClient) CreateDraftOrderOrOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	creds, err := c.resolve(req.Credentials)
	if err != nil {
		return OrderResult{}, err
	}
	if req.VariantID == "" {
		return OrderResult{}, fmt.Errorf("variant id is required")
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}
	mode := req.Mode
	if mode == "" {
		mode = c.cfg.OrderMode
	}

	input := map[string]any{
		"email":     req.Email,
		"note":      req.Note,
		"lineItems": []map[string]any{{"variantId": VariantGID(req.VariantID), "quantity": req.Quantity}},
		"tags":      []string{ClaimTag},
	}
	if req.ShippingAddress != nil {
		input["shippingAddress"] = mailingAddress(*req.ShippingAddress)
	}

	if mode == ModeOrder {
		type payload struct {
			OrderCreate struct {
				Order      *createdOrder `json:"order"`
				UserErrors []FieldError  `json:"userErrors"`
			} `json:"orderCreate"`
		}
		data, err := postGraphQL[payload](ctx, c, creds, "orderCreate", orderCreateMutation, map[string]any{"order": input})
		if err != nil {
			return OrderResult{}, err
		}
		return c.orderResult("orderCreate", data.OrderCreate.Order, data.OrderCreate.UserErrors, models.OrderProcessing)
	}

	input["appliedDiscount"] = map[string]any{
		"title":     GiftDiscountTitle,
		"value":     100,
		"valueType": "PERCENTAGE",
	}

	type payload struct {
		DraftOrderCreate struct {
			DraftOrder *createdOrder `json:"draftOrder"`
			UserErrors []FieldError  `json:"userErrors"`
		} `json:"draftOrderCreate"`
	}
	data, err := postGraphQL[payload](ctx, c, creds, "draftOrderCreate", draftOrderCreateMutation, map[string]any{"input": input})
	if err != nil {
		return OrderResult{}, err
	}
	return c.orderResult("draftOrderCreate", data.DraftOrderCreate.DraftOrder, data.DraftOrderCreate.UserErrors, models.OrderDraftCreated)
}

func (c *ShopifyClient) orderResult(op string, order *createdOrder, userErrors []FieldError, status models.OrderStatus) (OrderResult, error) {
	if len(userErrors) > 0 {
		return OrderResult{}, &UserError{Operation: op, Errors: userErrors}
	}
	if order == nil {
		return OrderResult{}, &UserError{Operation: op, Errors: []FieldError{{Message: "order response missing"}}}
	}
	c.logger.Info("gift order created",
		zap.String("operation", op),
		zap.String("order_id", order.ID),
		zap.String("order_name", order.Name),
	)
	return OrderResult{ID: order.ID, Name: order.Name, Status: status}, nil
}

func mailingAddress(a models.Address) map[string]any {
	return map[string]any{
		"address1":     a.Address1,
		"address2":     a.Address2,
		"city":         a.City,
		"province":     a.Province,
		"provinceCode": a.ProvinceCode,
		"zip":          a.Zip,
		"country":      a.Country,
		"countryCode":  a.CountryCode,
		"firstName":    a.FirstName,
		"lastName":     a.LastName,
		"phone":        a.Phone,
		"company":      a.Company,
	}
}

const productsQuery = `query getProducts($first: Int!) {
  products(first: $first) {
    edges {
      node {
        id
        title
        status
        featuredImage { url }
        variants(first: 1) {
          edges {
            node { id legacyResourceId price availableForSale inventoryQuantity }
          }
        }
      }
    }
  }
}`

// ListProducts returns the first page of the catalog in canonical form.
func (c *ShopifyClient) ListProducts(ctx context.Context, creds Credentials) ([]models.Product, error) {
	creds, err := c.resolve(creds)
	if err != nil {
		return nil, err
	}

	type payload struct {
		Products struct {
			Edges []struct {
				Node productNode `json:"node"`
			} `json:"edges"`
		} `json:"products"`
	}
	data, err := postGraphQL[payload](ctx, c, creds, "getProducts", productsQuery, map[string]any{"first": 50})
	if err != nil {
		return nil, err
	}

	products := make([]models.Product, 0, len(data.Products.Edges))
	for _, edge := range data.Products.Edges {
		if p, ok := productFromNode(edge.Node); ok {
			products = append(products, p)
		}
	}
	return products, nil
}

const webhookCreateMutation = `mutation webhookSubscriptionCreate($topic: WebhookSubscriptionTopic!, $webhookSubscription: WebhookSubscriptionInput!) {
  webhookSubscriptionCreate(topic: $topic, webhookSubscription: $webhookSubscription) {
    webhookSubscription { id topic }
    userErrors { field message }
  }
}`

// RegisterWebhooks subscribes the app URL to the order lifecycle topics.
func (c *ShopifyClient) RegisterWebhooks(ctx context.Context, creds Credentials) ([]Webhook, error) {
	creds, err := c.resolve(creds)
	if err != nil {
		return nil, err
	}
	if c.cfg.AppURL == "" {
		return nil, fmt.Errorf("app url is not configured")
	}

	type payload struct {
		WebhookSubscriptionCreate struct {
			WebhookSubscription *struct {
				ID    string `json:"id"`
				Topic string `json:"topic"`
			} `json:"webhookSubscription"`
			UserErrors []FieldError `json:"userErrors"`
		} `json:"webhookSubscriptionCreate"`
	}

	var registered []Webhook
	for _, wt := range webhookTopics {
		callback := strings.TrimRight(c.cfg.AppURL, "/") + wt.path
		data, err := postGraphQL[payload](ctx, c, creds, "webhookSubscriptionCreate", webhookCreateMutation, map[string]any{
			"topic": wt.topic,
			"webhookSubscription": map[string]any{
				"callbackUrl": callback,
				"format":      "JSON",
			},
		})
		if err != nil {
			return registered, err
		}
		res := data.WebhookSubscriptionCreate
		if len(res.UserErrors) > 0 {
			return registered, &UserError{Operation: "webhookSubscriptionCreate", Errors: res.UserErrors}
		}
		if res.WebhookSubscription != nil {
			registered = append(registered, Webhook{
				ID:          res.WebhookSubscription.ID,
				Topic:       res.WebhookSubscription.Topic,
				CallbackURL: callback,
			})
		}
	}

	c.logger.Info("webhooks registered", zap.String("shop", creds.Shop), zap.Int("count", len(registered)))
	return registered, nil
}
