package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	api "imgwaved/pkg/contracts/api/v1"
)

func (f *fixture) postForm(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func gumroadForm() url.Values {
	form := url.Values{}
	form.Set("email", "buyer@example.com")
	form.Set("permalink", "imgwave")
	form.Set("product_name", "ImgWave Pro")
	form.Set("license_key", "GUM-SRC-KEY")
	form.Set("sale_id", "sale-555")
	form.Set("variants[Tier]", "Yearly")
	form.Set("price", "29.99")
	form.Set("currency", "usd")
	return form
}

func TestGumroadWebhookFormPost(t *testing.T) {
	f := newFixture(t)

	resp := f.postForm(t, "/api/v1/webhooks/gumroad", gumroadForm())
	require.Equal(t, http.StatusOK, resp.Code)
	body := decodeBody[api.WebhookResponse](t, resp)
	require.True(t, body.Success)
	assert.Equal(t, "success", body.Status)
	assert.Contains(t, resp.Body.String(), `"status"`)
	require.NotEmpty(t, body.LicenseKey)

	rec := f.manager.Get(context.Background(), body.LicenseKey)
	require.NotNil(t, rec)
	assert.Equal(t, "buyer@example.com", rec.Email)
	assert.Equal(t, "GUM-SRC-KEY", rec.SourceLicenseKey)
}

func TestGumroadWebhookRetryAcknowledged(t *testing.T) {
	f := newFixture(t)

	first := decodeBody[api.WebhookResponse](t, f.postForm(t, "/api/v1/webhooks/gumroad", gumroadForm()))
	second := decodeBody[api.WebhookResponse](t, f.postForm(t, "/api/v1/webhooks/gumroad", gumroadForm()))
	assert.Equal(t, first.LicenseKey, second.LicenseKey)
	assert.Equal(t, "already_processed", second.Status)
	assert.Equal(t, 1, f.manager.Count())
}

func TestGumroadWebhookRefund(t *testing.T) {
	f := newFixture(t)

	created := decodeBody[api.WebhookResponse](t, f.postForm(t, "/api/v1/webhooks/gumroad", gumroadForm()))

	form := gumroadForm()
	form.Set("refunded", "true")
	resp := f.postForm(t, "/api/v1/webhooks/gumroad", form)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "refund_processed", decodeBody[api.WebhookResponse](t, resp).Status)

	rec := f.manager.Get(context.Background(), created.LicenseKey)
	assert.False(t, rec.IsActive)
}

func TestGumroadWebhookRefundUnknownKey(t *testing.T) {
	f := newFixture(t)

	form := gumroadForm()
	form.Set("refunded", "true")
	form.Set("license_key", "GUM-UNKNOWN")
	resp := f.postForm(t, "/api/v1/webhooks/gumroad", form)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestGumroadWebhookRequiresEmail(t *testing.T) {
	f := newFixture(t)

	form := gumroadForm()
	form.Del("email")
	resp := f.postForm(t, "/api/v1/webhooks/gumroad", form)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestGumroadWebhookAcceptsJSON(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, "POST", "/api/v1/webhooks/gumroad", map[string]any{
		"email":   "buyer@example.com",
		"sale_id": "sale-json-1",
	}, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, decodeBody[api.WebhookResponse](t, resp).Success)
}

func TestMSStoreWebhook(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, "POST", "/api/v1/webhooks/msstore", map[string]any{
		"event_type":     "purchase",
		"email":          "buyer@example.com",
		"transaction_id": "tx-42",
		"duration_days":  30,
	}, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	body := decodeBody[api.WebhookResponse](t, resp)
	require.True(t, body.Success)

	refund := f.do(t, "POST", "/api/v1/webhooks/msstore", map[string]any{
		"event_type":     "refund",
		"transaction_id": "tx-42",
	}, nil)
	require.Equal(t, http.StatusOK, refund.Code)
	assert.False(t, f.manager.Get(context.Background(), body.LicenseKey).IsActive)
}

func TestMSStoreWebhookRequiresEventType(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, "POST", "/api/v1/webhooks/msstore", map[string]any{
		"email": "buyer@example.com",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestGumroadDebugEndpoint(t *testing.T) {
	f := newFixture(t)

	empty := f.do(t, "GET", "/api/v1/webhooks/gumroad/debug", nil, nil)
	require.Equal(t, http.StatusOK, empty.Code)
	assert.Contains(t, empty.Body.String(), "No logs yet")

	f.postForm(t, "/api/v1/webhooks/gumroad", gumroadForm())

	filled := f.do(t, "GET", "/api/v1/webhooks/gumroad/debug", nil, nil)
	require.Equal(t, http.StatusOK, filled.Code)
	assert.Contains(t, filled.Body.String(), "sale-555")
}
