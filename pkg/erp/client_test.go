package erp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClientWithHTTPClient(server.Client(), server.URL, nil)
}

func TestInvokeGetSendsAuthAndQuery(t *testing.T) {
	var got *http.Request
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"Model":[{"StokID":1}]}`))
	})

	query := url.Values{}
	query.Set("EsnekAramaKisiti", "vida")
	resp, err := client.Invoke(context.Background(), Request{
		Endpoint: "/api/Stok",
		Method:   http.MethodGet,
		Query:    query,
		Secret:   "token-123",
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/api/Stok", got.URL.Path)
	assert.Equal(t, "vida", got.URL.Query().Get("EsnekAramaKisiti"))
	assert.Equal(t, "Bearer token-123", got.Header.Get("Authorization"))

	var body struct {
		Model []map[string]int
	}
	require.NoError(t, resp.Decode(&body))
	assert.Len(t, body.Model, 1)
}

func TestInvokePostSendsJSONBody(t *testing.T) {
	var got map[string]interface{}
	var contentType string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	})

	_, err := client.Invoke(context.Background(), Request{
		Endpoint: "/api/Stok",
		Method:   http.MethodPost,
		Body:     map[string]interface{}{"StokKodu": "STK-1", "StokID": -1},
		Secret:   "token-123",
	})
	require.NoError(t, err)

	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, "STK-1", got["StokKodu"])
	assert.Equal(t, float64(-1), got["StokID"])
}

func TestInvokeRejectsMissingSecret(t *testing.T) {
	client := NewClient("https://erp.example.com", time.Second, nil)
	_, err := client.Invoke(context.Background(), Request{Endpoint: "/api/Stok"})
	assert.ErrorContains(t, err, "no credential")
}

func TestInvokeMapsHTTPErrors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"Message":"Yetkisiz erişim"}`))
	})

	_, err := client.Invoke(context.Background(), Request{
		Endpoint: "/api/Stok",
		Secret:   "expired-token",
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "HTTP 401")
	assert.ErrorContains(t, err, "Yetkisiz erişim")
	// The credential must never leak into the error text.
	assert.NotContains(t, err.Error(), "expired-token")
}

func TestInvokeReducesHTMLErrorPages(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`<html><head><title>Sunucu Hatası</title><style>body{}</style></head>` +
			`<body><script>boom()</script><p>Beklenmeyen bir hata oluştu.</p></body></html>`))
	})

	_, err := client.Invoke(context.Background(), Request{
		Endpoint: "/api/Stok",
		Secret:   "token-123",
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "Beklenmeyen bir hata oluştu.")
	assert.NotContains(t, err.Error(), "<p>")
	assert.NotContains(t, err.Error(), "boom()")
	assert.NotContains(t, err.Error(), "body{}")
}

func TestInvokeDefaultsToGet(t *testing.T) {
	var method string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.Write([]byte(`{}`))
	})

	_, err := client.Invoke(context.Background(), Request{Endpoint: "/api/Doviz", Secret: "token-123"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, method)
}

func TestHTMLToTextFallsBackOnGarbage(t *testing.T) {
	// html.Parse is extremely tolerant; even fragments come back as text.
	assert.Equal(t, "plain text", htmlToText([]byte("plain text")))
}
