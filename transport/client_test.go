package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goliatone/go-credential-broker/core"
	goerrors "github.com/goliatone/go-errors"
)

func TestClient_GetSendsBearerAndODataQuery(t *testing.T) {
	var seen *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value":[]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/v1.0/", "bearer-1", server.Client())
	res, err := client.Get(context.Background(), "users/a@b.test/calendarView", core.ReadOptions{
		Query:   map[string]string{"startDateTime": "2026-01-01T00:00:00Z"},
		Select:  []string{"subject", "start"},
		Top:     50,
		Headers: map[string]string{"Prefer": `outlook.timezone="UTC"`},
	})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if res.StatusCode != http.StatusOK || string(res.Body) != `{"value":[]}` {
		t.Fatalf("unexpected response %#v", res)
	}
	if res.Headers["Content-Type"] != "application/json" {
		t.Fatalf("expected flattened headers, got %#v", res.Headers)
	}
	if seen == nil {
		t.Fatalf("expected request to reach server")
	}
	if got := seen.Header.Get("Authorization"); got != "Bearer bearer-1" {
		t.Fatalf("unexpected authorization header %q", got)
	}
	if got := seen.Header.Get("Prefer"); got != `outlook.timezone="UTC"` {
		t.Fatalf("unexpected prefer header %q", got)
	}
	if seen.URL.Path != "/v1.0/users/a@b.test/calendarView" {
		t.Fatalf("unexpected path %q", seen.URL.Path)
	}
	query := seen.URL.Query()
	if query.Get("$select") != "subject,start" || query.Get("$top") != "50" {
		t.Fatalf("unexpected odata query %q", seen.URL.RawQuery)
	}
	if query.Get("startDateTime") != "2026-01-01T00:00:00Z" {
		t.Fatalf("expected caller query to be kept, got %q", seen.URL.RawQuery)
	}
}

func TestClient_DoPostsJSONBody(t *testing.T) {
	var contentType, body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		payload, _ := io.ReadAll(r.Body)
		body = string(payload)
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "token", server.Client())
	_, err := client.Do(context.Background(), core.TransportRequest{
		Method: "post",
		Path:   "/v23.0/123/messages",
		Body:   []byte(`{"to":"1555"}`),
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if contentType != "application/json" || body != `{"to":"1555"}` {
		t.Fatalf("unexpected request content-type=%q body=%q", contentType, body)
	}
}

func TestClient_NonSuccessIsUpstreamRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":"ErrorAccessDenied","message":"Access is denied. Check credentials and try again."}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "token", server.Client())
	res, err := client.Get(context.Background(), "/users/x/calendarView", core.ReadOptions{})
	if !core.IsUpstreamRejected(err) {
		t.Fatalf("expected upstream rejected, got %v", err)
	}
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected status to be returned with the error, got %d", res.StatusCode)
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Metadata[core.MetadataProviderMessage] != "Access is denied. Check credentials and try again." {
		t.Fatalf("expected provider message metadata, got %#v", rich.Metadata)
	}
	if rich.Metadata[core.MetadataProviderStatus] != http.StatusForbidden {
		t.Fatalf("expected provider status metadata, got %#v", rich.Metadata)
	}
}

func TestClient_TimeoutSurfacesContextError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "token", server.Client())
	_, err := client.Do(context.Background(), core.TransportRequest{Path: "/slow", Timeout: 20 * time.Millisecond})
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if core.HTTPStatus(core.MapError(err)) != http.StatusGatewayTimeout {
		t.Fatalf("expected timeout to map to 504, got %v", err)
	}
}

func TestNewClientFactory_BindsBaseURLAndToken(t *testing.T) {
	factory := NewClientFactory(nil)
	client := factory("https://graph.example/v1.0/", "tok")
	if client.BaseURL() != "https://graph.example/v1.0" {
		t.Fatalf("unexpected base url %q", client.BaseURL())
	}
	concrete, ok := client.(*Client)
	if !ok || concrete.bearerToken != "tok" {
		t.Fatalf("expected bearer bound client, got %#v", client)
	}
}
