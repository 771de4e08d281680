package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "github.com/fieldsync/backend/internal/errors"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server, *MemoryTokenStore) {
	server := httptest.NewServer(handler)
	tokens := NewMemoryTokenStore()
	client := NewClient(ClientConfig{BaseURL: server.URL}, tokens)
	return client, server, tokens
}

func TestLoginStoresToken(t *testing.T) {
	client, server, tokens := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/login" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["username"] != "driver7" {
			t.Errorf("username = %s", body["username"])
		}
		json.NewEncoder(w).Encode(LoginResult{Token: "tok-123", User: DriverInfo{Name: "Driver Seven"}})
	}))
	defer server.Close()

	result, err := client.Login(context.Background(), "driver7", "secret")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if result.Token != "tok-123" {
		t.Errorf("Token = %s", result.Token)
	}
	if tokens.Token() != "tok-123" {
		t.Errorf("stored token = %s, want tok-123", tokens.Token())
	}
}

func TestFetchGroupedDeliveriesBareArray(t *testing.T) {
	client, server, _ := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("created_date") != "2026-08-28" {
			t.Errorf("created_date = %s", r.URL.Query().Get("created_date"))
		}
		if r.URL.Query().Get("route_number") != "7" {
			t.Errorf("route_number = %s", r.URL.Query().Get("route_number"))
		}
		io.WriteString(w, `[{"customer_visit_group":"G-1","invoice_numbers":["INV-1"],"status":"pending"}]`)
	}))
	defer server.Close()

	groups, err := client.FetchGroupedDeliveries(context.Background(), Filters{Date: "2026-08-28", Route: 7})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(groups) != 1 || groups[0].VisitGroupID != "G-1" {
		t.Errorf("groups = %+v", groups)
	}
}

func TestFetchGroupedDeliveriesEnvelope(t *testing.T) {
	client, server, _ := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"groups":[{"customer_visit_group":"G-2","invoice_numbers":[],"status":"pending"}]}`)
	}))
	defer server.Close()

	groups, err := client.FetchGroupedDeliveries(context.Background(), Filters{})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(groups) != 1 || groups[0].VisitGroupID != "G-2" {
		t.Errorf("groups = %+v", groups)
	}
}

func TestStatusErrorMapping(t *testing.T) {
	cases := []struct {
		status int
		code   apperrors.ErrorCode
	}{
		{http.StatusUnauthorized, apperrors.ErrAuthExpired},
		{http.StatusBadRequest, apperrors.ErrValidation},
		{http.StatusUnprocessableEntity, apperrors.ErrValidation},
		{http.StatusNotFound, apperrors.ErrNotFound},
		{http.StatusInternalServerError, apperrors.ErrServer},
		{http.StatusBadGateway, apperrors.ErrServer},
	}

	for _, tc := range cases {
		client, server, _ := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			io.WriteString(w, `{"detail":"nope"}`)
		}))

		_, err := client.FetchRoutes(context.Background())
		if err == nil {
			t.Errorf("status %d: expected error", tc.status)
		} else if !apperrors.Is(err, tc.code) {
			t.Errorf("status %d: code = %s, want %s", tc.status, apperrors.Code(err), tc.code)
		}
		server.Close()
	}
}

func TestAuthExpiredClearsToken(t *testing.T) {
	client, server, tokens := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	tokens.SetToken("stale")
	_, err := client.FetchRoutes(context.Background())
	if !apperrors.Is(err, apperrors.ErrAuthExpired) {
		t.Fatalf("expected auth expired, got %v", err)
	}
	if tokens.Token() != "" {
		t.Error("expected token to be cleared after 401")
	}
}

func TestUnreachableServerIsNetworkUnavailable(t *testing.T) {
	tokens := NewMemoryTokenStore()
	// Port 1 on localhost refuses connections.
	client := NewClient(ClientConfig{BaseURL: "http://127.0.0.1:1"}, tokens)

	_, err := client.FetchRoutes(context.Background())
	if !apperrors.Is(err, apperrors.ErrNetworkUnavailable) {
		t.Errorf("expected network unavailable, got %v", err)
	}
}

func TestSubmitAcknowledgmentMultipart(t *testing.T) {
	client, server, tokens := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/acknowledge-group/G-100" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("auth header = %s", r.Header.Get("Authorization"))
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("not multipart: %v", err)
		}
		if got := r.FormValue("notes"); got != "M. Chen" {
			t.Errorf("notes = %q", got)
		}
		file, header, err := r.FormFile("signature")
		if err != nil {
			t.Fatalf("missing signature file: %v", err)
		}
		defer file.Close()
		if header.Filename != "signature.png" {
			t.Errorf("filename = %s", header.Filename)
		}
		data, _ := io.ReadAll(file)
		if string(data) != "png-bytes" {
			t.Errorf("signature bytes = %q", data)
		}
		io.WriteString(w, `{"ok":true}`)
	}))
	defer server.Close()

	tokens.SetToken("tok")
	err := client.SubmitAcknowledgment(context.Background(), "G-100", []byte("png-bytes"), "  M. Chen  ")
	if err != nil {
		t.Fatalf("SubmitAcknowledgment failed: %v", err)
	}
}

func TestLoginRejectsTokenlessResponse(t *testing.T) {
	client, server, tokens := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"user":{"name":"Driver Seven"}}`)
	}))
	defer server.Close()

	tokens.SetToken("existing")
	_, err := client.Login(context.Background(), "driver7", "secret")
	if !apperrors.Is(err, apperrors.ErrServer) {
		t.Fatalf("expected server error for tokenless login, got %v", err)
	}
	if tokens.Token() != "existing" {
		t.Errorf("token = %q, a tokenless response must not touch the stored token", tokens.Token())
	}
}

func TestLoginValidation(t *testing.T) {
	client := NewClient(ClientConfig{BaseURL: "http://example.invalid"}, NewMemoryTokenStore())

	_, err := client.Login(context.Background(), "", "pw")
	if !apperrors.Is(err, apperrors.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}
