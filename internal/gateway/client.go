package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/fieldsync/backend/internal/errors"
	"github.com/fieldsync/backend/internal/logging"
	"github.com/fieldsync/backend/internal/models"
)

// ClientConfig holds HTTP gateway configuration.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

// Client implements Gateway over HTTP/JSON. Timeout semantics live here: the
// core above applies no additional timeout layer.
type Client struct {
	config     ClientConfig
	tokens     TokenStore
	httpClient *http.Client
}

// NewClient creates a Client. A zero timeout defaults to 30 seconds.
func NewClient(config ClientConfig, tokens TokenStore) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	return &Client{
		config: config,
		tokens: tokens,
		httpClient: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}
}

// endpoint joins the base URL with a relative path.
func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.config.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// doJSON executes a JSON request and decodes the response into out (when out
// is non-nil).
func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInvalid, "failed to encode request body", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrNetworkUnavailable, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError(path, resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(apperrors.ErrServer, "failed to decode response", err)
	}
	return nil
}

// statusError maps an HTTP failure status to the error taxonomy. A 401 also
// clears the stored token: the session is gone either way.
func (c *Client) statusError(path string, resp *http.Response) error {
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	logging.Warn("Gateway request failed", map[string]interface{}{
		"path":   path,
		"status": resp.StatusCode,
	})

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.tokens.Clear()
		return apperrors.New(apperrors.ErrAuthExpired, "session expired, login required")
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return apperrors.New(apperrors.ErrValidation, "request rejected: "+strings.TrimSpace(string(detail)))
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.New(apperrors.ErrNotFound, "resource not found: "+path)
	case resp.StatusCode >= 500:
		return apperrors.New(apperrors.ErrServer, fmt.Sprintf("server error %d", resp.StatusCode))
	default:
		return apperrors.New(apperrors.ErrServer, fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}
}

// Login authenticates and stores the returned token.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if username == "" || password == "" {
		return nil, apperrors.New(apperrors.ErrValidation, "username and password are required")
	}

	var result LoginResult
	body := map[string]string{"username": username, "password": password}
	if err := c.doJSON(ctx, http.MethodPost, "login", body, &result); err != nil {
		return nil, err
	}
	// A 200 without a token would silently clear the session.
	if result.Token == "" {
		return nil, apperrors.New(apperrors.ErrServer, "login response carried no token")
	}

	c.tokens.SetToken(result.Token)
	return &result, nil
}

// groupedResponse covers both response shapes the backend has shipped:
// a bare array or an object with a groups field.
type groupedResponse struct {
	Groups []models.GroupedDelivery `json:"groups"`
}

// FetchGroupedDeliveries returns the customer visits matching the filters.
func (c *Client) FetchGroupedDeliveries(ctx context.Context, f Filters) ([]models.GroupedDelivery, error) {
	params := url.Values{}
	if f.Date != "" {
		params.Set("created_date", f.Date)
	}
	if f.Route != 0 {
		params.Set("route_number", strconv.Itoa(f.Route))
	}
	path := "invoices-grouped"
	if q := params.Encode(); q != "" {
		path += "?" + q
	}

	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}

	var groups []models.GroupedDelivery
	if err := json.Unmarshal(raw, &groups); err == nil {
		return groups, nil
	}
	var wrapped groupedResponse
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrServer, "unexpected grouped-deliveries shape", err)
	}
	return wrapped.Groups, nil
}

// routesResponse is the driver-routes envelope.
type routesResponse struct {
	Routes []models.Route `json:"routes"`
}

// FetchRoutes returns the driver's routes.
func (c *Client) FetchRoutes(ctx context.Context) ([]models.Route, error) {
	var resp routesResponse
	if err := c.doJSON(ctx, http.MethodGet, "driver-routes", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Routes, nil
}

// FetchInvoiceDetails returns the detail record for one invoice.
func (c *Client) FetchInvoiceDetails(ctx context.Context, invoiceID string) (*models.Invoice, error) {
	if invoiceID == "" {
		return nil, apperrors.New(apperrors.ErrValidation, "invoice id is required")
	}
	var invoice models.Invoice
	if err := c.doJSON(ctx, http.MethodGet, "invoices/"+url.PathEscape(invoiceID), nil, &invoice); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// SubmitAcknowledgment uploads the signature image and signer name as
// multipart/form-data, matching the backend's acknowledge-group endpoint.
func (c *Client) SubmitAcknowledgment(ctx context.Context, groupID string, signature []byte, signerName string) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("signature", "signature.png")
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to build signature part", err)
	}
	if _, err := part.Write(signature); err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to write signature part", err)
	}
	if err := writer.WriteField("notes", strings.TrimSpace(signerName)); err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to write notes field", err)
	}
	if err := writer.Close(); err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to finalize form", err)
	}

	path := "acknowledge-group/" + url.PathEscape(groupID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), &buf)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to build request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrNetworkUnavailable, "acknowledgment request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError(path, resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// UpdateDeliveryStatus reports a status change for a visit group.
func (c *Client) UpdateDeliveryStatus(ctx context.Context, groupID, status string) error {
	body := map[string]string{"status": status}
	path := "customer-group/" + url.PathEscape(groupID) + "/status"
	return c.doJSON(ctx, http.MethodPost, path, body, nil)
}

// SubmitSignature uploads a signature for a single invoice.
func (c *Client) SubmitSignature(ctx context.Context, invoiceID string, signature []byte) error {
	body := map[string]interface{}{"signature_data": signature}
	path := "invoices/" + url.PathEscape(invoiceID) + "/signature"
	return c.doJSON(ctx, http.MethodPost, path, body, nil)
}
