package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"firecost/internal/config"
	"firecost/internal/models"
)

// UpstreamError reports a transport failure talking to the backend API.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Response is a downstream reply relayed as-is. Body is always JSON or nil.
type Response struct {
	Status int
	Body   json.RawMessage
}

// Client forwards project and estimation calls to the backend API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *zap.Logger
}

func NewClient(cfg config.BackendConfig, logger *zap.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("backend base url not configured")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: base,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		log:     logger,
	}, nil
}

type projectPayload struct {
	ProjectName   string                 `json:"project_name"`
	ClientName    string                 `json:"client_name,omitempty"`
	ClientEmail   string                 `json:"client_email,omitempty"`
	ClientPhone   string                 `json:"client_phone,omitempty"`
	BuildingType  string                 `json:"building_type"`
	SquareFootage float64                `json:"square_footage"`
	Floors        int                    `json:"floors,omitempty"`
	Zones         int                    `json:"zones,omitempty"`
	Location      string                 `json:"location,omitempty"`
	Requirements  string                 `json:"requirements,omitempty"`
	Status        string                 `json:"status"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

func newProjectPayload(p *models.Project) projectPayload {
	return projectPayload{
		ProjectName:   p.ProjectName,
		ClientName:    p.ClientName,
		ClientEmail:   p.ClientEmail,
		ClientPhone:   p.ClientPhone,
		BuildingType:  p.Building.Type,
		SquareFootage: p.Building.Size,
		Floors:        p.Building.Floors,
		Zones:         p.Building.Zones,
		Location:      p.Location,
		Requirements:  p.Requirements,
		Status:        string(p.Status),
		Metadata:      p.Metadata,
	}
}

type lineItemPayload struct {
	Code        string  `json:"code,omitempty"`
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Total       float64 `json:"total"`
	Vendor      string  `json:"vendor,omitempty"`
	Category    string  `json:"category,omitempty"`
}

type estimationPayload struct {
	ProjectID       string            `json:"project_id"`
	ProjectName     string            `json:"project_name"`
	ClientName      string            `json:"client_name,omitempty"`
	ClientEmail     string            `json:"client_email,omitempty"`
	BuildingType    string            `json:"building_type"`
	SquareFootage   float64           `json:"square_footage"`
	Floors          int               `json:"floors,omitempty"`
	Items           []lineItemPayload `json:"items"`
	Subtotal        float64           `json:"subtotal"`
	Vendors         []string          `json:"vendors,omitempty"`
	Recommendations []string          `json:"recommendations,omitempty"`
	Notes           string            `json:"notes,omitempty"`
}

// CreateProject validates req and posts it downstream.
func (c *Client) CreateProject(ctx context.Context, token string, req *ProjectRequest) (*Response, error) {
	project, err := req.ToProject()
	if err != nil {
		return nil, err
	}
	return c.do(ctx, token, http.MethodPost, "/api/projects", nil, newProjectPayload(project))
}

func (c *Client) GetProject(ctx context.Context, token, id string) (*Response, error) {
	path, err := projectPath(id)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, token, http.MethodGet, path, nil, nil)
}

// ListProjects forwards the caller's query string (filters, paging).
func (c *Client) ListProjects(ctx context.Context, token string, query url.Values) (*Response, error) {
	return c.do(ctx, token, http.MethodGet, "/api/projects", query, nil)
}

func (c *Client) DeleteProject(ctx context.Context, token, id string) (*Response, error) {
	path, err := projectPath(id)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, token, http.MethodDelete, path, nil, nil)
}

func (c *Client) CreateEstimation(ctx context.Context, token string, req *EstimationRequest) (*Response, error) {
	size, err := req.Validate()
	if err != nil {
		return nil, err
	}
	payload := estimationPayload{
		ProjectID:       strings.TrimSpace(req.ProjectID),
		ProjectName:     strings.TrimSpace(req.ProjectName),
		ClientName:      strings.TrimSpace(req.ClientName),
		ClientEmail:     strings.TrimSpace(req.ClientEmail),
		BuildingType:    strings.TrimSpace(req.BuildingType),
		SquareFootage:   size,
		Floors:          req.Floors,
		Items:           make([]lineItemPayload, 0, len(req.LineItems)),
		Subtotal:        req.Subtotal(),
		Vendors:         req.Vendors,
		Recommendations: req.Recommendations,
		Notes:           req.Notes,
	}
	for _, item := range req.LineItems {
		payload.Items = append(payload.Items, lineItemPayload{
			Code:        item.Code,
			Description: item.Description,
			Quantity:    item.Qty,
			UnitPrice:   item.UnitPrice,
			Total:       item.LineTotal(),
			Vendor:      item.Vendor,
			Category:    item.Category,
		})
	}
	return c.do(ctx, token, http.MethodPost, "/api/estimations", nil, payload)
}

func projectPath(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", invalid("id", "project id is required")
	}
	return "/api/projects/" + url.PathEscape(id), nil
}

func (c *Client) do(ctx context.Context, token, method, path string, query url.Values, body interface{}) (*Response, error) {
	reqID := uuid.NewString()
	start := time.Now()

	var reader io.Reader
	if body != nil {
		bs, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(bs)
	}
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error("backend request failed",
			zap.String("req_id", reqID),
			zap.String("method", method),
			zap.String("path", path),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, &UpstreamError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{Op: method + " " + path, Err: fmt.Errorf("read response: %w", err)}
	}
	c.log.Info("backend response",
		zap.String("req_id", reqID),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(raw)),
		zap.Duration("elapsed", time.Since(start)))

	return &Response{Status: resp.StatusCode, Body: relayBody(resp.StatusCode, raw)}, nil
}

// relayBody passes JSON through untouched and wraps anything else in the
// {error, details} envelope.
func relayBody(status int, raw []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		if status < 300 {
			return nil
		}
	} else if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	msg := http.StatusText(status)
	if msg == "" {
		msg = "unexpected response"
	}
	envelope := map[string]string{"error": msg}
	if len(trimmed) > 0 {
		envelope["details"] = string(trimmed)
	}
	wrapped, _ := json.Marshal(envelope)
	return wrapped
}
