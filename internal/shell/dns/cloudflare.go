package dns

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// =============================================================================
// Cloudflare Provider
// =============================================================================

const cloudflareBaseURL = "https://api.cloudflare.com/client/v4"

// CloudflareProvider manages CNAME records through the Cloudflare v4
// API with a bearer token scoped to one zone.
type CloudflareProvider struct {
	token   string
	zoneID  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewCloudflareProvider creates a Cloudflare DNS client.
func NewCloudflareProvider(token, zoneID string, logger *slog.Logger) *CloudflareProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudflareProvider{
		token:   token,
		zoneID:  zoneID,
		baseURL: cloudflareBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// Proxies reports that Cloudflare records carry a proxied flag.
func (p *CloudflareProvider) Proxies() bool {
	return true
}

// cfRecord mirrors the wire shape of a Cloudflare DNS record.
type cfRecord struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	Proxied bool   `json:"proxied"`
	TTL     int    `json:"ttl,omitempty"`
}

type cfListResponse struct {
	Success bool       `json:"success"`
	Result  []cfRecord `json:"result"`
}

type cfRecordResponse struct {
	Success bool     `json:"success"`
	Result  cfRecord `json:"result"`
}

// FindRecord looks up the CNAME record for fqdn, returning nil when
// the provider holds none.
func (p *CloudflareProvider) FindRecord(ctx context.Context, fqdn string) (*Record, error) {
	path := fmt.Sprintf("/zones/%s/dns_records?type=CNAME&name=%s", p.zoneID, url.QueryEscape(fqdn))
	body, err := p.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var list cfListResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("failed to decode cloudflare response: %w", err)
	}
	if len(list.Result) == 0 {
		return nil, nil
	}
	return fromCF(list.Result[0]), nil
}

// CreateCNAME creates the CNAME record for fqdn.
func (p *CloudflareProvider) CreateCNAME(ctx context.Context, fqdn, target string, proxied bool) (*Record, error) {
	payload := cfRecord{Type: "CNAME", Name: fqdn, Content: target, Proxied: proxied, TTL: 1}
	body, err := p.do(ctx, http.MethodPost, fmt.Sprintf("/zones/%s/dns_records", p.zoneID), payload)
	if err != nil {
		return nil, err
	}

	var resp cfRecordResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode cloudflare response: %w", err)
	}
	p.logger.Info("created dns record", "hostname", fqdn, "target", target)
	return fromCF(resp.Result), nil
}

// UpdateCNAME rewrites an existing record in place.
func (p *CloudflareProvider) UpdateCNAME(ctx context.Context, recordID, fqdn, target string, proxied bool) error {
	payload := cfRecord{Type: "CNAME", Name: fqdn, Content: target, Proxied: proxied, TTL: 1}
	_, err := p.do(ctx, http.MethodPut, fmt.Sprintf("/zones/%s/dns_records/%s", p.zoneID, recordID), payload)
	if err == nil {
		p.logger.Info("updated dns record", "hostname", fqdn, "target", target)
	}
	return err
}

// DeleteRecord removes the record by id.
func (p *CloudflareProvider) DeleteRecord(ctx context.Context, recordID string) error {
	_, err := p.do(ctx, http.MethodDelete, fmt.Sprintf("/zones/%s/dns_records/%s", p.zoneID, recordID), nil)
	return err
}

// do performs one authenticated API call. Non-2xx responses become
// APIErrors carrying the response body.
func (p *CloudflareProvider) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloudflare request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read cloudflare response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Provider: "cloudflare", Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func fromCF(r cfRecord) *Record {
	return &Record{
		ID:      r.ID,
		Name:    r.Name,
		Type:    r.Type,
		Content: r.Content,
		Proxied: r.Proxied,
	}
}
