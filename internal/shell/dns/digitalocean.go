package dns

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/digitalocean/godo"
)

// =============================================================================
// DigitalOcean Provider
// =============================================================================

// DigitalOceanProvider manages CNAME records through godo for one
// managed domain. DigitalOcean has no proxied concept; the flag is
// accepted and ignored so the two backends share one interface.
type DigitalOceanProvider struct {
	client *godo.Client
	domain string
	logger *slog.Logger
}

// NewDigitalOceanProvider creates a DigitalOcean DNS client for the
// given domain.
func NewDigitalOceanProvider(token, domain string, logger *slog.Logger) *DigitalOceanProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &DigitalOceanProvider{
		client: godo.NewFromToken(token),
		domain: domain,
		logger: logger,
	}
}

// Proxies reports that DigitalOcean has no proxied record concept.
func (p *DigitalOceanProvider) Proxies() bool {
	return false
}

// relativeName strips the managed domain suffix; DigitalOcean records
// are named relative to their domain.
func (p *DigitalOceanProvider) relativeName(fqdn string) string {
	return strings.TrimSuffix(fqdn, "."+p.domain)
}

// FindRecord looks up the CNAME record for fqdn, returning nil when
// none exists.
func (p *DigitalOceanProvider) FindRecord(ctx context.Context, fqdn string) (*Record, error) {
	records, resp, err := p.client.Domains.RecordsByTypeAndName(ctx, p.domain, "CNAME", fqdn, nil)
	if err != nil {
		return nil, doError(resp, err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return fromDO(records[0], p.domain), nil
}

// CreateCNAME creates the CNAME record for fqdn.
func (p *DigitalOceanProvider) CreateCNAME(ctx context.Context, fqdn, target string, _ bool) (*Record, error) {
	req := &godo.DomainRecordEditRequest{
		Type: "CNAME",
		Name: p.relativeName(fqdn),
		Data: target + ".",
		TTL:  300,
	}
	rec, resp, err := p.client.Domains.CreateRecord(ctx, p.domain, req)
	if err != nil {
		return nil, doError(resp, err)
	}
	p.logger.Info("created dns record", "hostname", fqdn, "target", target)
	return fromDO(*rec, p.domain), nil
}

// UpdateCNAME rewrites an existing record in place.
func (p *DigitalOceanProvider) UpdateCNAME(ctx context.Context, recordID, fqdn, target string, _ bool) error {
	id, err := strconv.Atoi(recordID)
	if err != nil {
		return fmt.Errorf("invalid digitalocean record id %q: %w", recordID, err)
	}
	req := &godo.DomainRecordEditRequest{
		Type: "CNAME",
		Name: p.relativeName(fqdn),
		Data: target + ".",
		TTL:  300,
	}
	_, resp, err := p.client.Domains.EditRecord(ctx, p.domain, id, req)
	if err != nil {
		return doError(resp, err)
	}
	p.logger.Info("updated dns record", "hostname", fqdn, "target", target)
	return nil
}

// DeleteRecord removes the record by id.
func (p *DigitalOceanProvider) DeleteRecord(ctx context.Context, recordID string) error {
	id, err := strconv.Atoi(recordID)
	if err != nil {
		return fmt.Errorf("invalid digitalocean record id %q: %w", recordID, err)
	}
	_, err = p.client.Domains.DeleteRecord(ctx, p.domain, id)
	return err
}

func doError(resp *godo.Response, err error) error {
	if resp != nil && resp.Response != nil {
		return &APIError{Provider: "digitalocean", Status: resp.StatusCode, Body: err.Error()}
	}
	return err
}

func fromDO(r godo.DomainRecord, domain string) *Record {
	name := r.Name
	if name != "@" && !strings.HasSuffix(name, domain) {
		name = name + "." + domain
	}
	return &Record{
		ID:      strconv.Itoa(r.ID),
		Name:    name,
		Type:    r.Type,
		Content: strings.TrimSuffix(r.Data, "."),
	}
}
