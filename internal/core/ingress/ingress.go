// Package ingress contains pure reconciliation logic for the tunnel
// daemon's ingress rule document. This is part of the Functional Core:
// the shell reads the shared config file, hands the bytes here, and
// writes the merged result back. Unlike the compose template the
// ingress schema is fully ours, so the document is parsed and
// reserialized structurally.
package ingress

import (
	"errors"
	"strings"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Document Model
// =============================================================================

// CatchAllService is the service of the mandatory trailing rule that
// answers anything no explicit hostname matched.
const CatchAllService = "http_status:404"

// Rule maps a public hostname to an internal service address. A rule
// without a hostname is a catch-all.
type Rule struct {
	Hostname string `yaml:"hostname,omitempty"`
	Service  string `yaml:"service"`
}

// IsCatchAll reports whether the rule matches any request.
func (r Rule) IsCatchAll() bool {
	return r.Hostname == ""
}

// Document is the tunnel daemon's configuration file. Fields the
// daemon understands but this tool does not manage are preserved
// through Extra.
type Document struct {
	Tunnel          string         `yaml:"tunnel,omitempty"`
	CredentialsFile string         `yaml:"credentials-file,omitempty"`
	Ingress         []Rule         `yaml:"ingress"`
	Extra           map[string]any `yaml:",inline"`
}

// =============================================================================
// Parse / Serialize
// =============================================================================

var ErrInvalidDocument = errors.New("invalid ingress document")

// Parse decodes an ingress configuration document. Empty input yields
// an empty document rather than an error: a missing config file is a
// valid starting state.
func Parse(data []byte) (*Document, error) {
	doc := &Document{}
	if strings.TrimSpace(string(data)) == "" {
		return doc, nil
	}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, errors.Join(ErrInvalidDocument, err)
	}
	return doc, nil
}

// Marshal serializes the document, normalizing first so the invariant
// of exactly one trailing catch-all holds on every write.
func (d *Document) Marshal() ([]byte, error) {
	d.Normalize()
	return yaml.Marshal(d)
}

// =============================================================================
// Reconciliation
// =============================================================================

// Upsert installs the rule for hostname, replacing any existing rule
// for the same hostname. The document is re-normalized afterwards, so
// the operation is safely re-runnable.
func (d *Document) Upsert(hostname, service string) {
	d.Remove(hostname)
	d.Ingress = append(d.Ingress, Rule{Hostname: hostname, Service: service})
	d.Normalize()
}

// Remove deletes the rule for hostname if present and reports whether
// anything was removed. Absence is not a failure.
func (d *Document) Remove(hostname string) bool {
	removed := false
	kept := d.Ingress[:0]
	for _, r := range d.Ingress {
		if !r.IsCatchAll() && strings.EqualFold(r.Hostname, hostname) {
			removed = true
			continue
		}
		kept = append(kept, r)
	}
	d.Ingress = kept
	d.Normalize()
	return removed
}

// RuleFor returns the rule for hostname, if any.
func (d *Document) RuleFor(hostname string) (Rule, bool) {
	for _, r := range d.Ingress {
		if !r.IsCatchAll() && strings.EqualFold(r.Hostname, hostname) {
			return r, true
		}
	}
	return Rule{}, false
}

// Normalize enforces the document invariants: hostnames are unique
// (first occurrence wins) and exactly one catch-all rule trails the
// list. Other tooling touches the same file, so every mutation here
// renormalizes rather than trusting the on-disk shape.
func (d *Document) Normalize() {
	seen := make(map[string]bool, len(d.Ingress))
	rules := make([]Rule, 0, len(d.Ingress)+1)
	for _, r := range d.Ingress {
		if r.IsCatchAll() {
			continue
		}
		key := strings.ToLower(r.Hostname)
		if seen[key] {
			continue
		}
		seen[key] = true
		rules = append(rules, r)
	}
	d.Ingress = append(rules, Rule{Service: CatchAllService})
}
