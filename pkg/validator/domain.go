package validator

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrNoAllowedDomains = errors.New("domain allowlist is empty")

// DomainAllowlist is the institutional-domain predicate: the set of email
// domains permitted to sign up. Matching is case-insensitive and includes
// subdomains of allowed entries, so "inst.edu" also admits "alumni.inst.edu".
type DomainAllowlist struct {
	domains map[string]struct{}
}

// NewDomainAllowlist builds an allowlist from literal domain names.
func NewDomainAllowlist(domains ...string) *DomainAllowlist {
	set := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			set[d] = struct{}{}
		}
	}
	return &DomainAllowlist{domains: set}
}

// LoadDomainAllowlist reads an allowlist from a YAML file of the form:
//
//	domains:
//	  - inst.edu
//	  - alumni.inst.edu
func LoadDomainAllowlist(path string) (*DomainAllowlist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read domain allowlist: %w", err)
	}

	var doc struct {
		Domains []string `yaml:"domains"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse domain allowlist: %w", err)
	}
	if len(doc.Domains) == 0 {
		return nil, ErrNoAllowedDomains
	}

	return NewDomainAllowlist(doc.Domains...), nil
}

// Allows reports whether the given email domain (or a parent of it) is on the
// allowlist. An empty allowlist admits every domain, which keeps the predicate
// optional for deployments without institutional restrictions.
func (a *DomainAllowlist) Allows(domain string) bool {
	if a == nil || len(a.domains) == 0 {
		return true
	}

	domain = strings.ToLower(strings.TrimSpace(domain))
	for domain != "" {
		if _, ok := a.domains[domain]; ok {
			return true
		}
		idx := strings.Index(domain, ".")
		if idx < 0 {
			break
		}
		domain = domain[idx+1:]
	}
	return false
}

// InstitutionalEmail validates that an email address belongs to an allowed
// institutional domain.
func InstitutionalEmail(field, email string, allowlist *DomainAllowlist) Rule {
	return Rule{
		Check: func() bool {
			parts := strings.Split(email, "@")
			if len(parts) != 2 {
				return false
			}
			return allowlist.Allows(parts[1])
		},
		Error: ValidationError{Field: field, Message: "must use an institutional email address"},
	}
}
