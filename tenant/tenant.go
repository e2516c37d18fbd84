// Package tenant derives the tenant domain a principal belongs to.
//
// A fully qualified principal carries its tenant domain after the last
// '@', e.g. "alice@example.com" or "bob@corp.com@example.com". Principals
// without a tenant part belong to the super tenant.
package tenant

import "strings"

// SuperTenantDomain is the administrative tenant that owns unqualified
// principals.
const SuperTenantDomain = "carbon.super"

// Resolver maps a principal to its tenant domain. Implementations must
// be total: every input, including the empty string, yields a domain.
type Resolver func(principal string) string

// Domain returns the tenant domain of the principal, defaulting to
// SuperTenantDomain.
func Domain(principal string) string {
	return DomainWithDefault(principal, SuperTenantDomain)
}

// DomainWithDefault returns the tenant domain of the principal, or def
// when the principal is not qualified with a tenant.
func DomainWithDefault(principal, def string) string {
	i := strings.LastIndexByte(principal, '@')
	if i < 0 || i == len(principal)-1 {
		return def
	}

	return strings.ToLower(principal[i+1:])
}

// WithDefault returns a Resolver that falls back to the provided super
// tenant domain. An empty domain selects SuperTenantDomain.
func WithDefault(superTenant string) Resolver {
	if superTenant == "" {
		return Domain
	}

	return func(principal string) string {
		return DomainWithDefault(principal, superTenant)
	}
}
