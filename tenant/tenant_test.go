package tenant_test

import (
	"testing"

	"github.com/KalanaDananjaya/carbon-apimgt/tenant"
	"github.com/stretchr/testify/assert"
)

func TestDomain(t *testing.T) {
	for _, tt := range []struct {
		principal string
		want      string
	}{
		{"", tenant.SuperTenantDomain},
		{"admin", tenant.SuperTenantDomain},
		{"admin@", tenant.SuperTenantDomain},
		{"alice@example.com", "example.com"},
		{"bob@corp.com@Example.COM", "example.com"},
	} {
		t.Run(tt.principal, func(t *testing.T) {
			assert.Equal(t, tt.want, tenant.Domain(tt.principal))
		})
	}
}

func TestWithDefault(t *testing.T) {
	r := tenant.WithDefault("root.tenant")
	assert.Equal(t, "root.tenant", r("admin"))
	assert.Equal(t, "example.com", r("alice@example.com"))

	assert.Equal(t, tenant.SuperTenantDomain, tenant.WithDefault("")("admin"))
}
