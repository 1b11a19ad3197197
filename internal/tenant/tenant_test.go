package tenant_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/tenant"
)

func TestResolveHeaderWins(t *testing.T) {
	r := tenant.NewResolver("X-Tenant-ID", "billing.example.com", "")
	req := httptest.NewRequest("GET", "http://acme.billing.example.com/api/v1/bills", nil)
	req.Header.Set("X-Tenant-ID", "globex")
	require.Equal(t, "globex", r.Resolve(req))
}

func TestResolveSubdomain(t *testing.T) {
	r := tenant.NewResolver("", "billing.example.com", "")
	req := httptest.NewRequest("GET", "http://acme.billing.example.com/api/v1/bills", nil)
	req.Host = "acme.billing.example.com:8080"
	require.Equal(t, "acme", r.Resolve(req))
}

func TestResolveRootDomainHasNoTenant(t *testing.T) {
	r := tenant.NewResolver("", "billing.example.com", "")
	req := httptest.NewRequest("GET", "http://billing.example.com/", nil)
	req.Host = "billing.example.com"
	require.Equal(t, "", r.Resolve(req))
}

func TestResolveUnrelatedHostHasNoTenant(t *testing.T) {
	r := tenant.NewResolver("", "billing.example.com", "")
	req := httptest.NewRequest("GET", "http://other.example.org/", nil)
	req.Host = "other.example.org"
	require.Equal(t, "", r.Resolve(req))
}

func TestMiddlewareDefaultTenant(t *testing.T) {
	r := tenant.NewResolver("", "", "default")
	req := httptest.NewRequest("GET", "http://localhost/", nil)
	req.Host = "localhost"

	var got string
	handler := r.Middleware(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		got, _ = tenant.From(req.Context())
	}))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, "default", got)
}

func TestPrefixKey(t *testing.T) {
	require.Equal(t, "acme:catalog:products", tenant.PrefixKey("acme", "catalog:products"))
	require.Equal(t, "catalog:products", tenant.PrefixKey("", "catalog:products"))
}
