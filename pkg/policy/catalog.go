package policy

import (
	"os"

	"github.com/bantam-dev/bantam/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

// Catalog holds the tenant policies loaded at startup. Lookups after
// construction are read-only, so the map needs no locking.
type Catalog struct {
	policies map[string]*model.TenantPolicy
}

type catalogFile struct {
	Tenants []*model.TenantPolicy `yaml:"tenants"`
}

// NewCatalog loads tenant policies from a YAML file. An empty path
// yields a catalog containing only the built-in default tenant.
func NewCatalog(path string) (*Catalog, error) {
	c := &Catalog{policies: make(map[string]*model.TenantPolicy)}

	def := model.DefaultTenantPolicy()
	c.policies[def.TenantID] = def

	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read tenant catalog", goerr.V("path", path))
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, goerr.Wrap(err, "failed to parse tenant catalog", goerr.V("path", path))
	}

	for _, p := range file.Tenants {
		if err := p.Validate(); err != nil {
			return nil, goerr.Wrap(err, "invalid tenant policy", goerr.V("tenant_id", p.TenantID))
		}
		c.policies[p.TenantID] = p
	}

	return c, nil
}

// Lookup returns the policy for a tenant. Unknown tenants are an
// error, not a silent fallback to the default.
func (c *Catalog) Lookup(tenantID string) (*model.TenantPolicy, error) {
	p, ok := c.policies[tenantID]
	if !ok {
		return nil, goerr.Wrap(model.ErrConfigNotFound, "unknown tenant", goerr.V("tenant_id", tenantID))
	}
	return p, nil
}

// TenantIDs lists the configured tenants
func (c *Catalog) TenantIDs() []string {
	out := make([]string, 0, len(c.policies))
	for id := range c.policies {
		out = append(out, id)
	}
	return out
}
