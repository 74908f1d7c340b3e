package providers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2/clientcredentials"
	"gopkg.in/yaml.v3"
)

// Catalog is the provider roster loaded from providers.yaml. Batch tiers
// control the order in which completed base quotes become eligible for
// enhancement (tier 1 first), not fetch order; base fetches all run in
// parallel.
type Catalog struct {
	Version   int            `yaml:"version"`
	Providers []CatalogEntry `yaml:"providers"`
}

// CatalogEntry describes one EOR provider's API wiring.
type CatalogEntry struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"display_name"`
	Endpoint    string `yaml:"endpoint"`
	// Auth selects how requests are authorized: "bearer" (static key from
	// KeyEnv) or "oauth2" (client-credentials flow against TokenURL).
	Auth            string `yaml:"auth"`
	KeyEnv          string `yaml:"key_env,omitempty"`
	ClientIDEnv     string `yaml:"client_id_env,omitempty"`
	ClientSecretEnv string `yaml:"client_secret_env,omitempty"`
	TokenURL        string `yaml:"token_url,omitempty"`
	Batch           int    `yaml:"batch"`
	Primary         bool   `yaml:"primary,omitempty"`
}

const maxBatchTier = 3

// ParseCatalogYAML decodes and validates a provider catalog document.
func ParseCatalogYAML(b []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Catalog{}, err
	}
	if c.Version != 1 {
		return Catalog{}, errors.New("provider catalog: unsupported version")
	}
	if len(c.Providers) == 0 {
		return Catalog{}, errors.New("provider catalog: no providers")
	}

	seen := make(map[string]struct{})
	primaries := 0
	for _, p := range c.Providers {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return Catalog{}, errors.New("provider catalog: entry missing id")
		}
		if _, dup := seen[id]; dup {
			return Catalog{}, fmt.Errorf("provider catalog: duplicate id %q", id)
		}
		seen[id] = struct{}{}
		switch p.Auth {
		case "bearer":
			if p.KeyEnv == "" {
				return Catalog{}, fmt.Errorf("provider catalog: %s missing key_env", id)
			}
		case "oauth2":
			if p.ClientIDEnv == "" || p.ClientSecretEnv == "" || p.TokenURL == "" {
				return Catalog{}, fmt.Errorf("provider catalog: %s incomplete oauth2 config", id)
			}
		default:
			return Catalog{}, fmt.Errorf("provider catalog: %s has unknown auth %q", id, p.Auth)
		}
		if p.Batch < 1 || p.Batch > maxBatchTier {
			return Catalog{}, fmt.Errorf("provider catalog: %s batch %d out of range", id, p.Batch)
		}
		if p.Primary {
			primaries++
		}
	}
	if primaries != 1 {
		return Catalog{}, fmt.Errorf("provider catalog: expected exactly one primary provider, got %d", primaries)
	}
	return c, nil
}

// LoadCatalog reads the catalog from disk.
func LoadCatalog(path string) (Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, err
	}
	return ParseCatalogYAML(b)
}

// Registry holds the constructed adapters plus the scheduling metadata the
// engine needs: catalog order, primary provider, and enhancement batches.
type Registry struct {
	adapters map[string]Adapter
	order    []string
	batches  [][]string
	primary  string
	names    map[string]string
}

// NewRegistry builds adapters for every catalog entry. OAuth2 providers get
// a token-refreshing client bound to the process lifetime; bearer providers
// read their key from the configured environment variable at build time.
func NewRegistry(ctx context.Context, cat Catalog) (*Registry, error) {
	r := &Registry{
		adapters: make(map[string]Adapter, len(cat.Providers)),
		batches:  make([][]string, maxBatchTier),
		names:    make(map[string]string, len(cat.Providers)),
	}
	for _, entry := range cat.Providers {
		adapter, err := buildAdapter(ctx, entry)
		if err != nil {
			return nil, err
		}
		r.adapters[entry.ID] = adapter
		r.order = append(r.order, entry.ID)
		r.batches[entry.Batch-1] = append(r.batches[entry.Batch-1], entry.ID)
		r.names[entry.ID] = entry.DisplayName
		if entry.Primary {
			r.primary = entry.ID
		}
	}
	return r, nil
}

// NewStaticRegistry wires pre-built adapters directly; used by tests and by
// callers that fake providers.
func NewStaticRegistry(primary string, batches [][]string, adapters ...Adapter) *Registry {
	r := &Registry{
		adapters: make(map[string]Adapter, len(adapters)),
		primary:  primary,
		batches:  batches,
		names:    make(map[string]string, len(adapters)),
	}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
		r.order = append(r.order, a.Name())
		r.names[a.Name()] = a.Name()
	}
	if r.batches == nil {
		r.batches = [][]string{append([]string(nil), r.order...)}
	}
	return r
}

func buildAdapter(ctx context.Context, entry CatalogEntry) (Adapter, error) {
	client := newHTTPClient()
	apiKey := ""
	switch entry.Auth {
	case "bearer":
		apiKey = strings.TrimSpace(os.Getenv(entry.KeyEnv))
	case "oauth2":
		cc := clientcredentials.Config{
			ClientID:     strings.TrimSpace(os.Getenv(entry.ClientIDEnv)),
			ClientSecret: strings.TrimSpace(os.Getenv(entry.ClientSecretEnv)),
			TokenURL:     entry.TokenURL,
		}
		client = cc.Client(ctx)
		client.Timeout = defaultFetchTimeout
	}

	switch entry.ID {
	case "deel":
		return &DeelAdapter{Endpoint: entry.Endpoint, APIKey: apiKey, Client: client}, nil
	case "remote":
		return &RemoteAdapter{Endpoint: entry.Endpoint, APIKey: apiKey, Client: client}, nil
	case "rivermate":
		return &RivermateAdapter{Endpoint: entry.Endpoint, APIKey: apiKey, Client: client}, nil
	case "oyster":
		return &OysterAdapter{Endpoint: entry.Endpoint, Client: client}, nil
	case "rippling":
		return &RipplingAdapter{Endpoint: entry.Endpoint, Client: client}, nil
	case "skuad":
		return &SkuadAdapter{Endpoint: entry.Endpoint, APIKey: apiKey, Client: client}, nil
	case "velocity":
		return &VelocityAdapter{Endpoint: entry.Endpoint, APIKey: apiKey, Client: client}, nil
	case "omnipresent":
		return &OmnipresentAdapter{Endpoint: entry.Endpoint, APIKey: apiKey, Client: client}, nil
	default:
		return nil, fmt.Errorf("provider catalog: no adapter implemented for %q", entry.ID)
	}
}

// Get returns the adapter for a provider id.
func (r *Registry) Get(provider string) (Adapter, bool) {
	a, ok := r.adapters[provider]
	return a, ok
}

// Primary returns the primary provider id (the one the UI lands on).
func (r *Registry) Primary() string {
	return r.primary
}

// IDs returns provider ids in catalog order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// Batches returns the non-empty enhancement batches in tier order. Every
// registered provider appears in exactly one batch.
func (r *Registry) Batches() [][]string {
	out := make([][]string, 0, len(r.batches))
	for _, tier := range r.batches {
		if len(tier) == 0 {
			continue
		}
		out = append(out, append([]string(nil), tier...))
	}
	if len(out) == 0 && len(r.order) > 0 {
		out = append(out, append([]string(nil), r.order...))
	}
	return out
}

// DisplayName resolves a provider id to its catalog display name.
func (r *Registry) DisplayName(provider string) string {
	if name := r.names[provider]; name != "" {
		return name
	}
	return provider
}

// Known reports whether the provider id is registered.
func (r *Registry) Known(provider string) bool {
	_, ok := r.adapters[provider]
	return ok
}
