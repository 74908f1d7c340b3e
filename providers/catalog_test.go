package providers

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const validCatalogYAML = `
version: 1
providers:
  - id: deel
    display_name: Deel
    endpoint: https://deel.example/quote
    auth: bearer
    key_env: DEEL_API_KEY
    batch: 1
    primary: true
  - id: oyster
    display_name: Oyster HR
    endpoint: https://oyster.example/quote
    auth: oauth2
    client_id_env: OYSTER_CLIENT_ID
    client_secret_env: OYSTER_CLIENT_SECRET
    token_url: https://oyster.example/token
    batch: 1
  - id: velocity
    display_name: Velocity Global
    endpoint: https://velocity.example/quote
    auth: bearer
    key_env: VELOCITY_API_KEY
    batch: 3
`

func TestParseCatalogYAML(t *testing.T) {
	cat, err := ParseCatalogYAML([]byte(validCatalogYAML))
	require.NoError(t, err)
	require.Len(t, cat.Providers, 3)
	require.Equal(t, "deel", cat.Providers[0].ID)
	require.True(t, cat.Providers[0].Primary)
	require.Equal(t, "oauth2", cat.Providers[1].Auth)
	require.Equal(t, 3, cat.Providers[2].Batch)
}

func TestParseCatalogYAMLRejectsBadDocuments(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"bad version", `
version: 2
providers:
  - id: deel
    endpoint: https://deel.example/quote
    auth: bearer
    key_env: DEEL_API_KEY
    batch: 1
    primary: true
`},
		{"no providers", `
version: 1
providers: []
`},
		{"duplicate id", `
version: 1
providers:
  - id: deel
    endpoint: https://deel.example/quote
    auth: bearer
    key_env: DEEL_API_KEY
    batch: 1
    primary: true
  - id: deel
    endpoint: https://deel.example/other
    auth: bearer
    key_env: DEEL_API_KEY
    batch: 2
`},
		{"bearer missing key_env", `
version: 1
providers:
  - id: deel
    endpoint: https://deel.example/quote
    auth: bearer
    batch: 1
    primary: true
`},
		{"oauth2 missing token_url", `
version: 1
providers:
  - id: oyster
    endpoint: https://oyster.example/quote
    auth: oauth2
    client_id_env: OYSTER_CLIENT_ID
    client_secret_env: OYSTER_CLIENT_SECRET
    batch: 1
    primary: true
`},
		{"unknown auth", `
version: 1
providers:
  - id: deel
    endpoint: https://deel.example/quote
    auth: basic
    key_env: DEEL_API_KEY
    batch: 1
    primary: true
`},
		{"batch out of range", `
version: 1
providers:
  - id: deel
    endpoint: https://deel.example/quote
    auth: bearer
    key_env: DEEL_API_KEY
    batch: 4
    primary: true
`},
		{"no primary", `
version: 1
providers:
  - id: deel
    endpoint: https://deel.example/quote
    auth: bearer
    key_env: DEEL_API_KEY
    batch: 1
`},
		{"two primaries", `
version: 1
providers:
  - id: deel
    endpoint: https://deel.example/quote
    auth: bearer
    key_env: DEEL_API_KEY
    batch: 1
    primary: true
  - id: remote
    endpoint: https://remote.example/quote
    auth: bearer
    key_env: REMOTE_API_KEY
    batch: 1
    primary: true
`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseCatalogYAML([]byte(tc.doc))
			require.Error(t, err)
		})
	}
}

func TestLoadCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validCatalogYAML), 0o600))

	cat, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, cat.Providers, 3)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestShippedCatalogIsValid(t *testing.T) {
	cat, err := LoadCatalog(filepath.Join("..", "providers.yaml"))
	require.NoError(t, err)
	require.Len(t, cat.Providers, 8)

	reg, err := NewRegistry(context.Background(), cat)
	require.NoError(t, err)
	require.Equal(t, "deel", reg.Primary())

	batches := reg.Batches()
	require.Len(t, batches, 3)
	require.Equal(t, []string{"deel", "remote", "oyster"}, batches[0])
	require.Equal(t, []string{"rivermate", "rippling", "skuad"}, batches[1])
	require.Equal(t, []string{"velocity", "omnipresent"}, batches[2])
}

func TestRegistryBuildsEveryCatalogEntry(t *testing.T) {
	cat, err := ParseCatalogYAML([]byte(validCatalogYAML))
	require.NoError(t, err)

	reg, err := NewRegistry(context.Background(), cat)
	require.NoError(t, err)

	for _, id := range []string{"deel", "oyster", "velocity"} {
		a, ok := reg.Get(id)
		require.True(t, ok, "adapter %s not registered", id)
		require.Equal(t, id, a.Name())
	}
	require.False(t, reg.Known("acme"))
	require.Equal(t, []string{"deel", "oyster", "velocity"}, reg.IDs())
	require.Equal(t, "Oyster HR", reg.DisplayName("oyster"))
	require.Equal(t, "acme", reg.DisplayName("acme"))

	// Empty tier 2 collapses out of the schedule.
	batches := reg.Batches()
	require.Equal(t, [][]string{{"deel", "oyster"}, {"velocity"}}, batches)
}

func TestRegistryRejectsUnknownProvider(t *testing.T) {
	cat, err := ParseCatalogYAML([]byte(`
version: 1
providers:
  - id: acme
    endpoint: https://acme.example/quote
    auth: bearer
    key_env: ACME_API_KEY
    batch: 1
    primary: true
`))
	require.NoError(t, err)

	_, err = NewRegistry(context.Background(), cat)
	require.Error(t, err)
	require.Contains(t, err.Error(), "acme")
}
