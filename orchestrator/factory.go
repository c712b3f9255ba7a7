package orchestrator

import (
	"context"
	"fmt"
	"time"

	"reachly/models"
	"reachly/provider"
)

// CredentialStore is the slice of the store the factory needs
type CredentialStore interface {
	GetCredential(ctx context.Context, tenantID uint, providerName string) (*models.ProviderCredential, error)
}

// emailProviderOrder is the lookup order when a tenant holds credentials for
// more than one email provider
var emailProviderOrder = []string{
	models.ProviderSmartlead,
	models.ProviderNureply,
	models.ProviderInstantly,
}

// CredentialAdapterFactory builds adapters per request from the tenant's own
// stored credentials. No package-level provider clients: each call gets a
// fresh instance with explicit configuration.
type CredentialAdapterFactory struct {
	Store    CredentialStore
	Decrypt  func(string) (string, error)
	BaseURLs map[string]string // per-provider override, used by tests and proxies
	Timeout  time.Duration
}

func NewCredentialAdapterFactory(store CredentialStore, decrypt func(string) (string, error)) *CredentialAdapterFactory {
	return &CredentialAdapterFactory{
		Store:   store,
		Decrypt: decrypt,
		Timeout: 15 * time.Second,
	}
}

func (f *CredentialAdapterFactory) build(ctx context.Context, tenantID uint, providerName string) (provider.Adapter, error) {
	cred, err := f.Store.GetCredential(ctx, tenantID, providerName)
	if err != nil {
		return nil, err
	}
	apiKey := cred.APIKeyEncrypted
	if f.Decrypt != nil {
		apiKey, err = f.Decrypt(cred.APIKeyEncrypted)
		if err != nil {
			return nil, fmt.Errorf("decrypting %s credential: %w", providerName, err)
		}
	}
	baseURL := cred.BaseURL
	if baseURL == "" {
		baseURL = f.BaseURLs[providerName]
	}
	return provider.New(providerName, provider.Config{
		APIKey:  apiKey,
		BaseURL: baseURL,
		Timeout: f.Timeout,
	})
}

// EmailAdapter resolves the tenant's email delivery provider
func (f *CredentialAdapterFactory) EmailAdapter(ctx context.Context, tenantID uint) (provider.Adapter, error) {
	var lastErr error
	for _, name := range emailProviderOrder {
		adapter, err := f.build(ctx, tenantID, name)
		if err == nil {
			return adapter, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("tenant %d has no email provider credential: %w", tenantID, lastErr)
}

// LinkedInAdapter resolves the tenant's LinkedIn delivery provider
func (f *CredentialAdapterFactory) LinkedInAdapter(ctx context.Context, tenantID uint) (provider.Adapter, error) {
	adapter, err := f.build(ctx, tenantID, models.ProviderHeyReach)
	if err != nil {
		return nil, fmt.Errorf("tenant %d has no linkedin provider credential: %w", tenantID, err)
	}
	return adapter, nil
}
