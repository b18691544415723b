// Package assets resolves spoken or scanned asset identifiers against the
// external asset registry.
package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fieldvoice/fieldvoice/internal/models"
)

// ErrAssetNotFound indicates the registry has no asset with the given ID.
var ErrAssetNotFound = errors.New("asset not found")

// Resolver looks up asset descriptors by ID.
type Resolver interface {
	Resolve(ctx context.Context, assetID string) (*models.AssetDescriptor, error)
}

// HTTPResolver queries the maintenance platform's asset API.
type HTTPResolver struct {
	baseURL    string
	httpClient *http.Client
}

var _ Resolver = (*HTTPResolver)(nil)

// NewHTTPResolver creates a resolver against the asset API at baseURL.
func NewHTTPResolver(baseURL string) *HTTPResolver {
	return &HTTPResolver{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Resolve fetches the descriptor for assetID.
// Returns ErrAssetNotFound if the registry does not know the asset.
func (r *HTTPResolver) Resolve(ctx context.Context, assetID string) (*models.AssetDescriptor, error) {
	endpoint := r.baseURL + "/assets/" + url.PathEscape(assetID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("resolve asset %s: %w", assetID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("resolve asset %s: %w", assetID, ErrAssetNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("resolve asset %s: %s - %s", assetID, resp.Status, string(body))
	}

	var desc models.AssetDescriptor
	if err := json.NewDecoder(resp.Body).Decode(&desc); err != nil {
		return nil, fmt.Errorf("decode asset %s: %w", assetID, err)
	}
	if desc.ID == "" {
		desc.ID = assetID
	}
	return &desc, nil
}

// StaticResolver serves descriptors from a fixed table. Used in tests and
// in deployments without an asset API.
type StaticResolver struct {
	assets map[string]models.AssetDescriptor
}

var _ Resolver = (*StaticResolver)(nil)

// NewStaticResolver creates a resolver over a fixed descriptor set.
func NewStaticResolver(descriptors ...models.AssetDescriptor) *StaticResolver {
	assets := make(map[string]models.AssetDescriptor, len(descriptors))
	for _, d := range descriptors {
		assets[d.ID] = d
	}
	return &StaticResolver{assets: assets}
}

// Resolve returns the fixed descriptor for assetID.
func (r *StaticResolver) Resolve(_ context.Context, assetID string) (*models.AssetDescriptor, error) {
	desc, ok := r.assets[assetID]
	if !ok {
		return nil, fmt.Errorf("resolve asset %s: %w", assetID, ErrAssetNotFound)
	}
	return &desc, nil
}
