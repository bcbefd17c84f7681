// Package identity adapts the consortium's identity provider and uuid
// service, both external collaborators of the registry.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Principal is an authenticated caller as resolved by the identity provider.
type Principal struct {
	Name       string            `json:"name"`
	Email      string            `json:"email"`
	Sub        string            `json:"sub"`
	Authorized bool              `json:"authorized"`
	Groups     map[string]string `json:"groups"` // data-provider group id -> display name
}

// SelectGroup picks the owning group for a submission. An explicitly
// requested group must be one of the principal's data-provider groups;
// with no request the principal must belong to exactly one.
func SelectGroup(p Principal, requested string) (string, error) {
	if requested != "" {
		if _, ok := p.Groups[requested]; ok {
			return requested, nil
		}
		return "", fmt.Errorf("not a member of a data provider group or no group_id provided")
	}
	if len(p.Groups) != 1 {
		return "", fmt.Errorf("not a member of a data provider group or no group_id provided")
	}
	for id := range p.Groups {
		return id, nil
	}
	return "", fmt.Errorf("not a member of a data provider group or no group_id provided")
}

// Provider resolves a bearer token to a Principal.
type Provider interface {
	Resolve(ctx context.Context, token string) (Principal, error)
}

// HTTPProvider talks to the consortium identity service. The uploaders
// group id gates the Authorized flag.
type HTTPProvider struct {
	http             *http.Client
	baseURL          string
	uploadersGroupID string
}

func NewHTTPProvider(baseURL, uploadersGroupID string) *HTTPProvider {
	return &HTTPProvider{
		http:             &http.Client{Timeout: 15 * time.Second},
		baseURL:          baseURL,
		uploadersGroupID: uploadersGroupID,
	}
}

func (p *HTTPProvider) Resolve(ctx context.Context, token string) (Principal, error) {
	var userinfo struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Sub   string `json:"sub"`
	}
	if err := p.getJSON(ctx, token, "/userinfo", &userinfo); err != nil {
		return Principal{}, fmt.Errorf("resolve principal: %w", err)
	}

	var memberships struct {
		Groups []struct {
			UUID         string `json:"uuid"`
			DisplayName  string `json:"displayname"`
			DataProvider bool   `json:"data_provider"`
		} `json:"groups"`
	}
	if err := p.getJSON(ctx, token, "/metadata/usergroups", &memberships); err != nil {
		return Principal{}, fmt.Errorf("resolve groups: %w", err)
	}

	principal := Principal{
		Name:   userinfo.Name,
		Email:  userinfo.Email,
		Sub:    userinfo.Sub,
		Groups: make(map[string]string),
	}
	for _, group := range memberships.Groups {
		if group.UUID == p.uploadersGroupID {
			principal.Authorized = true
		}
		if group.DataProvider {
			principal.Groups[group.UUID] = group.DisplayName
		}
	}
	return principal, nil
}

func (p *HTTPProvider) getJSON(ctx context.Context, token, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("identity service returned status %d for %s", resp.StatusCode, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// MintedID is a freshly issued record identity: the stable uuid plus the
// human-readable registry id.
type MintedID struct {
	UUID       string `json:"uuid"`
	RegistryID string `json:"hubmap_id"`
}

// Minter issues record identities.
type Minter interface {
	Mint(ctx context.Context, token string) (MintedID, error)
}

// HTTPMinter asks the consortium uuid service for AVR-typed identities.
type HTTPMinter struct {
	http    *http.Client
	baseURL string
}

func NewHTTPMinter(baseURL string) *HTTPMinter {
	return &HTTPMinter{
		http:    &http.Client{Timeout: 15 * time.Second},
		baseURL: baseURL,
	}
}

func (m *HTTPMinter) Mint(ctx context.Context, token string) (MintedID, error) {
	payload, _ := json.Marshal(map[string]string{"entity_type": "AVR"})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/hmuuid", bytes.NewReader(payload))
	if err != nil {
		return MintedID{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := m.http.Do(req)
	if err != nil {
		return MintedID{}, fmt.Errorf("mint id: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return MintedID{}, fmt.Errorf("uuid service returned status %d", resp.StatusCode)
	}

	var minted []MintedID
	if err := json.NewDecoder(resp.Body).Decode(&minted); err != nil {
		return MintedID{}, fmt.Errorf("decode minted id: %w", err)
	}
	if len(minted) == 0 {
		return MintedID{}, fmt.Errorf("uuid service returned no ids")
	}
	return minted[0], nil
}
