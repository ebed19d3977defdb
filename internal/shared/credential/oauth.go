package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"automation-bridge/internal/shared/apperr"
)

// DefaultScopes 内部（写）权限的固定 scope 集合
var DefaultScopes = []string{
	"bucket:create",
	"bucket:read",
	"bucket:delete",
	"data:read",
	"data:write",
	"data:create",
	"code:all",
}

// ClientCredentialsFetcher 使用 OAuth2 client_credentials 授权获取两腿令牌
type ClientCredentialsFetcher struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	HTTPClient   *http.Client
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// FetchToken 请求一次新令牌
func (f *ClientCredentialsFetcher) FetchToken(ctx context.Context) (*Token, error) {
	scopes := f.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", strings.Join(scopes, " "))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, apperr.AuthFailure("FetchToken", err)
	}
	req.SetBasicAuth(f.ClientID, f.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	client := f.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, apperr.AuthFailure("FetchToken", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.AuthFailure("FetchToken", apperr.FromStatus(resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, apperr.AuthFailure("FetchToken", fmt.Errorf("decode token response: %w", err))
	}
	if tr.AccessToken == "" {
		return nil, apperr.AuthFailure("FetchToken", fmt.Errorf("empty access_token in response"))
	}
	if tr.TokenType == "" {
		tr.TokenType = "Bearer"
	}
	return &Token{
		AccessToken: tr.AccessToken,
		TokenType:   tr.TokenType,
		ExpiresIn:   time.Duration(tr.ExpiresIn) * time.Second,
	}, nil
}
