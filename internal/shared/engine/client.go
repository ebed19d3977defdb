package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/containerd/errdefs"

	"automation-bridge/internal/shared/apperr"
	"automation-bridge/internal/shared/credential"
	"automation-bridge/internal/shared/model"
)

// DefaultBaseURL Design Automation v3 默认入口
const DefaultBaseURL = "https://developer.api.autodesk.com/da/us-east/v3"

// CredentialSource 提供 Bearer 凭据
type CredentialSource interface {
	Get(ctx context.Context) (credential.Credential, error)
}

// invalidator 可选：引擎返回 401 时丢弃缓存凭据
type invalidator interface {
	Invalidate()
}

// Client 执行引擎客户端
type Client struct {
	baseURL string
	creds   CredentialSource
	http    *http.Client
}

// NewClient 创建执行引擎客户端
func NewClient(baseURL string, creds CredentialSource, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		http:    httpClient,
	}
}

// ============================================================================
// 列表（分页）
// ============================================================================

// ListEngines 列出全部引擎标识
func (c *Client) ListEngines(ctx context.Context) ([]string, error) {
	return c.listAll(ctx, "/engines")
}

// ListAppBundles 列出当前账号可见的 bundle 限定标识
func (c *Client) ListAppBundles(ctx context.Context) ([]string, error) {
	return c.listAll(ctx, "/appbundles")
}

// ListActivities 列出当前账号可见的 activity 限定标识
func (c *Client) ListActivities(ctx context.Context) ([]string, error) {
	return c.listAll(ctx, "/activities")
}

// listAll 沿分页令牌遍历直到耗尽
func (c *Client) listAll(ctx context.Context, path string) ([]string, error) {
	var all []string
	token := ""
	for {
		p := path
		if token != "" {
			p += "?page=" + url.QueryEscape(token)
		}
		var page Page
		if err := c.do(ctx, http.MethodGet, p, nil, &page); err != nil {
			return nil, fmt.Errorf("list %s: %w", path, err)
		}
		all = append(all, page.Data...)
		if page.PaginationToken == "" {
			return all, nil
		}
		token = page.PaginationToken
	}
}

// ============================================================================
// AppBundle
// ============================================================================

// CreateAppBundle 创建 bundle（版本 1）
func (c *Client) CreateAppBundle(ctx context.Context, spec *AppBundle) (*AppBundleVersion, error) {
	var out AppBundleVersion
	if err := c.do(ctx, http.MethodPost, "/appbundles", spec, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateAppBundleVersion 在已有 bundle 下创建新版本
func (c *Client) CreateAppBundleVersion(ctx context.Context, id string, spec *AppBundle) (*AppBundleVersion, error) {
	var out AppBundleVersion
	if err := c.do(ctx, http.MethodPost, "/appbundles/"+url.PathEscape(id)+"/versions", spec, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateAppBundleAlias 创建 bundle 别名
func (c *Client) CreateAppBundleAlias(ctx context.Context, id string, alias Alias) (*Alias, error) {
	var out Alias
	if err := c.do(ctx, http.MethodPost, "/appbundles/"+url.PathEscape(id)+"/aliases", alias, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ModifyAppBundleAlias 将 bundle 别名重定向到指定版本
func (c *Client) ModifyAppBundleAlias(ctx context.Context, id, aliasID string, version int) (*Alias, error) {
	var out Alias
	p := "/appbundles/" + url.PathEscape(id) + "/aliases/" + url.PathEscape(aliasID)
	if err := c.do(ctx, http.MethodPatch, p, AliasPatch{Version: version}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ============================================================================
// Activity
// ============================================================================

// CreateActivity 创建 activity（版本 1）
func (c *Client) CreateActivity(ctx context.Context, def *model.ActivityDefinition) (*ActivityVersion, error) {
	var out ActivityVersion
	if err := c.do(ctx, http.MethodPost, "/activities", def, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateActivityAlias 创建 activity 别名
func (c *Client) CreateActivityAlias(ctx context.Context, id string, alias Alias) (*Alias, error) {
	var out Alias
	if err := c.do(ctx, http.MethodPost, "/activities/"+url.PathEscape(id)+"/aliases", alias, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ============================================================================
// WorkItem
// ============================================================================

// CreateWorkItem 提交作业，立即返回作业句柄，不等待完成
func (c *Client) CreateWorkItem(ctx context.Context, wi *model.WorkItem) (*model.WorkItemStatus, error) {
	var out model.WorkItemStatus
	if err := c.do(ctx, http.MethodPost, "/workitems", wi, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ============================================================================
// HTTP 基础
// ============================================================================

// do 发送带 Bearer 凭据的 JSON 请求
//
// 非 2xx 响应按状态码转换为 errdefs 哨兵错误（404 NotFound、409 Conflict 等），
// 由调用方再归入具体的业务错误类别。
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	cred, err := c.creds.Get(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", cred.AuthorizationHeader())
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", errdefs.ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusUnauthorized {
			if inv, ok := c.creds.(invalidator); ok {
				inv.Invalidate()
			}
		}
		log.Printf("[Engine] %s %s -> %d", method, path, resp.StatusCode)
		return apperr.FromStatus(resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
