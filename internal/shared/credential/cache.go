// Package credential 进程级 Bearer 凭据缓存
//
// Cache 在启动时创建一次，注入到所有需要访问外部授权方的组件。
// 刷新路径由互斥锁 + singleflight 保护：同一有效期内的并发调用只触发一次获取，
// 过期后也只有一次刷新，所有等待者拿到同一个新凭据后才继续。
package credential

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"automation-bridge/internal/shared/apperr"
)

// Credential Bearer 凭据
type Credential struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
}

// Valid 在 now 时刻（预留 skew）凭据是否仍可用
func (c *Credential) Valid(now time.Time, skew time.Duration) bool {
	return c != nil && c.AccessToken != "" && now.Before(c.ExpiresAt.Add(-skew))
}

// AuthorizationHeader 返回 Authorization 头的值
func (c Credential) AuthorizationHeader() string {
	return "Bearer " + c.AccessToken
}

// Token 授权方返回的原始令牌
type Token struct {
	AccessToken string
	TokenType   string
	ExpiresIn   time.Duration
}

// Fetcher 从外部授权方获取令牌
type Fetcher interface {
	FetchToken(ctx context.Context) (*Token, error)
}

// FetcherFunc 函数适配器
type FetcherFunc func(ctx context.Context) (*Token, error)

func (f FetcherFunc) FetchToken(ctx context.Context) (*Token, error) { return f(ctx) }

// Options 缓存选项
type Options struct {
	// Skew 提前刷新的时间窗口，避免使用即将过期的凭据
	Skew time.Duration
	// Now 时钟（测试注入）
	Now func() time.Time
	// OnRefresh 每次成功刷新后回调（指标）
	OnRefresh func()
}

// Cache 凭据缓存
type Cache struct {
	fetcher Fetcher
	skew    time.Duration
	now     func() time.Time
	onFetch func()

	mu      sync.RWMutex
	current *Credential
	group   singleflight.Group
}

// NewCache 创建凭据缓存
func NewCache(fetcher Fetcher, opts Options) *Cache {
	c := &Cache{
		fetcher: fetcher,
		skew:    opts.Skew,
		now:     opts.Now,
		onFetch: opts.OnRefresh,
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

const flightKey = "credential"

// Get 返回有效凭据，必要时同步刷新
//
// 授权方的错误原样包装为 AuthFailure 返回，不做重试。
func (c *Cache) Get(ctx context.Context) (Credential, error) {
	if cred, ok := c.cached(); ok {
		return cred, nil
	}

	ch := c.group.DoChan(flightKey, func() (interface{}, error) {
		// 进入 flight 后再检查一次：上一轮刷新可能刚刚完成
		if cred, ok := c.cached(); ok {
			return cred, nil
		}
		return c.refresh(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return Credential{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Credential{}, res.Err
		}
		return res.Val.(Credential), nil
	}
}

// Invalidate 丢弃当前凭据，下一次 Get 会重新获取
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
}

func (c *Cache) cached() (Credential, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current.Valid(c.now(), c.skew) {
		return *c.current, true
	}
	return Credential{}, false
}

func (c *Cache) refresh(ctx context.Context) (Credential, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tok, err := c.fetcher.FetchToken(ctx)
	if err != nil {
		if apperr.Is(err, apperr.KindAuthFailure) {
			return Credential{}, err
		}
		return Credential{}, apperr.AuthFailure("GetCredential", err)
	}

	cred := &Credential{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		ExpiresAt:   c.now().Add(tok.ExpiresIn),
	}
	c.current = cred
	if c.onFetch != nil {
		c.onFetch()
	}
	return *cred, nil
}
