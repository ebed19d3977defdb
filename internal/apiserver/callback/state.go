package callback

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// StateVersion 回调地址格式版本
const StateVersion = 1

// CallbackPath 回调路由
const CallbackPath = "/api/aps/callback/designautomation"

// ErrInvalidState 回调状态令牌无法验证
var ErrInvalidState = errors.New("invalid callback state")

// ============================================================================
// JWT 状态令牌
// ============================================================================

// StateClaims 回调状态令牌声明
//
// sub 为 requesterId，out 为输出对象名，两者都必须与回调查询参数一致。
type StateClaims struct {
	jwt.RegisteredClaims
	Output  string `json:"out"`
	Version int    `json:"ver"`
}

// Signer 签发并验证回调状态令牌
type Signer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewSigner 创建 Signer
func NewSigner(secret string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Signer{key: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue 签发令牌，返回令牌与 jti
func (s *Signer) Issue(requesterID, outputFileName string) (string, string, error) {
	now := s.now()
	jti := uuid.NewString()
	claims := StateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   requesterID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Output:  outputFileName,
		Version: StateVersion,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", "", fmt.Errorf("sign callback state: %w", err)
	}
	return token, jti, nil
}

// Verify 验证令牌签名、有效期、版本，以及与查询参数的绑定关系
func (s *Signer) Verify(token, requesterID, outputFileName string) (*StateClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &StateClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.key, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	claims, ok := parsed.Claims.(*StateClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidState
	}
	switch {
	case claims.Version != StateVersion:
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidState, claims.Version)
	case claims.Subject != requesterID:
		return nil, fmt.Errorf("%w: requester mismatch", ErrInvalidState)
	case claims.Output != outputFileName:
		return nil, fmt.Errorf("%w: output mismatch", ErrInvalidState)
	case claims.ID == "":
		return nil, fmt.Errorf("%w: missing jti", ErrInvalidState)
	}
	return claims, nil
}

// ============================================================================
// 回调地址
// ============================================================================

// URLBuilder 生成带签名状态的回调地址
type URLBuilder struct {
	base   string
	signer *Signer
}

// NewURLBuilder 创建 URLBuilder，webhookURL 为对外可达的服务根地址
func NewURLBuilder(webhookURL string, signer *Signer) *URLBuilder {
	return &URLBuilder{base: strings.TrimRight(webhookURL, "/"), signer: signer}
}

// Build 生成 {webhook}/api/aps/callback/designautomation?v=1&id=..&outputFileName=..&state=..
func (b *URLBuilder) Build(requesterID, outputFileName string) (string, error) {
	token, _, err := b.signer.Issue(requesterID, outputFileName)
	if err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("v", strconv.Itoa(StateVersion))
	q.Set("id", requesterID)
	q.Set("outputFileName", outputFileName)
	q.Set("state", token)
	return b.base + CallbackPath + "?" + q.Encode(), nil
}
