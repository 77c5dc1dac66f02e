package searchconsole

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Scope Search Console 只读权限
const Scope = "https://www.googleapis.com/auth/webmasters.readonly"

// TokenSource 提供访问令牌
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// OAuthTokenSource 把 oauth2.TokenSource 适配为 TokenSource
type OAuthTokenSource struct {
	src oauth2.TokenSource
}

var _ TokenSource = (*OAuthTokenSource)(nil)

// NewOAuthTokenSource 包装任意 oauth2 令牌源
func NewOAuthTokenSource(src oauth2.TokenSource) *OAuthTokenSource {
	return &OAuthTokenSource{src: src}
}

// NewServiceAccountTokenSource 用服务账号 JSON 密钥创建令牌源，令牌在过期前被复用。
// tokenURL 为空时使用密钥文件中的 token_uri。
// ctx 在令牌源的整个生命周期内有效，可通过 oauth2.HTTPClient 指定 HTTP 客户端。
func NewServiceAccountTokenSource(ctx context.Context, credentials []byte, tokenURL string) (*OAuthTokenSource, error) {
	conf, err := google.JWTConfigFromJSON(credentials, Scope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	if tokenURL != "" {
		conf.TokenURL = tokenURL
	}
	return NewOAuthTokenSource(conf.TokenSource(ctx)), nil
}

// LoadServiceAccount 读取服务账号密钥文件并创建令牌源
func LoadServiceAccount(ctx context.Context, path, tokenURL string) (*OAuthTokenSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewServiceAccountTokenSource(ctx, data, tokenURL)
}

// Token 返回当前有效的访问令牌。刷新使用创建时的 ctx，这里的 ctx 不参与。
func (s *OAuthTokenSource) Token(context.Context) (string, error) {
	tok, err := s.src.Token()
	if err != nil {
		return "", fmt.Errorf("fetch access token: %w", err)
	}
	return tok.AccessToken, nil
}

// StaticToken 固定令牌，用于测试或外部已获取令牌的场景
type StaticToken string

// Token implements TokenSource
func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}
