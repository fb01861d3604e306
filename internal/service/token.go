package service

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSource 为远程 API 签发 HS256 Bearer Token，有效期过半前复用同一个
type TokenSource struct {
	secret  []byte
	subject string
	ttl     time.Duration
	now     func() time.Time

	mu       sync.Mutex
	token    string
	issuedAt time.Time
}

// NewTokenSource 创建 TokenSource
func NewTokenSource(secret, subject string, ttl time.Duration) *TokenSource {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &TokenSource{
		secret:  []byte(secret),
		subject: subject,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Token 获取可用的 Token
func (s *TokenSource) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.token != "" && !s.shouldRefresh(now) {
		return s.token, nil
	}

	claims := jwt.RegisteredClaims{
		Subject:   s.subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", err
	}

	s.token = token
	s.issuedAt = now
	return token, nil
}

// shouldRefresh 已消耗总有效期的 50% 以上则刷新
func (s *TokenSource) shouldRefresh(now time.Time) bool {
	return now.Sub(s.issuedAt) > s.ttl/2
}
