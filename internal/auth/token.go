package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken はセッショントークンが欠落・不正・期限切れ・失効のいずれかであることを示す。
// 呼び出し側には理由を区別せず同一のエラーとして扱わせる。
var ErrInvalidToken = errors.New("invalid session token")

// Claims はセッショントークンに格納するクレーム。
// subにユーザーID、jtiにトークンIDを持つ。
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// UserID はトークンの主体であるユーザーIDを返す。
func (c *Claims) UserID() string {
	return c.Subject
}

// TokenID は失効管理に使うトークンIDを返す。
func (c *Claims) TokenID() string {
	return c.ID
}

// ExpiresAtTime はトークンの有効期限を返す。
func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// TokenManager はHS256署名のセッショントークンを発行・検証する。
type TokenManager struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewTokenManager はTokenManagerを生成する。
func NewTokenManager(secret string, maxAge time.Duration) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// MaxAge はトークンの有効期間を返す。
func (m *TokenManager) MaxAge() time.Duration {
	return m.maxAge
}

// Issue はユーザーのセッショントークンを発行する。
func (m *TokenManager) Issue(userID, email string) (string, *Claims, error) {
	now := m.now()
	claims := &Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.maxAge)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, claims, nil
}

// Verify はトークンの署名と有効期限を検証し、クレームを返す。
// 検証に失敗した場合は理由に関わらずErrInvalidTokenを返す。
func (m *TokenManager) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			return m.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
