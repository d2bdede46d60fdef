package linkedin

import (
	"crypto/sha256"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidState はOAuthのstateパラメータが不正または期限切れであることを示す。
var ErrInvalidState = errors.New("invalid oauth state")

// stateAudience はセッショントークンと区別するためのaud。
const stateAudience = "linkedin-connect"

// DefaultStateTTL はstateの有効期間。
const DefaultStateTTL = 10 * time.Minute

// StateSigner はOAuthのstateにユーザーIDを署名付きで埋め込む。
type StateSigner struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewStateSigner はStateSignerを生成する。
// 署名鍵はセッション用の秘密鍵から用途別に派生させる。
func NewStateSigner(secret string, ttl time.Duration) *StateSigner {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	sum := sha256.Sum256([]byte(stateAudience + ":" + secret))
	return &StateSigner{key: sum[:], ttl: ttl, now: time.Now}
}

// Sign はユーザーIDを含むstateを生成する。
func (s *StateSigner) Sign(userID string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Audience:  jwt.ClaimStrings{stateAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// Verify はstateを検証し、ユーザーIDを返す。
func (s *StateSigner) Verify(state string) (string, error) {
	if state == "" {
		return "", ErrInvalidState
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(state, claims,
		func(t *jwt.Token) (interface{}, error) {
			return s.key, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(stateAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidState
	}
	return claims.Subject, nil
}
