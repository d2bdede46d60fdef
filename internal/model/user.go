// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"time"
)

// User はサービス利用ユーザー（職人）を表す。
type User struct {
	ID           string
	Email        string
	PasswordHash string
	LinkedIn     LinkedInConnection
	CreatedAt    time.Time
}

// LinkedInConnection はユーザーに紐づくLinkedIn接続情報を表す。
// 各フィールドは常にまとめて保存・削除され、部分的な更新は行わない。
type LinkedInConnection struct {
	AccessToken      string
	RefreshToken     string
	ExpiresAt        time.Time
	PersonURN        string
	OrganizationURN  string
	OrganizationName string
	Connected        bool
}

// ErrConnectionWithoutToken は接続済みにもかかわらずアクセストークンが空であることを示す。
var ErrConnectionWithoutToken = errors.New("linkedin connection is marked connected without access token")

// Validate は接続済みであればアクセストークンが存在することを検証する。
func (c LinkedInConnection) Validate() error {
	if c.Connected && c.AccessToken == "" {
		return ErrConnectionWithoutToken
	}
	return nil
}

// Expired は指定時刻の時点でアクセストークンの有効期限が切れているかを返す。
// 有効期限が未設定の場合は期限切れとして扱わない。
func (c LinkedInConnection) Expired(now time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !c.ExpiresAt.After(now)
}

// WithTokens はトークン情報のみを差し替えた新しい接続情報を返す。
// リフレッシュトークンが空の場合は既存の値を引き継ぐ。
func (c LinkedInConnection) WithTokens(accessToken, refreshToken string, expiresAt time.Time) LinkedInConnection {
	next := c
	next.AccessToken = accessToken
	if refreshToken != "" {
		next.RefreshToken = refreshToken
	}
	next.ExpiresAt = expiresAt
	return next
}

// Target は投稿先のURNを返す。組織ページを優先し、なければ個人プロフィールを返す。
func (c LinkedInConnection) Target() string {
	if c.OrganizationURN != "" {
		return c.OrganizationURN
	}
	return c.PersonURN
}

// RevokedSession はログアウト済みのセッショントークンを表す。
type RevokedSession struct {
	TokenID   string
	UserID    string
	ExpiresAt time.Time
}
