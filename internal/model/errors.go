// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, publication, linkedin, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation            = "VALIDATION_ERROR"
	ErrCodeEmailTaken            = "EMAIL_TAKEN"
	ErrCodeInvalidCredentials    = "INVALID_CREDENTIALS"
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeInvalidUpload         = "INVALID_UPLOAD"
	ErrCodeFileTooLarge          = "FILE_TOO_LARGE"
	ErrCodePublicationNotFound   = "PUBLICATION_NOT_FOUND"
	ErrCodeForbidden             = "FORBIDDEN"
	ErrCodeAlreadyPublished      = "ALREADY_PUBLISHED"
	ErrCodeCaptionFailed         = "CAPTION_FAILED"
	ErrCodeInvalidArtisanID      = "INVALID_ARTISAN_ID"
	ErrCodeLinkedInNotConfigured = "LINKEDIN_NOT_CONFIGURED"
	ErrCodeUserNotFound          = "USER_NOT_FOUND"
	ErrCodeRateLimited           = "RATE_LIMIT_EXCEEDED"
)

// NewValidationError は入力値の検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  reason,
		Category: "validation",
		Action:   "Vérifiez les champs saisis puis réessayez.",
	}
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "Cet email est déjà utilisé",
		Category: "auth",
		Action:   "Connectez-vous ou utilisez une autre adresse email.",
	}
}

// NewInvalidCredentialsError は認証情報不一致エラーを生成する。
// 未登録メールとパスワード誤りで同一のエラーを返すこと。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Email ou mot de passe incorrect",
		Category: "auth",
		Action:   "Vérifiez votre email et votre mot de passe.",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
// トークン欠落・不正・期限切れ・失効のいずれでも同一のエラーを返す。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Session invalide ou expirée",
		Category: "auth",
		Action:   "Reconnectez-vous.",
	}
}

// NewInvalidUploadError はアップロードファイルの検証エラーを生成する。
func NewInvalidUploadError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidUpload,
		Message:  reason,
		Category: "validation",
		Action:   "Envoyez une image JPEG, PNG, GIF ou WebP.",
	}
}

// NewFileTooLargeError はアップロードサイズ超過エラーを生成する。
func NewFileTooLargeError(maxBytes int64) *APIError {
	return &APIError{
		Code:     ErrCodeFileTooLarge,
		Message:  fmt.Sprintf("Fichier trop volumineux (maximum %d Mo)", maxBytes/(1024*1024)),
		Category: "validation",
		Action:   "Réduisez la taille de l'image puis réessayez.",
	}
}

// NewPublicationNotFoundError は投稿未検出エラーを生成する。
func NewPublicationNotFoundError(publicationID string) *APIError {
	return &APIError{
		Code:     ErrCodePublicationNotFound,
		Message:  fmt.Sprintf("Publication introuvable: %s", publicationID),
		Category: "publication",
		Action:   "Vérifiez l'identifiant de la publication.",
	}
}

// NewForbiddenError は他ユーザーの投稿を操作しようとした場合のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "Non autorisé",
		Category: "publication",
		Action:   "Vous ne pouvez agir que sur vos propres publications.",
	}
}

// NewAlreadyPublishedError は公開済み投稿を再公開しようとした場合のエラーを生成する。
func NewAlreadyPublishedError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyPublished,
		Message:  "Cette publication est déjà publiée",
		Category: "publication",
		Action:   "Rafraîchissez la liste de vos publications.",
	}
}

// NewCaptionFailedError はキャプション生成失敗エラーを生成する。
func NewCaptionFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeCaptionFailed,
		Message:  "La génération de la description a échoué",
		Category: "publication",
		Action:   "Réessayez dans quelques instants.",
	}
}

// NewInvalidArtisanIDError は公開APIのartisanId不正エラーを生成する。
func NewInvalidArtisanIDError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidArtisanID,
		Message:  "artisanId manquant ou invalide",
		Category: "validation",
		Action:   "Indiquez l'identifiant de l'artisan dans le paramètre artisanId.",
	}
}

// NewLinkedInNotConfiguredError はLinkedIn連携が未設定の場合のエラーを生成する。
func NewLinkedInNotConfiguredError() *APIError {
	return &APIError{
		Code:     ErrCodeLinkedInNotConfigured,
		Message:  "L'intégration LinkedIn n'est pas configurée",
		Category: "linkedin",
		Action:   "Contactez l'administrateur du service.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "Utilisateur introuvable",
		Category: "auth",
		Action:   "Reconnectez-vous.",
	}
}

// NewRateLimitedError はレート制限超過のエラーを生成する。
// 待つべき秒数はRetry-Afterヘッダーで伝える。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Trop de requêtes, veuillez réessayer plus tard.",
		Category: "system",
		Action:   "Patientez quelques instants avant de réessayer.",
	}
}
