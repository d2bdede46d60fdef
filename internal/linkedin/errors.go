package linkedin

import (
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// 公開パイプラインの段階。メトリクスのラベルにも使う。
const (
	StepToken  = "token"
	StepTarget = "target"
	StepAsset  = "asset"
	StepPost   = "post"
)

var (
	// ErrNotConnected はユーザーがLinkedInに接続していないことを示す。
	// 公開処理では失敗ではなく「未接続」として扱う。
	ErrNotConnected = errors.New("linkedin account not connected")

	// ErrNoTarget は投稿先の組織URNも個人URNも保存されていないことを示す。
	ErrNoTarget = errors.New("no URN available for linkedin publication")

	// ErrNoRefreshToken は期限切れのトークンを更新するリフレッシュトークンがないことを示す。
	ErrNoRefreshToken = errors.New("linkedin access token expired and no refresh token is stored")

	// ErrUserNotFound はコールバックのstateが指すユーザーが存在しないことを示す。
	ErrUserNotFound = errors.New("user not found")

	// ErrNoOrganization は管理者である組織ページが見つからないことを示す。
	ErrNoOrganization = errors.New("no administered organization page")
)

// PublishError はLinkedInへの公開パイプラインの失敗を表す。
// ローカルの公開処理は継続し、Message()の内容を利用者に返す。
type PublishError struct {
	Step         string
	Status       int  // LinkedInの応答ステータス。通信エラー等では0
	Organization bool // 組織ページへの投稿だったか
	Err          error
}

func newPublishError(step string, organization bool, err error) *PublishError {
	pe := &PublishError{Step: step, Organization: organization, Err: err}
	var se *StatusError
	var re *oauth2.RetrieveError
	switch {
	case errors.As(err, &se):
		pe.Status = se.Status
	case errors.As(err, &re) && re.Response != nil:
		pe.Status = re.Response.StatusCode
	}
	return pe
}

// Error はerrorインターフェースを実装する。
func (e *PublishError) Error() string {
	return fmt.Sprintf("linkedin %s step failed: %v", e.Step, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *PublishError) Unwrap() error {
	return e.Err
}

// PermissionDenied はLinkedInが権限不足で拒否したかを返す。
func (e *PublishError) PermissionDenied() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// Message は利用者向けの説明を返す。
// 権限不足は組織ページと個人プロフィールで必要な権限を区別して案内する。
func (e *PublishError) Message() string {
	switch e.Step {
	case StepToken:
		return "Erreur lors du rafraîchissement du token LinkedIn"
	case StepTarget:
		return "Aucun URN disponible pour la publication LinkedIn"
	}

	if e.PermissionDenied() {
		if e.Organization {
			return "Permission refusée. Vérifiez que vous avez la permission w_organization_social et que vous êtes admin de la page."
		}
		return "Permission refusée. Vérifiez que vous avez la permission w_member_social."
	}
	if e.Step == StepAsset {
		return "Erreur lors de l'upload de l'image sur LinkedIn"
	}
	return "Erreur lors de la publication sur LinkedIn: " + e.Err.Error()
}
