package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength はパスワードの最小文字数。
const MinPasswordLength = 6

// dummyHash は未登録メールでのログイン時に比較対象として使うハッシュ。
// 登録済みかどうかで応答時間が変わらないようにする。
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("arsia-timing-equalizer"), bcrypt.DefaultCost)

// HashPassword はパスワードをbcryptでハッシュ化する。
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// CheckPassword はハッシュとパスワードが一致するかを返す。
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// burnPasswordCheck はダミーハッシュと比較して処理時間のみを消費する。
func burnPasswordCheck(password string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}
