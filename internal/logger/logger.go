// Package logger はslogによるJSON構造化ログの初期化を提供する。
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ServiceName は全ログ行に付与するserviceフィールドの値。
const ServiceName = "arsia"

// Redacted は秘匿属性の値の置き換え先。
const Redacted = "[REDACTED]"

// level はプロセス全体で共有するログレベル。設定読み込み後にSetLevelで変更する。
var level = new(slog.LevelVar)

// secretKeys に一致する属性キーは値を出力しない。大文字小文字は区別しない。
var secretKeys = map[string]struct{}{
	"password":      {},
	"password_hash": {},
	"token":         {},
	"access_token":  {},
	"refresh_token": {},
	"authorization": {},
	"cookie":        {},
	"api_key":       {},
	"client_secret": {},
}

// Setup はwに書き出すJSONロガーを生成する。
func Setup(w io.Writer) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redactSecrets,
	})
	return slog.New(handler).With(slog.String("service", ServiceName))
}

// SetupDefault はSetupのロガーをslogのデフォルトにする。wがnilならos.Stdout。
func SetupDefault(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w))
}

// SetLevel はdebug, info, warn, errorのいずれかでログレベルを変える。
func SetLevel(name string) {
	level.Set(ParseLevel(name))
}

// ParseLevel はログレベル名をslog.Levelに変換する。不明な値はinfo。
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func redactSecrets(_ []string, a slog.Attr) slog.Attr {
	if _, ok := secretKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, Redacted)
	}
	return a
}
