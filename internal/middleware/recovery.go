package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// NewRecoveryMiddleware はハンドラー内のpanicを500レスポンスに変換する。
// http.ErrAbortHandlerはnet/httpの接続中断の合図なので再送出する。
// レスポンスを書き始めた後のpanicではステータスを変えられないため、ログだけ残す。
func NewRecoveryMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := newResponseRecorder(w)
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if err, ok := v.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(v)
				}

				logger.ErrorContext(r.Context(), "panic recovered",
					slog.Any("panic", v),
					slog.String("request_id", RequestIDFromContext(r.Context())),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("stack", string(debug.Stack())),
				)
				if rec.status == 0 {
					WriteInternalServerError(rec, "")
				}
			}()
			next.ServeHTTP(rec, r)
		})
	}
}
