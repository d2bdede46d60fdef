package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// RequestIDHeader は相関IDを受け渡すヘッダー名。
const RequestIDHeader = "X-Request-ID"

// 外部から受け取るIDはログを汚さない形式に限る
var validRequestID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// responseRecorder は最初に確定したステータスコードと書き込みバイト数を記録する。
type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{ResponseWriter: w}
}

func (rr *responseRecorder) WriteHeader(code int) {
	if rr.status == 0 {
		rr.status = code
	}
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	if rr.status == 0 {
		rr.status = http.StatusOK
	}
	n, err := rr.ResponseWriter.Write(b)
	rr.bytes += n
	return n, err
}

// Unwrap はhttp.ResponseControllerから元のResponseWriterを辿れるようにする。
func (rr *responseRecorder) Unwrap() http.ResponseWriter {
	return rr.ResponseWriter
}

// statusCode はハンドラーが何も書かなかった場合も200として扱う。
func (rr *responseRecorder) statusCode() int {
	if rr.status == 0 {
		return http.StatusOK
	}
	return rr.status
}

// requestLog は内側のミドルウェアが判明した情報をアクセスログへ渡す入れ物。
type requestLog struct {
	requestID string
	userID    string
}

var requestLogContextKey = contextKey("request_log")

// noteRequestUser はアクセスログにユーザーIDを残す。ログミドルウェアの外では何もしない。
func noteRequestUser(ctx context.Context, userID string) {
	if rl, ok := ctx.Value(requestLogContextKey).(*requestLog); ok {
		rl.userID = userID
	}
}

// RequestIDFromContext はリクエストの相関IDを返す。ログミドルウェアを通っていなければ空文字。
func RequestIDFromContext(ctx context.Context) string {
	if rl, ok := ctx.Value(requestLogContextKey).(*requestLog); ok {
		return rl.requestID
	}
	return ""
}

func requestIDFor(r *http.Request) string {
	if id := r.Header.Get(RequestIDHeader); validRequestID.MatchString(id) {
		return id
	}
	id, err := gonanoid.New()
	if err != nil {
		return ""
	}
	return id
}

// NewLoggingMiddleware は1リクエストにつき1行のhttp_requestログを出力するミドルウェアを返す。
// 相関IDは受信したX-Request-IDを引き継ぎ、なければ採番してレスポンスヘッダーにも返す。
// 5xxはERROR、4xxはWARN、それ以外はINFOで記録する。
func NewLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rl := &requestLog{requestID: requestIDFor(r)}
			if rl.requestID != "" {
				w.Header().Set(RequestIDHeader, rl.requestID)
			}
			rec := newResponseRecorder(w)

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestLogContextKey, rl)))

			status := rec.statusCode()
			args := []any{
				slog.String("request_id", rl.requestID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", rec.bytes),
				slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
			}
			userID := rl.userID
			if userID == "" {
				userID, _ = UserIDFromContext(r.Context())
			}
			if userID != "" {
				args = append(args, slog.String("user_id", userID))
			}

			var level slog.Level
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			default:
				level = slog.LevelInfo
			}
			logger.Log(r.Context(), level, "http_request", args...)
		})
	}
}

// HTTPStatusRecorder はレスポンスステータスの記録先。metrics.Collectorが実装する。
type HTTPStatusRecorder interface {
	RecordHTTPStatus(statusCode int)
}

// NewMetricsMiddleware はレスポンスのステータスコードをメトリクスに記録するミドルウェアを返す。
func NewMetricsMiddleware(recorder HTTPStatusRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := newResponseRecorder(w)
			next.ServeHTTP(rec, r)
			recorder.RecordHTTPStatus(rec.statusCode())
		})
	}
}
