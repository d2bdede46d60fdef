package middleware

import (
	"net/http"
	"strings"
)

// NewSecurityHeadersMiddleware は全レスポンスに防御的なヘッダーを付与する。
// embeddablePrefixes に一致するパスは第三者サイトのiframeに埋め込めるよう、
// X-Frame-Optionsを付けずframe-ancestorsを許可する。
// 画像と埋め込みスクリプトは他オリジンから読まれるためCORPはcross-originで統一する。
func NewSecurityHeadersMiddleware(embeddablePrefixes ...string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			h.Set("Cross-Origin-Resource-Policy", "cross-origin")

			if hasAnyPrefix(r.URL.Path, embeddablePrefixes) {
				h.Set("Content-Security-Policy", "frame-ancestors *")
			} else {
				h.Set("X-Frame-Options", "DENY")
				h.Set("Content-Security-Policy", "frame-ancestors 'none'")
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
