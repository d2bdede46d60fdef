package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/cors"
)

// NewCORSMiddleware は認証付きAPI向けのCORSミドルウェアを返す。
// credentials送信と共存するため、ワイルドカード(*)は使用せず、
// 許可リストに完全一致するオリジンか、許可サフィックスで終わるホストのみ許可する。
func NewCORSMiddleware(allowedOrigins, allowedSuffixes []string) func(next http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}

	return cors.Handler(cors.Options{
		AllowOriginFunc: func(_ *http.Request, origin string) bool {
			return originAllowed(origin, allowed, allowedSuffixes)
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           86400,
	})
}

// NewPublicCORSMiddleware は公開API向けのCORSミドルウェアを返す。
// 任意のオリジンからのGETを許可し、credentialsは許可しない。
func NewPublicCORSMiddleware() func(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
		MaxAge:           86400,
	})
}

// originAllowed はオリジンが許可リストまたは許可サフィックスに該当するかを返す。
func originAllowed(origin string, allowed map[string]struct{}, suffixes []string) bool {
	if _, ok := allowed[origin]; ok {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, suffix := range suffixes {
		if suffix != "" && strings.HasSuffix(host, strings.ToLower(suffix)) {
			return true
		}
	}
	return false
}
