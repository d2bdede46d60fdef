// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// allowedSchemes は外部画像取得で許可されるURLスキーム。
var allowedSchemes = []string{"http", "https"}

// blockedNetworks は外部画像取得でブロックされるネットワーク範囲。
// 事前検証(ValidateURL)用。接続時の検証はsafeurlのDialerフックが行う。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		// プライベートIPアドレス (RFC 1918)
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		// ループバック (RFC 1122)
		"127.0.0.0/8",
		// リンクローカル (RFC 3927) - クラウドメタデータIP (169.254.169.254) を含む
		"169.254.0.0/16",
		// カレントネットワーク
		"0.0.0.0/8",
		// IPv6ループバック
		"::1/128",
		// IPv6リンクローカル
		"fe80::/10",
		// IPv6ユニークローカル
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

// ImageFetcher は投稿画像が外部の絶対URLを指す場合に、その内容を安全に取得する。
// LinkedInへのアセットアップロード時に使用する。
type ImageFetcher struct {
	client  *http.Client
	maxSize int64
}

// NewImageFetcher はSSRF防止付きHTTPクライアントを持つImageFetcherを生成する。
// safeurlによりプライベートIP、ループバック、リンクローカル、メタデータIPへの接続は
// DNS解決後のアドレスで拒否されるため、DNS再バインディングにも対応する。
func NewImageFetcher(timeout time.Duration, maxSize int64) *ImageFetcher {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	return &ImageFetcher{
		client:  safeurl.Client(config).Client,
		maxSize: maxSize,
	}
}

// Fetch は画像URLの内容を取得する。
// 事前検証、2xx以外の応答、上限サイズ超過はエラーにする。
func (f *ImageFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	// 1. DNS解決前の静的検証
	if err := ValidateURL(rawURL); err != nil {
		return nil, fmt.Errorf("image url rejected: %w", err)
	}

	// 2. SSRF防止クライアントで取得
	return f.fetchChecked(ctx, rawURL)
}

func (f *ImageFetcher) fetchChecked(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create image request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("image fetch failed with status %d", resp.StatusCode)
	}

	// 上限+1バイトまで読み、超過を検出
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > f.maxSize {
		return nil, fmt.Errorf("image exceeds %d bytes", f.maxSize)
	}
	return data, nil
}

// ValidateURL はURLの安全性をDNS解決なしで検証する。
// スキーム、空ホスト、ブロック対象IP、localhostを拒否する。
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return fmt.Errorf("disallowed scheme: %s (allowed: %v)", scheme, allowedSchemes)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("blocked IP address: %s", ip.String())
		}
		return nil
	}

	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}
	return nil
}

func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
