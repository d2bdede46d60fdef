package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const defaultAPIBaseURL = "https://api.linkedin.com"

// maxErrorBody はエラー応答から保持する本文の最大バイト数。
const maxErrorBody = 512

// StatusError はLinkedIn APIが2xx以外を返したことを示す。
type StatusError struct {
	Status int
	Body   string
}

// Error はerrorインターフェースを実装する。
func (e *StatusError) Error() string {
	return fmt.Sprintf("linkedin api returned status %d: %s", e.Status, e.Body)
}

// Client はLinkedIn REST APIのクライアント。
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient はClientを生成する。baseURLが空の場合は本番APIを使う。
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = defaultAPIBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

// PersonURN はアクセストークンの持ち主の個人URNを返す。
func (c *Client) PersonURN(ctx context.Context, accessToken string) (string, error) {
	var info struct {
		Sub string `json:"sub"`
	}
	if err := c.do(ctx, http.MethodGet, "/v2/userinfo", accessToken, nil, false, &info, nil); err != nil {
		return "", fmt.Errorf("failed to fetch user info: %w", err)
	}
	if info.Sub == "" {
		return "", fmt.Errorf("empty sub in user info response")
	}
	return "urn:li:person:" + info.Sub, nil
}

// AdminOrganizations はユーザーが承認済み管理者である組織ページのURN一覧を返す。
func (c *Client) AdminOrganizations(ctx context.Context, accessToken string) ([]string, error) {
	var resp struct {
		Elements []struct {
			Organization         string `json:"organization"`
			OrganizationalTarget string `json:"organizationalTarget"`
		} `json:"elements"`
	}
	path := "/v2/organizationAcls?q=roleAssignee&role=ADMINISTRATOR&state=APPROVED"
	if err := c.do(ctx, http.MethodGet, path, accessToken, nil, true, &resp, nil); err != nil {
		return nil, fmt.Errorf("failed to list organization acls: %w", err)
	}

	urns := make([]string, 0, len(resp.Elements))
	for _, el := range resp.Elements {
		urn := el.Organization
		if urn == "" {
			urn = el.OrganizationalTarget
		}
		if urn != "" {
			urns = append(urns, urn)
		}
	}
	return urns, nil
}

// OrganizationName は組織ページの表示名を返す。
// ローカライズ名はen_US、fr_FRの順に探す。
func (c *Client) OrganizationName(ctx context.Context, accessToken, orgURN string) (string, error) {
	id := strings.TrimPrefix(orgURN, "urn:li:organization:")
	var resp struct {
		Name          json.RawMessage `json:"name"`
		LocalizedName string          `json:"localizedName"`
	}
	if err := c.do(ctx, http.MethodGet, "/v2/organizations/"+url.PathEscape(id), accessToken, nil, true, &resp, nil); err != nil {
		return "", fmt.Errorf("failed to fetch organization: %w", err)
	}

	var localized struct {
		Localized map[string]string `json:"localized"`
	}
	if err := json.Unmarshal(resp.Name, &localized); err == nil {
		for _, locale := range []string{"en_US", "fr_FR"} {
			if name := localized.Localized[locale]; name != "" {
				return name, nil
			}
		}
	}
	var plain string
	if err := json.Unmarshal(resp.Name, &plain); err == nil && plain != "" {
		return plain, nil
	}
	return resp.LocalizedName, nil
}

// RegisterUpload は画像アップロード枠を登録し、アップロード先URLとアセットURNを返す。
func (c *Client) RegisterUpload(ctx context.Context, accessToken, ownerURN string) (string, string, error) {
	body := map[string]any{
		"registerUploadRequest": map[string]any{
			"recipes": []string{"urn:li:digitalmediaRecipe:feedshare-image"},
			"owner":   ownerURN,
			"serviceRelationships": []map[string]string{{
				"relationshipType": "OWNER",
				"identifier":       "urn:li:userGeneratedContent",
			}},
		},
	}
	var resp struct {
		Value struct {
			Asset           string `json:"asset"`
			UploadMechanism map[string]struct {
				UploadURL string `json:"uploadUrl"`
			} `json:"uploadMechanism"`
		} `json:"value"`
	}
	if err := c.do(ctx, http.MethodPost, "/v2/assets?action=registerUpload", accessToken, body, false, &resp, nil); err != nil {
		return "", "", fmt.Errorf("failed to register upload: %w", err)
	}

	mechanism := resp.Value.UploadMechanism["com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest"]
	if mechanism.UploadURL == "" || resp.Value.Asset == "" {
		return "", "", fmt.Errorf("register upload response is missing upload url or asset")
	}
	return mechanism.UploadURL, resp.Value.Asset, nil
}

// UploadImage は登録済みのアップロード先URLへ画像をPUTする。
func (c *Client) UploadImage(ctx context.Context, accessToken, uploadURL string, data []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("image upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Post はUGC投稿の内容。
type Post struct {
	Author     string
	Commentary string
	Asset      string
	MediaTitle string
}

// CreatePost はUGC投稿を作成し、投稿IDを返す。
// 投稿IDは応答本文のid、なければX-RestLi-Idヘッダーから取得する。
func (c *Client) CreatePost(ctx context.Context, accessToken string, post Post) (string, error) {
	shareContent := map[string]any{
		"shareCommentary":    map[string]string{"text": post.Commentary},
		"shareMediaCategory": "NONE",
	}
	if post.Asset != "" {
		shareContent["shareMediaCategory"] = "IMAGE"
		shareContent["media"] = []map[string]any{{
			"status": "READY",
			"media":  post.Asset,
			"title":  map[string]string{"text": post.MediaTitle},
		}}
	}
	body := map[string]any{
		"author":          post.Author,
		"lifecycleState":  "PUBLISHED",
		"specificContent": map[string]any{"com.linkedin.ugc.ShareContent": shareContent},
		"visibility":      map[string]string{"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC"},
	}

	var resp struct {
		ID string `json:"id"`
	}
	header := http.Header{}
	if err := c.do(ctx, http.MethodPost, "/v2/ugcPosts", accessToken, body, true, &resp, header); err != nil {
		return "", fmt.Errorf("failed to create post: %w", err)
	}

	id := resp.ID
	if id == "" {
		id = header.Get("X-RestLi-Id")
	}
	if id == "" {
		return "", fmt.Errorf("post created without id")
	}
	return id, nil
}

// do はAPIを呼び出し、JSON応答をoutへ読み込む。respHeaderが非nilなら応答ヘッダーを写す。
func (c *Client) do(ctx context.Context, method, path, accessToken string, in any, restli bool, out any, respHeader http.Header) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if restli {
		req.Header.Set("X-Restli-Protocol-Version", "2.0.0")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if respHeader != nil {
		for k, v := range resp.Header {
			respHeader[k] = v
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
}
