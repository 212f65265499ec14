// Package bookmeta はISBNによる書誌情報の外部検索を提供する。
// Google Books APIを呼び出し、蔵書登録フォームの自動補完に使用する。
package bookmeta

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/toshokan/internal/model"
)

// defaultEndpoint はGoogle Books APIの検索エンドポイント。
const defaultEndpoint = "https://www.googleapis.com/books/v1/volumes"

// Metadata はISBN検索で得られる書誌情報。
type Metadata struct {
	// Title はタイトル。
	Title string
	// Author は筆頭著者。著者情報がない場合は「著者不明」。
	Author string
	// CoverURL は書影サムネイルのURL。ない場合は空文字列。
	CoverURL string
	// Description は内容紹介。ない場合は空文字列。
	Description string
	// PageCount はページ数。ない場合は0。
	PageCount int
	// Editor は出版社。ない場合は空文字列。
	Editor string
	// PublicationDate は出版日。ない場合は空文字列。
	PublicationDate string
}

// volumesResponse はGoogle Books APIのレスポンス形式。
type volumesResponse struct {
	TotalItems int `json:"totalItems"`
	Items      []struct {
		VolumeInfo struct {
			Title         string   `json:"title"`
			Authors       []string `json:"authors"`
			Description   string   `json:"description"`
			PageCount     int      `json:"pageCount"`
			Publisher     string   `json:"publisher"`
			PublishedDate string   `json:"publishedDate"`
			ImageLinks    struct {
				Thumbnail string `json:"thumbnail"`
			} `json:"imageLinks"`
		} `json:"volumeInfo"`
	} `json:"items"`
}

// Client はGoogle Books APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewClient はClient の新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   defaultEndpoint,
	}
}

// SearchByISBN はISBNで書誌情報を検索する。
// 該当なしの場合はISBN_NOT_FOUNDのエラーを返す。
// 最初にヒットした巻の情報を返し、欠けている項目は既定値で補う。
func (c *Client) SearchByISBN(ctx context.Context, isbn string) (*Metadata, error) {
	if isbn == "" {
		return nil, model.NewInvalidRequestError("ISBNが指定されていません")
	}

	reqURL, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("エンドポイントURLのパースに失敗しました: %w", err)
	}
	q := reqURL.Query()
	q.Set("q", "isbn:"+isbn)
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "Toshokan/1.0 Library Client")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Google Books APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.String("isbn", isbn),
		)
		return nil, model.NewRemoteFailureError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Google Books APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("isbn", isbn),
		)
		return nil, model.NewRemoteFailureError(fmt.Sprintf("Google Books APIがステータス %d を返しました", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var result volumesResponse
	if err := json.Unmarshal(body, &result); err != nil {
		c.logger.Error("Google Books APIのレスポンスのパースに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	if result.TotalItems <= 0 || len(result.Items) == 0 {
		return nil, model.NewISBNNotFoundError(isbn)
	}

	info := result.Items[0].VolumeInfo
	meta := &Metadata{
		Title:           info.Title,
		Author:          "著者不明",
		CoverURL:        info.ImageLinks.Thumbnail,
		Description:     info.Description,
		PageCount:       info.PageCount,
		Editor:          info.Publisher,
		PublicationDate: info.PublishedDate,
	}
	if len(info.Authors) > 0 {
		meta.Author = info.Authors[0]
	}
	return meta, nil
}
