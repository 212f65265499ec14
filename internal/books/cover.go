package books

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/toshokan/internal/metrics"
	"github.com/hitoshi/toshokan/internal/model"
	"github.com/hitoshi/toshokan/internal/security"
)

// CoverFetcherService は書影取得のインターフェース。
type CoverFetcherService interface {
	// FetchCover は指定URLから書影画像を取得する。
	// URLが安全でない場合はUNSAFE_COVER_URLのエラーを返す。
	// 取得失敗時はnilデータと空MIMEを返す（URL文字列だけを保持する）。
	FetchCover(ctx context.Context, coverURL string) (data []byte, mimeType string, err error)
}

// CoverFetcher は書影取得機能の実装。
type CoverFetcher struct {
	urlGuard  security.URLGuardService
	timeout   time.Duration
	maxSize   int64
	collector metrics.MetricsCollector
}

// NewCoverFetcher はCoverFetcherの新しいインスタンスを生成する。collectorはnil可。
func NewCoverFetcher(urlGuard security.URLGuardService, timeout time.Duration, maxSize int64, collector metrics.MetricsCollector) *CoverFetcher {
	return &CoverFetcher{
		urlGuard:  urlGuard,
		timeout:   timeout,
		maxSize:   maxSize,
		collector: collector,
	}
}

// recordFailure は取得失敗を理由付きでメトリクスに記録する。
func (f *CoverFetcher) recordFailure(reason string) {
	if f.collector != nil {
		f.collector.RecordCoverFetchFailure(reason)
	}
}

// FetchCover は指定URLから書影画像を取得する。
// 内部アドレスへ向かうURLは司書の入力ミスか攻撃なので、黙殺せずエラーで返す。
func (f *CoverFetcher) FetchCover(ctx context.Context, coverURL string) ([]byte, string, error) {
	if coverURL == "" {
		return nil, "", nil
	}

	// SSRF検証
	if err := f.urlGuard.ValidateURL(coverURL); err != nil {
		slog.Warn("書影取得: SSRFブロック", "url", coverURL, "error", err)
		f.recordFailure("ssrf_blocked")
		return nil, "", model.NewUnsafeCoverURLError(err.Error())
	}

	client := f.urlGuard.NewSafeClient(f.timeout, f.maxSize)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, coverURL, nil)
	if err != nil {
		slog.Warn("書影取得: リクエスト作成失敗", "url", coverURL, "error", err)
		f.recordFailure("bad_request")
		return nil, "", nil
	}
	req.Header.Set("User-Agent", "Toshokan/1.0 Library Server")

	resp, err := client.Do(req)
	if err != nil {
		slog.Warn("書影取得: HTTPリクエスト失敗", "url", coverURL, "error", err)
		f.recordFailure("request_failed")
		return nil, "", nil
	}
	defer resp.Body.Close()

	// 2xx以外は取得失敗として扱う
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("書影取得: HTTPステータス異常", "url", coverURL, "status", resp.StatusCode)
		f.recordFailure("http_status")
		return nil, "", nil
	}

	// レスポンスボディを読み込み（上限超過は切り捨てず破棄）
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		slog.Warn("書影取得: レスポンス読み取り失敗", "url", coverURL, "error", err)
		f.recordFailure("read_failed")
		return nil, "", nil
	}

	if int64(len(body)) > f.maxSize {
		slog.Warn("書影取得: サイズ超過", "url", coverURL, "size", len(body))
		f.recordFailure("too_large")
		return nil, "", nil
	}

	mimeType := extractMimeType(resp.Header.Get("Content-Type"))
	if !isImageMime(mimeType) {
		slog.Warn("書影取得: 画像以外のContent-Type", "url", coverURL, "contentType", mimeType)
		f.recordFailure("not_image")
		return nil, "", nil
	}

	return body, mimeType, nil
}

// extractMimeType はContent-Typeヘッダーからメディアタイプを抽出する。
func extractMimeType(contentType string) string {
	if contentType == "" {
		return ""
	}
	// セミコロンの前の部分（charset等を除去）
	parts := strings.SplitN(contentType, ";", 2)
	return strings.TrimSpace(strings.ToLower(parts[0]))
}

// isImageMime はMIMEタイプが画像かどうかを判定する。
func isImageMime(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}

// compile-time interface check
var _ CoverFetcherService = (*CoverFetcher)(nil)
