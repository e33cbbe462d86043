// Package preview は掲載画像のプレビュー取得を提供する。
package preview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// maxImageSize は画像の最大サイズ（5MB）。
const maxImageSize = 5 * 1024 * 1024

// imageTimeout は画像取得のタイムアウト。
const imageTimeout = 10 * time.Second

// ErrImageUnavailable は画像を取得できなかったことを示す。
var ErrImageUnavailable = errors.New("image unavailable")

// URLGuard はSSRF対策済みのHTTPクライアントとURL検証を提供する。
type URLGuard interface {
	NewSafeClient(timeout time.Duration) *http.Client
	ValidateURL(rawURL string) error
}

// Image は取得した画像データ。
type Image struct {
	Data     []byte
	MimeType string
}

// ImageFetcherService は画像取得のインターフェース。
type ImageFetcherService interface {
	FetchImage(ctx context.Context, imageURL string) (*Image, error)
}

// ImageFetcher は掲載画像の取得機能の実装。
type ImageFetcher struct {
	ssrfGuard URLGuard
	logger    *slog.Logger
}

// NewImageFetcher はImageFetcherの新しいインスタンスを生成する。
func NewImageFetcher(ssrfGuard URLGuard, logger *slog.Logger) *ImageFetcher {
	return &ImageFetcher{
		ssrfGuard: ssrfGuard,
		logger:    logger,
	}
}

// FetchImage は指定URLから画像を取得する。
// 画像以外のContent-Type、サイズ超過、2xx以外はErrImageUnavailableを返す。
func (f *ImageFetcher) FetchImage(ctx context.Context, imageURL string) (*Image, error) {
	if imageURL == "" {
		return nil, fmt.Errorf("%w: empty url", ErrImageUnavailable)
	}

	// SSRF検証
	if f.ssrfGuard != nil {
		if err := f.ssrfGuard.ValidateURL(imageURL); err != nil {
			f.logger.Warn("画像取得: SSRFブロック", slog.String("url", imageURL), slog.String("error", err.Error()))
			return nil, fmt.Errorf("%w: %v", ErrImageUnavailable, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageUnavailable, err)
	}
	req.Header.Set("User-Agent", "Listingwatch/1.0")
	req.Header.Set("Accept", "image/*")

	resp, err := f.getHTTPClient().Do(req)
	if err != nil {
		f.logger.Warn("画像取得: HTTPリクエスト失敗", slog.String("url", imageURL), slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %v", ErrImageUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		f.logger.Warn("画像取得: HTTPステータス異常", slog.String("url", imageURL), slog.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: status %d", ErrImageUnavailable, resp.StatusCode)
	}

	mimeType := extractMimeType(resp.Header.Get("Content-Type"))
	if !strings.HasPrefix(mimeType, "image/") {
		f.logger.Warn("画像取得: 画像以外のContent-Type", slog.String("url", imageURL), slog.String("content_type", mimeType))
		return nil, fmt.Errorf("%w: content type %q", ErrImageUnavailable, mimeType)
	}

	// レスポンスボディを読み込み（最大5MB）
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageUnavailable, err)
	}
	if len(body) > maxImageSize {
		f.logger.Warn("画像取得: サイズ超過", slog.String("url", imageURL), slog.Int("size", len(body)))
		return nil, fmt.Errorf("%w: too large", ErrImageUnavailable)
	}

	return &Image{Data: body, MimeType: mimeType}, nil
}

func (f *ImageFetcher) getHTTPClient() *http.Client {
	if f.ssrfGuard != nil {
		return f.ssrfGuard.NewSafeClient(imageTimeout)
	}
	return &http.Client{Timeout: imageTimeout}
}

// extractMimeType はContent-Typeヘッダーからメディアタイプを抽出する。
func extractMimeType(contentType string) string {
	parts := strings.SplitN(contentType, ";", 2)
	return strings.TrimSpace(strings.ToLower(parts[0]))
}

// compile-time interface check
var _ ImageFetcherService = (*ImageFetcher)(nil)
