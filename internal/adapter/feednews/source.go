// Package feednews は学校の公開RSS/Atomフィードをnewsドメインの
// アイテムに変換する参照アダプタ実装を提供する。
// ユーザーが入力したURLを扱うため、SSRF検証付きクライアントでフェッチし、
// 本文はキャッシュ前にサニタイズする。
package feednews

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"

	"github.com/hitoshi/cartable/internal/model"
)

// SSRFValidator はSSRF検証のインターフェース。
// security.SSRFGuardServiceを抽象化してテスタビリティを向上させる。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// Sanitizer はHTMLコンテンツのサニタイズのインターフェース。
type Sanitizer interface {
	Sanitize(rawHTML string) string
}

// Source は公開フィードからお知らせを取得するソース。
type Source struct {
	guard       SSRFValidator
	sanitizer   Sanitizer
	logger      *slog.Logger
	timeout     time.Duration
	maxBodySize int64
}

// NewSource はSourceを生成する。
func NewSource(guard SSRFValidator, sanitizer Sanitizer, logger *slog.Logger, timeout time.Duration, maxBodySize int64) *Source {
	return &Source{
		guard:       guard,
		sanitizer:   sanitizer,
		logger:      logger,
		timeout:     timeout,
		maxBodySize: maxBodySize,
	}
}

// Fetch は指定URLからフィードを取得し、お知らせアイテムに変換して返す。
// URLがHTMLページの場合はheadタグのalternateリンクからフィードを自動検出し、
// 検出したフィードURLを再フェッチする。
func (s *Source) Fetch(ctx context.Context, feedURL string) ([]model.NewsItem, error) {
	if err := s.guard.ValidateURL(feedURL); err != nil {
		return nil, fmt.Errorf("フィードURLのSSRF検証に失敗: %w", err)
	}

	contentType, body, err := s.get(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	// HTMLページの場合はフィードリンクを自動検出して再フェッチする
	if isHTMLContent(contentType, body) {
		discovered := discoverFeedURL(body, feedURL)
		if discovered == "" {
			return nil, fmt.Errorf("フィードを検出できませんでした: %s", feedURL)
		}
		s.logger.Info("HTMLページからフィードを検出しました",
			slog.String("page_url", feedURL),
			slog.String("feed_url", discovered),
		)
		if err := s.guard.ValidateURL(discovered); err != nil {
			return nil, fmt.Errorf("検出フィードURLのSSRF検証に失敗: %w", err)
		}
		_, body, err = s.get(ctx, discovered)
		if err != nil {
			return nil, err
		}
	}

	parser := gofeed.NewParser()
	parsed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("フィードのパースに失敗: %w", err)
	}

	return s.convert(parsed.Items), nil
}

// get はSSRF防止クライアントでGETリクエストを実行し、ボディを返す。
func (s *Source) get(ctx context.Context, rawURL string) (string, []byte, error) {
	client := s.guard.NewSafeClient(s.timeout, s.maxBodySize)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", nil, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", "Cartable/1.0 School Sync")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, text/html, */*")

	resp, err := client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("予期しないHTTPステータス: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBodySize))
	if err != nil {
		return "", nil, fmt.Errorf("レスポンス読み取り失敗: %w", err)
	}

	return resp.Header.Get("Content-Type"), body, nil
}

// convert はgofeedの記事をお知らせアイテムに変換する。
// 本文・タイトルはサニタイズし、IDはGUIDまたはリンクを使用する。
func (s *Source) convert(items []*gofeed.Item) []model.NewsItem {
	news := make([]model.NewsItem, 0, len(items))

	for _, item := range items {
		if item == nil {
			continue
		}

		id := item.GUID
		if id == "" {
			id = item.Link
		}
		if id == "" {
			continue
		}

		content := item.Content
		if content == "" {
			content = item.Description
		}

		n := model.NewsItem{
			ID:      id,
			Title:   item.Title,
			Content: s.sanitizer.Sanitize(content),
		}

		if item.Author != nil {
			n.Author = item.Author.Name
		}
		if len(item.Categories) > 0 {
			n.Category = item.Categories[0]
		}
		if item.PublishedParsed != nil {
			n.Date = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			n.Date = *item.UpdatedParsed
		}

		news = append(news, n)
	}

	return news
}

// isHTMLContent はレスポンスがHTMLページかを判定する。
func isHTMLContent(contentType string, body []byte) bool {
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if mediaType == "text/html" || mediaType == "application/xhtml+xml" {
		return true
	}

	checkSize := 1024
	if len(body) < checkSize {
		checkSize = len(body)
	}
	prefix := strings.ToLower(string(body[:checkSize]))
	return strings.Contains(prefix, "<html") || strings.Contains(prefix, "<!doctype html")
}

// discoverFeedURL はHTMLのheadタグからrel="alternate"のフィードリンクを検出する。
// 相対URLはbaseURLを基準に絶対URLに解決する。最初に見つかった候補を返す。
func discoverFeedURL(htmlBody []byte, baseURL string) string {
	baseU, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}

	tokenizer := html.NewTokenizer(bytes.NewReader(htmlBody))
	inHead := false

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return ""

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			tagName := string(tn)

			if tagName == "head" {
				inHead = true
				continue
			}
			if tagName == "body" {
				return ""
			}
			if !inHead || tagName != "link" || !hasAttr {
				continue
			}

			var rel, linkType, href string
			for {
				key, val, more := tokenizer.TagAttr()
				switch strings.ToLower(string(key)) {
				case "rel":
					rel = strings.ToLower(string(val))
				case "type":
					linkType = strings.ToLower(string(val))
				case "href":
					href = string(val)
				}
				if !more {
					break
				}
			}

			if rel != "alternate" || href == "" {
				continue
			}
			if linkType != "application/rss+xml" && linkType != "application/atom+xml" {
				continue
			}

			ref, err := url.Parse(href)
			if err != nil {
				continue
			}
			return baseU.ResolveReference(ref).String()

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "head" {
				return ""
			}
		}
	}
}
