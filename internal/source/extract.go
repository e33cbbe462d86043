package source

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/hitoshi/listingwatch/internal/model"
	"github.com/hitoshi/listingwatch/internal/security"
)

// 抽出できなかった場合の表示用の既定値。
const (
	defaultPrice    = "Не указана"
	defaultLocation = "Не указано"
	defaultDate     = "Не указано"
)

const (
	fittingPhrase  = "Можно примерить"
	deliveryPhrase = "Доставка"
)

// fieldStrategy は1つのフィールドを取り出す候補の1つ。
// attrsが空ならテキストを、そうでなければ最初に値を持つ属性を読む。
type fieldStrategy struct {
	selector string
	attrs    []string
}

func (f fieldStrategy) extract(container *goquery.Selection) string {
	el := container.Find(f.selector).First()
	if el.Length() == 0 {
		return ""
	}
	if len(f.attrs) == 0 {
		return strings.TrimSpace(el.Text())
	}
	for _, attr := range f.attrs {
		if v, ok := el.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// fieldStrategies は候補を順に試し、最初に空でない値を返す。
type fieldStrategies []fieldStrategy

func (fs fieldStrategies) first(container *goquery.Selection) string {
	for _, f := range fs {
		if v := f.extract(container); v != "" {
			return v
		}
	}
	return ""
}

var (
	titleStrategies = fieldStrategies{
		{selector: `[data-marker="item-title"]`},
	}
	descriptionStrategies = fieldStrategies{
		{selector: `meta[itemprop="description"]`, attrs: []string{"content"}},
		{selector: `[data-marker="item-description"]`},
		{selector: `.item-description`},
		{selector: `[class*="description"]`},
	}
	imageStrategies = fieldStrategies{
		{selector: `img[data-marker="item-image"]`, attrs: []string{"src", "data-src", "srcset"}},
		{selector: `img[itemprop="image"]`, attrs: []string{"src", "data-src", "srcset"}},
		{selector: `img[class*="image"]`, attrs: []string{"src", "data-src", "srcset"}},
		{selector: `source[type="image/jpeg"]`, attrs: []string{"srcset", "src", "data-src"}},
	}
	priceStrategies = fieldStrategies{
		{selector: `[data-marker="item-price"]`},
	}
	locationStrategies = fieldStrategies{
		{selector: `[data-marker="item-location"]`},
		{selector: `[class*="geo-address"]`},
		{selector: `[class*="address"]`},
	}
	dateStrategies = fieldStrategies{
		{selector: `[data-marker="item-date"]`},
	}
)

// Extractor は検索結果ページのHTMLから掲載を取り出す。
type Extractor struct {
	base      *url.URL
	sanitizer security.TextSanitizer
}

// NewExtractor はExtractorを生成する。baseURLは相対リンクの解決に使う。
func NewExtractor(baseURL string, sanitizer security.TextSanitizer) (*Extractor, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	return &Extractor{base: base, sanitizer: sanitizer}, nil
}

// Extract はページ内の掲載コンテナをすべて抽出する。
// タイトルと画像の両方が無いもの、URLが無いものは破棄する。
func (e *Extractor) Extract(pageHTML string) ([]model.RawListing, error) {
	root, err := html.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	doc := goquery.NewDocumentFromNode(root)

	var listings []model.RawListing
	doc.Find(resultSelector).Each(func(_ int, container *goquery.Selection) {
		listing := e.extractContainer(container)
		if listing.Extractable() {
			listings = append(listings, listing)
		}
	})
	return listings, nil
}

func (e *Extractor) extractContainer(c *goquery.Selection) model.RawListing {
	listing := model.RawListing{
		Title:         e.sanitizer.Text(titleStrategies.first(c)),
		URL:           e.link(c),
		Description:   e.sanitizer.Text(descriptionStrategies.first(c)),
		ImageURL:      e.resolve(cleanImageURL(imageStrategies.first(c))),
		Price:         e.sanitizer.Text(priceStrategies.first(c)),
		Location:      e.sanitizer.Text(locationStrategies.first(c)),
		PublishedText: e.sanitizer.Text(dateStrategies.first(c)),
	}
	if listing.Price == "" {
		listing.Price = defaultPrice
	}
	if listing.Location == "" {
		listing.Location = defaultLocation
	}
	if listing.PublishedText == "" {
		listing.PublishedText = defaultDate
	}

	text := c.Text()
	listing.Fitting = strings.Contains(text, fittingPhrase) ||
		strings.Contains(c.Find(`[data-marker*="iva-item/"]`).Text(), fittingPhrase)
	listing.Delivery = strings.Contains(text, deliveryPhrase) ||
		c.Find(`[class*="delivery-root"]`).Length() > 0

	return listing
}

// link はタイトル要素（またはその内側のa要素）のhrefを絶対URLにして返す。
func (e *Extractor) link(c *goquery.Selection) string {
	title := c.Find(`[data-marker="item-title"]`).First()
	href, ok := title.Attr("href")
	if !ok {
		href, ok = title.Find("a[href]").First().Attr("href")
	}
	if !ok {
		href, _ = title.Closest("a[href]").Attr("href")
	}
	return e.resolve(strings.TrimSpace(href))
}

func (e *Extractor) resolve(ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return e.base.ResolveReference(u).String()
}

// cleanImageURL はsrcsetなどに含まれる余分な記述子を取り除く。
func cleanImageURL(raw string) string {
	if raw == "" || raw == "No image" || strings.HasPrefix(raw, "data:") {
		return ""
	}
	if i := strings.IndexByte(raw, ';'); i >= 0 {
		raw = raw[:i]
	}
	// srcset は "url 1x, url 2x" の形式
	if i := strings.IndexByte(raw, ','); i >= 0 {
		raw = raw[:i]
	}
	if fields := strings.Fields(raw); len(fields) > 0 {
		return fields[0]
	}
	return ""
}
