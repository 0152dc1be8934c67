// Package preview, mesaj içindeki linkler için best-effort metadata çeker.
//
// Enrichment kuralı kesindir: preview fetch'in HİÇBİR hatası mesaj
// teslimatını etkilemez. Fetch başarısız olursa mesaj preview'sız kalır,
// hata sadece loglanır. Bu yüzden tüm fonksiyonlar "bulamadım" durumunda
// (nil, nil) dönebilir — çağıran taraf nil kontrolü yapar, hata beklemez.
package preview

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// urlRegex, mesaj içeriğindeki ilk http(s) linkini bulur.
var urlRegex = regexp.MustCompile(`https?://[^\s<>"]+`)

// Metadata tag regex'leri. Tam bir HTML parser değil — og: tag'leri
// pratikte tek satırlık meta element'lerdir ve regex yeterli doğrulukta
// yakalar. Yanlış parse en kötü ihtimalle eksik preview üretir ki bu
// zaten tolere edilen bir durum.
var (
	titleRegex = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	ogTitleRe  = regexp.MustCompile(`(?i)<meta[^>]+property=["']og:title["'][^>]+content=["']([^"']*)["']`)
	ogDescRe   = regexp.MustCompile(`(?i)<meta[^>]+property=["']og:description["'][^>]+content=["']([^"']*)["']`)
	ogImageRe  = regexp.MustCompile(`(?i)<meta[^>]+property=["']og:image["'][^>]+content=["']([^"']*)["']`)
	metaDescRe = regexp.MustCompile(`(?i)<meta[^>]+name=["']description["'][^>]+content=["']([^"']*)["']`)
)

// maxBodySize: Sayfanın okunacak maksimum kısmı. Meta tag'ler head'dedir —
// ilk 512KB fazlasıyla yeter, dev sayfalar belleği şişirmesin.
const maxBodySize = 512 * 1024

// Result, bir linkten çıkarılan metadata.
type Result struct {
	URL         string
	Title       string
	Description string
	ImageURL    string
}

// Fetcher, link metadata'sı çeken component.
type Fetcher struct {
	client *http.Client
}

// NewFetcher, varsayılan timeout'lu bir Fetcher oluşturur.
func NewFetcher() *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: 8 * time.Second},
	}
}

// DetectURL, içerikteki ilk http(s) linkini döner; yoksa boş string.
func DetectURL(content string) string {
	return urlRegex.FindString(content)
}

// Fetch, verilen URL'in metadata'sını çeker.
// Herhangi bir aşama başarısız olursa error döner — çağıran loglayıp
// preview'sız devam eder.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid preview url: %w", err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("preview fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("preview fetch returned status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "text/html") {
		return nil, fmt.Errorf("preview url is not html: %s", ct)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("preview body read failed: %w", err)
	}

	return Parse(url, string(body)), nil
}

// Parse, HTML içeriğinden metadata çıkarır.
// og: tag'leri önceliklidir; yoksa <title> ve name=description'a düşer.
func Parse(url, htmlBody string) *Result {
	r := &Result{URL: url}

	if m := ogTitleRe.FindStringSubmatch(htmlBody); m != nil {
		r.Title = clean(m[1])
	} else if m := titleRegex.FindStringSubmatch(htmlBody); m != nil {
		r.Title = clean(m[1])
	}

	if m := ogDescRe.FindStringSubmatch(htmlBody); m != nil {
		r.Description = clean(m[1])
	} else if m := metaDescRe.FindStringSubmatch(htmlBody); m != nil {
		r.Description = clean(m[1])
	}

	if m := ogImageRe.FindStringSubmatch(htmlBody); m != nil {
		r.ImageURL = strings.TrimSpace(m[1])
	}

	return r
}

func clean(s string) string {
	return strings.TrimSpace(html.UnescapeString(s))
}
