package preview

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectURL(t *testing.T) {
	assert.Equal(t, "https://example.com/yazi", DetectURL("şuna bak https://example.com/yazi bence güzel"))
	assert.Equal(t, "http://x.dev", DetectURL("http://x.dev"))
	assert.Empty(t, DetectURL("link içermeyen mesaj"))
	// Birden fazla link: ilki kazanır.
	assert.Equal(t, "https://a.com", DetectURL("https://a.com ve https://b.com"))
}

func TestParseOGTags(t *testing.T) {
	body := `<html><head>
		<title>Fallback Başlık</title>
		<meta property="og:title" content="OG Başlık" />
		<meta property="og:description" content="OG açıklama" />
		<meta property="og:image" content="https://example.com/kapak.png" />
	</head><body></body></html>`

	r := Parse("https://example.com", body)
	assert.Equal(t, "OG Başlık", r.Title, "og:title <title>'a göre öncelikli")
	assert.Equal(t, "OG açıklama", r.Description)
	assert.Equal(t, "https://example.com/kapak.png", r.ImageURL)
}

func TestParseFallbacks(t *testing.T) {
	body := `<html><head>
		<title>  Sayfa &amp; Başlık  </title>
		<meta name="description" content="sade açıklama" />
	</head></html>`

	r := Parse("https://example.com", body)
	assert.Equal(t, "Sayfa & Başlık", r.Title, "HTML entity'ler çözülmeli, boşluklar kırpılmalı")
	assert.Equal(t, "sade açıklama", r.Description)
	assert.Empty(t, r.ImageURL)
}

func TestParseNoMetadata(t *testing.T) {
	r := Parse("https://example.com", "<html><body>çıplak sayfa</body></html>")
	assert.Equal(t, "https://example.com", r.URL)
	assert.Empty(t, r.Title)
	assert.Empty(t, r.Description)
}

func TestFetchHappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><meta property="og:title" content="Test Sayfası" /></head></html>`))
	}))
	defer srv.Close()

	r, err := NewFetcher().Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Test Sayfası", r.Title)
	assert.Equal(t, srv.URL, r.URL)
}

func TestFetchRejectsNonHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-"))
	}))
	defer srv.Close()

	_, err := NewFetcher().Fetch(context.Background(), srv.URL)
	assert.Error(t, err, "HTML olmayan içerik preview üretmemeli")
}

func TestFetchRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := NewFetcher().Fetch(context.Background(), srv.URL)
	assert.Error(t, err)
}
