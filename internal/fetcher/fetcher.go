package fetcher

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"esg-pipeline/internal/models"
	"esg-pipeline/internal/parser"
)

var contentTypeExt = map[string]string{
	"application/pdf": ".pdf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       ".xlsx",
	"text/plain": ".txt",
}

// Fetcher downloads report files and extracts their text. Failures on one URL are
// logged and skipped; they never fail the whole fetch.
type Fetcher struct {
	client    *http.Client
	extractor parser.TextExtractor
	tempDir   string
}

func New(timeout time.Duration, tempDir string, extractor parser.TextExtractor) *Fetcher {
	if extractor == nil {
		extractor = parser.FileExtractor{}
	}
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		extractor: extractor,
		tempDir:   tempDir,
	}
}

// FetchDocuments downloads every URL in order. Sources that fail to download or parse
// are returned with empty text.
func (f *Fetcher) FetchDocuments(ctx context.Context, urls []string) []models.Document {
	docs := make([]models.Document, 0, len(urls))
	for _, u := range urls {
		text, err := f.fetchOne(ctx, u)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("url", u).Msg("Error fetching document, skipping")
		}
		docs = append(docs, models.Document{URL: u, Text: text})
	}
	return docs
}

// FetchText returns the text of all sources joined by newlines, skipping empty ones.
func (f *Fetcher) FetchText(ctx context.Context, urls []string) string {
	var parts []string
	for _, doc := range f.FetchDocuments(ctx, urls) {
		if doc.Text == "" {
			continue
		}
		parts = append(parts, doc.Text)
	}
	return strings.Join(parts, "\n")
}

func (f *Fetcher) fetchOne(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("download: HTTP %d", resp.StatusCode)
	}

	dir, err := os.MkdirTemp(f.tempDir, "esg-source-*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	filePath := filepath.Join(dir, "source"+fileExt(rawURL, resp.Header.Get("Content-Type")))
	out, err := os.Create(filePath)
	if err != nil {
		return "", err
	}
	n, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("write download: %w", err)
	}
	zerolog.Ctx(ctx).Debug().Str("url", rawURL).Int64("bytes", n).Msg("Downloaded source")

	text, err := f.extractor.ExtractText(filePath)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	zerolog.Ctx(ctx).Info().Str("url", rawURL).Int("chars", len([]rune(text))).Msg("Extracted text")
	return text, nil
}

// fileExt prefers the URL path extension and falls back to the Content-Type header.
func fileExt(rawURL, contentType string) string {
	if u, err := url.Parse(rawURL); err == nil {
		switch ext := strings.ToLower(path.Ext(u.Path)); ext {
		case ".pdf", ".docx", ".xlsx", ".txt":
			return ext
		}
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		if ext, ok := contentTypeExt[mediaType]; ok {
			return ext
		}
	}
	return ".pdf"
}
