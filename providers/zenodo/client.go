package zenodo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"deposit-bot/models"
	"deposit-bot/providers"
)

var httpClient = &http.Client{Timeout: 5 * time.Minute}

// HTTPError ist eine Antwort der Zenodo-API mit unerwartetem Status.
type HTTPError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("zenodo %s failed: status=%d body=%s", e.Op, e.StatusCode, e.Body)
}

type depositionResponse struct {
	ID    int64 `json:"id"`
	Links struct {
		Bucket string `json:"bucket"`
		HTML   string `json:"html"`
	} `json:"links"`
	DOI string `json:"doi"`
}

// Fetcher kapselt die Deposition-API von Zenodo.
type Fetcher struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
	Logger  *zap.Logger
}

var _ providers.ColdTier = (*Fetcher)(nil)

// NewFetcher erstellt einen Zenodo-Client. baseURL ist die API-Basis, z.B. https://zenodo.org/api.
func NewFetcher(baseURL, token string, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    httpClient,
		Logger:  logger,
	}
}

func (f *Fetcher) Name() string { return "zenodo" }

// CreateCollection legt eine Deposition mit den gegebenen Metadaten an.
func (f *Fetcher) CreateCollection(ctx context.Context, metadata map[string]any) (*models.Collection, error) {
	payload, err := json.Marshal(map[string]any{"metadata": metadata})
	if err != nil {
		return nil, err
	}
	var dep depositionResponse
	if err := f.do(ctx, "create", http.MethodPost, f.BaseURL+"/deposit/depositions", "application/json", payload, http.StatusCreated, &dep); err != nil {
		return nil, err
	}
	if dep.Links.Bucket == "" {
		return nil, fmt.Errorf("zenodo create: response lacks bucket link")
	}
	f.Logger.Info("Deposition created", zap.Int64("deposition_id", dep.ID))
	return &models.Collection{ID: strconv.FormatInt(dep.ID, 10), UploadURL: dep.Links.Bucket}, nil
}

// Upload legt eine Datei im Bucket der Deposition ab.
func (f *Fetcher) Upload(ctx context.Context, col *models.Collection, name string, data []byte) error {
	target := col.UploadURL + "/" + url.PathEscape(name)
	return f.do(ctx, "upload "+name, http.MethodPut, target, "application/octet-stream", data, 0, nil)
}

// Publish veröffentlicht die Deposition und gibt die DOI zurück.
func (f *Fetcher) Publish(ctx context.Context, col *models.Collection) (*models.Publication, error) {
	target := fmt.Sprintf("%s/deposit/depositions/%s/actions/publish", f.BaseURL, col.ID)
	var dep depositionResponse
	if err := f.do(ctx, "publish", http.MethodPost, target, "", nil, http.StatusAccepted, &dep); err != nil {
		return nil, err
	}
	if dep.DOI == "" {
		return nil, fmt.Errorf("zenodo publish: response lacks doi")
	}
	f.Logger.Info("Deposition published", zap.String("deposition_id", col.ID), zap.String("doi", dep.DOI))
	return &models.Publication{PersistentID: dep.DOI, RecordURL: f.RecordURL(col.ID)}, nil
}

// RecordURL ist die Web-Adresse eines veröffentlichten Eintrags.
func (f *Fetcher) RecordURL(id string) string {
	return fmt.Sprintf("%s/record/%s", strings.TrimSuffix(f.BaseURL, "/api"), id)
}

// FileURL ist die Web-Adresse einer Datei im veröffentlichten Eintrag.
func (f *Fetcher) FileURL(col *models.Collection, _ *models.Publication, name string) string {
	return fmt.Sprintf("%s/files/%s", f.RecordURL(col.ID), url.PathEscape(name))
}

// do führt eine Anfrage aus; want 0 akzeptiert jeden 2xx-Status.
func (f *Fetcher) do(ctx context.Context, op, method, target, contentType string, body []byte, want int, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	q := req.URL.Query()
	q.Set("access_token", f.Token)
	req.URL.RawQuery = q.Encode()
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := f.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("zenodo %s: %w", op, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	ok := resp.StatusCode == want
	if want == 0 {
		ok = resp.StatusCode >= 200 && resp.StatusCode < 300
	}
	if !ok {
		return &HTTPError{Op: op, StatusCode: resp.StatusCode, Body: string(data)}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("zenodo %s: decode response: %w", op, err)
		}
	}
	return nil
}
