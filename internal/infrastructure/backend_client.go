package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/yourusername/manga-dl-go/internal/domain"
)

// BackendClient talks to the download backend over HTTP. It implements
// domain.JobQueue and domain.Catalog.
type BackendClient struct {
	client  *resty.Client
	limiter *rate.Limiter
	baseURL string
	logger  *zap.Logger
}

// NewBackendClient creates a new backend client
func NewBackendClient(cfg *domain.BackendConfig, log *zap.Logger) *BackendClient {
	if log == nil {
		log = zap.NewNop()
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &BackendClient{
		client:  client,
		limiter: limiter,
		baseURL: baseURL,
		logger:  log,
	}
}

// BaseURL returns the backend base URL
func (c *BackendClient) BaseURL() string {
	return c.baseURL
}

// FileURL returns the URL a user agent can download a job's artifact from
func (c *BackendClient) FileURL(jobID string) string {
	return fmt.Sprintf("%s/download/file/%s", c.baseURL, url.PathEscape(jobID))
}

// errorBody covers FastAPI {detail} and proxy {error, message} bodies
type errorBody struct {
	Detail  interface{} `json:"detail"`
	Error   string      `json:"error"`
	Message string      `json:"message"`
}

func (e errorBody) text() string {
	switch d := e.Detail.(type) {
	case string:
		if d != "" {
			return d
		}
	case nil:
	default:
		if raw, err := json.Marshal(d); err == nil {
			return string(raw)
		}
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

func parseErrorDetail(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return strings.TrimSpace(string(body))
	}
	return eb.text()
}

// request waits for the rate limiter and returns a request bound to ctx
func (c *BackendClient) request(ctx context.Context, op string) (*resty.Request, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &domain.TransportError{Op: op, Err: err}
	}
	return c.client.R().SetContext(ctx), nil
}

// send executes the request and maps failures onto the error taxonomy
func (c *BackendClient) send(op string, req *resty.Request, method, path string) (*resty.Response, error) {
	start := time.Now()
	resp, err := req.Execute(method, path)
	if err != nil {
		c.logger.Debug("Backend request failed",
			zap.String("op", op),
			zap.String("path", path),
			zap.Error(err))
		return nil, &domain.TransportError{Op: op, Err: err}
	}

	c.logger.Debug("Backend request",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode()),
		zap.Duration("latency", time.Since(start)))

	if resp.IsError() || resp.StatusCode() >= 300 {
		return resp, &domain.BackendError{
			Op:         op,
			StatusCode: resp.StatusCode(),
			Detail:     parseErrorDetail(resp.Body()),
		}
	}
	return resp, nil
}

type enqueueResponse struct {
	TaskID string `json:"task_id"`
	errorBody
}

// Enqueue submits a download and returns the backend task ID
func (c *BackendClient) Enqueue(ctx context.Context, req domain.EnqueueRequest) (string, error) {
	const op = "enqueue"

	ids := make([]string, 0, len(req.Chapters))
	for _, ch := range req.Chapters {
		ids = append(ids, ch.QueryID())
	}

	params := url.Values{}
	params["ids[]"] = ids
	params.Set("source", req.Source)
	params.Set("comic_title", req.ComicTitle)
	params.Set("format", string(req.Format))

	r, err := c.request(ctx, op)
	if err != nil {
		return "", err
	}
	resp, err := c.send(op, r.SetQueryParamsFromValues(params), http.MethodPost, "/download")
	if err != nil {
		return "", err
	}

	var body enqueueResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return "", fmt.Errorf("%s: invalid response: %w", op, err)
	}
	if body.TaskID == "" {
		return "", &domain.BackendError{Op: op, StatusCode: resp.StatusCode(), Detail: body.text()}
	}
	return body.TaskID, nil
}

type statusResponse struct {
	State    string   `json:"state"`
	Progress *float64 `json:"progress"`
	Error    string   `json:"error"`
	Status   string   `json:"status"`
}

// Status fetches the current state of a job
func (c *BackendClient) Status(ctx context.Context, jobID string) (*domain.StatusReport, error) {
	const op = "status"

	r, err := c.request(ctx, op)
	if err != nil {
		return nil, err
	}
	resp, err := c.send(op, r.SetPathParam("id", jobID), http.MethodGet, "/download/status/{id}")
	if err != nil {
		return nil, err
	}

	var body statusResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("%s: invalid response: %w", op, err)
	}

	report := &domain.StatusReport{
		State:    domain.ParseJobState(body.State),
		RawState: body.State,
		Error:    body.Error,
		Status:   body.Status,
	}
	if body.Progress != nil {
		p := int(math.Round(math.Max(0, math.Min(100, *body.Progress))))
		report.Progress = &p
	}
	return report, nil
}

// FetchFile opens the artifact stream of a completed job. The caller closes the body.
func (c *BackendClient) FetchFile(ctx context.Context, jobID string) (*domain.Artifact, error) {
	const op = "fetch file"

	r, err := c.request(ctx, op)
	if err != nil {
		return nil, err
	}
	resp, err := r.
		SetDoNotParseResponse(true).
		SetHeader("Accept", "*/*").
		SetPathParam("id", jobID).
		Get("/download/file/{id}")
	if err != nil {
		return nil, &domain.TransportError{Op: op, Err: err}
	}

	body := resp.RawBody()
	if resp.StatusCode() >= 300 {
		defer body.Close()
		raw, _ := io.ReadAll(io.LimitReader(body, 64*1024))
		return nil, &domain.BackendError{Op: op, StatusCode: resp.StatusCode(), Detail: parseErrorDetail(raw)}
	}

	artifact := &domain.Artifact{
		Body:        body,
		FileName:    fileNameFromDisposition(resp.Header().Get("Content-Disposition")),
		ContentType: resp.Header().Get("Content-Type"),
		Size:        -1,
	}
	if resp.RawResponse != nil {
		artifact.Size = resp.RawResponse.ContentLength
	}
	return artifact, nil
}

func fileNameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}

// Cancel asks the backend to cancel a job
func (c *BackendClient) Cancel(ctx context.Context, jobID string) error {
	const op = "cancel"

	r, err := c.request(ctx, op)
	if err != nil {
		return err
	}
	_, err = c.send(op, r.SetPathParam("id", jobID), http.MethodPost, "/download/cancel/{id}")
	return err
}

// Search searches one source for comics by title
func (c *BackendClient) Search(ctx context.Context, title, source string) ([]domain.Comic, error) {
	const op = "search"

	r, err := c.request(ctx, op)
	if err != nil {
		return nil, err
	}
	resp, err := c.send(op, r.SetQueryParams(map[string]string{"title": title, "source": source}), http.MethodGet, "/search")
	if err != nil {
		return nil, err
	}
	return decodeComics(op, resp.Body())
}

// SearchAll searches every source, keyed by source ID
func (c *BackendClient) SearchAll(ctx context.Context, title string) (map[string][]domain.Comic, error) {
	const op = "search all"

	r, err := c.request(ctx, op)
	if err != nil {
		return nil, err
	}
	resp, err := c.send(op, r.SetQueryParam("title", title), http.MethodGet, "/search/all")
	if err != nil {
		return nil, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return nil, fmt.Errorf("%s: invalid response: %w", op, err)
	}

	results := make(map[string][]domain.Comic, len(raw))
	for source, body := range raw {
		comics, err := decodeComics(op, body)
		if err != nil {
			c.logger.Debug("Skipping unparseable source results", zap.String("source", source), zap.Error(err))
			continue
		}
		results[source] = comics
	}
	return results, nil
}

// decodeComics accepts a list of comics or a {"message": "..."} placeholder
func decodeComics(op string, body []byte) ([]domain.Comic, error) {
	var comics []domain.Comic
	if err := json.Unmarshal(body, &comics); err == nil {
		return comics, nil
	}

	var placeholder struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &placeholder); err != nil {
		return nil, fmt.Errorf("%s: invalid response: %w", op, err)
	}
	return []domain.Comic{}, nil
}

type volumeData struct {
	Volume   string `json:"volume"`
	Chapters map[string]struct {
		ID      string `json:"id"`
		Chapter string `json:"chapter"`
	} `json:"chapters"`
}

// Chapters lists a comic's chapters ordered by volume then chapter number
func (c *BackendClient) Chapters(ctx context.Context, comicID, source string) ([]domain.Chapter, error) {
	const op = "chapters"

	r, err := c.request(ctx, op)
	if err != nil {
		return nil, err
	}
	resp, err := c.send(op, r.SetQueryParams(map[string]string{"id": comicID, "source": source}), http.MethodGet, "/chapters")
	if err != nil {
		return nil, err
	}

	var volumes map[string]volumeData
	if err := json.Unmarshal(resp.Body(), &volumes); err != nil {
		return nil, fmt.Errorf("%s: invalid response: %w", op, err)
	}

	return flattenChapters(volumes), nil
}

func flattenChapters(volumes map[string]volumeData) []domain.Chapter {
	var chapters []domain.Chapter
	for key, vol := range volumes {
		label := vol.Volume
		if label == "" {
			label = key
		}
		for _, ch := range vol.Chapters {
			chapters = append(chapters, domain.Chapter{ID: ch.ID, Number: ch.Chapter, Volume: label})
		}
	}

	sort.SliceStable(chapters, func(i, j int) bool {
		vi, vj := domain.LeadingNumber(chapters[i].Volume), domain.LeadingNumber(chapters[j].Volume)
		if vi != vj {
			return vi < vj
		}
		ci, cj := domain.LeadingNumber(chapters[i].Number), domain.LeadingNumber(chapters[j].Number)
		if ci != cj {
			return ci < cj
		}
		return chapters[i].ID < chapters[j].ID
	})
	return chapters
}

type sourceStatusResponse struct {
	Status map[string]string `json:"status"`
}

// SourceHealth returns the health of every content source, keyed by source ID
func (c *BackendClient) SourceHealth(ctx context.Context) (map[string]string, error) {
	const op = "source health"

	r, err := c.request(ctx, op)
	if err != nil {
		return nil, err
	}

	var body sourceStatusResponse
	if _, err := c.send(op, r.SetResult(&body), http.MethodGet, "/status"); err != nil {
		return nil, err
	}
	if body.Status == nil {
		body.Status = map[string]string{}
	}
	return body.Status, nil
}
