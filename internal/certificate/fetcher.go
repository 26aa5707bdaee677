package certificate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dharsanguruparan/certdossier/internal/resilience"
)

const (
	defaultFetchTimeout = 60 * time.Second
	maxResponseBytes    = 1 << 20  // 1 MiB of JSON
	maxDocumentBytes    = 32 << 20 // 32 MiB of PDF
)

// TextExtractor turns PDF bytes into normalized plain text.
type TextExtractor interface {
	Extract(data []byte) (string, error)
}

// DocumentSink stores fetched documents under unique names.
type DocumentSink interface {
	NewName(suffix string) string
	Write(name string, data []byte) error
	URL(name string) string
}

// Observer receives one observation per fetch.
type Observer interface {
	ObserveFetch(category string, outcome string, elapsed time.Duration)
}

// Client performs the issue, download, store, extract and classify cycle
// against any catalog endpoint.
type Client struct {
	http       *http.Client
	docs       DocumentSink
	extractor  TextExtractor
	classifier Classifier
	guard      *resilience.Guard
	limiter    *rate.Limiter
	timeout    time.Duration
	maxDoc     int64
	observer   Observer
	logger     *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) Option { return func(cl *Client) { cl.http = c } }

// WithGuard routes upstream calls through per-endpoint breakers.
func WithGuard(g *resilience.Guard) Option { return func(cl *Client) { cl.guard = g } }

// WithRateLimit caps the rate of upstream calls across all endpoints.
func WithRateLimit(l *rate.Limiter) Option { return func(cl *Client) { cl.limiter = l } }

// WithTimeout bounds one whole fetch, download included.
func WithTimeout(d time.Duration) Option { return func(cl *Client) { cl.timeout = d } }

// WithMaxDocumentSize caps the size of a downloaded document. Larger
// documents fail the fetch with ErrBodyTooLarge.
func WithMaxDocumentSize(n int64) Option { return func(cl *Client) { cl.maxDoc = n } }

// WithObserver reports fetch outcomes, usually to Prometheus.
func WithObserver(o Observer) Option { return func(cl *Client) { cl.observer = o } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(cl *Client) { cl.logger = l } }

// NewClient builds a fetch client.
func NewClient(docs DocumentSink, extractor TextExtractor, classifier Classifier, opts ...Option) *Client {
	c := &Client{
		http:       &http.Client{},
		docs:       docs,
		extractor:  extractor,
		classifier: classifier,
		timeout:    defaultFetchTimeout,
		maxDoc:     maxDocumentBytes,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxDoc <= 0 {
		c.maxDoc = maxDocumentBytes
	}
	return c
}

// Fetch issues one certificate. Failures come back as an erro-outcome Result,
// never as a panic or error return.
func (c *Client) Fetch(ctx context.Context, ep Endpoint, req Request) Result {
	start := time.Now()
	res := c.fetch(ctx, ep, req)
	if c.observer != nil {
		c.observer.ObserveFetch(string(ep.Category), string(res.Outcome), time.Since(start))
	}
	if !res.OK() {
		c.logger.WarnContext(ctx, "certificate fetch failed",
			"category", ep.Category,
			"endpoint", ep.URL,
			"status_code", StatusCode(res.Err),
			"error", res.Err,
		)
	}
	return res
}

func (c *Client) fetch(ctx context.Context, ep Endpoint, req Request) Result {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	ref, err := c.issue(ctx, ep, req)
	if err != nil {
		return failure(ep.Category, err)
	}
	data, err := c.download(ctx, ref.downloadURL)
	if err != nil {
		return failure(ep.Category, err)
	}
	name := c.docs.NewName(fmt.Sprintf("%s_%s.pdf", fileSafe(req.SubjectID), ep.Category.Slug()))
	if err := c.docs.Write(name, data); err != nil {
		return failure(ep.Category, fmt.Errorf("store document: %w", err))
	}
	text := ref.text
	if text == "" {
		text, err = c.extractor.Extract(data)
		if err != nil {
			return failure(ep.Category, WrapError(ErrTextExtraction, "extract text", err))
		}
	}
	verdict := c.classifier.Classify(text, ep.Family)
	return Result{
		Category:   ep.Category,
		Outcome:    OutcomeFinished,
		FileName:   name,
		FileURL:    c.docs.URL(name),
		Text:       text,
		Pendency:   verdict.Pendency,
		HolderName: verdict.HolderName,
	}
}

// documentRef is the normalized answer of either issuer shape.
type documentRef struct {
	downloadURL string
	text        string
}

// directResponse is the file-name shape used by the court and revenue issuers.
type directResponse struct {
	Status  string `json:"status"`
	Arquivo string `json:"arquivo"`
	Texto   string `json:"texto"`
}

func (r directResponse) ref(ep Endpoint) (documentRef, error) {
	if r.Status != "sucesso" {
		return documentRef{}, fmt.Errorf("issue certificate: %w: status %q", ErrRemoteLogic, r.Status)
	}
	if r.Arquivo == "" {
		return documentRef{}, fmt.Errorf("issue certificate: %w: response has no arquivo", ErrRemoteLogic)
	}
	return documentRef{
		downloadURL: strings.TrimRight(ep.DownloadBase, "/") + "/" + url.PathEscape(r.Arquivo),
		text:        r.Texto,
	}, nil
}

// nestedResponse is the dados.certidao.url_certidao shape.
type nestedResponse struct {
	Status string `json:"status"`
	Dados  struct {
		Certidao struct {
			URLCertidao string `json:"url_certidao"`
		} `json:"certidao"`
	} `json:"dados"`
}

func (r nestedResponse) ref(Endpoint) (documentRef, error) {
	if r.Status != "sucesso" {
		return documentRef{}, fmt.Errorf("issue certificate: %w: status %q", ErrRemoteLogic, r.Status)
	}
	if r.Dados.Certidao.URLCertidao == "" {
		return documentRef{}, fmt.Errorf("issue certificate: %w: response has no url_certidao", ErrRemoteLogic)
	}
	return documentRef{downloadURL: r.Dados.Certidao.URLCertidao}, nil
}

func (c *Client) issue(ctx context.Context, ep Endpoint, req Request) (documentRef, error) {
	payload := map[string]string{ep.IDField: req.SubjectID}
	if ep.SendMotherName {
		payload["nome_mae"] = req.MotherName
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return documentRef{}, fmt.Errorf("encode request: %w", err)
	}
	var raw []byte
	err = c.guarded(ctx, "issue "+ep.URL, ErrRemoteRequest, func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		raw, err = c.do(httpReq, ErrRemoteRequest, maxResponseBytes)
		return err
	})
	if err != nil {
		return documentRef{}, err
	}
	if ep.Family.nested() {
		var resp nestedResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return documentRef{}, WrapError(ErrRemoteLogic, "decode response", err)
		}
		return resp.ref(ep)
	}
	var resp directResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return documentRef{}, WrapError(ErrRemoteLogic, "decode response", err)
	}
	return resp.ref(ep)
}

func (c *Client) download(ctx context.Context, rawURL string) ([]byte, error) {
	var data []byte
	op := "download"
	if u, err := url.Parse(rawURL); err == nil {
		op = "download " + u.Host
	}
	err := c.guarded(ctx, op, ErrDownload, func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return err
		}
		data, err = c.do(httpReq, ErrDownload, c.maxDoc)
		return err
	})
	return data, err
}

// do sends req and reads a bounded body. Transport failures and non-2xx
// answers are tagged with kind.
func (c *Client) do(req *http.Request, kind error, limit int64) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, WrapError(kind, req.Method+" "+req.URL.Path, err)
		}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, WrapError(kind, req.Method+" "+req.URL.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Kind: kind, StatusCode: resp.StatusCode}
	}
	if resp.ContentLength > limit {
		return nil, WrapError(kind, "read body", ErrBodyTooLarge)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, WrapError(kind, "read body", err)
	}
	if int64(len(data)) > limit {
		return nil, WrapError(kind, "read body", ErrBodyTooLarge)
	}
	return data, nil
}

func (c *Client) guarded(ctx context.Context, op string, kind error, fn func(context.Context) error) error {
	if c.guard == nil {
		return fn(ctx)
	}
	err := c.guard.Execute(ctx, op, fn, classifyUpstream)
	if err != nil && resilience.IsCircuitOpen(err) {
		return WrapError(kind, op, err)
	}
	return err
}

// classifyUpstream counts server-side and transport failures against the
// breaker; 4xx answers describe the request, not the issuer's health.
func classifyUpstream(err error) resilience.Classification {
	code := StatusCode(err)
	if code >= 400 && code < 500 {
		return resilience.Classification{}
	}
	if errors.Is(err, context.Canceled) {
		return resilience.Classification{}
	}
	return resilience.Classification{Retryable: true, RecordFailure: true}
}

func fileSafe(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "sujeito"
	}
	return b.String()
}
