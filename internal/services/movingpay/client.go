// Package movingpay talks to the payments platform: authentication, report
// generation requests, and retrieval of the generated archives.
package movingpay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"reportbridge/internal/config"
	"reportbridge/internal/httpx"
	"reportbridge/internal/logging"
	"reportbridge/internal/services"
	"reportbridge/internal/window"
)

const (
	loginPath    = "/api/v3/acessar"
	filesPath    = "/api/v3/arquivos"
	downloadPath = "/api/v3/arquivos/download"

	accountingReportPath   = "/excel/contabil"
	capturesReportPath     = "/csv/customized/gueno/capturas"
	registrationReportPath = "/csv/customized/gueno/estabelecimentos/ficha-cadastral"

	// Generated archives always carry this suffix; anything else in the
	// listing is some other export type.
	ArchiveSuffix = ".tar.gz"

	PrefixAccounting   = "CONTABIL"
	PrefixCaptures     = "GUENO.CAPTURAS"
	PrefixRegistration = "GUENO.FICHACADASTRAL"
)

// Session carries the credentials returned by a successful login. Customer
// and user ids arrive as numbers or strings depending on the account type,
// so they are kept as json.Number.
type Session struct {
	Token      string
	CustomerID json.Number
	UserID     json.Number
}

// Artifact is one generated file in the platform's listing.
type Artifact struct {
	Name      string      `json:"arquivo"`
	Directory string      `json:"diretorio"`
	ID        json.Number `json:"id"`
}

// Client wraps the platform API.
type Client struct {
	cfg    config.MovingPay
	http   *httpx.Client
	logger *slog.Logger
	now    func() time.Time
}

// Option customizes the client.
type Option func(*Client)

// WithClock overrides the time source (used in tests).
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New constructs a platform client.
func New(cfg config.MovingPay, httpClient *httpx.Client, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	client := &Client{
		cfg:    cfg,
		http:   httpClient,
		logger: logger.With(logging.String(logging.FieldComponent, "movingpay")),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Login authenticates and returns the session used by every other call.
func (c *Client) Login(ctx context.Context) (*Session, error) {
	payload := map[string]string{
		"email":    c.cfg.Email,
		"password": c.cfg.Password,
	}
	var body struct {
		AccessToken string      `json:"access_token"`
		CustomerID  json.Number `json:"customer_id"`
		UserID      json.Number `json:"user_id"`
	}
	headers := map[string]string{"x-mvpay-origin": c.cfg.Origin}
	resp, err := c.http.PostJSON(ctx, c.cfg.BaseURL+loginPath, headers, payload, &body)
	if err != nil {
		return nil, services.Wrap(services.ErrAuthentication, "export", "login", "platform login failed", err)
	}
	if body.AccessToken == "" {
		return nil, services.Wrap(services.ErrAuthentication, "export", "login", "login response carried no access token", nil)
	}
	if body.CustomerID.String() == "" || body.UserID.String() == "" {
		return nil, services.Wrap(services.ErrAuthentication, "export", "login", "login response carried no customer or user identifier", nil)
	}
	// The raw response is logged so operators can audit what the platform
	// handed back for this account.
	c.logger.Info("authenticated",
		logging.String("customer_id", body.CustomerID.String()),
		logging.String("response", string(resp.Body)),
	)
	return &Session{Token: body.AccessToken, CustomerID: body.CustomerID, UserID: body.UserID}, nil
}

func (c *Client) sessionHeaders(session *Session) map[string]string {
	return map[string]string{
		"Authorization":  "Bearer " + session.Token,
		"customer":       session.CustomerID.String(),
		"x-mvpay-origin": c.cfg.Origin,
	}
}

// accountingReportRequest matches the report generator's expected shape. The
// generator rejects requests missing any of these fields, including the
// cancel token stub the web frontend sends.
type accountingReportRequest struct {
	CancelToken            cancelToken `json:"cancelToken"`
	StartDate              string      `json:"startDate"`
	FinishDate             string      `json:"finishDate"`
	CustomerID             json.Number `json:"customerId"`
	UserID                 json.Number `json:"userId"`
	AcquirerID             string      `json:"acquirerId"`
	IncludesStatusCaptures []int       `json:"includesStatusCaptures"`
	RemovePixCaptures      bool        `json:"removePixCaptures"`
	RemoveSplitCaptures    bool        `json:"removeSplitCaptures"`
	ReportsSelected        []int       `json:"reportsSelected"`
	OnlyWithTransactions   string      `json:"onlyWithTransactions"`
	DistribuidorID         []int       `json:"distribuidorId"`
	BusinessUnitCode       int         `json:"codigoUnidadeNegocios"`
	NewReports             bool        `json:"newReports"`
	Extension              string      `json:"extension"`
	ReportType             string      `json:"tipoRelatorioGueno,omitempty"`
}

type registrationReportRequest struct {
	CancelToken      cancelToken `json:"cancelToken"`
	StartDate        string      `json:"startDate"`
	FinishDate       string      `json:"finishDate"`
	CustomerID       json.Number `json:"customerId"`
	UserID           json.Number `json:"userId"`
	BusinessUnitCode int         `json:"codigoUnidadeNegocios"`
	NewReports       bool        `json:"newReports"`
	Extension        string      `json:"extension"`
	ReportType       string      `json:"tipoRelatorioGueno"`
}

type cancelToken struct {
	Promise struct{} `json:"promise"`
}

func (c *Client) baseAccountingRequest(session *Session, win window.Window) accountingReportRequest {
	return accountingReportRequest{
		StartDate:              win.StartBound(),
		FinishDate:             win.EndBound(),
		CustomerID:             session.CustomerID,
		UserID:                 session.UserID,
		AcquirerID:             "",
		IncludesStatusCaptures: []int{},
		RemovePixCaptures:      false,
		RemoveSplitCaptures:    true,
		ReportsSelected:        []int{},
		OnlyWithTransactions:   "onlyWithTransactions",
		DistribuidorID:         []int{},
		Extension:              "csv",
	}
}

// RequestAccountingReport asks the platform to generate the accounting
// export for the window. Generation is asynchronous; the archive shows up in
// the file listing later.
func (c *Client) RequestAccountingReport(ctx context.Context, session *Session, win window.Window) error {
	payload := c.baseAccountingRequest(session, win)
	payload.NewReports = true
	if _, err := c.http.PostJSON(ctx, c.cfg.ReportsURL+accountingReportPath, c.sessionHeaders(session), payload, nil); err != nil {
		return fmt.Errorf("request accounting report: %w", err)
	}
	c.logger.Info("accounting report requested", logging.String("window", win.String()))
	return nil
}

// RequestCapturesReport asks for the capture (transaction) export.
func (c *Client) RequestCapturesReport(ctx context.Context, session *Session, win window.Window) error {
	payload := c.baseAccountingRequest(session, win)
	payload.ReportsSelected = []int{1}
	payload.ReportType = "contabil_capturas"
	if _, err := c.http.PostJSON(ctx, c.cfg.ReportsURL+capturesReportPath, c.sessionHeaders(session), payload, nil); err != nil {
		return fmt.Errorf("request captures report: %w", err)
	}
	c.logger.Info("captures report requested", logging.String("window", win.String()))
	return nil
}

// RequestRegistrationReport asks for the merchant registration export.
func (c *Client) RequestRegistrationReport(ctx context.Context, session *Session, win window.Window) error {
	payload := registrationReportRequest{
		StartDate:  win.StartBound(),
		FinishDate: win.EndBound(),
		CustomerID: session.CustomerID,
		UserID:     session.UserID,
		Extension:  "csv",
		ReportType: "ficha_cadastral",
	}
	if _, err := c.http.PostJSON(ctx, c.cfg.ReportsURL+registrationReportPath, c.sessionHeaders(session), payload, nil); err != nil {
		return fmt.Errorf("request registration report: %w", err)
	}
	c.logger.Info("registration report requested", logging.String("window", win.String()))
	return nil
}

// ListArtifacts fetches yesterday-to-today report listing entries.
func (c *Client) ListArtifacts(ctx context.Context, session *Session) ([]Artifact, error) {
	today := c.now()
	yesterday := today.AddDate(0, 0, -1)

	query := url.Values{}
	query.Set("start_date", yesterday.Format("2006-01-02")+" 00:00:00")
	query.Set("finish_date", today.Format("2006-01-02")+" 23:59:59")
	query.Set("referencia", "RELATORIOS")
	query.Set("view_my_reports", "1")
	query.Set("limit", "100")

	var body struct {
		Data []Artifact `json:"data"`
	}
	listURL := c.cfg.BaseURL + filesPath + "?" + query.Encode()
	if err := c.http.GetJSON(ctx, listURL, c.sessionHeaders(session), &body); err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	return body.Data, nil
}

// FindArtifact filters a listing by name prefix (and an optional substring,
// used for the date-range token in accounting exports) and returns the entry
// with the highest id, which is the most recent generation.
func FindArtifact(artifacts []Artifact, prefix, contains string) (Artifact, error) {
	var (
		best   Artifact
		bestID int64 = -1
	)
	for _, artifact := range artifacts {
		if !strings.HasPrefix(artifact.Name, prefix) {
			continue
		}
		if !strings.HasSuffix(artifact.Name, ArchiveSuffix) {
			continue
		}
		if contains != "" && !strings.Contains(artifact.Name, contains) {
			continue
		}
		id, err := artifact.ID.Int64()
		if err != nil {
			continue
		}
		if id > bestID {
			best = artifact
			bestID = id
		}
	}
	if bestID < 0 {
		return Artifact{}, services.Wrap(services.ErrArtifactNotFound, "export", "find artifact",
			fmt.Sprintf("no %s archive in listing", prefix), nil)
	}
	return best, nil
}

// ResolveDownloadURL exchanges a listing entry for a presigned storage URL.
func (c *Client) ResolveDownloadURL(ctx context.Context, session *Session, artifact Artifact) (string, error) {
	query := url.Values{}
	query.Set("nome", artifact.Name)
	query.Set("diretorio", artifact.Directory)
	query.Set("disco", "s3")

	var body struct {
		URL string `json:"url"`
	}
	resolveURL := c.cfg.BaseURL + downloadPath + "?" + query.Encode()
	if err := c.http.GetJSON(ctx, resolveURL, c.sessionHeaders(session), &body); err != nil {
		return "", services.Wrap(services.ErrDownload, "export", "resolve download url", "", err)
	}
	if body.URL == "" {
		return "", services.Wrap(services.ErrDownload, "export", "resolve download url",
			fmt.Sprintf("no storage url returned for %s", artifact.Name), nil)
	}
	return body.URL, nil
}

// DownloadArchive fetches an artifact into destDir and returns the local
// path. The presigned storage URL needs no session headers.
func (c *Client) DownloadArchive(ctx context.Context, session *Session, artifact Artifact, destDir string) (string, error) {
	storageURL, err := c.ResolveDownloadURL(ctx, session, artifact)
	if err != nil {
		return "", err
	}
	destPath := filepath.Join(destDir, artifact.Name)
	if err := c.http.Download(ctx, storageURL, nil, destPath); err != nil {
		return "", services.Wrap(services.ErrDownload, "export", "download archive", artifact.Name, err)
	}
	c.logger.Info("archive downloaded",
		logging.String("artifact", artifact.Name),
		logging.String("path", destPath),
	)
	return destPath, nil
}
