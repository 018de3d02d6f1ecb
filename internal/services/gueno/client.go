// Package gueno talks to the compliance platform: authentication, KYT file
// uploads, and verification of imported transaction batches.
package gueno

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"reportbridge/internal/config"
	"reportbridge/internal/httpx"
	"reportbridge/internal/logging"
	"reportbridge/internal/services"
)

const (
	loginPath  = "/api/auth/login"
	importPath = "/api/kyt-import"
	verifyPath = "/api/kyt/transactions/all/verify"
)

// ImportKind selects the KYT import endpoint.
type ImportKind string

const (
	ImportUsers        ImportKind = "users"
	ImportTransactions ImportKind = "transactions"
)

// Session carries a login token and, when the token is a parseable JWT, its
// expiry so long pipelines can re-authenticate instead of failing mid-run.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// Expired reports whether the token is past (or within a minute of) expiry.
// Tokens without a parseable expiry never report expired.
func (s *Session) Expired(now time.Time) bool {
	if s == nil || s.ExpiresAt.IsZero() {
		return false
	}
	return now.After(s.ExpiresAt.Add(-time.Minute))
}

// ImportItem is one entry in the platform's import listing.
type ImportItem struct {
	ID           string `json:"_id"`
	OriginalName string `json:"originalName"`
}

// Client wraps the compliance platform API.
type Client struct {
	cfg    config.Gueno
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

// New constructs a compliance platform client.
func New(cfg config.Gueno, httpClient *httpx.Client, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	client := &Client{
		cfg:    cfg,
		http:   httpClient,
		logger: logger.With(logging.String(logging.FieldComponent, "gueno")),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Login authenticates and returns a session token.
func (c *Client) Login(ctx context.Context) (*Session, error) {
	payload := map[string]string{
		"email":    c.cfg.Email,
		"password": c.cfg.Password,
	}
	headers := map[string]string{"Accept": "application/json, application/xml"}
	var body struct {
		AccessToken string `json:"access_token"`
	}
	resp, err := c.http.PostJSON(ctx, c.cfg.BaseURL+loginPath, headers, payload, &body)
	if err != nil {
		return nil, services.Wrap(services.ErrAuthentication, "import", "login", "platform login failed", err)
	}
	if body.AccessToken == "" {
		return nil, services.Wrap(services.ErrAuthentication, "import", "login", "login response carried no access token", nil)
	}

	session := &Session{Token: body.AccessToken, ExpiresAt: tokenExpiry(body.AccessToken)}
	if session.ExpiresAt.IsZero() {
		c.logger.Info("authenticated", logging.String("response", string(resp.Body)))
	} else {
		c.logger.Info("authenticated",
			logging.Time("token_expires_at", session.ExpiresAt),
			logging.String("response", string(resp.Body)),
		)
	}
	return session, nil
}

// Refresh returns the session unchanged while its token is still valid and
// re-authenticates when it has expired or is about to.
func (c *Client) Refresh(ctx context.Context, session *Session) (*Session, error) {
	if !session.Expired(c.now()) {
		return session, nil
	}
	c.logger.Info("session expired, re-authenticating")
	return c.Login(ctx)
}

// tokenExpiry extracts the exp claim without verifying the signature. The
// token is only inspected locally for scheduling, never trusted.
func tokenExpiry(token string) time.Time {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}
	}
	expiry, err := parsed.Claims.GetExpirationTime()
	if err != nil || expiry == nil {
		return time.Time{}
	}
	return expiry.Time
}

func (c *Client) sessionHeaders(session *Session) map[string]string {
	return map[string]string{
		"Authorization":        "Bearer " + session.Token,
		"client-key":           c.cfg.ClientKey,
		"x-gueno-type-product": c.cfg.Product,
	}
}

// UploadFile sends a staged CSV to the KYT import endpoint for the given
// kind. The platform acknowledges with 200 or 201; anything else is a
// failed import.
func (c *Client) UploadFile(ctx context.Context, session *Session, kind ImportKind, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read upload file: %w", err)
	}
	filename := filepath.Base(path)

	uploadURL := c.cfg.BaseURL + importPath + "/" + string(kind)
	resp, err := c.http.PostMultipart(ctx, uploadURL, c.sessionHeaders(session), "file", filename, "text/csv", content)
	if err != nil {
		return fmt.Errorf("upload %s file: %w", kind, err)
	}
	if resp.Status != 200 && resp.Status != 201 {
		return services.Wrap(services.ErrHTTPStatus, "import", "upload file",
			fmt.Sprintf("%s upload acknowledged with unexpected status %d", kind, resp.Status), nil)
	}
	c.logger.Info("file uploaded",
		logging.String("kind", string(kind)),
		logging.String("file", filename),
	)
	return nil
}

// FindImportItem locates an uploaded file in the recent import listing by
// its original file name.
func (c *Client) FindImportItem(ctx context.Context, session *Session, originalName string) (*ImportItem, error) {
	query := url.Values{}
	query.Set("page", "0")
	query.Set("limit", "10")

	var body struct {
		Data struct {
			Items []ImportItem `json:"items"`
		} `json:"data"`
	}
	listURL := c.cfg.BaseURL + importPath + "?" + query.Encode()
	if err := c.http.GetJSON(ctx, listURL, c.sessionHeaders(session), &body); err != nil {
		return nil, fmt.Errorf("list imports: %w", err)
	}
	for _, item := range body.Data.Items {
		if item.OriginalName == originalName {
			return &item, nil
		}
	}
	return nil, services.Wrap(services.ErrMissingImport, "import", "find import item",
		fmt.Sprintf("%s not in recent imports", originalName), nil)
}

// VerifyImport triggers processing of an imported transaction batch.
func (c *Client) VerifyImport(ctx context.Context, session *Session, itemID string) error {
	nowMillis := strconv.FormatInt(c.now().UnixMilli(), 10)
	query := url.Values{}
	query.Set("itemId", itemID)
	query.Set("fromDate", nowMillis)
	query.Set("toDate", nowMillis)

	headers := c.sessionHeaders(session)
	headers["content-type"] = "application/json"
	verifyURL := c.cfg.BaseURL + verifyPath + "?" + query.Encode()
	resp, err := c.http.PostJSON(ctx, verifyURL, headers, struct{}{}, nil)
	if err != nil {
		return fmt.Errorf("verify import: %w", err)
	}
	if resp.Status != 200 && resp.Status != 201 {
		return services.Wrap(services.ErrHTTPStatus, "import", "verify import",
			fmt.Sprintf("verification acknowledged with unexpected status %d", resp.Status), nil)
	}
	c.logger.Info("import verification triggered", logging.String("item_id", itemID))
	return nil
}
