// Package reddit is a small read-only client for the Reddit JSON API. It
// covers the listings the harvest jobs need and yields them lazily, one page
// at a time.
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	harvest "github.com/jamesprial/go-reddit-harvest"
)

const (
	// OAuthURL serves authenticated requests.
	OAuthURL = "https://oauth.reddit.com"
	// PublicURL serves anonymous requests; paths take a ".json" suffix.
	PublicURL = "https://www.reddit.com"
	// TokenURL issues OAuth2 tokens.
	TokenURL = "https://www.reddit.com/api/v1/access_token"

	// PageSize is the largest page Reddit returns.
	PageSize = 100

	defaultUserAgent = "go-reddit-harvest/1.0"
)

// ErrRateLimited is returned when Reddit answers 429.
var ErrRateLimited = errors.New("rate limited")

// APIError is a non-2xx response. 3xx, 403 and 404 unwrap to
// harvest.ErrUnreachable.
type APIError struct {
	StatusCode int
	Path       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("reddit: %s returned %d %s", e.Path, e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.StatusCode == http.StatusForbidden, e.StatusCode == http.StatusNotFound,
		e.StatusCode >= 300 && e.StatusCode < 400:
		return harvest.ErrUnreachable
	}
	return nil
}

// Config holds credentials and transport settings.
type Config struct {
	ClientID     string
	ClientSecret string
	// Username and Password select the password grant; without them the
	// client-credentials grant is used. Without a ClientID the public JSON
	// endpoints are read anonymously.
	Username  string
	Password  string
	UserAgent string

	// RequestsPerSecond paces requests. Zero means one per second.
	RequestsPerSecond float64

	// BaseURL and TokenURL override the Reddit hosts.
	BaseURL  string
	TokenURL string

	HTTPClient *http.Client
	Logger     logrus.FieldLogger
}

// Client reads listings from Reddit.
type Client struct {
	http    *http.Client
	base    string
	public  bool
	ua      string
	limiter *rate.Limiter
	log     logrus.FieldLogger
}

// userAgent sets the User-Agent on every request, token requests included.
type userAgent struct {
	ua   string
	next http.RoundTripper
}

func (t *userAgent) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.ua)
	return t.next.RoundTrip(req)
}

// NewClient creates a client and, when credentials are configured, fetches
// the first OAuth2 token.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	rps := cfg.RequestsPerSecond
	if rps == 0 {
		rps = 1
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	base := &http.Client{Timeout: 30 * time.Second}
	if cfg.HTTPClient != nil {
		base = cfg.HTTPClient
	}
	next := base.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	plain := &http.Client{
		Timeout:   base.Timeout,
		Transport: &userAgent{ua: ua, next: next},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	c := &Client{
		http:    plain,
		ua:      ua,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		log:     log.WithField("component", "reddit"),
	}

	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = TokenURL
	}

	switch {
	case cfg.ClientID == "":
		c.public = true
		c.base = PublicURL
	case cfg.Username != "":
		oc := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInHeader},
		}
		tctx := context.WithValue(ctx, oauth2.HTTPClient, plain)
		tok, err := oc.PasswordCredentialsToken(tctx, cfg.Username, cfg.Password)
		if err != nil {
			return nil, fmt.Errorf("reddit: password grant: %w", err)
		}
		c.http = withRedirects(oc.Client(tctx, tok), plain)
		c.base = OAuthURL
	default:
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     tokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		}
		tctx := context.WithValue(ctx, oauth2.HTTPClient, plain)
		if _, err := cc.Token(tctx); err != nil {
			return nil, fmt.Errorf("reddit: client credentials grant: %w", err)
		}
		c.http = withRedirects(cc.Client(tctx), plain)
		c.base = OAuthURL
	}

	if cfg.BaseURL != "" {
		c.base = strings.TrimRight(cfg.BaseURL, "/")
	}
	return c, nil
}

func withRedirects(oauthClient, plain *http.Client) *http.Client {
	oauthClient.CheckRedirect = plain.CheckRedirect
	oauthClient.Timeout = plain.Timeout
	return oauthClient
}

// get fetches path with query and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	if query == nil {
		query = url.Values{}
	}
	query.Set("raw_json", "1")
	if c.public {
		path += ".json"
	}
	u := c.base + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.ua)

	c.log.WithField("url", u).Debug("GET")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("reddit: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Path: path}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("reddit: decode %s: %w", path, err)
	}
	return nil
}
