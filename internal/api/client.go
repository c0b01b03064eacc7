package api

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultPageSize is the per_page value sent when a fetch does not
	// override it.
	DefaultPageSize = 1000

	// DefaultPageLimit caps how many pages a single fetch may walk.
	DefaultPageLimit = 100

	// maxEmptyPages is how many consecutive empty pages are tolerated
	// before a fetch stops. The upstream occasionally serves one
	// transient empty page in the middle of a result set.
	maxEmptyPages = 2
)

// Client provides access to the administrator's REST API.
type Client struct {
	baseURL      string
	username     string
	password     string
	clientID     string
	clientSecret string

	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter

	pageLimit  int
	maxRetries uint64

	// credentials is the full header set (client-access headers plus
	// Authorization) once authenticated; nil before the first
	// successful Authenticate. The client is used from a single
	// goroutine per run, so no locking is needed.
	credentials map[string]string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new API client. username/password authenticate
// the user; clientID/clientSecret are the client-access credentials
// sent as headers on every request.
func NewClient(baseURL, username, password, clientID, clientSecret string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:      baseURL,
		username:     username,
		password:     password,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:     slog.Default(),
		pageLimit:  DefaultPageLimit,
		maxRetries: 3,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithPageLimit sets the hard cap on pages walked per fetch.
func WithPageLimit(n int) ClientOption {
	return func(c *Client) {
		c.pageLimit = n
	}
}

// WithRetries sets how many times a transient HTTP failure is retried.
func WithRetries(n uint64) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRateLimit caps outgoing requests at n per second.
func WithRateLimit(n float64) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(n), 1)
	}
}

// Authenticated reports whether the client currently holds a credential.
func (c *Client) Authenticated() bool {
	return c.credentials != nil
}
