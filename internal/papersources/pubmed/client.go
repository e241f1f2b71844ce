package pubmed

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/citation-network-service/internal/domain"
	"github.com/helixir/citation-network-service/internal/papersources"
)

const (
	// DefaultBaseURL is the base URL for NCBI E-utilities API.
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// DefaultRateLimit is the rate limit without an API key (3 requests/second).
	DefaultRateLimit = 3.0

	// KeyedRateLimit is the rate limit NCBI grants when an API key is sent.
	KeyedRateLimit = 10.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 3

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 15 * time.Second

	// DefaultMaxResults is the default maximum identifiers per search or link call.
	DefaultMaxResults = 60

	// MaxResultsLimit is the maximum results allowed per request by the API.
	MaxResultsLimit = 10000

	// DefaultTool identifies this client to NCBI.
	DefaultTool = "citation-network-service"

	// maxBodyBytes caps how much of a response body is read.
	maxBodyBytes = 10 << 20

	// sourceName is the human-readable name for this source.
	sourceName = "PubMed"
)

// Link names understood by elink for pubmed-to-pubmed citation links.
const (
	LinkNameCitedIn    = "pubmed_pubmed_citedin"
	LinkNameReferences = "pubmed_pubmed_refs"
)

// Endpoint names used in metrics labels.
const (
	EndpointSearch = "esearch"
	EndpointFetch  = "efetch"
	EndpointLink   = "elink"
)

// Config holds the configuration for the PubMed client.
type Config struct {
	// BaseURL is the base URL for the E-utilities API.
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// APIKey is the NCBI API key for higher rate limits.
	// Optional but recommended for production use.
	APIKey string

	// Tool and Email are sent with every request as NCBI asks.
	Tool  string
	Email string

	// Timeout is the request timeout.
	// Defaults to DefaultTimeout if zero.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	// Defaults to DefaultRateLimit, or KeyedRateLimit when APIKey is set.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	// Defaults to DefaultBurstSize if zero.
	BurstSize int

	// MaxRetries bounds retries on 429 and 5xx responses.
	MaxRetries int

	// MaxResults is the default maximum identifiers per search or link call.
	// Defaults to DefaultMaxResults if zero.
	MaxResults int
}

// applyDefaults applies default values to the config.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Tool == "" {
		c.Tool = DefaultTool
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
		if c.APIKey != "" {
			c.RateLimit = KeyedRateLimit
		}
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
}

// Client implements the papersources.Provider interface for PubMed.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
	observer   papersources.RequestObserver
}

// Compile-time check that Client implements Provider.
var _ papersources.Provider = (*Client)(nil)

// Option customizes a Client.
type Option func(*Client)

// WithObserver reports every upstream request to o.
func WithObserver(o papersources.RequestObserver) Option {
	return func(c *Client) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithHTTPClient replaces the rate-limited HTTP client.
// This is useful for testing with mock servers.
func WithHTTPClient(h *papersources.HTTPClient) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New creates a new PubMed client with the given configuration.
func New(cfg Config, opts ...Option) *Client {
	cfg.applyDefaults()

	c := &Client{
		config: cfg,
		httpClient: papersources.NewHTTPClient(papersources.HTTPClientConfig{
			Source:     sourceName,
			Timeout:    cfg.Timeout,
			RateLimit:  cfg.RateLimit,
			BurstSize:  cfg.BurstSize,
			MaxRetries: cfg.MaxRetries,
			UserAgent:  "Helixir-CitationNetwork/1.0 (mailto:support@helixir.io)",
		}),
		observer: papersources.NopObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// Search runs esearch and returns matching PMIDs in relevance order.
// A phrase PubMed does not know yields an empty result, not an error.
func (c *Client) Search(ctx context.Context, params papersources.SearchParams) ([]string, error) {
	if strings.TrimSpace(params.Query) == "" {
		return nil, domain.NewValidationError("query", "must not be empty")
	}

	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("term", params.Query)
	q.Set("sort", "relevance")
	q.Set("usehistory", "n")
	q.Set("retmax", strconv.Itoa(c.clampMax(params.MaxResults)))

	if params.DateFrom != nil || params.DateTo != nil {
		q.Set("datetype", "pdat")
		// esearch needs both bounds once either is present.
		from, to := "1800/01/01", "3000/12/31"
		if params.DateFrom != nil {
			from = params.DateFrom.Format("2006/01/02")
		}
		if params.DateTo != nil {
			to = params.DateTo.Format("2006/01/02")
		}
		q.Set("mindate", from)
		q.Set("maxdate", to)
	}

	var result ESearchResult
	if err := c.get(ctx, EndpointSearch, q, &result); err != nil {
		return nil, err
	}

	if result.ErrorList != nil && len(result.ErrorList.PhraseNotFound) > 0 && len(result.IDList.IDs) == 0 {
		return []string{}, nil
	}
	return cleanIDs(result.IDList.IDs, "", 0), nil
}

// FetchRecords runs efetch for ids and converts every article that carries a
// PMID and a title. Order follows the response, not ids.
func (c *Client) FetchRecords(ctx context.Context, ids []string) ([]domain.ArticleRecord, error) {
	ids = cleanIDs(ids, "", 0)
	if len(ids) == 0 {
		return []domain.ArticleRecord{}, nil
	}

	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("id", strings.Join(ids, ","))
	q.Set("rettype", "abstract")

	var set PubmedArticleSet
	if err := c.get(ctx, EndpointFetch, q, &set); err != nil {
		return nil, err
	}

	records := make([]domain.ArticleRecord, 0, len(set.Articles))
	for _, article := range set.Articles {
		if rec, ok := articleToRecord(article); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

// Links runs elink and returns PMIDs connected to id. The source id is never
// part of the result.
func (c *Client) Links(ctx context.Context, id string, relation domain.RelationType, max int) ([]string, error) {
	linkName, err := linkNameFor(relation)
	if err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.NewValidationError("id", "must not be empty")
	}

	q := url.Values{}
	q.Set("dbfrom", "pubmed")
	q.Set("db", "pubmed")
	q.Set("id", id)
	q.Set("linkname", linkName)

	var result ELinkResult
	if err := c.get(ctx, EndpointLink, q, &result); err != nil {
		return nil, err
	}
	if result.Error != "" {
		return nil, domain.NewMalformedResponseError(sourceName, result.Error, nil)
	}

	var linked []string
	for _, set := range result.LinkSets {
		for _, db := range set.LinkSetDb {
			if db.LinkName != linkName {
				continue
			}
			for _, l := range db.Links {
				linked = append(linked, l.ID)
			}
		}
	}
	return cleanIDs(linked, id, c.clampMax(max)), nil
}

func linkNameFor(relation domain.RelationType) (string, error) {
	switch relation {
	case domain.RelationCitations:
		return LinkNameCitedIn, nil
	case domain.RelationReferences:
		return LinkNameReferences, nil
	default:
		return "", domain.NewValidationError("relation", fmt.Sprintf("unsupported relation %q", relation))
	}
}

func (c *Client) clampMax(n int) int {
	if n <= 0 {
		n = c.config.MaxResults
	}
	if n > MaxResultsLimit {
		n = MaxResultsLimit
	}
	return n
}

// get performs one E-utilities request and decodes the XML body into out.
func (c *Client) get(ctx context.Context, endpoint string, q url.Values, out any) (err error) {
	start := time.Now()
	defer func() {
		c.observer.ObserveUpstream(sourceName, endpoint, time.Since(start), err)
	}()

	q.Set("retmode", "xml")
	q.Set("tool", c.config.Tool)
	if c.config.Email != "" {
		q.Set("email", c.config.Email)
	}
	if c.config.APIKey != "" {
		q.Set("api_key", c.config.APIKey)
	}

	u, err := url.Parse(c.config.BaseURL + "/" + endpoint + ".fcgi")
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return domain.NewExternalAPIError(sourceName, resp.StatusCode, "failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return domain.NewExternalAPIError(sourceName, resp.StatusCode, truncate(string(body), 256), nil)
	}

	if err := xml.Unmarshal(body, out); err != nil {
		return domain.NewMalformedResponseError(sourceName, endpoint+" XML", err)
	}
	return nil
}

// cleanIDs trims, drops empties, duplicates and exclude, and caps at max
// when max > 0.
func cleanIDs(ids []string, exclude string, max int) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || id == exclude {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
