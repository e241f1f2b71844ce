package openalex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/citation-network-service/internal/domain"
	"github.com/helixir/citation-network-service/internal/papersources"
)

const (
	// DefaultBaseURL is the default OpenAlex API base URL.
	DefaultBaseURL = "https://api.openalex.org"

	// DefaultRateLimit is the default rate limit for requests per second.
	DefaultRateLimit = 10.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 10

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum identifiers per search or link call.
	DefaultMaxResults = 60

	// MaxPerPage is the largest page OpenAlex serves.
	MaxPerPage = 200

	// maxFilterIDs bounds the OR-ed ids in one openalex filter.
	maxFilterIDs = 50

	// conceptMinScore drops weakly assigned concepts from keywords.
	conceptMinScore = 0.4

	maxBodyBytes = 10 << 20

	doiPrefix        = "https://doi.org/"
	openAlexIDPrefix = "https://openalex.org/"

	sourceName = "OpenAlex"
)

// Endpoint names used in metrics labels.
const (
	EndpointWorks = "works"
	EndpointWork  = "work"
)

var workIDPattern = regexp.MustCompile(`^W\d+$`)

// Config holds configuration for the OpenAlex client.
type Config struct {
	// BaseURL is the OpenAlex API base URL.
	BaseURL string

	// Email is sent as mailto to join the polite pool.
	Email string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxRetries bounds retries on 429 and 5xx responses.
	MaxRetries int

	// MaxResults is the default maximum identifiers per search or link call.
	MaxResults int
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
}

// Client implements the papersources.Provider interface for OpenAlex.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
	observer   papersources.RequestObserver
}

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
func WithHTTPClient(h *papersources.HTTPClient) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New creates a new OpenAlex client with the given configuration.
func New(cfg Config, opts ...Option) *Client {
	cfg.applyDefaults()

	ua := "Helixir-CitationNetwork/1.0"
	if cfg.Email != "" {
		ua += " (mailto:" + cfg.Email + ")"
	}
	c := &Client{
		config: cfg,
		httpClient: papersources.NewHTTPClient(papersources.HTTPClientConfig{
			Source:     sourceName,
			Timeout:    cfg.Timeout,
			RateLimit:  cfg.RateLimit,
			BurstSize:  cfg.BurstSize,
			MaxRetries: cfg.MaxRetries,
			UserAgent:  ua,
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

// Search queries the works endpoint and returns work IDs in relevance order.
func (c *Client) Search(ctx context.Context, params papersources.SearchParams) ([]string, error) {
	if strings.TrimSpace(params.Query) == "" {
		return nil, domain.NewValidationError("query", "must not be empty")
	}

	q := url.Values{}
	q.Set("search", params.Query)
	q.Set("per_page", strconv.Itoa(c.clampMax(params.MaxResults)))
	q.Set("select", "id")

	var filters []string
	if params.DateFrom != nil {
		filters = append(filters, "from_publication_date:"+params.DateFrom.Format("2006-01-02"))
	}
	if params.DateTo != nil {
		filters = append(filters, "to_publication_date:"+params.DateTo.Format("2006-01-02"))
	}
	if len(filters) > 0 {
		q.Set("filter", strings.Join(filters, ","))
	}

	var resp ListResponse
	if err := c.get(ctx, EndpointWorks, "/works", q, &resp); err != nil {
		return nil, err
	}
	return workIDs(resp.Results, "", 0), nil
}

// FetchRecords hydrates work IDs in chunks of maxFilterIDs. Identifiers that
// are not OpenAlex work IDs are skipped. Order follows the responses.
func (c *Client) FetchRecords(ctx context.Context, ids []string) ([]domain.ArticleRecord, error) {
	ids = cleanWorkIDs(ids)
	records := make([]domain.ArticleRecord, 0, len(ids))

	for start := 0; start < len(ids); start += maxFilterIDs {
		end := min(start+maxFilterIDs, len(ids))
		chunk := ids[start:end]

		q := url.Values{}
		q.Set("filter", "ids.openalex:"+strings.Join(chunk, "|"))
		q.Set("per_page", strconv.Itoa(len(chunk)))

		var resp ListResponse
		if err := c.get(ctx, EndpointWorks, "/works", q, &resp); err != nil {
			return nil, err
		}
		for i := range resp.Results {
			if rec, ok := workToRecord(&resp.Results[i]); ok {
				records = append(records, rec)
			}
		}
	}
	return records, nil
}

// Links returns works citing id (citations) or cited by id (references).
// The source id is never part of the result.
func (c *Client) Links(ctx context.Context, id string, relation domain.RelationType, max int) ([]string, error) {
	id = normalizeOpenAlexID(id)
	if id == "" {
		return nil, domain.NewValidationError("id", "must not be empty")
	}
	if !workIDPattern.MatchString(id) {
		return nil, domain.NewValidationError("id", fmt.Sprintf("%q is not an OpenAlex work ID", id))
	}
	max = c.clampMax(max)

	switch relation {
	case domain.RelationCitations:
		q := url.Values{}
		q.Set("filter", "cites:"+id)
		q.Set("sort", "cited_by_count:desc")
		q.Set("per_page", strconv.Itoa(max))
		q.Set("select", "id")

		var resp ListResponse
		if err := c.get(ctx, EndpointWorks, "/works", q, &resp); err != nil {
			return nil, err
		}
		return workIDs(resp.Results, id, max), nil

	case domain.RelationReferences:
		q := url.Values{}
		q.Set("select", "id,referenced_works")

		var work Work
		if err := c.get(ctx, EndpointWork, "/works/"+id, q, &work); err != nil {
			return nil, err
		}
		refs := make([]string, 0, len(work.ReferencedWorks))
		for _, r := range work.ReferencedWorks {
			refs = append(refs, normalizeOpenAlexID(r))
		}
		return dedupe(refs, id, max), nil

	default:
		return nil, domain.NewValidationError("relation", fmt.Sprintf("unsupported relation %q", relation))
	}
}

func (c *Client) clampMax(n int) int {
	if n <= 0 {
		n = c.config.MaxResults
	}
	if n > MaxPerPage {
		n = MaxPerPage
	}
	return n
}

// get performs one API request and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, endpoint, path string, q url.Values, out any) (err error) {
	start := time.Now()
	defer func() {
		c.observer.ObserveUpstream(sourceName, endpoint, time.Since(start), err)
	}()

	if c.config.Email != "" {
		q.Set("mailto", c.config.Email)
	}

	u, err := url.Parse(c.config.BaseURL + path)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

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

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.NewNotFoundError("work", path)
	case resp.StatusCode != http.StatusOK:
		msg := string(body)
		if len(msg) > 256 {
			msg = msg[:256] + "..."
		}
		return domain.NewExternalAPIError(sourceName, resp.StatusCode, msg, nil)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return domain.NewMalformedResponseError(sourceName, endpoint+" JSON", err)
	}
	return nil
}

// workToRecord converts a work into a record. Works without an ID or a title
// are rejected.
func workToRecord(w *Work) (domain.ArticleRecord, bool) {
	id := normalizeOpenAlexID(w.ID)
	if id == "" {
		id = normalizeOpenAlexID(w.IDs.OpenAlex)
	}

	title := w.DisplayName
	if title == "" {
		title = w.Title
	}
	title = papersources.StripMarkup(title)

	authors := make([]string, 0, min(len(w.Authorships), domain.MaxAuthors))
	for _, a := range w.Authorships {
		if name := strings.TrimSpace(a.Author.DisplayName); name != "" {
			authors = append(authors, name)
		}
	}

	var venue string
	if w.PrimaryLocation != nil && w.PrimaryLocation.Source != nil {
		venue = w.PrimaryLocation.Source.DisplayName
	}

	doi := normalizeDOI(w.DOI)
	if doi == "" {
		doi = normalizeDOI(w.IDs.DOI)
	}

	keywords := make([]string, 0, len(w.Keywords)+len(w.Concepts))
	for _, k := range w.Keywords {
		keywords = append(keywords, k.DisplayName)
	}
	for _, k := range w.Concepts {
		if k.Score >= conceptMinScore {
			keywords = append(keywords, k.DisplayName)
		}
	}

	rec := domain.NewArticleRecord(
		id, title, authors, venue, w.PublicationYear,
		reconstructAbstract(w.AbstractInvertedIndex), doi, w.CitedByCount, keywords,
	)
	return rec, rec.Valid()
}

func workIDs(works []Work, exclude string, max int) []string {
	ids := make([]string, 0, len(works))
	for _, w := range works {
		ids = append(ids, normalizeOpenAlexID(w.ID))
	}
	return dedupe(ids, exclude, max)
}

// cleanWorkIDs normalizes ids and keeps well-formed work IDs only.
func cleanWorkIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = normalizeOpenAlexID(id)
		if workIDPattern.MatchString(id) {
			out = append(out, id)
		}
	}
	return dedupe(out, "", 0)
}

// dedupe drops empties, duplicates and exclude, and caps at max when max > 0.
func dedupe(ids []string, exclude string, max int) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
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

// normalizeDOI strips the resolver prefix and lowercases.
func normalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	doi = strings.TrimPrefix(doi, doiPrefix)
	doi = strings.TrimPrefix(doi, "http://doi.org/")
	doi = strings.TrimPrefix(doi, "doi:")
	return strings.ToLower(strings.TrimSpace(doi))
}

// normalizeOpenAlexID extracts the short ID from full OpenAlex URLs.
func normalizeOpenAlexID(id string) string {
	id = strings.TrimSpace(id)
	return strings.TrimPrefix(id, openAlexIDPrefix)
}

// reconstructAbstract rebuilds abstract text from OpenAlex's inverted index.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	const maxAbstractWords = 100_000
	total := 0
	for _, positions := range invertedIndex {
		total += len(positions)
	}
	if total > maxAbstractWords {
		return ""
	}

	pairs := make([]posWord, 0, total)
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].pos != pairs[j].pos {
			return pairs[i].pos < pairs[j].pos
		}
		return pairs[i].word < pairs[j].word
	})

	var b strings.Builder
	b.Grow(total * 7)
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(p.word)
	}
	return b.String()
}
