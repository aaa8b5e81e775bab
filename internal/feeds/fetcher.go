package feeds

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"

	"github.com/eldiafano/diafano/internal/storage"
	"github.com/eldiafano/diafano/internal/story"
)

const userAgent = "ElDiafano/1.0 (+https://eldiafano.cl)"

// FeedTimeout bounds a single outlet fetch.
const FeedTimeout = 30 * time.Second

// MaxFeedBytes caps the size of a downloaded feed document.
const MaxFeedBytes = 10 << 20

// Store is the part of storage.Store the fetcher writes to.
type Store interface {
	FeedOutlets(ctx context.Context) ([]storage.Outlet, error)
	UpsertOutlet(ctx context.Context, o *storage.Outlet) (int64, error)
	UpsertArticle(ctx context.Context, a *storage.Article) (int64, error)
}

type Fetcher struct {
	parser  *gofeed.Parser
	client  *http.Client
	store   Store
	limiter *rate.Limiter
	policy  *bluemonday.Policy
	log     *slog.Logger

	maxBytes int64
}

// OPML structures for parsing
type OPML struct {
	XMLName xml.Name `xml:"opml"`
	Body    OPMLBody `xml:"body"`
}

type OPMLBody struct {
	Outlines []OPMLOutline `xml:"outline"`
}

type OPMLOutline struct {
	Text     string        `xml:"text,attr"`
	Title    string        `xml:"title,attr"`
	Type     string        `xml:"type,attr"`
	XMLURL   string        `xml:"xmlUrl,attr"`
	HTMLURL  string        `xml:"htmlUrl,attr"`
	Outlines []OPMLOutline `xml:"outline"`
}

// NewFetcher creates a fetcher that issues at most rps feed requests per
// second. rps <= 0 disables the limit.
func NewFetcher(store Store, rps float64, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	return &Fetcher{
		parser:  parser,
		client:  &http.Client{},
		store:   store,
		limiter: rate.NewLimiter(limit, 1),
		policy:  bluemonday.StrictPolicy(),
		log:     logger.With("component", "feeds"),

		maxBytes: MaxFeedBytes,
	}
}

// FetchFeed downloads and parses one feed.
func (f *Fetcher) FetchFeed(ctx context.Context, url string) (*gofeed.Feed, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s returned status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read feed %s: %w", url, err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("feed %s exceeds %d bytes", url, f.maxBytes)
	}

	parsed, err := f.parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed %s: %w", url, err)
	}
	return parsed, nil
}

// StoreItems upserts each feed item as a pending noticia of the outlet.
// Items without a link are skipped; existing links are refreshed in place.
func (f *Fetcher) StoreItems(ctx context.Context, outlet storage.Outlet, feed *gofeed.Feed) (int, error) {
	stored := 0
	outletID := outlet.ID
	for _, item := range feed.Items {
		link := strings.TrimSpace(item.Link)
		if link == "" {
			continue
		}
		article := &storage.Article{
			Title:    strings.TrimSpace(f.policy.Sanitize(item.Title)),
			Link:     link,
			Source:   outlet.Name,
			OutletID: &outletID,
			Status:   storage.StatusPending,
			Date:     itemDate(item),
		}

		// Use content if available, otherwise use description
		if item.Content != "" {
			article.Content = f.policy.Sanitize(item.Content)
		} else {
			article.Content = f.policy.Sanitize(item.Description)
		}
		if item.Image != nil {
			article.ImageURL = item.Image.URL
		}

		if _, err := f.store.UpsertArticle(ctx, article); err != nil {
			return stored, err
		}
		stored++
	}
	return stored, nil
}

func itemDate(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	return time.Now()
}

// FetchOutlet fetches one outlet's feed and stores its items.
func (f *Fetcher) FetchOutlet(ctx context.Context, outlet storage.Outlet) (int, error) {
	if outlet.FeedURL == "" {
		return 0, fmt.Errorf("medio %s has no feed_url", outlet.Slug)
	}
	feedCtx, cancel := context.WithTimeout(ctx, FeedTimeout)
	defer cancel()

	feed, err := f.FetchFeed(feedCtx, outlet.FeedURL)
	if err != nil {
		return 0, err
	}
	return f.StoreItems(ctx, outlet, feed)
}

// Stats summarizes a FetchAll run.
type Stats struct {
	Outlets  int      `json:"medios"`
	Fetched  int      `json:"descargados"`
	Errored  int      `json:"con_error"`
	Articles int      `json:"noticias"`
	Errors   []string `json:"errores,omitempty"`
}

// FetchAll walks every outlet with a feed URL. A failing outlet is logged
// and counted; only a failure to list outlets aborts the run.
func (f *Fetcher) FetchAll(ctx context.Context) (*Stats, error) {
	outlets, err := f.store.FeedOutlets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get medios: %w", err)
	}

	stats := &Stats{Outlets: len(outlets)}
	for _, o := range outlets {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		n, err := f.FetchOutlet(ctx, o)
		stats.Articles += n
		if err != nil {
			stats.Errored++
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", o.Slug, err))
			f.log.Warn("fetch failed", "medio", o.Slug, "err", err)
			continue
		}
		stats.Fetched++
		f.log.Debug("fetched", "medio", o.Slug, "noticias", n)
	}
	return stats, nil
}

// ImportOPML registers every feed outline in the file as a medio keyed on
// the slug of its title. Existing medios keep their leaning.
func (f *Fetcher) ImportOPML(ctx context.Context, opmlPath string) (int, error) {
	data, err := os.ReadFile(opmlPath)
	if err != nil {
		return 0, fmt.Errorf("failed to read OPML file: %w", err)
	}

	var opml OPML
	if err := xml.Unmarshal(data, &opml); err != nil {
		return 0, fmt.Errorf("failed to parse OPML: %w", err)
	}

	added := 0
	var processOutlines func(outlines []OPMLOutline) error
	processOutlines = func(outlines []OPMLOutline) error {
		for _, outline := range outlines {
			if outline.XMLURL != "" {
				name := outline.Title
				if name == "" {
					name = outline.Text
				}
				if name == "" {
					name = outline.XMLURL
				}
				o := &storage.Outlet{Name: name, Slug: story.Slug(name), FeedURL: outline.XMLURL}
				if outline.HTMLURL != "" {
					site := outline.HTMLURL
					o.Website = &site
				}
				if _, err := f.store.UpsertOutlet(ctx, o); err != nil {
					return fmt.Errorf("medio %s: %w", o.Slug, err)
				}
				added++
			}

			// Nested outlines are folders.
			if err := processOutlines(outline.Outlines); err != nil {
				return err
			}
		}
		return nil
	}

	if err := processOutlines(opml.Body.Outlines); err != nil {
		return added, err
	}
	return added, nil
}
