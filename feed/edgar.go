package feed

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"insiderflow/config"
	"insiderflow/logger"
	"insiderflow/models"
)

var (
	formRe   = regexp.MustCompile(`(?i)form\s+(4|13D|13G)`)
	tickerRe = regexp.MustCompile(`\(([A-Z]{1,5})\)`)
)

// EDGAR pulls the SEC "current events" Atom feed and turns its entries into
// Filing records. Entries without a recognized form keyword or a ticker are
// dropped here, before they reach the engine. Requests are rate limited; the
// SEC rejects clients that exceed its published request ceiling or omit a
// descriptive User-Agent.
type EDGAR struct {
	url       string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
	log       *logger.Log
}

func NewEDGAR(cfg config.FeedConfig) *EDGAR {
	ua := cfg.UserAgent
	if ua == "" {
		ua = "insiderflow/0.1"
	}
	return &EDGAR{
		url:       cfg.URL,
		userAgent: ua,
		client:    &http.Client{Timeout: cfg.RequestTimeout.Std()},
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		log:       logger.GetLogger(),
	}
}

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title    string       `xml:"title"`
	Link     atomLink     `xml:"link"`
	Updated  string       `xml:"updated"`
	Category atomCategory `xml:"category"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
}

type atomCategory struct {
	Term string `xml:"term,attr"`
}

// Filings fetches the feed once and returns the parsed, filtered entries in
// feed order. Each call is independent; the engine restarts the sequence on
// every poll cycle.
func (f *EDGAR) Filings(ctx context.Context) ([]models.Filing, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("feed rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build feed request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed body: %w", err)
	}

	var doc atomFeed
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	log := f.log.WithComponent("feed")

	filings := make([]models.Filing, 0, len(doc.Entries))
	for _, entry := range doc.Entries {
		form, ok := extractForm(entry)
		if !ok {
			continue
		}
		ticker, ok := extractTicker(entry.Title)
		if !ok {
			continue
		}

		filedAt, err := time.Parse(time.RFC3339, entry.Updated)
		if err != nil {
			// Entries with unparseable timestamps keep flowing; FiledAt
			// is informational and never gates a trade.
			log.WithFields(logger.Fields{"updated": entry.Updated}).Debug("unparseable entry timestamp")
			filedAt = time.Time{}
		}

		filings = append(filings, models.Filing{
			Form:    form,
			Ticker:  ticker,
			Title:   entry.Title,
			Link:    entry.Link.Href,
			FiledAt: filedAt,
		})
	}

	log.WithFields(logger.Fields{
		"entries": len(doc.Entries),
		"filings": len(filings),
	}).Debug("feed fetched")

	return filings, nil
}

func extractForm(entry atomEntry) (models.FilingForm, bool) {
	if m := formRe.FindStringSubmatch(entry.Title); m != nil {
		return models.FilingForm(strings.ToUpper(m[1])), true
	}
	switch strings.ToUpper(strings.TrimSpace(entry.Category.Term)) {
	case "4":
		return models.Form4, true
	case "13D":
		return models.Form13D, true
	case "13G":
		return models.Form13G, true
	}
	return "", false
}

func extractTicker(title string) (string, bool) {
	if m := tickerRe.FindStringSubmatch(title); m != nil {
		return m[1], true
	}
	return "", false
}
