package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"emicli/internal/config"
	apperrors "emicli/internal/errors"
)

// DiscoverCSVLinks scrapes an EMI dataset listing page for anchor tags whose
// href ends in .csv and returns the absolute URLs in document order, first
// occurrence wins. It is the dynamic alternative to the static catalog for
// datasets whose file list shifts between publications.
func DiscoverCSVLinks(ctx context.Context, client *http.Client, pageURL string) ([]string, error) {
	if client == nil {
		client = http.DefaultClient
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, apperrors.NewAppValidationError(fmt.Sprintf("invalid listing page URL %q", pageURL))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, apperrors.NewNetworkError("failed to build discovery request", err)
	}
	req.Header.Set("User-Agent", config.DefaultUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, apperrors.NewNetworkError(fmt.Sprintf("failed to fetch listing page %s", pageURL), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewNetworkError(
			fmt.Sprintf("listing page %s returned %s", pageURL, resp.Status), nil)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, apperrors.NewParsingError("failed to parse listing page HTML", err)
	}

	seen := make(map[string]bool)
	var links []string

	doc.Find("a[href]").Each(func(_ int, anchor *goquery.Selection) {
		href, ok := anchor.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if !strings.HasSuffix(strings.ToLower(href), ".csv") {
			return
		}

		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref).String()
		if seen[abs] {
			return
		}
		seen[abs] = true
		links = append(links, abs)
	})

	return links, nil
}

// HydroDescriptorFromURL turns a discovered storage CSV link into a hydro
// descriptor with the standard EMI column layout. The series id is derived
// from the lake name embedded in the filename, e.g.
// SI_PKI_Storage_LakePukaki.csv becomes lake_pukaki.
func HydroDescriptorFromURL(link string) Descriptor {
	return Descriptor{
		SeriesID:        seriesIDFromStorageLink(link),
		Dataset:         config.DatasetHydro,
		Origin:          link,
		SkipRows:        0,
		TimestampColumn: config.HydroDateColumn,
		TimeColumn:      config.HydroTimeColumn,
		ValueColumn:     config.HydroStorageColumn,
	}
}

// seriesIDFromStorageLink extracts the trailing lake token from an EMI
// storage filename and snake-cases it. Unrecognized names fall back to the
// whole file stem.
func seriesIDFromStorageLink(link string) string {
	stem := link
	if idx := strings.LastIndex(stem, "/"); idx >= 0 {
		stem = stem[idx+1:]
	}
	stem = strings.TrimSuffix(stem, ".csv")

	name := stem
	if idx := strings.LastIndex(stem, "_"); idx >= 0 {
		name = stem[idx+1:]
	}

	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
