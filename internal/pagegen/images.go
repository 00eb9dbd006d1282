package pagegen

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/sitegen/internal/imagesearch"
	"github.com/JakeFAU/sitegen/internal/site"
)

const queryAttr = "data-image-query"

// resolveImages replaces image placeholders with search results. Lookups are
// best effort: a failed query leaves its placeholder without a src.
func (g *Generator) resolveImages(ctx context.Context, html string) string {
	if g.images == nil || !strings.Contains(html, queryAttr) {
		return html
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		g.logger.Warn("parse generated html", zap.Error(err))
		return html
	}
	placeholders := doc.Find("img[" + queryAttr + "]")
	if placeholders.Length() == 0 {
		return html
	}

	queries := make([]string, 0, placeholders.Length())
	seen := make(map[string]struct{})
	placeholders.Each(func(_ int, s *goquery.Selection) {
		q := collapse(s.AttrOr(queryAttr, ""))
		if q == "" {
			return
		}
		if _, ok := seen[q]; ok {
			return
		}
		if len(queries) >= g.opts.MaxImages {
			return
		}
		seen[q] = struct{}{}
		queries = append(queries, q)
	})

	var (
		mu     sync.Mutex
		photos = make(map[string]site.Photo, len(queries))
	)
	group := new(errgroup.Group)
	group.SetLimit(g.opts.SearchConcurrency)
	for _, q := range queries {
		group.Go(func() error {
			searchCtx, cancel := context.WithTimeout(ctx, g.opts.SearchTimeout)
			defer cancel()
			photo, err := g.images.Search(searchCtx, q)
			if err != nil {
				if !errors.Is(err, imagesearch.ErrDisabled) {
					g.logger.Warn("image search failed", zap.String("query", q), zap.Error(err))
				}
				return nil
			}
			if photo.URL == "" {
				return nil
			}
			mu.Lock()
			photos[q] = photo
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	if len(photos) == 0 {
		return html
	}
	placeholders.Each(func(_ int, s *goquery.Selection) {
		photo, ok := photos[collapse(s.AttrOr(queryAttr, ""))]
		if !ok {
			return
		}
		s.SetAttr("src", photo.URL)
		if strings.TrimSpace(s.AttrOr("alt", "")) == "" && photo.Alt != "" {
			s.SetAttr("alt", photo.Alt)
		}
		if photo.Author != "" {
			s.SetAttr("data-image-author", photo.Author)
		}
		s.RemoveAttr(queryAttr)
	})

	out, err := doc.Html()
	if err != nil {
		g.logger.Warn("render resolved html", zap.Error(err))
		return html
	}
	return out
}
