package lessonimport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	types "github.com/yungbote/figuregen-backend/internal/domain"
	"github.com/yungbote/figuregen-backend/internal/domain/figures"
	errs "github.com/yungbote/figuregen-backend/internal/pkg/errors"
	"github.com/yungbote/figuregen-backend/internal/platform/dbctx"
	"github.com/yungbote/figuregen-backend/internal/platform/httpx"
	"github.com/yungbote/figuregen-backend/internal/platform/logger"
)

const maxPageBytes = 10 << 20

var (
	slugStrip  = regexp.MustCompile(`[^a-z0-9]+`)
	noiseNodes = "script, style, noscript, nav, header, footer, form, iframe, template"
)

// FigureStore is the part of the record store an import writes to.
type FigureStore interface {
	Create(dbc dbctx.Context, f *types.Figure) (*types.Figure, error)
	GetByAssetID(dbc dbctx.Context, assetID string) (*types.Figure, error)
}

// Image is one content image found on a lesson page.
type Image struct {
	Src        string `json:"src"`
	Tag        string `json:"tag"`
	Subheading string `json:"subheading,omitempty"`
	Caption    string `json:"caption,omitempty"`
}

// Page is the parsed lesson.
type Page struct {
	URL         string  `json:"url"`
	Title       string  `json:"title"`
	Slug        string  `json:"slug"`
	CleanedText string  `json:"cleaned_text"`
	Images      []Image `json:"images"`
}

type Result struct {
	LessonTitle string          `json:"lesson_title"`
	LessonURL   string          `json:"lesson_url"`
	Created     []*types.Figure `json:"created"`
	Skipped     []string        `json:"skipped"`
}

type Importer struct {
	client  *http.Client
	figures FigureStore
	log     *logger.Logger
}

func NewImporter(baseLog *logger.Logger, figureStore FigureStore, client *http.Client) *Importer {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Importer{
		client:  client,
		figures: figureStore,
		log:     baseLog.With("service", "LessonImporter"),
	}
}

// Import fetches pageURL and creates one pending figure per content image.
// Images whose asset id already exists are skipped.
func (im *Importer) Import(ctx context.Context, pageURL string) (*Result, error) {
	page, err := im.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	res := &Result{LessonTitle: page.Title, LessonURL: page.URL}
	dbc := dbctx.New(ctx)
	for i, img := range page.Images {
		assetID := page.Slug + "-" + strconv.Itoa(i+1)
		if _, err := im.figures.GetByAssetID(dbc, assetID); err == nil {
			res.Skipped = append(res.Skipped, assetID)
			continue
		} else if !errors.Is(err, errs.ErrNotFound) {
			return res, err
		}
		f, err := im.figures.Create(dbc, &types.Figure{
			AssetID:      assetID,
			LessonTitle:  page.Title,
			LessonURL:    page.URL,
			ImgURL:       img.Src,
			ImgTag:       img.Tag,
			Subheading:   img.Subheading,
			ImgCaption:   img.Caption,
			CleanedXHTML: page.CleanedText,
			CurrentState: figures.StatePending,
		})
		if err != nil {
			return res, fmt.Errorf("create %s: %w", assetID, err)
		}
		res.Created = append(res.Created, f)
	}
	im.log.Info("Lesson imported", "lesson_url", page.URL, "images", len(page.Images), "created", len(res.Created), "skipped", len(res.Skipped))
	return res, nil
}

// Fetch downloads and parses a lesson page.
func (im *Importer) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	base, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("%w: lesson url must be an absolute http(s) url", errs.ErrInvalidInput)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", httpx.BrowserUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := im.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request lesson: %v", errs.ErrFetchFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: lesson returned %s", errs.ErrFetchFailed, resp.Status)
	}
	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: parse lesson: %v", errs.ErrFetchFailed, err)
	}
	return Parse(doc, base), nil
}

// Parse extracts the lesson title, its readable text and content images.
func Parse(doc *goquery.Document, base *url.URL) *Page {
	page := &Page{URL: base.String()}
	page.Title = collapse(doc.Find("h1").First().Text())
	if page.Title == "" {
		page.Title = collapse(doc.Find("title").First().Text())
	}
	if page.Title == "" {
		page.Title = lastPathSegment(base)
	}
	page.Slug = Slugify(page.Title)
	if page.Slug == "" {
		page.Slug = Slugify(lastPathSegment(base))
	}

	doc.Find(noiseNodes).Remove()
	root := contentRoot(doc)
	page.CleanedText = collapse(root.Text())

	subheading := ""
	root.Find("h1, h2, h3, h4, h5, h6, img").Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) != "img" {
			subheading = collapse(s.Text())
			return
		}
		src := imageSource(s)
		if src == "" || tooSmall(s) {
			return
		}
		abs, err := base.Parse(src)
		if err != nil {
			return
		}
		tag, _ := goquery.OuterHtml(s)
		page.Images = append(page.Images, Image{
			Src:        abs.String(),
			Tag:        tag,
			Subheading: subheading,
			Caption:    caption(s),
		})
	})
	return page
}

func contentRoot(doc *goquery.Document) *goquery.Selection {
	for _, sel := range []string{"article", "main", "[role=main]", "body"} {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			return s
		}
	}
	return doc.Selection
}

func imageSource(s *goquery.Selection) string {
	for _, attr := range []string{"src", "data-src", "data-original"} {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// tooSmall drops icons and spacers that declare their size.
func tooSmall(s *goquery.Selection) bool {
	for _, attr := range []string{"width", "height"} {
		if v, ok := s.Attr(attr); ok {
			if n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(v), "px")); err == nil && n < 32 {
				return true
			}
		}
	}
	return false
}

func caption(s *goquery.Selection) string {
	if fc := s.Closest("figure").Find("figcaption").First(); fc.Length() > 0 {
		if c := collapse(fc.Text()); c != "" {
			return c
		}
	}
	for _, attr := range []string{"alt", "title"} {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return collapse(v)
		}
	}
	return ""
}

// Slugify lowercases s and joins its alphanumeric runs with dashes.
func Slugify(s string) string {
	slug := strings.Trim(slugStrip.ReplaceAllString(strings.ToLower(s), "-"), "-")
	if len(slug) > 60 {
		slug = strings.TrimRight(slug[:60], "-")
	}
	return slug
}

func lastPathSegment(u *url.URL) string {
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	last := parts[len(parts)-1]
	if i := strings.LastIndexByte(last, '.'); i > 0 {
		last = last[:i]
	}
	if last == "" {
		return u.Host
	}
	return last
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
