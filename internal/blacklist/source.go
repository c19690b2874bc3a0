package blacklist

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/sells-group/supplier-verify/internal/anchor"
	"github.com/sells-group/supplier-verify/internal/fetcher"
)

// SourceConfig locates and reads the published list.
type SourceConfig struct {
	ListingURL string   `yaml:"listing_url" mapstructure:"listing_url"`
	LinkLabels []string `yaml:"link_labels" mapstructure:"link_labels"`
	Column     int      `yaml:"column" mapstructure:"column"`
	SkipRows   int      `yaml:"skip_rows" mapstructure:"skip_rows"`
}

// DefaultSourceConfig points at the SAT open-data page for article 69-B.
func DefaultSourceConfig() SourceConfig {
	return SourceConfig{
		ListingURL: "http://omawww.sat.gob.mx/cifras_sat/Paginas/DatosAbiertos/contribuyentes_publicados.html",
		LinkLabels: []string{"Listado completo", "Listado_Completo_69-B"},
		Column:     1,
		SkipRows:   3,
	}
}

// Source downloads the current list from the publishing site.
type Source struct {
	fetcher fetcher.Fetcher
	cfg     SourceConfig
	now     func() time.Time
}

// NewSource creates a Source.
func NewSource(f fetcher.Fetcher, cfg SourceConfig) *Source {
	return &Source{fetcher: f, cfg: cfg, now: time.Now}
}

// Fetch discovers the download link, downloads the list and returns it as a
// normalized snapshot.
func (s *Source) Fetch(ctx context.Context) (Snapshot, error) {
	link, err := s.Discover(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	rfcs, err := s.Load(ctx, link)
	if err != nil {
		return Snapshot{}, err
	}
	snap := NewSnapshot(link, s.now(), rfcs)
	zap.L().Info("blacklist: source loaded",
		zap.String("url", link),
		zap.Int("rows", len(rfcs)),
		zap.Int("valid", len(snap.RFCs)),
	)
	return snap, nil
}

// Discover fetches the listing page and returns the absolute URL of the
// first link whose text or href contains one of the configured labels.
func (s *Source) Discover(ctx context.Context) (string, error) {
	body, err := s.fetcher.Download(ctx, s.cfg.ListingURL)
	if err != nil {
		return "", eris.Wrap(err, "blacklist: fetch listing page")
	}
	defer body.Close()

	doc, err := html.Parse(body)
	if err != nil {
		return "", eris.Wrap(err, "blacklist: parse listing page")
	}
	href := FindLink(doc, s.cfg.LinkLabels)
	if href == "" {
		return "", eris.Errorf("blacklist: no link matching %v on %s", s.cfg.LinkLabels, s.cfg.ListingURL)
	}

	base, err := url.Parse(s.cfg.ListingURL)
	if err != nil {
		return "", eris.Wrap(err, "blacklist: parse listing url")
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", eris.Wrapf(err, "blacklist: parse link %q", href)
	}
	return base.ResolveReference(ref).String(), nil
}

// FindLink walks doc in order and returns the href of the first anchor
// element matching any label. Labels are compared accent- and
// case-insensitively; labels are tried in priority order.
func FindLink(doc *html.Node, labels []string) string {
	type link struct{ href, text string }
	var links []link
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, a := range n.Attr {
				if a.Key == "href" && a.Val != "" {
					links = append(links, link{href: a.Val, text: nodeText(n)})
					break
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	for _, label := range labels {
		want := anchor.Fold(label)
		if want == "" {
			continue
		}
		for _, l := range links {
			if strings.Contains(anchor.Fold(l.text), want) || strings.Contains(anchor.Fold(l.href), want) {
				return l.href
			}
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// Load downloads link and returns the raw identifier column. Workbooks and
// delimited text are told apart by content, not by extension.
func (s *Source) Load(ctx context.Context, link string) ([]string, error) {
	dir, err := os.MkdirTemp("", "blacklist-*")
	if err != nil {
		return nil, eris.Wrap(err, "blacklist: create temp dir")
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "list")
	n, err := s.fetcher.DownloadToFile(ctx, link, path)
	if err != nil {
		return nil, eris.Wrap(err, "blacklist: download list")
	}
	zap.L().Debug("blacklist: list downloaded", zap.String("url", link), zap.Int64("bytes", n))

	rows, err := s.readRows(path)
	if err != nil {
		return nil, err
	}
	return fetcher.Column(rows, s.cfg.Column), nil
}

var zipMagic = []byte("PK\x03\x04")

func (s *Source) readRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "blacklist: open list")
	}
	defer f.Close()

	head := make([]byte, 8192)
	m, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, eris.Wrap(err, "blacklist: read list header")
	}
	head = head[:m]

	kind, _ := filetype.Match(head)
	switch {
	case kind.Extension == "xlsx" || kind.Extension == "zip" || bytes.HasPrefix(head, zipMagic):
		return fetcher.ReadXLSX(path, fetcher.XLSXOptions{SkipRows: s.cfg.SkipRows})
	case kind == filetype.Unknown:
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, eris.Wrap(err, "blacklist: rewind list")
		}
		return fetcher.ReadCSV(f, fetcher.CSVOptions{SkipRows: s.cfg.SkipRows, TrimSpace: true})
	default:
		return nil, eris.Errorf("blacklist: unsupported list format %q", kind.MIME.Value)
	}
}
