package document

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/GriffinCanCode/docloader/internal/transport"
	"github.com/PuerkitoBio/goquery"
	"github.com/gabriel-vasile/mimetype"
	"github.com/saintfish/chardet"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
)

// DefaultMaxBodyBytes caps how much of a response is parsed.
const DefaultMaxBodyBytes int64 = 10 << 20

const blankMarkup = "<html><head></head><body></body></html>"

// Downloader starts a download and returns its handle.
type Downloader interface {
	Download(ctx context.Context, req transport.Request) *transport.Handle
}

// Builder turns responses and addresses into Documents.
type Builder struct {
	downloader Downloader
	maxBody    int64
	log        *zap.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithMaxBodyBytes caps the bytes read from a response.
func WithMaxBodyBytes(n int64) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.maxBody = n
		}
	}
}

// WithBuilderLogger sets the builder's logger.
func WithBuilderLogger(l *zap.Logger) BuilderOption {
	return func(b *Builder) {
		if l != nil {
			b.log = l.Named("document")
		}
	}
}

// NewBuilder creates a builder that fetches follow-up documents through d.
func NewBuilder(d Downloader, opts ...BuilderOption) *Builder {
	b := &Builder{
		downloader: d,
		maxBody:    DefaultMaxBodyBytes,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// OpenFromResponse parses resp into a Document. The response stays owned by
// the caller; it is read but not closed.
func (b *Builder) OpenFromResponse(ctx context.Context, resp *transport.Response) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, b.maxBody+1))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("reading %s: %w", resp.URL, err)
	}
	if int64(len(data)) > b.maxBody {
		return nil, fmt.Errorf("document %s exceeds %d bytes", resp.URL, b.maxBody)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	contentType := resp.ContentType()
	if contentType == "" {
		contentType = mimetype.Detect(data).String()
	}

	var doc *Document
	if isMarkup(contentType) {
		doc, err = b.parse(resp.URL, data, contentType)
		if err != nil {
			return nil, err
		}
	} else {
		b.log.Debug("non-markup response opened as blank document",
			zap.String("url", resp.URL.String()),
			zap.String("content_type", contentType),
		)
		doc, err = blank(resp.URL)
		if err != nil {
			return nil, err
		}
	}

	doc.Status = resp.Status
	doc.Referrer = resp.Referrer
	doc.ContentType = contentType
	return doc, nil
}

// OpenBlank opens an empty document whose address is u.
func (b *Builder) OpenBlank(ctx context.Context, u *url.URL) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return blank(u)
}

// OpenFromURL downloads u and opens the result. A download with no body
// yields a blank document at u.
func (b *Builder) OpenFromURL(ctx context.Context, u *url.URL) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h := b.downloader.Download(ctx, transport.Request{URL: u.String(), Method: http.MethodGet})
	stop := context.AfterFunc(ctx, h.Cancel)
	defer stop()

	resp, err := h.Await(ctx)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return b.OpenBlank(ctx, u)
	}
	defer resp.Close()

	return b.OpenFromResponse(ctx, resp)
}

func (b *Builder) parse(u *url.URL, data []byte, contentType string) (*Document, error) {
	name := detectCharset(data, contentType)

	r, err := charset.NewReaderLabel(name, bytes.NewReader(data))
	if err != nil {
		b.log.Debug("unknown charset, parsing as utf-8", zap.String("charset", name))
		name = "utf-8"
		r = bytes.NewReader(data)
	}

	tree, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", u, err)
	}

	doc := newDocument(u, tree)
	doc.Charset = name
	return doc, nil
}

func blank(u *url.URL) (*Document, error) {
	return FromHTML(u, blankMarkup)
}

// detectCharset trusts a BOM, the Content-Type parameter or a <meta>
// declaration, and falls back to statistical detection for bytes that are
// not valid UTF-8 and carry no declaration.
func detectCharset(data []byte, contentType string) string {
	_, name, certain := charset.DetermineEncoding(data, contentType)
	if certain || utf8.Valid(data) || declaresCharset(data) {
		return name
	}

	result, err := chardet.NewHtmlDetector().DetectBest(data)
	if err != nil || result == nil || result.Confidence < 50 {
		return name
	}
	return strings.ToLower(result.Charset)
}

// declaresCharset reports whether the prescan window mentions a charset,
// in which case DetermineEncoding has already honored it.
func declaresCharset(data []byte) bool {
	if len(data) > 1024 {
		data = data[:1024]
	}
	return bytes.Contains(bytes.ToLower(data), []byte("charset"))
}

func isMarkup(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	return strings.HasPrefix(mediaType, "text/") ||
		strings.Contains(mediaType, "html") ||
		strings.HasSuffix(mediaType, "xml")
}
