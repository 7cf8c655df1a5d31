package document

import (
	"errors"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// ErrReleased is returned by accessors of a closed Document.
var ErrReleased = errors.New("document: released")

// Document is a parsed, navigable page. Whoever holds a Document owns it
// and must Close it when done.
type Document struct {
	URL         *url.URL
	Referrer    string
	Status      int
	ContentType string
	Charset     string

	mu   sync.RWMutex
	tree *goquery.Document
}

func newDocument(u *url.URL, tree *goquery.Document) *Document {
	tree.Url = u
	return &Document{URL: u, tree: tree}
}

// FromHTML parses UTF-8 markup into a Document at u.
func FromHTML(u *url.URL, markup string) (*Document, error) {
	tree, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, err
	}
	doc := newDocument(u, tree)
	doc.ContentType = "text/html"
	doc.Charset = "utf-8"
	return doc, nil
}

// Address returns the document's current address as a string.
func (d *Document) Address() string {
	if d.URL == nil {
		return ""
	}
	return d.URL.String()
}

// Query returns the goquery view of the tree.
func (d *Document) Query() (*goquery.Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.tree == nil {
		return nil, ErrReleased
	}
	return d.tree, nil
}

// Find runs a CSS selector over the tree.
func (d *Document) Find(selector string) (*goquery.Selection, error) {
	q, err := d.Query()
	if err != nil {
		return nil, err
	}
	return q.Find(selector), nil
}

// Title returns the trimmed text of the first <title>, or "".
func (d *Document) Title() string {
	q, err := d.Query()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(q.Find("title").First().Text())
}

// HTML renders the tree back to markup.
func (d *Document) HTML() (string, error) {
	q, err := d.Query()
	if err != nil {
		return "", err
	}
	return q.Html()
}

// XPath evaluates expr against the tree.
func (d *Document) XPath(expr string) ([]*html.Node, error) {
	q, err := d.Query()
	if err != nil {
		return nil, err
	}
	if len(q.Nodes) == 0 {
		return nil, nil
	}
	return htmlquery.QueryAll(q.Nodes[0], expr)
}

// Close drops the tree. It is safe to call more than once.
func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tree = nil
	return nil
}

// Released reports whether Close has been called.
func (d *Document) Released() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.tree == nil
}
