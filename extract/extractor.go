// Package extract converts raw fetched HTML into clean text plus an
// optional document title.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// minContentLength is the sanity floor below which extracted text is
// treated as unusable. A design constant, not a content policy.
const minContentLength = 50

// ErrContentTooShort indicates the document yielded less than
// minContentLength characters of text.
var ErrContentTooShort = errors.New("extracted text below minimum usable length")

// Document is the extraction result: normalized text with paragraph
// breaks as single newlines, and an optional title.
type Document struct {
	Title string
	Text  string
}

// Extractor converts HTML to clean text with readability-based main
// content detection and a DOM-cleanup fallback.
type Extractor struct {
	converter *md.Converter
}

// NewExtractor creates an HTML extractor.
func NewExtractor() *Extractor {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())

	return &Extractor{converter: converter}
}

// Extract returns the clean text and title of an HTML document.
// Returns ErrContentTooShort when the usable text is under the minimum.
func (e *Extractor) Extract(htmlBody []byte, sourceURL string) (*Document, error) {
	title := extractTitle(htmlBody)

	content := e.readableContent(htmlBody, sourceURL)
	if content == "" {
		content = fallbackContent(htmlBody)
	}

	markdown, err := e.converter.ConvertString(content)
	if err != nil {
		return nil, fmt.Errorf("convert content: %w", err)
	}

	text := normalizeText(markdown)
	if len(text) < minContentLength {
		return nil, fmt.Errorf("%w: %d chars", ErrContentTooShort, len(text))
	}

	return &Document{Title: title, Text: text}, nil
}

// readableContent runs readability extraction and returns the main
// content HTML, or "" when the document defeats it.
func (e *Extractor) readableContent(htmlBody []byte, sourceURL string) string {
	pageURL, err := url.Parse(sourceURL)
	if err != nil {
		pageURL = &url.URL{}
	}

	article, err := readability.FromReader(bytes.NewReader(htmlBody), pageURL)
	if err != nil {
		return ""
	}
	return article.Content
}

// fallbackContent strips non-content elements from the raw document and
// returns the body HTML.
func fallbackContent(htmlBody []byte) string {
	doc, err := html.Parse(bytes.NewReader(htmlBody))
	if err != nil {
		return string(htmlBody)
	}

	removeElements(doc, []string{
		"script", "style", "noscript", "nav", "header", "footer", "aside",
		"iframe", "object", "embed", "form", "input", "button",
	})
	removeByClass(doc, []string{
		"nav", "navbar", "navigation", "sidebar", "menu", "toc",
		"footer", "header", "ad", "advertisement", "breadcrumb",
	})

	if body := findElement(doc, "body"); body != nil {
		return renderNode(body)
	}
	return renderNode(doc)
}

// extractTitle resolves the document title: <title> metadata first,
// then the first <h1>, else "".
func extractTitle(htmlBody []byte) string {
	doc, err := html.Parse(bytes.NewReader(htmlBody))
	if err != nil {
		return ""
	}

	if node := findElement(doc, "title"); node != nil {
		if t := strings.TrimSpace(textContent(node)); t != "" {
			return t
		}
	}
	if node := findElement(doc, "h1"); node != nil {
		return strings.TrimSpace(textContent(node))
	}
	return ""
}

// normalizeText collapses whitespace, dropping blank lines so that
// paragraph breaks become single newlines.
func normalizeText(content string) string {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return strings.Join(lines, "\n")
}

// findElement finds the first element with the given tag name.
func findElement(n *html.Node, tag string) *html.Node {
	var result *html.Node
	var find func(*html.Node)
	find = func(node *html.Node) {
		if result != nil {
			return
		}
		if node.Type == html.ElementNode && node.Data == tag {
			result = node
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			find(c)
		}
	}
	find(n)
	return result
}

// textContent renders the concatenated text of a node's subtree.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// removeElements removes all elements with the given tag names.
func removeElements(n *html.Node, tags []string) {
	tagSet := make(map[string]bool)
	for _, tag := range tags {
		tagSet[tag] = true
	}

	var toRemove []*html.Node
	var collect func(*html.Node)
	collect = func(node *html.Node) {
		if node.Type == html.ElementNode && tagSet[node.Data] {
			toRemove = append(toRemove, node)
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)

	for _, node := range toRemove {
		if node.Parent != nil {
			node.Parent.RemoveChild(node)
		}
	}
}

// removeByClass removes elements that carry any of the given class names.
func removeByClass(n *html.Node, classes []string) {
	classSet := make(map[string]bool)
	for _, class := range classes {
		classSet[strings.ToLower(class)] = true
	}

	var toRemove []*html.Node
	var collect func(*html.Node)
	collect = func(node *html.Node) {
		if node.Type == html.ElementNode {
			for _, a := range node.Attr {
				if a.Key == "class" {
					for _, c := range strings.Fields(strings.ToLower(a.Val)) {
						if classSet[c] {
							toRemove = append(toRemove, node)
							return
						}
					}
				}
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)

	for _, node := range toRemove {
		if node.Parent != nil {
			node.Parent.RemoveChild(node)
		}
	}
}

// renderNode renders a node and its children back to an HTML string.
func renderNode(n *html.Node) string {
	var sb strings.Builder
	html.Render(&sb, n)
	return sb.String()
}
