package sanitizer

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"

	"github.com/mailvault/mailvault/internal/logger"
)

// Result is the sanitizer's output: the HTML that gets cached and rendered,
// plus the remote-image classification counters.
type Result struct {
	HTML           string
	BlockedImages  int
	TrackingPixels int
}

// Service strips active content from message HTML and classifies remote
// images. Every body destined for the UI passes through here; raw or
// pre-sanitized content is never served.
type Service struct {
	log logger.Logger
}

func NewService(log logger.Logger) *Service {
	return &Service{log: log}
}

var activeSelectors = []string{
	"script", "iframe", "object", "embed", "applet", "base", "meta", "link", "form",
}

func (s *Service) Sanitize(html string) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, errors.Wrap(err, "parsing message HTML")
	}

	for _, sel := range activeSelectors {
		doc.Find(sel).Remove()
	}

	// Strip event handlers and script URLs from what remains.
	doc.Find("*").Each(func(_ int, sel *goquery.Selection) {
		for _, node := range sel.Nodes {
			kept := node.Attr[:0]
			for _, attr := range node.Attr {
				name := strings.ToLower(attr.Key)
				if strings.HasPrefix(name, "on") {
					continue
				}
				if (name == "href" || name == "src" || name == "action") &&
					strings.HasPrefix(strings.TrimSpace(strings.ToLower(attr.Val)), "javascript:") {
					continue
				}
				kept = append(kept, attr)
			}
			node.Attr = kept
		}
	})

	result := &Result{}

	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		lowered := strings.ToLower(strings.TrimSpace(src))

		// cid: references resolve to inline attachments and stay untouched.
		if strings.HasPrefix(lowered, "cid:") || strings.HasPrefix(lowered, "data:") {
			return
		}
		if !strings.HasPrefix(lowered, "http://") && !strings.HasPrefix(lowered, "https://") {
			return
		}

		if isTrackingPixel(img) {
			result.TrackingPixels++
			img.Remove()
			return
		}

		result.BlockedImages++
		img.SetAttr("data-blocked-src", src)
		img.RemoveAttr("src")
	})

	out, err := doc.Find("body").Html()
	if err != nil {
		return nil, errors.Wrap(err, "serializing sanitized HTML")
	}
	result.HTML = out
	return result, nil
}

func isTrackingPixel(img *goquery.Selection) bool {
	width, _ := img.Attr("width")
	height, _ := img.Attr("height")
	if isPixelDimension(width) && isPixelDimension(height) {
		return true
	}
	if style, ok := img.Attr("style"); ok {
		style = strings.ReplaceAll(strings.ToLower(style), " ", "")
		if strings.Contains(style, "width:1px") && strings.Contains(style, "height:1px") {
			return true
		}
	}
	return false
}

func isPixelDimension(v string) bool {
	v = strings.TrimSuffix(strings.TrimSpace(v), "px")
	return v == "0" || v == "1"
}
