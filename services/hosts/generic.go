package hosts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/net/html"
)

const probeUserAgent = "Mozilla/5.0 (Linux; Android 13) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Mobile Safari/537.36"

// GenericHandler probes unrecognized URLs: direct media URLs are trusted
// outright, everything else gets a HEAD request (falling back to a ranged
// GET) and, for HTML responses, a body scan for stream URLs.
type GenericHandler struct {
	httpc *http.Client
}

var (
	streamURLRe = regexp.MustCompile(`https?://[^"'\s\\]+\.(?:m3u8|mp4)[^"'\s\\]*`)
	// file: "...", source: "...", src="..." in inline player setup scripts.
	inlineSourceRe = regexp.MustCompile(`(?:file|source|src)\s*[:=]\s*["']((?:https?:)?//[^"']+)["']`)
)

func NewGenericHandler(httpc *http.Client) *GenericHandler {
	return &GenericHandler{httpc: httpc}
}

func (h *GenericHandler) Name() string { return "generic" }

func (h *GenericHandler) Matches(string) bool { return true }

func (h *GenericHandler) Resolve(ctx context.Context, embedURL string, hints Hints) (*Result, error) {
	if isDirectMediaURL(embedURL) {
		return &Result{URI: embedURL}, nil
	}

	headers := map[string]string{"User-Agent": probeUserAgent}
	if hints.Referer != "" {
		headers["Referer"] = hints.Referer
	}

	ct, err := h.probeContentType(ctx, embedURL, headers)
	if err != nil {
		return nil, fmt.Errorf("probe: %w", err)
	}

	if isMediaContentType(ct) {
		return &Result{URI: embedURL, Headers: headers}, nil
	}
	if !isHTMLContentType(ct) {
		return nil, nil
	}

	return h.scanPage(ctx, embedURL, headers)
}

// probeContentType issues a HEAD request, falling back to a one-byte ranged
// GET for hosts that reject HEAD. When the server omits or lies about the
// content type, the first bytes of a ranged GET are sniffed instead.
func (h *GenericHandler) probeContentType(ctx context.Context, rawURL string, headers map[string]string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return "", err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := h.httpc.Do(req)
	if err == nil && resp.StatusCode < 400 {
		ct := resp.Header.Get("Content-Type")
		resp.Body.Close()
		if ct != "" {
			return ct, nil
		}
	} else if resp != nil {
		resp.Body.Close()
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Range", "bytes=0-511")
	resp, err = h.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("ranged probe returned %s", resp.Status)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(strings.ToLower(ct), "octet-stream") {
		return ct, nil
	}
	head, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return mimetype.Detect(head).String(), nil
}

// scanPage fetches an HTML page and hunts for a stream URL, first in
// <source>/<video> elements, then in inline script patterns.
func (h *GenericHandler) scanPage(ctx context.Context, pageURL string, headers map[string]string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := h.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("page fetch returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, err
	}
	page := string(body)
	if containsAny(page, goneMarkers...) {
		return nil, ErrFileGone
	}

	if uri := findMarkupSource(page); uri != "" {
		return &Result{URI: uri, Headers: map[string]string{"Referer": pageURL}}, nil
	}
	if m := streamURLRe.FindString(page); m != "" {
		return &Result{URI: m, Headers: map[string]string{"Referer": pageURL}}, nil
	}
	if m := inlineSourceRe.FindStringSubmatch(page); m != nil {
		uri := m[1]
		if strings.HasPrefix(uri, "//") {
			uri = "https:" + uri
		}
		return &Result{URI: uri, Headers: map[string]string{"Referer": pageURL}}, nil
	}
	return nil, nil
}

// findMarkupSource walks the HTML tree for <source src> and <video src>
// attributes pointing at playable URLs.
func findMarkupSource(page string) string {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return ""
	}
	var found string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != "" {
			return
		}
		if n.Type == html.ElementNode && (n.Data == "source" || n.Data == "video") {
			for _, attr := range n.Attr {
				if attr.Key == "src" && isDirectMediaURL(attr.Val) {
					found = attr.Val
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return found
}
