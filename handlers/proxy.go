package handlers

import (
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"streamweave/utils/proxyurl"
)

const maxPlaylistRewriteBytes = 4 * 1024 * 1024

// StreamProxyHandler relays media requests while attaching the headers folded
// into the proxy URL. Playlist bodies are rewritten so every nested URI also
// routes through the proxy and keeps its headers.
type StreamProxyHandler struct {
	Client     *http.Client
	PublicBase string
}

func NewStreamProxyHandler(httpc *http.Client, publicBase string) *StreamProxyHandler {
	if httpc == nil {
		// No overall timeout: segment downloads run as long as the client reads.
		httpc = &http.Client{Timeout: 0}
	}
	return &StreamProxyHandler{Client: httpc, PublicBase: publicBase}
}

// Proxy handles GET/HEAD requests for /api/stream/proxy.
func (h *StreamProxyHandler) Proxy(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		http.Error(w, "url parameter is required", http.StatusBadRequest)
		return
	}

	headers := decodeHeaderParam(r.URL.Query().Get("h"))

	req, err := http.NewRequestWithContext(r.Context(), r.Method, target, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	// Range and conditional headers pass through so seeking works.
	for _, name := range []string{"Range", "If-Range", "If-None-Match", "If-Modified-Since"} {
		if v := r.Header.Get(name); v != "" {
			req.Header.Set(name, v)
		}
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		log.Printf("[stream-proxy] upstream request failed for %q: %v", target, err)
		http.Error(w, "upstream request failed", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if isPlaylistResponse(target, contentType) && resp.StatusCode < 300 && r.Method == http.MethodGet {
		h.servePlaylist(w, resp, target, headers)
		return
	}

	copyResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if r.Method == http.MethodHead {
		return
	}
	// Players abort ranged requests constantly; a copy error is not worth a
	// log line.
	_, _ = io.Copy(w, resp.Body)
}

// servePlaylist rewrites a playlist body so every URI routes back through the
// proxy with the same headers.
func (h *StreamProxyHandler) servePlaylist(w http.ResponseWriter, resp *http.Response, target string, headers map[string]string) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPlaylistRewriteBytes))
	if err != nil {
		http.Error(w, "upstream read failed", http.StatusBadGateway)
		return
	}

	finalURL := target
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	rewritten := h.rewritePlaylist(string(body), finalURL, headers)
	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(resp.StatusCode)
	w.Write([]byte(rewritten))
}

// rewritePlaylist wraps every URI line and URI attribute in proxy form.
func (h *StreamProxyHandler) rewritePlaylist(body, baseURL string, headers map[string]string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return body
	}

	wrap := func(ref string) string {
		refURL, err := url.Parse(strings.TrimSpace(ref))
		if err != nil {
			return ref
		}
		return proxyurl.Wrap(h.PublicBase, base.ResolveReference(refURL).String(), headers)
	}

	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
		case strings.HasPrefix(trimmed, "#"):
			lines[i] = rewriteURIAttribute(trimmed, wrap)
		default:
			lines[i] = wrap(trimmed)
		}
	}
	return strings.Join(lines, "\n")
}

// rewriteURIAttribute rewrites the URI="..." attribute carried by tags like
// EXT-X-MEDIA and EXT-X-KEY.
func rewriteURIAttribute(line string, wrap func(string) string) string {
	const marker = `URI="`
	idx := strings.Index(line, marker)
	if idx < 0 {
		return line
	}
	start := idx + len(marker)
	end := strings.Index(line[start:], `"`)
	if end < 0 {
		return line
	}
	return line[:start] + wrap(line[start:start+end]) + line[start+end:]
}

func decodeHeaderParam(param string) map[string]string {
	if param == "" {
		return nil
	}
	// Reuse the proxyurl decoding by reconstructing a minimal wrapped URL.
	_, headers, ok := proxyurl.Unwrap("http://x/api/stream/proxy?url=x&h=" + url.QueryEscape(param))
	if !ok {
		return nil
	}
	return headers
}

func isPlaylistResponse(target, contentType string) bool {
	if strings.Contains(strings.ToLower(contentType), "mpegurl") {
		return true
	}
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".m3u8")
}

func copyResponseHeaders(dst, src http.Header) {
	for _, name := range []string{
		"Content-Type", "Content-Length", "Content-Range",
		"Accept-Ranges", "Cache-Control", "ETag", "Last-Modified",
	} {
		if v := src.Get(name); v != "" {
			dst.Set(name, v)
		}
	}
}

// Options handles CORS preflight requests.
func (h *StreamProxyHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
