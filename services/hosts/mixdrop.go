package hosts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
)

// MixdropHandler extracts the delivery URL from the inline player script on
// mixdrop-style embed pages.
type MixdropHandler struct {
	httpc *http.Client
}

var (
	// MDCore.wurl = "//s-delivery.mxdcontent.net/v/abc.mp4?..."
	wurlRe = regexp.MustCompile(`wurl\s*=\s*"([^"]+)"`)
	// Fallback: any delivery-looking URL in the packed script.
	deliveryRe = regexp.MustCompile(`(?:https?:)?//[a-z0-9.\-]+/v/[^"'\s]+`)
)

func NewMixdropHandler(httpc *http.Client) *MixdropHandler {
	return &MixdropHandler{httpc: httpc}
}

func (h *MixdropHandler) Name() string { return "mixdrop" }

func (h *MixdropHandler) Matches(rawURL string) bool {
	return containsAny(rawURL, "mixdrop", "mxdrop", "mixdrp", "mdbekjwqa")
}

func (h *MixdropHandler) Resolve(ctx context.Context, embedURL string, hints Hints) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, embedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", probeUserAgent)
	if hints.Referer != "" {
		req.Header.Set("Referer", hints.Referer)
	}

	resp, err := h.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch embed page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("embed page returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read embed page: %w", err)
	}
	page := string(body)
	if containsAny(page, goneMarkers...) {
		return nil, ErrFileGone
	}

	raw := ""
	if m := wurlRe.FindStringSubmatch(page); m != nil {
		raw = m[1]
	} else if m := deliveryRe.FindString(page); m != "" {
		raw = m
	}
	if raw == "" {
		return nil, nil
	}
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}

	return &Result{URI: raw, Headers: map[string]string{"Referer": embedURL}}, nil
}
