// Package render fetches rendered content fragments from the content service.
package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"mail-digest-go/internal/digest"
)

// ErrContentNotFound is returned when the content service does not know the item.
var ErrContentNotFound = errors.New("content not found")

const maxFragmentBytes = 2 << 20

// fragmentResponse is the content service payload for one rendered item
type fragmentResponse struct {
	Title string `json:"title"`
	HTML  string `json:"html"`
}

// HTTPRenderer renders items through GET <base>/<type>/<id>?view_mode=<mode>.
type HTTPRenderer struct {
	baseURL string
	client  *http.Client
	policy  *bluemonday.Policy
}

var _ digest.Renderer = (*HTTPRenderer)(nil)

// NewHTTPRenderer creates a renderer against the content service at baseURL
func NewHTTPRenderer(baseURL string, timeout time.Duration) *HTTPRenderer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	policy := bluemonday.UGCPolicy()
	policy.AddTargetBlankToFullyQualifiedLinks(true)

	return &HTTPRenderer{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		policy:  policy,
	}
}

// Render returns the sanitized fragment of one content item. Every failure is
// reported as a *digest.RenderError.
func (r *HTTPRenderer) Render(ctx context.Context, contentID, contentType, viewMode string) (digest.Fragment, error) {
	fail := func(err error) (digest.Fragment, error) {
		return digest.Fragment{}, &digest.RenderError{ContentID: contentID, ContentType: contentType, Err: err}
	}

	endpoint := fmt.Sprintf("%s/%s/%s?view_mode=%s",
		r.baseURL, url.PathEscape(contentType), url.PathEscape(contentID), url.QueryEscape(viewMode))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fail(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fail(fmt.Errorf("failed to call content service: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fail(ErrContentNotFound)
	case resp.StatusCode != http.StatusOK:
		return fail(fmt.Errorf("content service returned %s", resp.Status))
	}

	var payload fragmentResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxFragmentBytes)).Decode(&payload); err != nil {
		return fail(fmt.Errorf("failed to decode fragment: %w", err))
	}

	html := strings.TrimSpace(r.policy.Sanitize(payload.HTML))
	if html == "" {
		return fail(errors.New("empty fragment"))
	}

	return digest.Fragment{
		Title: strings.TrimSpace(bluemonday.StrictPolicy().Sanitize(payload.Title)),
		HTML:  html,
	}, nil
}
