package digest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"mail-digest-go/internal/model"
)

// UnsubscribeToken is replaced by the mailing platform with the recipient's
// unsubscribe URL.
const UnsubscribeToken = "{action.unsubscribeUrl}"

// RenderedItem is one successfully rendered digest item.
type RenderedItem struct {
	ContentID   string
	ContentType string
	Title       string
	HTML        template.HTML
}

// RenderedDigest is an assembled digest ready for display or dispatch.
type RenderedDigest struct {
	DigestID  uint // zero for a preview of the next digest
	Subject   string
	HTML      string
	ViewURL   string
	FromGroup string
	Items     []RenderedItem
	Failures  []*RenderError
}

var layout = template.Must(template.New("digest").Parse(`<!DOCTYPE html>
<html lang="{{.Language}}">
<head><meta charset="utf-8"><title>{{.Subject}}</title></head>
<body>
<h1>{{.Subject}}</h1>
{{- if .ViewURL}}
<p><a href="{{.ViewURL}}">View it online</a></p>
{{- end}}
{{- range .Items}}
<article class="digest-item" data-content-id="{{.ContentID}}">
{{- if .Title}}
<h2>{{.Title}}</h2>
{{- end}}
{{.HTML}}
</article>
{{- end}}
<p class="unsubscribe">{{.Unsubscribe}}</p>
</body>
</html>
`))

type layoutData struct {
	Language    string
	Subject     string
	ViewURL     string
	Items       []RenderedItem
	Unsubscribe template.HTML
}

// ViewURL returns the absolute browser view link of a digest.
func ViewURL(publicURL string, id uint) string {
	if publicURL == "" || id == 0 {
		return ""
	}
	return fmt.Sprintf("%s/api/v1/digests/%d/view", strings.TrimRight(publicURL, "/"), id)
}

// Subject returns the digest title with its number appended.
func Subject(title string, id uint) string {
	if id == 0 {
		return title + " (preview)"
	}
	return fmt.Sprintf("%s #%d", title, id)
}

// assemble renders every item concurrently and wraps the fragments into the
// digest layout. Items that fail to render are skipped and reported in
// Failures; assembly fails only when nothing could be rendered.
func (c *Controller) assemble(ctx context.Context, s Settings, id uint, items []model.DigestItem) (*RenderedDigest, error) {
	rendered := make([]*RenderedItem, len(items))
	failures := make([]*RenderError, len(items))

	var g errgroup.Group
	g.SetLimit(s.renderConcurrency())
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			frag, err := c.renderer.Render(ctx, item.ContentID, item.ContentType, s.ViewMode)
			if err != nil {
				failures[i] = asRenderError(item, err)
				return nil
			}
			rendered[i] = &RenderedItem{
				ContentID:   item.ContentID,
				ContentType: item.ContentType,
				Title:       frag.Title,
				HTML:        template.HTML(frag.HTML),
			}
			return nil
		})
	}
	// render errors are kept in failures; the group only bounds concurrency
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rd := &RenderedDigest{
		DigestID:  id,
		Subject:   Subject(s.Title, id),
		ViewURL:   ViewURL(s.PublicURL, id),
		FromGroup: s.FromGroup,
	}
	for i := range items {
		if failures[i] != nil {
			logrus.WithFields(logrus.Fields{
				"digest_id":    id,
				"content_id":   failures[i].ContentID,
				"content_type": failures[i].ContentType,
			}).Warnf("Skipping digest item: %v", failures[i].Err)
			c.metrics.RenderFailures.Inc()
			rd.Failures = append(rd.Failures, failures[i])
			continue
		}
		rd.Items = append(rd.Items, *rendered[i])
	}

	if len(rd.Items) == 0 {
		return nil, &RenderError{Err: ErrNothingRendered}
	}

	var buf bytes.Buffer
	err := layout.Execute(&buf, layoutData{
		Language:    s.Selection.Language,
		Subject:     rd.Subject,
		ViewURL:     rd.ViewURL,
		Items:       rd.Items,
		Unsubscribe: template.HTML(`<a href="` + UnsubscribeToken + `">Unsubscribe</a>`),
	})
	if err != nil {
		return nil, &RenderError{Err: fmt.Errorf("failed to execute digest layout: %w", err)}
	}
	rd.HTML = buf.String()

	return rd, nil
}

func asRenderError(item model.DigestItem, err error) *RenderError {
	var re *RenderError
	if errors.As(err, &re) {
		out := *re
		if out.ContentID == "" {
			out.ContentID = item.ContentID
			out.ContentType = item.ContentType
		}
		return &out
	}
	return &RenderError{ContentID: item.ContentID, ContentType: item.ContentType, Err: err}
}
