package notify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"github.com/osteele/liquid"

	"github.com/ignite/newsletter-service/internal/domain"
)

// ErrTemplateNotFound is returned by a TemplateSource without the named template.
var ErrTemplateNotFound = errors.New("template not found")

// TemplateSource loads raw Liquid templates by name, e.g.
// "confirmation_request.subject.liquid".
type TemplateSource interface {
	Load(ctx context.Context, name string) (string, error)
}

// Links holds the storefront endpoints that notification links point to.
type Links struct {
	ConfirmURL     string
	UnsubscribeURL string
}

var defaultTemplates = map[string]string{
	"confirmation_request.subject.liquid": `Please confirm your newsletter subscription`,
	"confirmation_request.html.liquid": `<p>Thank you for subscribing to our newsletter.</p>
<p><a href="{{ confirm_url }}">Confirm your subscription</a></p>`,
	"confirmation_success.subject.liquid": `Newsletter subscription success`,
	"confirmation_success.html.liquid": `<p>You are now subscribed to our newsletter with {{ email }}.</p>
<p>To stop receiving it, <a href="{{ unsubscribe_url }}">unsubscribe here</a>.</p>`,
	"unsubscription.subject.liquid": `Newsletter unsubscription success`,
	"unsubscription.html.liquid":    `<p>{{ email }} has been unsubscribed from our newsletter.</p>`,
}

// Renderer turns a notification kind and subscriber into subject and body.
// Parsed templates are cached by name.
type Renderer struct {
	engine *liquid.Engine
	source TemplateSource
	links  Links
	cache  sync.Map // map[string]*liquid.Template
}

// NewRenderer creates a renderer. A nil source uses the built-in templates.
func NewRenderer(source TemplateSource, links Links) *Renderer {
	return &Renderer{engine: liquid.NewEngine(), source: source, links: links}
}

// Render produces the subject and HTML body of one notification.
func (r *Renderer) Render(ctx context.Context, kind domain.NotificationKind, s *domain.Subscriber) (subject, html string, err error) {
	if !kind.Valid() {
		return "", "", fmt.Errorf("render: unknown notification kind %q", kind)
	}
	vars := r.bindings(s)

	if subject, err = r.render(ctx, string(kind)+".subject.liquid", vars); err != nil {
		return "", "", err
	}
	if html, err = r.render(ctx, string(kind)+".html.liquid", vars); err != nil {
		return "", "", err
	}
	return subject, html, nil
}

func (r *Renderer) bindings(s *domain.Subscriber) map[string]interface{} {
	return map[string]interface{}{
		"email":           s.Email,
		"subscriber_id":   s.ID,
		"store_id":        s.StoreID,
		"confirm_url":     linkWithCode(r.links.ConfirmURL, s),
		"unsubscribe_url": linkWithCode(r.links.UnsubscribeURL, s),
	}
}

func (r *Renderer) render(ctx context.Context, name string, vars map[string]interface{}) (string, error) {
	if cached, ok := r.cache.Load(name); ok {
		return renderTemplate(cached.(*liquid.Template), name, vars)
	}

	src, err := r.load(ctx, name)
	if err != nil {
		return "", err
	}
	tpl, perr := r.engine.ParseString(src)
	if perr != nil {
		return "", fmt.Errorf("parse template %s: %w", name, perr)
	}
	r.cache.Store(name, tpl)
	return renderTemplate(tpl, name, vars)
}

func (r *Renderer) load(ctx context.Context, name string) (string, error) {
	if r.source != nil {
		src, err := r.source.Load(ctx, name)
		if err == nil {
			return src, nil
		}
		if !errors.Is(err, ErrTemplateNotFound) {
			return "", fmt.Errorf("load template %s: %w", name, err)
		}
	}
	src, ok := defaultTemplates[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	return src, nil
}

func renderTemplate(tpl *liquid.Template, name string, vars map[string]interface{}) (string, error) {
	out, err := tpl.RenderString(vars)
	if err != nil {
		return "", fmt.Errorf("render template %s: %w", name, err)
	}
	return out, nil
}

// linkWithCode appends the subscriber id and confirmation code to base.
func linkWithCode(base string, s *domain.Subscriber) string {
	if base == "" {
		return ""
	}
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("id", s.ID)
	q.Set("code", s.ConfirmationCode)
	u.RawQuery = q.Encode()
	return u.String()
}

// storeTag formats a store id for message tags.
func storeTag(id int64) string { return strconv.FormatInt(id, 10) }
