package notify

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/quenary/tugtainer/internal/engine"
	"github.com/quenary/tugtainer/internal/metrics"
)

// templateData is what the title and body templates render against.
type templateData struct {
	Hosts []engine.HostResult
}

var templateFuncs = template.FuncMap{
	"anyWorthy": anyWorthy,
	"itemsFor":  itemsFor,
}

// anyWorthy reports whether any item of any host deserves a notification.
func anyWorthy(hosts []engine.HostResult) bool {
	for _, h := range hosts {
		for _, it := range h.Items {
			if it.Result.Worthy() {
				return true
			}
		}
	}
	return false
}

// itemsFor filters a host's items to one result section. "available"
// covers both fresh and previously announced availability.
func itemsFor(h engine.HostResult, section string) []engine.ContainerResult {
	var out []engine.ContainerResult
	for _, it := range h.Items {
		switch section {
		case "available":
			if it.Result == engine.ResultAvailable {
				out = append(out, it)
			}
		case "updated":
			if it.Result == engine.ResultUpdated {
				out = append(out, it)
			}
		case "rolled_back":
			if it.Result == engine.ResultRolledBack {
				out = append(out, it)
			}
		case "failed":
			if it.Result == engine.ResultFailed {
				out = append(out, it)
			}
		}
	}
	return out
}

// Bridge renders run results and fans them out to the providers. It
// implements engine.Notifier.
type Bridge struct {
	providers []Provider
	title     *template.Template
	body      *template.Template
	log       Logger
}

// NewBridge parses the templates and builds the bridge. Empty template
// strings fall back to the built-in defaults.
func NewBridge(providers []Provider, titleTmpl, bodyTmpl string, log Logger) (*Bridge, error) {
	if titleTmpl == "" {
		titleTmpl = defaultTitleTemplate
	}
	if bodyTmpl == "" {
		bodyTmpl = defaultBodyTemplate
	}

	title, err := template.New("title").Funcs(templateFuncs).Parse(titleTmpl)
	if err != nil {
		return nil, fmt.Errorf("parse title template: %w", err)
	}
	body, err := template.New("body").Funcs(templateFuncs).Parse(bodyTmpl)
	if err != nil {
		return nil, fmt.Errorf("parse body template: %w", err)
	}

	return &Bridge{providers: providers, title: title, body: body, log: log}, nil
}

// Notify renders and dispatches the results. Hosts without a worthy item
// produce no notification at all; provider failures are logged, never
// propagated.
func (b *Bridge) Notify(ctx context.Context, results []engine.HostResult) {
	if !anyWorthy(results) {
		return
	}

	title, err := b.render(b.title, results)
	if err != nil {
		b.log.Error("failed to render notification title", "err", err)
		return
	}
	body, err := b.render(b.body, results)
	if err != nil {
		b.log.Error("failed to render notification body", "err", err)
		return
	}

	for _, p := range b.providers {
		if err := p.Send(ctx, title, body); err != nil {
			b.log.Error("notification failed", "provider", p.Name(), "err", err)
			continue
		}
		metrics.NotificationsSent.Inc()
	}
}

func (b *Bridge) render(t *template.Template, results []engine.HostResult) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, templateData{Hosts: results}); err != nil {
		return "", err
	}
	return strings.TrimSpace(sb.String()), nil
}
