package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"

	"go.uber.org/zap"

	"github.com/notifyhub/salon-notifier/internal/domain"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

// subjects maps each kind to its email subject prefix.
var subjects = map[domain.EventKind]string{
	domain.KindCreated:   "Your appointment is booked",
	domain.KindUpdated:   "Your appointment has changed",
	domain.KindCancelled: "Your appointment was cancelled",
	domain.KindConfirmed: "Your appointment is confirmed",
	domain.KindCompleted: "Thanks for your visit",
	domain.KindNoShow:    "We missed you",
}

// pushTitles maps each kind to its push notification title.
var pushTitles = map[domain.EventKind]string{
	domain.KindCreated:   "Appointment booked",
	domain.KindUpdated:   "Appointment updated",
	domain.KindCancelled: "Appointment cancelled",
	domain.KindConfirmed: "Appointment confirmed",
	domain.KindCompleted: "Thank you",
	domain.KindNoShow:    "Missed appointment",
}

// Renderer turns a MessageContext into every channel representation.
// Templates are embedded and parsed once; Render performs no I/O and is safe
// for concurrent use.
type Renderer struct {
	html map[domain.EventKind]*template.Template
	text map[domain.EventKind]*texttemplate.Template
	sms    *texttemplate.Template
	push   *texttemplate.Template
	logger *zap.Logger
}

// New parses the embedded templates. It fails if any event kind is missing
// a template for any channel.
func New(logger *zap.Logger) (*Renderer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Renderer{
		html:   make(map[domain.EventKind]*template.Template),
		text:   make(map[domain.EventKind]*texttemplate.Template),
		logger: logger,
	}

	baseHTML, err := templateFS.ReadFile("templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("renderer: read base.html: %w", err)
	}
	commonText, err := templateFS.ReadFile("templates/common.txt")
	if err != nil {
		return nil, fmt.Errorf("renderer: read common.txt: %w", err)
	}

	for _, kind := range domain.AllEventKinds() {
		name := kind.Short()

		body, err := templateFS.ReadFile(fmt.Sprintf("templates/%s.html", name))
		if err != nil {
			return nil, fmt.Errorf("renderer: read %s.html: %w", name, err)
		}
		h, err := template.New("base").Option("missingkey=error").Parse(string(baseHTML))
		if err != nil {
			return nil, fmt.Errorf("renderer: parse base.html: %w", err)
		}
		if _, err := h.Parse(string(body)); err != nil {
			return nil, fmt.Errorf("renderer: parse %s.html: %w", name, err)
		}
		r.html[kind] = h

		txt, err := templateFS.ReadFile(fmt.Sprintf("templates/%s.txt", name))
		if err != nil {
			return nil, fmt.Errorf("renderer: read %s.txt: %w", name, err)
		}
		t, err := texttemplate.New(name).Option("missingkey=error").Parse(string(txt))
		if err != nil {
			return nil, fmt.Errorf("renderer: parse %s.txt: %w", name, err)
		}
		if _, err := t.Parse(string(commonText)); err != nil {
			return nil, fmt.Errorf("renderer: parse common.txt: %w", err)
		}
		r.text[kind] = t

		if subjects[kind] == "" || pushTitles[kind] == "" {
			return nil, fmt.Errorf("renderer: no subject or push title for %q", kind)
		}
	}

	if r.sms, err = parseDefines("sms.txt"); err != nil {
		return nil, err
	}
	if r.push, err = parseDefines("push.txt"); err != nil {
		return nil, err
	}
	for _, kind := range domain.AllEventKinds() {
		if r.sms.Lookup(kind.Short()) == nil {
			return nil, fmt.Errorf("renderer: sms.txt has no block for %q", kind)
		}
		if r.push.Lookup(kind.Short()) == nil {
			return nil, fmt.Errorf("renderer: push.txt has no block for %q", kind)
		}
	}

	return r, nil
}

func parseDefines(file string) (*texttemplate.Template, error) {
	raw, err := templateFS.ReadFile("templates/" + file)
	if err != nil {
		return nil, fmt.Errorf("renderer: read %s: %w", file, err)
	}
	t, err := texttemplate.New(file).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("renderer: parse %s: %w", file, err)
	}
	return t, nil
}

// Render produces all representations for kind or fails as a whole.
// Identical inputs always produce byte-identical output.
func (r *Renderer) Render(kind domain.EventKind, mc domain.MessageContext) (domain.RenderedContent, error) {
	htmlTmpl, ok := r.html[kind]
	if !ok {
		return domain.RenderedContent{}, fmt.Errorf("renderer: %w: %q", domain.ErrUnknownKind, kind)
	}
	textTmpl := r.text[kind]

	tz := mc.Branding.WithDefaults().Timezone
	loc, err := location(tz)
	if err != nil {
		r.logger.Warn("unknown tenant timezone, rendering in default zone",
			zap.String("tenant_id", mc.Branding.TenantID),
			zap.String("timezone", tz),
			zap.String("fallback", loc.String()),
			zap.Error(err),
		)
	}
	data := buildTemplateData(kind, mc, loc)

	var htmlBuf, textBuf, smsBuf, pushBuf bytes.Buffer
	if err := htmlTmpl.Execute(&htmlBuf, data); err != nil {
		return domain.RenderedContent{}, fmt.Errorf("renderer: html for %q: %w", kind, err)
	}
	if err := textTmpl.Execute(&textBuf, data); err != nil {
		return domain.RenderedContent{}, fmt.Errorf("renderer: text for %q: %w", kind, err)
	}
	if err := r.sms.ExecuteTemplate(&smsBuf, kind.Short(), data); err != nil {
		return domain.RenderedContent{}, fmt.Errorf("renderer: sms for %q: %w", kind, err)
	}
	if err := r.push.ExecuteTemplate(&pushBuf, kind.Short(), data); err != nil {
		return domain.RenderedContent{}, fmt.Errorf("renderer: push for %q: %w", kind, err)
	}

	return domain.RenderedContent{
		Subject:   data.Subject,
		HTML:      htmlBuf.String(),
		Text:      strings.TrimSpace(textBuf.String()) + "\n",
		SMS:       strings.TrimSpace(smsBuf.String()),
		PushTitle: pushTitles[kind],
		PushBody:  strings.TrimSpace(pushBuf.String()),
	}, nil
}
