package notification

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html"
	"html/template"
	"regexp"
	"strings"

	"github.com/tendant/bewirtungsbeleg/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	SubjectVerification    = "E-Mail-Adresse bestätigen - DocBits Bewirtungsbeleg"
	SubjectPasswordReset   = "Passwort zurücksetzen - DocBits Bewirtungsbeleg"
	SubjectPasswordChanged = "Passwort erfolgreich geändert - DocBits Bewirtungsbeleg"
	SubjectMagicLink       = "Ihr Anmelde-Link - DocBits Bewirtungsbeleg"
)

type templateData struct {
	Title         string
	Preheader     string
	Name          string
	URL           string
	ExpiryHours   int
	ExpiryMinutes int
}

type buttonData struct {
	URL   string
	Label string
}

var funcs = template.FuncMap{
	"greeting": func(name string) string {
		if name == "" {
			return "Hallo"
		}
		return "Hallo " + name
	},
	"button": func(url, label string) buttonData {
		return buttonData{URL: url, Label: label}
	},
}

// Notifier renders the account emails and hands them to a Mailer.
type Notifier struct {
	mailer    Mailer
	templates map[string]*template.Template
}

func NewNotifier(mailer Mailer) (*Notifier, error) {
	n := &Notifier{mailer: mailer, templates: make(map[string]*template.Template)}
	for _, name := range []string{"verification", "password_reset", "password_changed", "magic_link"} {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parsing %s template: %w", name, err)
		}
		n.templates[name] = t
	}
	return n, nil
}

// SendVerification sends the registration mail that leads to password setup.
func (n *Notifier) SendVerification(ctx context.Context, to, name, url string) error {
	return n.send(ctx, to, SubjectVerification, "verification", templateData{
		Title:       "E-Mail-Adresse bestätigen - DocBits",
		Preheader:   "Bestätigen Sie Ihre E-Mail-Adresse und erstellen Sie Ihr Passwort",
		Name:        name,
		URL:         url,
		ExpiryHours: int(domain.ExpiryFor(domain.TokenKindEmailVerify).Hours()),
	})
}

func (n *Notifier) SendPasswordReset(ctx context.Context, to, url string) error {
	return n.send(ctx, to, SubjectPasswordReset, "password_reset", templateData{
		Title:         "Passwort zurücksetzen - DocBits",
		Preheader:     "Setzen Sie Ihr Passwort zurück, um wieder Zugriff auf Ihr Konto zu erhalten",
		URL:           url,
		ExpiryMinutes: int(domain.ExpiryFor(domain.TokenKindPasswordReset).Minutes()),
	})
}

func (n *Notifier) SendPasswordChanged(ctx context.Context, to, name string) error {
	return n.send(ctx, to, SubjectPasswordChanged, "password_changed", templateData{
		Title:     "Passwort geändert - DocBits",
		Preheader: "Ihr Passwort wurde erfolgreich geändert",
		Name:      name,
	})
}

func (n *Notifier) SendMagicLink(ctx context.Context, to, url string) error {
	return n.send(ctx, to, SubjectMagicLink, "magic_link", templateData{
		Title:         "Ihr Anmelde-Link - DocBits",
		Preheader:     "Melden Sie sich mit einem Klick an",
		URL:           url,
		ExpiryMinutes: int(domain.ExpiryFor(domain.TokenKindMagicLink).Minutes()),
	})
}

func (n *Notifier) send(ctx context.Context, to, subject, name string, data templateData) error {
	body, err := n.render(name, data)
	if err != nil {
		return err
	}
	return n.mailer.Send(ctx, Message{
		To:      to,
		Subject: subject,
		HTML:    body,
		Text:    htmlToPlainText(body),
	})
}

func (n *Notifier) render(name string, data templateData) (string, error) {
	var buf bytes.Buffer
	if err := n.templates[name].ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", fmt.Errorf("rendering %s template: %w", name, err)
	}
	return buf.String(), nil
}

var (
	styleBlock = regexp.MustCompile(`(?is)<(style|title)[^>]*>.*?</(style|title)>`)
	hidden     = regexp.MustCompile(`(?is)<div style="display:none[^"]*">.*?</div>`)
	anchor     = regexp.MustCompile(`(?is)<a [^>]*href="([^"]*)"[^>]*>(.*?)</a>`)
	lineBreak  = regexp.MustCompile(`(?i)<br\s*/?>|</p>|</h1>|</tr>`)
	tag        = regexp.MustCompile(`<[^>]+>`)
	blankLines = regexp.MustCompile(`\n\s*\n+`)
)

func htmlToPlainText(s string) string {
	s = styleBlock.ReplaceAllString(s, "")
	s = hidden.ReplaceAllString(s, "")
	s = anchor.ReplaceAllStringFunc(s, func(m string) string {
		parts := anchor.FindStringSubmatch(m)
		if parts[1] == parts[2] {
			return parts[1]
		}
		return parts[2] + " (" + parts[1] + ")"
	})
	s = lineBreak.ReplaceAllString(s, "\n")
	s = tag.ReplaceAllString(s, "")
	s = html.UnescapeString(s)

	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.TrimSpace(blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}
