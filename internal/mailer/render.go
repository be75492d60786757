package mailer

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	texttemplate "text/template"

	"github.com/yuin/goldmark"
)

// DefaultSubject is used when neither the config nor the template sets one.
const DefaultSubject = "Check Out Our New Service"

//go:embed templates/default.html
var defaultHTML string

// Message is one rendered email.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
	Text    string // empty for HTML templates
}

// TemplateData is what templates can reference.
type TemplateData struct {
	Email string
	From  string
}

// Renderer builds the per-recipient Message. Templates are parsed once.
//
// A ".md" template is executed with text/template and converted to HTML with
// goldmark; the executed Markdown is also used as the plain-text part. Any
// other extension is treated as html/template.
type Renderer struct {
	from    string
	subject string

	html *htmltemplate.Template
	md   *texttemplate.Template
	conv goldmark.Markdown
}

// NewRenderer loads path, or the built-in campaign when path is empty.
// subject overrides the template's frontmatter; both fall back to DefaultSubject.
func NewRenderer(path, from, subject string) (*Renderer, error) {
	from = strings.TrimSpace(from)
	if from == "" {
		return nil, ErrNoSender
	}

	name := "default.html"
	content := []byte(defaultHTML)
	if path = strings.TrimSpace(path); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, path)
			}
			return nil, err
		}
		name, content = filepath.Base(path), b
	}

	fm, body, err := splitFrontmatter(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	r := &Renderer{from: from, subject: firstNonEmpty(subject, fm.Subject, DefaultSubject)}
	if strings.EqualFold(filepath.Ext(name), ".md") {
		r.md, err = texttemplate.New(name).Option("missingkey=error").Parse(string(body))
		r.conv = goldmark.New()
	} else {
		r.html, err = htmltemplate.New(name).Option("missingkey=error").Parse(string(body))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRenderFailed, name, err)
	}
	return r, nil
}

// Subject is the subject every message gets.
func (r *Renderer) Subject() string { return r.subject }

func (r *Renderer) Render(to string) (Message, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return Message{}, ErrNoRecipient
	}
	msg := Message{From: r.from, To: to, Subject: r.subject}
	data := TemplateData{Email: to, From: r.from}

	var buf bytes.Buffer
	if r.md != nil {
		if err := r.md.Execute(&buf, data); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrRenderFailed, err)
		}
		msg.Text = buf.String()
		var out bytes.Buffer
		if err := r.conv.Convert(buf.Bytes(), &out); err != nil {
			return Message{}, fmt.Errorf("%w: markdown: %v", ErrRenderFailed, err)
		}
		msg.HTML = out.String()
		return msg, nil
	}

	if err := r.html.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}
	msg.HTML = buf.String()
	return msg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
