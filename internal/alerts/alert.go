// Package alerts notifies operators when a data source keeps failing and when it recovers.
package alerts

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"github.com/bissquit/incident-radar/internal/domain"
)

// Kind distinguishes the two alert messages.
type Kind string

const (
	KindFailing   Kind = "failing"
	KindRecovered Kind = "recovered"
)

// Alert describes a change in a data source's health.
type Alert struct {
	Kind         Kind
	DataSourceID string
	Name         string
	Type         domain.ConnectorType
	ErrorKind    string
	Error        string
	RetryCount   int
	At           time.Time
}

const (
	failingTemplate = `Data source **{{.Name}}** ({{.Type}}) has failed {{.RetryCount}} consecutive syncs.
Last error ({{.ErrorKind}}): {{.Error}}
Since: {{formatTime .At}}`

	recoveredTemplate = `Data source **{{.Name}}** ({{.Type}}) synced successfully again at {{formatTime .At}}.`
)

var templates = map[Kind]*template.Template{
	KindFailing:   mustParse(KindFailing, failingTemplate),
	KindRecovered: mustParse(KindRecovered, recoveredTemplate),
}

func mustParse(kind Kind, text string) *template.Template {
	return template.Must(template.New(string(kind)).Funcs(template.FuncMap{
		"formatTime": formatTime,
	}).Parse(text))
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04 UTC")
}

// Render returns the subject and markdown body of a.
func Render(a Alert) (subject, body string, err error) {
	tmpl, ok := templates[a.Kind]
	if !ok {
		return "", "", fmt.Errorf("unknown alert kind %q", a.Kind)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, a); err != nil {
		return "", "", fmt.Errorf("render %s alert: %w", a.Kind, err)
	}

	switch a.Kind {
	case KindFailing:
		subject = fmt.Sprintf(":red_circle: %s is failing", a.Name)
	default:
		subject = fmt.Sprintf(":large_green_circle: %s recovered", a.Name)
	}
	return subject, buf.String(), nil
}
