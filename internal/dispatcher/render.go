package dispatcher

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	"text/template"
)

var (
	emailSubjectTmpl = template.Must(template.New("subject").Parse(
		`{{if .SenderName}}{{.SenderName}} sent you a card{{else}}You received a card{{end}}{{if .Title}}: {{.Title}}{{end}}`))

	emailTextTmpl = template.Must(template.New("text").Parse(`Hi{{if .RecipientName}} {{.RecipientName}}{{end}},

{{if .SenderName}}{{.SenderName}}{{else}}Someone{{end}} made a card for you{{if .Title}}: "{{.Title}}"{{end}}.

Open it here: {{.CardURL}}
`))

	emailHTMLTmpl = htmltemplate.Must(htmltemplate.New("html").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif;">
  <p>Hi{{if .RecipientName}} {{.RecipientName}}{{end}},</p>
  <p>{{if .SenderName}}{{.SenderName}}{{else}}Someone{{end}} made a card for you{{if .Title}}: <strong>{{.Title}}</strong>{{end}}.</p>
  {{if .PreviewImage}}<p><a href="{{.CardURL}}"><img src="{{.PreviewImage}}" alt="card preview" style="max-width: 480px;"></a></p>{{end}}
  <p><a href="{{.CardURL}}">Open your card</a></p>
</body>
</html>
`))

	messengerTmpl = template.Must(template.New("messenger").Parse(
		`{{if .RecipientName}}{{.RecipientName}}, {{end}}{{if .SenderName}}{{.SenderName}}{{else}}someone{{end}} sent you a card{{if .Title}} "{{.Title}}"{{end}}!
{{.CardURL}}{{if .PreviewImage}}
Preview: {{.PreviewImage}}{{end}}`))
)

type renderedEmail struct {
	Subject string
	Text    string
	HTML    string
}

func renderEmail(p Payload) (renderedEmail, error) {
	var out renderedEmail
	var buf bytes.Buffer

	if err := emailSubjectTmpl.Execute(&buf, p); err != nil {
		return out, fmt.Errorf("render subject: %w", err)
	}
	// header injection guard
	out.Subject = strings.NewReplacer("\r", " ", "\n", " ").Replace(buf.String())

	buf.Reset()
	if err := emailTextTmpl.Execute(&buf, p); err != nil {
		return out, fmt.Errorf("render text body: %w", err)
	}
	out.Text = buf.String()

	buf.Reset()
	if err := emailHTMLTmpl.Execute(&buf, p); err != nil {
		return out, fmt.Errorf("render html body: %w", err)
	}
	out.HTML = buf.String()

	return out, nil
}

func renderMessengerText(p Payload) (string, error) {
	var buf bytes.Buffer
	if err := messengerTmpl.Execute(&buf, p); err != nil {
		return "", fmt.Errorf("render message: %w", err)
	}
	return buf.String(), nil
}
