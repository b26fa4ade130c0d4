package notification

import (
	"bytes"
	"html/template"
)

// defaultSubject is used when a notification carries no subject.
const defaultSubject = "Notification"

// emailTmpl is the HTML wrapper applied to every outgoing message.
// Fields are auto-escaped by html/template.
var emailTmpl = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width,initial-scale=1.0">
  <title>{{.Subject}}</title>
</head>
<body style="margin:0;padding:0;background-color:#f4f4f5;
     font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,Arial,sans-serif;">
  <table width="100%" cellpadding="0" cellspacing="0" role="presentation"
         style="background-color:#f4f4f5;padding:40px 16px;">
    <tr>
      <td align="center">
        <table width="600" cellpadding="0" cellspacing="0" role="presentation"
               style="max-width:600px;width:100%;">
          <tr>
            <td style="background-color:#18181f;padding:16px 40px;border-radius:12px 12px 0 0;">
              <p style="margin:0;font-size:15px;font-weight:600;color:#e5e7eb;">{{.Subject}}</p>
            </td>
          </tr>
          <tr>
            <td style="background-color:#ffffff;padding:36px 40px;">
              {{if .Name}}<p style="margin:0 0 16px;font-size:14px;color:#374151;">Hello {{.Name}},</p>{{end}}
              <div style="font-size:14px;line-height:1.7;color:#374151;
                          white-space:pre-wrap;word-break:break-word;">{{.Body}}</div>
            </td>
          </tr>
          <tr>
            <td style="background-color:#f9fafb;padding:20px 40px;
                       border-top:1px solid #e5e7eb;border-radius:0 0 12px 12px;">
              <p style="margin:0;font-size:12px;color:#9ca3af;">
                You are receiving this because you subscribed to notifications.
              </p>
            </td>
          </tr>
        </table>
      </td>
    </tr>
  </table>
</body>
</html>
`))

// buildSubject falls back to the default subject for blank input.
func buildSubject(subject string) string {
	if subject == "" {
		return defaultSubject
	}
	return subject
}

// buildEmailHTML renders the HTML email template.
func buildEmailHTML(subject, name, body string) (string, error) {
	var buf bytes.Buffer
	err := emailTmpl.Execute(&buf, struct{ Subject, Name, Body string }{subject, name, body})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
