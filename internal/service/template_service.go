// internal/service/template_service.go
package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/osteele/liquid"

	"github.com/unclebandit/mailleopard-backend/internal/model"
)

// Personalize substitutes the contact placeholders in one pass. Substituted
// values are never re-scanned and unknown placeholders are left as they are.
func Personalize(content string, c *model.Contact) string {
	firstName := c.First()
	if firstName == "" {
		firstName = "there"
	}
	fullName := c.Full()
	if fullName == "" {
		fullName = c.First()
	}
	if fullName == "" {
		fullName = "Friend"
	}

	r := strings.NewReplacer(
		"{{email}}", c.Email,
		"{{firstName}}", firstName,
		"{{lastName}}", c.Last(),
		"{{fullName}}", fullName,
	)
	return r.Replace(content)
}

const shellSource = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <meta http-equiv="X-UA-Compatible" content="IE=edge">
  <title>{{ brand_name }}</title>
{% if preview_text != "" %}
  <!--[if !mso]><!--><meta name="x-apple-disable-message-reformatting"><!--<![endif]-->
  <span style="display:none !important;visibility:hidden;mso-hide:all;font-size:1px;line-height:1px;max-height:0;max-width:0;opacity:0;overflow:hidden;">{{ preview_text }}</span>
{% endif %}
  <style>
    body { margin: 0; padding: 0; background-color: #f4f4f5; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif; }
    .wrapper { width: 100%; background-color: #f4f4f5; padding: 40px 0; }
    .container { max-width: 600px; margin: 0 auto; background-color: #ffffff; border-radius: 8px; overflow: hidden; }
    .header { background-color: #18181b; color: #ffffff; padding: 32px; text-align: center; }
    .header h1 { margin: 0; font-size: 24px; font-weight: 700; letter-spacing: -0.5px; }
    .content { padding: 32px; color: #27272a; font-size: 16px; line-height: 1.6; }
    .content a { color: #4f46e5; }
    .footer { background-color: #fafafa; padding: 24px 32px; text-align: center; font-size: 12px; color: #71717a; }
    .footer a { color: #71717a; }
    @media only screen and (max-width: 620px) {
      .container { width: 100% !important; border-radius: 0 !important; }
      .content, .header, .footer { padding: 24px !important; }
    }
  </style>
</head>
<body>
  <div class="wrapper">
    <div class="container">
      <div class="header">
        <h1>{{ brand_name | upcase }}</h1>
      </div>
      <div class="content">
        {{ content }}
      </div>
      <div class="footer">
        <p>&copy; {{ year }} {{ brand_name }}</p>
        <p>{{ physical_address }}</p>
        <p><a href="{{ unsubscribe_url }}">Unsubscribe</a></p>
      </div>
    </div>
  </div>
</body>
</html>`

// TemplateService wraps campaign bodies in the branded email shell.
type TemplateService struct {
	shell           *liquid.Template
	brandName       string
	physicalAddress string
	now             func() time.Time
}

func NewTemplateService(brandName, physicalAddress string) (*TemplateService, error) {
	tpl, err := liquid.NewEngine().ParseString(shellSource)
	if err != nil {
		return nil, fmt.Errorf("parse email shell: %w", err)
	}
	return &TemplateService{
		shell:           tpl,
		brandName:       brandName,
		physicalAddress: physicalAddress,
		now:             time.Now,
	}, nil
}

// Wrap renders content inside the shell. The footer carries exactly one
// unsubscribe link; previewText, when set, becomes a hidden preheader.
func (t *TemplateService) Wrap(content, previewText, unsubscribeURL string) (string, error) {
	out, err := t.shell.RenderString(map[string]any{
		"content":          content,
		"preview_text":     previewText,
		"unsubscribe_url":  unsubscribeURL,
		"brand_name":       t.brandName,
		"physical_address": t.physicalAddress,
		"year":             t.now().Year(),
	})
	if err != nil {
		return "", fmt.Errorf("render email shell: %w", err)
	}
	return out, nil
}
