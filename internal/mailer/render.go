package mailer

import (
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"

	"github.com/devletter/newsletterd/internal/qa"
)

// RenderInput carries everything needed to render one recipient's issue
// e-mail. UnsubscribeURL is per-recipient; the rest is shared per issue.
type RenderInput struct {
	IssueTitle     string
	CategoryLabel  string
	PublishDate    time.Time
	Pairs          []qa.Pair
	CTAURL         string
	UnsubscribeURL string
}

type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

// RenderIssue produces the subject and both bodies. Visual quality is not a
// concern here; the layout is a plain list of pairs plus the two links.
func RenderIssue(in RenderInput) Rendered {
	subject := fmt.Sprintf("%s — %s", in.IssueTitle, in.PublishDate.Format("Jan 2, 2006"))

	var h strings.Builder
	h.WriteString("<h1>" + html.EscapeString(in.IssueTitle) + "</h1>")
	fmt.Fprintf(&h, "<p>Today's theme: <strong>%s</strong></p>", html.EscapeString(in.CategoryLabel))
	for i, pair := range in.Pairs {
		fmt.Fprintf(&h, "<h3>%d. %s</h3>", i+1, html.EscapeString(pair.Question))
		fmt.Fprintf(&h, "<p>%s</p>", html.EscapeString(pair.Answer))
	}
	fmt.Fprintf(&h, `<p><a href="%s">Practice today's questions</a></p>`, in.CTAURL)
	fmt.Fprintf(&h, `<p style="font-size:12px"><a href="%s">Unsubscribe</a></p>`, in.UnsubscribeURL)

	var t strings.Builder
	t.WriteString(in.IssueTitle + "\n")
	t.WriteString("Today's theme: " + in.CategoryLabel + "\n\n")
	for i, pair := range in.Pairs {
		fmt.Fprintf(&t, "%d. %s\n%s\n\n", i+1, pair.Question, pair.Answer)
	}
	t.WriteString("Practice: " + in.CTAURL + "\n")
	t.WriteString("Unsubscribe: " + in.UnsubscribeURL + "\n")

	return Rendered{Subject: subject, HTML: h.String(), Text: t.String()}
}

// BuildCTAURL tags the landing page link with campaign parameters.
func BuildCTAURL(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return baseURL
	}
	u.Path = "/demo"
	q := u.Query()
	q.Set("utm_source", "dev-letter")
	q.Set("utm_medium", "email")
	q.Set("utm_campaign", "daily-newsletter")
	u.RawQuery = q.Encode()
	return u.String()
}

// BuildUnsubscribeURL builds the one-click unsubscribe link for a delivery.
func BuildUnsubscribeURL(baseURL, token, deliveryID string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return baseURL
	}
	u.Path = "/v1/unsubscribe"
	q := u.Query()
	q.Set("token", token)
	q.Set("delivery", deliveryID)
	u.RawQuery = q.Encode()
	return u.String()
}

// ListUnsubscribeHeaders returns the RFC 8058 one-click headers.
func ListUnsubscribeHeaders(unsubscribeURL, sender string) map[string]string {
	mailto := "mailto:" + sender + "?subject=unsubscribe"
	return map[string]string{
		"List-Unsubscribe":      fmt.Sprintf("<%s>, <%s>", unsubscribeURL, mailto),
		"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
	}
}
