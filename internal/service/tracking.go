package service

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var absoluteHref = regexp.MustCompile(`href="(https?://[^"]+)"`)

// InjectTracking appends the open pixel and routes absolute links through the
// click redirect. Unsubscribe links and relative hrefs are left alone.
func InjectTracking(html string, recipientID int, appURL string) string {
	appURL = strings.TrimRight(appURL, "/")

	out := absoluteHref.ReplaceAllStringFunc(html, func(match string) string {
		target := absoluteHref.FindStringSubmatch(match)[1]
		if strings.Contains(target, "/unsubscribe/") {
			return match
		}
		return fmt.Sprintf(`href="%s/track/click/%d?url=%s"`, appURL, recipientID, url.QueryEscape(target))
	})

	return out + fmt.Sprintf(`<img src="%s/track/open/%d" width="1" height="1" style="display:none" alt="" />`, appURL, recipientID)
}
