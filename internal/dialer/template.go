package dialer

import "strings"

// renderTemplate substitutes the supported placeholders into script and
// detector text. The template language is deliberately just these two
// variables; anything else passes through untouched.
func renderTemplate(body, name, campaignName string) string {
	r := strings.NewReplacer(
		"{{name}}", name,
		"{{campaign}}", campaignName,
	)
	return r.Replace(body)
}
