// Package device derives a coarse client description from the User-Agent
// header for audit records.
package device

import (
	"strings"

	"github.com/mssola/useragent"
)

// Info is the parsed client description. Raw user agents are not stored.
type Info struct {
	Browser        string
	BrowserVersion string
	OS             string
	Mobile         bool
	Bot            bool
}

// Parse describes a raw User-Agent. An empty header yields the zero Info.
func Parse(raw string) Info {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Info{}
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	return Info{
		Browser:        name,
		BrowserVersion: version,
		OS:             ua.OS(),
		Mobile:         ua.Mobile(),
		Bot:            ua.Bot(),
	}
}

// Attrs returns the info as key-value pairs for slog and audit details.
// Empty fields are omitted.
func (i Info) Attrs() []any {
	var out []any
	if i.Browser != "" {
		out = append(out, "client_browser", i.Browser)
	}
	if i.OS != "" {
		out = append(out, "client_os", i.OS)
	}
	if i.Mobile {
		out = append(out, "client_mobile", "true")
	}
	if i.Bot {
		out = append(out, "client_bot", "true")
	}
	return out
}
