package sat

import (
	"net/url"
	"regexp"
	"strings"
)

const (
	// OfficialHost is the only host whose QR payloads are trusted.
	OfficialHost = "siat.sat.gob.mx"
	officialPath = `^/app/qr/faces/pages/mobile/validadorqr\.jsf$`
)

var reOfficialPath = regexp.MustCompile(`(?i)` + officialPath)

// IsOfficialURL reports whether raw points at the SAT QR validator: https
// scheme, exact host and the validator path. It never touches the network.
func IsOfficialURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	if !strings.EqualFold(u.Scheme, "https") {
		return false
	}
	if u.Port() != "" || u.User != nil {
		return false
	}
	if !strings.EqualFold(u.Hostname(), OfficialHost) {
		return false
	}
	return reOfficialPath.MatchString(u.Path)
}
