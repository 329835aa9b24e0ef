package security

import (
	"net/url"
	"strings"
)

// maskedValue is the placeholder for masked credentials.
// Full-width blocks avoid accidental substring matches against real
// passwords when masked output is compared or grepped.
const maskedValue = "████████"

// MaskURI returns a connection URI safe for logs and error messages.
// Credentials in the userinfo section are replaced; the host, port, and
// database path are preserved because they are what an operator needs to
// identify the target.
//
// A URI that cannot be parsed is masked entirely: failing open here would
// leak whatever the unparseable string contains.
func MaskURI(uri string) string {
	if uri == "" {
		return ""
	}

	u, err := url.Parse(uri)
	if err != nil {
		return maskedValue
	}

	if u.User != nil {
		username := u.User.Username()
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.UserPassword(username, "xxx")
		}
	}

	masked := u.String()
	// url.String encodes the placeholder password literally; swap in the
	// visually distinct mask.
	if u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			masked = strings.Replace(masked, ":xxx@", ":"+maskedValue+"@", 1)
		}
	}
	return masked
}
