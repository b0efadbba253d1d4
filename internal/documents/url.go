package documents

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// ErrInvalidURL is returned for anything that is not an absolute http(s) URL
var ErrInvalidURL = errors.New("invalid URL")

// NormalizeURL checks that raw is an absolute http or https URL and converts
// an internationalised host name to its ASCII form.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidURL)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}

	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	// IP literals pass through untouched
	if net.ParseIP(host) == nil {
		ascii, err := idna.Lookup.ToASCII(host)
		if err != nil {
			return "", fmt.Errorf("%w: bad host %q: %v", ErrInvalidURL, host, err)
		}
		if port := u.Port(); port != "" {
			u.Host = net.JoinHostPort(ascii, port)
		} else {
			u.Host = ascii
		}
	}

	return u.String(), nil
}
