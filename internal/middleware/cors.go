package middleware

import (
	"net/url"
	"strings"
)

// AllowOrigin accepts local development origins and any http(s) origin whose host ends with one of suffixes.
// It serves both the CORS middleware and the websocket upgrade check.
func AllowOrigin(suffixes []string) func(origin string) (bool, error) {
	return func(origin string) (bool, error) {
		low := strings.ToLower(origin)
		if strings.HasPrefix(low, "http://localhost:") || strings.HasPrefix(low, "http://127.0.0.1:") ||
			strings.HasPrefix(low, "https://localhost:") || strings.HasPrefix(low, "https://127.0.0.1:") {
			return true, nil
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false, nil
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return false, nil
		}
		host := u.Hostname()
		for _, s := range suffixes {
			if s != "" && strings.HasSuffix(host, s) {
				return true, nil
			}
		}
		return false, nil
	}
}
