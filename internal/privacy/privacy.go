// Package privacy scrubs credentials and endpoints from text that leaves the
// process, such as telemetry events and log context.
package privacy

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Pre-compiled patterns
var (
	// URLs in free text, including MQTT broker schemes
	urlPattern = regexp.MustCompile(`\b(?:https?|tcp|ssl|tls|mqtts?|wss?)://\S+`)

	// bearer credentials in header dumps
	bearerPattern = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9\-_.~+/]+=*`)

	// compact JWS: three base64url segments, the first starting with eyJ
	jwtPattern = regexp.MustCompile(`\beyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`)
)

// RedactedToken replaces credentials found in messages.
const RedactedToken = "[REDACTED]"

// ScrubMessage anonymizes URLs and redacts bearer tokens in message.
func ScrubMessage(message string) string {
	message = bearerPattern.ReplaceAllString(message, "Bearer "+RedactedToken)
	message = jwtPattern.ReplaceAllString(message, RedactedToken)
	return urlPattern.ReplaceAllStringFunc(message, AnonymizeURL)
}

// AnonymizeURL replaces a URL with a stable hash of its scheme, host class and
// port. Credentials, hostnames and paths never reach the output.
func AnonymizeURL(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		hash := sha256.Sum256([]byte(rawURL))
		return fmt.Sprintf("url-hash-%x", hash[:8])
	}

	var parts []string
	if parsedURL.Scheme != "" {
		parts = append(parts, parsedURL.Scheme)
	}
	if host := parsedURL.Hostname(); host != "" {
		parts = append(parts, categorizeHost(host))
	}
	if parsedURL.Port() != "" {
		parts = append(parts, "port-"+parsedURL.Port())
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, ":")))
	return fmt.Sprintf("url-%x", hash[:12])
}

// SanitizeURL strips credentials, path and query from a URL, keeping
// scheme://host:port for display. Input without a scheme is returned unchanged.
func SanitizeURL(source string) string {
	u, err := url.Parse(source)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return source
	}
	return u.Scheme + "://" + u.Host
}

func categorizeHost(host string) string {
	switch {
	case host == "localhost" || host == "127.0.0.1" || host == "::1":
		return "localhost"
	case isPrivateIP(host):
		return "private-ip"
	case isIPAddress(host):
		return "public-ip"
	case strings.HasSuffix(host, ".local") || strings.HasSuffix(host, ".lan"):
		return "local-domain"
	default:
		return "remote-host"
	}
}

func isPrivateIP(host string) bool {
	if !isIPAddress(host) {
		return false
	}
	if strings.HasPrefix(host, "10.") || strings.HasPrefix(host, "192.168.") {
		return true
	}
	if strings.HasPrefix(host, "172.") {
		var second int
		if _, err := fmt.Sscanf(host, "172.%d.", &second); err == nil {
			return second >= 16 && second <= 31
		}
	}
	return false
}

var ipv4Pattern = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)

func isIPAddress(host string) bool {
	return ipv4Pattern.MatchString(host) || strings.Contains(host, ":")
}

// scrubbedError keeps the original chain for errors.Is while its message
// is safe to log or report.
type scrubbedError struct {
	err error
	msg string
}

func (e *scrubbedError) Error() string { return e.msg }
func (e *scrubbedError) Unwrap() error { return e.err }

// WrapError returns err with ScrubMessage applied to its message, or nil.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	return &scrubbedError{err: err, msg: ScrubMessage(err.Error())}
}
