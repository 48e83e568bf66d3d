package sessiondedup

import (
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"
)

// ExtractDeviceInfo extracts the client IP and user agent from an HTTP request.
func ExtractDeviceInfo(r *http.Request) DeviceInfo {
	return DeviceInfo{
		IP:        extractIP(r),
		UserAgent: r.UserAgent(),
	}
}

// extractIP extracts the client IP from an HTTP request.
// It checks common proxy headers first, then falls back to RemoteAddr.
func extractIP(r *http.Request) string {
	// X-Forwarded-For is a comma-separated list; the first entry is the client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip := strings.TrimSpace(strings.Split(xff, ",")[0])
		if isValidIP(ip) {
			return ip
		}
	}

	for _, header := range []string{"X-Real-IP", "CF-Connecting-IP"} {
		if v := r.Header.Get(header); v != "" {
			ip := strings.TrimSpace(v)
			if isValidIP(ip) {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr might not have a port
		return r.RemoteAddr
	}
	return host
}

// isValidIP checks if the string is a valid IP address.
func isValidIP(ip string) bool {
	return net.ParseIP(ip) != nil
}

// AgentDetail is the version-level information parsed from a user agent.
// It only adds detail to the view; device grouping and the Classify labels
// never depend on it.
type AgentDetail struct {
	BrowserName    string `json:"browser_name,omitempty"`
	BrowserVersion string `json:"browser_version,omitempty"`
	OSName         string `json:"os_name,omitempty"`
	OSVersion      string `json:"os_version,omitempty"`
	Bot            bool   `json:"bot"`
}

// DescribeAgent parses a user agent with a full user-agent parser.
func DescribeAgent(userAgent string) AgentDetail {
	if userAgent == "" {
		return AgentDetail{}
	}

	parsed := useragent.New(userAgent)
	browser, browserVersion := parsed.Browser()
	osInfo := parsed.OSInfo()

	return AgentDetail{
		BrowserName:    browser,
		BrowserVersion: browserVersion,
		OSName:         osInfo.Name,
		OSVersion:      osInfo.Version,
		Bot:            parsed.Bot(),
	}
}
