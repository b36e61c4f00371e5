package audit

import (
	"net"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequestMeta is the request provenance attached to audit entries.
type RequestMeta struct {
	IPAddress *string
	UserAgent *string
}

// MetaFromRequest extracts client IP and user agent from the request. The
// first comma-separated entry of X-Forwarded-For wins over the transport
// peer address, since the API normally sits behind a reverse proxy.
func MetaFromRequest(c echo.Context) RequestMeta {
	var meta RequestMeta

	req := c.Request()

	ip := ""
	if forwarded := req.Header.Get("X-Forwarded-For"); forwarded != "" {
		ip = strings.TrimSpace(strings.SplitN(forwarded, ",", 2)[0])
	}
	if ip == "" && req.RemoteAddr != "" {
		host, _, err := net.SplitHostPort(req.RemoteAddr)
		if err == nil {
			ip = host
		} else {
			ip = req.RemoteAddr
		}
	}
	if ip != "" {
		meta.IPAddress = &ip
	}

	if ua := req.UserAgent(); ua != "" {
		meta.UserAgent = &ua
	}

	return meta
}
