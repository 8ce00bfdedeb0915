package web

import (
	"net"
	"net/http"

	"github.com/JonMunkholm/classifieds/internal/auth"
	"github.com/JonMunkholm/classifieds/internal/restore"
)

// callerFromRequest builds the run history identity of a request.
// RemoteAddr has already been resolved by TrustedRealIP.
func callerFromRequest(r *http.Request) restore.Caller {
	c := restore.Caller{
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
	if host := hostOnly(r.RemoteAddr); host != "" {
		c.IPAddress = host
	}
	if p, ok := auth.FromContext(r.Context()); ok {
		c.Actor = p.ID
	}
	return c
}

func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return ""
	}
	return host
}
