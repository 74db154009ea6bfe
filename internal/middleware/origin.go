package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/agentdesk/frontend/pkg/utils"
)

// SameOrigin rejects state-changing requests sent by a page on another
// origin. Origin is checked first, then Referer. Requests carrying neither,
// such as those from curl or the CLI, pass.
func SameOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		source := r.Header.Get("Origin")
		if source == "" {
			source = r.Header.Get("Referer")
		}
		if source != "" && !sameHost(source, r.Host) {
			log.Warn().Str("method", r.Method).Str("path", r.URL.Path).Str("origin", source).Msg("[middleware] cross-origin request rejected")
			utils.RespondError(w, http.StatusForbidden, "cross-origin request rejected")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func sameHost(source, host string) bool {
	u, err := url.Parse(source)
	if err != nil || u.Host == "" {
		return false
	}
	return strings.EqualFold(u.Host, host)
}
