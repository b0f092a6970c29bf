package orchestrator

import (
	"encoding/hex"
	"net"
	"net/http"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/local/pdfassembler/internal/usage"
)

// identifyCaller derives the usage identity of a request. Authenticated
// requests (bearer token plus X-User-ID) are billed to the user; everyone
// else gets a fingerprint of client address and user agent. The premium
// plan header is only honoured for authenticated requests.
func identifyCaller(r *http.Request, trustProxy bool) usage.Caller {
	auth := r.Header.Get("Authorization")
	uid := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if uid != "" && strings.HasPrefix(auth, "Bearer ") && len(auth) > len("Bearer ") {
		premium := strings.EqualFold(strings.TrimSpace(r.Header.Get("X-User-Plan")), "premium")
		return usage.Caller{ID: "user:" + uid, Unlimited: premium}
	}
	return usage.Caller{ID: "anon:" + fingerprint(clientIP(r, trustProxy), r.UserAgent())}
}

func fingerprint(ip, userAgent string) string {
	sum := blake2b.Sum256([]byte(ip + "\x00" + userAgent))
	return hex.EncodeToString(sum[:12])
}

func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
