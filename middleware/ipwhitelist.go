package middleware

import (
	"net/http"
	"net/netip"

	"github.com/gin-gonic/gin"
)

// IPWhitelist restricts a route group to the given addresses or CIDR
// blocks, for the admin console that lives behind an office VPN. Entries
// that do not parse are skipped. An empty list allows everyone, which keeps
// local setups working before any console network is configured.
func IPWhitelist(entries []string) gin.HandlerFunc {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, e := range entries {
		if p, err := netip.ParsePrefix(e); err == nil {
			prefixes = append(prefixes, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(e); err == nil {
			prefixes = append(prefixes, netip.PrefixFrom(a, a.BitLen()))
		}
	}

	return func(c *gin.Context) {
		if len(prefixes) == 0 {
			c.Next()
			return
		}
		if addr, err := netip.ParseAddr(c.ClientIP()); err == nil {
			addr = addr.Unmap()
			for _, p := range prefixes {
				if p.Contains(addr) {
					c.Next()
					return
				}
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
	}
}
