package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"coursepay/internal/payment"
)

// APIAuth validates the Token header against the configured admin API key.
// An empty key disables the protected routes entirely.
func APIAuth(apiKey string) echo.MiddlewareFunc {
	want := sha256.Sum256([]byte(apiKey))
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if apiKey == "" {
				return c.JSON(http.StatusForbidden, map[string]interface{}{
					"status": false,
					"msg":    "API access is disabled",
				})
			}
			token := c.Request().Header.Get("Token")
			if token == "" {
				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"status": false,
					"msg":    "Token is required",
				})
			}
			got := sha256.Sum256([]byte(token))
			if subtle.ConstantTimeCompare(want[:], got[:]) != 1 {
				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"status": false,
					"msg":    "Invalid token",
				})
			}
			return next(c)
		}
	}
}

// RequestLogger writes one access log line per request.
func RequestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			logger.Info("HTTP request",
				zap.String("request_id", res.Header().Get(echo.HeaderXRequestID)),
				zap.String("method", req.Method),
				zap.String("path", c.Path()),
				zap.Int("status", res.Status),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", c.RealIP()),
			)
			return nil
		}
	}
}

// ClientIPExtractor decides where c.RealIP() comes from. With no trusted
// proxies the socket peer is used and forwarding headers are ignored; otherwise
// X-Forwarded-For is honoured only when the hop is one of the given networks.
func ClientIPExtractor(trustedProxies []string, logger *zap.Logger) echo.IPExtractor {
	nets := parseCIDRs(trustedProxies, "trusted proxy", logger)
	if len(nets) == 0 {
		return echo.ExtractIPDirect()
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, n := range nets {
		opts = append(opts, echo.TrustIPRange(n))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}

// ProcessorIPCheck only admits requests from the processor's callback
// networks. An empty list admits everyone. Other sources get the failure
// acknowledgement.
func ProcessorIPCheck(cidrs []string, logger *zap.Logger) echo.MiddlewareFunc {
	nets := parseCIDRs(cidrs, "callback", logger)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if len(nets) == 0 {
				return next(c)
			}
			ip := net.ParseIP(c.RealIP())
			if ip != nil && containsIP(nets, ip) {
				return next(c)
			}
			logger.Warn("Callback from unexpected address", zap.String("ip", c.RealIP()))
			return c.String(http.StatusOK, payment.AckNG)
		}
	}
}

func parseCIDRs(cidrs []string, what string, logger *zap.Logger) []*net.IPNet {
	var nets []*net.IPNet
	for _, cidr := range cidrs {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}
		_, n, err := net.ParseCIDR(cidr)
		if err != nil {
			logger.Warn("Ignoring invalid "+what+" CIDR", zap.String("cidr", cidr), zap.Error(err))
			continue
		}
		nets = append(nets, n)
	}
	return nets
}

func containsIP(nets []*net.IPNet, ip net.IP) bool {
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
