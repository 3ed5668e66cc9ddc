// Package server - HTTP-Router und Server-Setup fuer codetrans
// Beinhaltet: Server-Struct, Router-Registrierung, Host-Middleware
package server

import (
	"net"
	"net/http"
	"net/netip"
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/7blacky7/codetrans/store"
	"github.com/7blacky7/codetrans/translator"
	"github.com/7blacky7/codetrans/version"
)

var mode string = gin.DebugMode

// Server haelt Translator, Historie und Request-Limiter
type Server struct {
	addr       net.Addr
	translator *translator.Translator
	// store ist nil wenn die Datenbank nicht geoeffnet werden konnte
	store   *store.Store
	limiter *limiter

	// models ist das Checkpoint-Verzeichnis fuer Reload ohne Pfad
	models string
	// evalWorkers begrenzt die Goroutinen pro Evaluate-Request
	evalWorkers int
}

func init() {
	switch mode {
	case gin.DebugMode:
	case gin.ReleaseMode:
	case gin.TestMode:
	default:
		mode = gin.DebugMode
	}

	gin.SetMode(mode)
}

// isLocalIP prueft ob die IP-Adresse zu einem lokalen Interface gehoert
func isLocalIP(ip netip.Addr) bool {
	if interfaces, err := net.Interfaces(); err == nil {
		for _, iface := range interfaces {
			addrs, err := iface.Addrs()
			if err != nil {
				continue
			}

			for _, a := range addrs {
				if parsed, _, err := net.ParseCIDR(a.String()); err == nil {
					if parsed.String() == ip.String() {
						return true
					}
				}
			}
		}
	}

	return false
}

// allowedHost prueft ob der Host erlaubt ist
func allowedHost(host string) bool {
	host = strings.ToLower(host)

	if host == "" || host == "localhost" {
		return true
	}

	if hostname, err := os.Hostname(); err == nil && host == strings.ToLower(hostname) {
		return true
	}

	for _, tld := range []string{"localhost", "local", "internal"} {
		if strings.HasSuffix(host, "."+tld) {
			return true
		}
	}

	return false
}

// allowedHostsMiddleware blockiert fremde Host-Header wenn der Server nur
// auf Loopback lauscht
func allowedHostsMiddleware(addr net.Addr) gin.HandlerFunc {
	return func(c *gin.Context) {
		if addr == nil {
			c.Next()
			return
		}

		if addr, err := netip.ParseAddrPort(addr.String()); err == nil && !addr.Addr().IsLoopback() {
			c.Next()
			return
		}

		host, _, err := net.SplitHostPort(c.Request.Host)
		if err != nil {
			host = c.Request.Host
		}

		if addr, err := netip.ParseAddr(host); err == nil {
			if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() || isLocalIP(addr) {
				c.Next()
				return
			}
		}

		if allowedHost(host) {
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusNoContent)
				return
			}

			c.Next()
			return
		}

		c.AbortWithStatus(http.StatusForbidden)
	}
}

// GenerateRoutes erstellt und konfiguriert den HTTP-Router
func (s *Server) GenerateRoutes(origins []string) http.Handler {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowWildcard = true
	corsConfig.AllowBrowserExtensions = true
	corsConfig.AllowHeaders = []string{
		"Content-Type",
		"User-Agent",
		"Accept",
		"X-Requested-With",
	}
	corsConfig.AllowOrigins = origins

	r := gin.Default()
	r.HandleMethodNotAllowed = true
	r.Use(
		cors.New(corsConfig),
		allowedHostsMiddleware(s.addr),
	)

	// General
	r.HEAD("/", func(c *gin.Context) { c.String(http.StatusOK, "codetrans is running") })
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "codetrans is running") })
	r.HEAD("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })
	r.GET("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })

	// Inference
	r.POST("/api/translate", s.limit(), s.TranslateHandler)
	r.POST("/api/validate", s.ValidateHandler)
	r.POST("/api/evaluate", s.limit(), s.EvaluateHandler)

	// Model
	r.GET("/api/languages", s.LanguagesHandler)
	r.GET("/api/model", s.ModelHandler)
	r.POST("/api/reload", s.ReloadHandler)

	// History
	r.POST("/api/feedback", s.FeedbackHandler)
	r.GET("/api/runs", s.RunsHandler)
	r.GET("/api/runs/:id", s.RunHandler)

	return r
}
