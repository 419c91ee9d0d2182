// Command scimbridge runs the SCIM-to-Active-Directory provisioning
// bridge: it serves the SCIM 2.0 User surface, backed by a Postgres
// cache, and translates writes into directory-tool invocations.
package main

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/ad-scim/bridge/internal/adtool"
	"github.com/ad-scim/bridge/internal/audit"
	"github.com/ad-scim/bridge/internal/cache"
	"github.com/ad-scim/bridge/internal/scim"
	"github.com/ad-scim/bridge/pkg/database"
	"github.com/ad-scim/bridge/pkg/logger"
	"github.com/ad-scim/bridge/pkg/middleware"
	"github.com/ad-scim/bridge/pkg/observability"
	"github.com/gin-gonic/gin"
	otelgin "go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	log := logger.NewFromEnv()
	defer log.Sync()

	dbCfg := database.Config{
		Host:     envOr("DB_HOST", "localhost"),
		Port:     envOrInt("DB_PORT", 5432),
		User:     envOr("DB_USER", "scimbridge"),
		Password: os.Getenv("DB_PASSWORD"),
		DBName:   envOr("DB_NAME", "scimbridge"),
		SSLMode:  envOr("DB_SSLMODE", "disable"),
	}
	db, err := database.NewConnection(dbCfg)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	cacheStore := cache.NewStore(db)
	auditSvc := audit.NewService(audit.NewStore(db))

	adClient := adtool.New(adtool.Config{
		Executable: envOr("AD_TOOL_PATH", "pwsh"),
		Args:       []string{"-NoProfile", "-NonInteractive", "-Command"},
		Timeout:    30 * time.Second,
	}, auditSvc, log)

	svc := scim.NewService(
		cacheStore,
		adClient,
		envOr("BASE_OU", ""),
		os.Getenv("DEFAULT_PASSWORD"),
		envOr("BASE_URL", "http://localhost:8080"),
		log,
	)
	scimHandler := scim.NewHTTPHandler(svc, log)

	ctx := context.Background()
	shutdownTracer, err := observability.InitTracer(ctx, observability.TracerConfig{
		ServiceName:    "scimbridge",
		ServiceVersion: envOr("SERVICE_VERSION", "dev"),
		Environment:    envOr("ENVIRONMENT", "development"),
	}, log)
	if err != nil {
		log.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdownTracer(ctx)

	metrics := observability.NewMetrics()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("scimbridge"))
	router.Use(observability.PrometheusMiddleware(metrics))
	router.Use(logger.RequestLogger(log))
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.RateLimitMiddleware(rate.Limit(20), 40))

	ldapProbe := adtool.LDAPProbe{
		URL:      os.Getenv("AD_LDAP_URL"),
		BindDN:   os.Getenv("AD_LDAP_BIND_DN"),
		Password: os.Getenv("AD_LDAP_BIND_PASSWORD"),
		BaseDN:   os.Getenv("AD_LDAP_BASE_DN"),
	}
	router.GET("/healthz", healthz(db, ldapProbe))
	router.GET("/metrics", gin.WrapH(observability.PrometheusHandler()))

	scimHandler.RegisterRoutes(router, middleware.APIKeyGate(os.Getenv("SCIM_API_KEY")))

	addr := ":" + envOr("PORT", "8080")
	certPath := os.Getenv("TLS_CERT_PATH")
	keyPath := os.Getenv("TLS_KEY_PATH")

	log.Info("starting scimbridge", zap.String("addr", addr))
	if certPath != "" && keyPath != "" {
		err = router.RunTLS(addr, certPath, keyPath)
	} else {
		err = router.Run(addr)
	}
	if err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

// healthz reports liveness from the DB pool alone; the LDAP probe is a
// secondary, informational check and never turns a 200 into a 503 —
// the directory-tool exec path works independently of it.
func healthz(db interface{ PingContext(context.Context) error }, ldapProbe adtool.LDAPProbe) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"db": "down"})
			return
		}

		ldapStatus := "disabled"
		if ldapProbe.URL != "" {
			ldapStatus = "up"
			if err := ldapProbe.Check(ctx); err != nil {
				ldapStatus = "down"
			}
		}
		c.JSON(http.StatusOK, gin.H{"db": "up", "ldap": ldapStatus})
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
