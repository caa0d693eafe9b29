package api

import (
	"encoding/json"
	"fmt"
	"math"
	"rowstats/internal/config"
	"rowstats/internal/logger"
	"rowstats/internal/stats"
	"runtime/debug"
	"time"

	"github.com/o1egl/paseto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const adminTokenSubject = "admin"

type HttpApiRouter struct {
	Stats         *stats.Stats
	Configuration config.StatsServiceConfiguration
	Gatherer      prometheus.Gatherer

	metricsHandler fasthttp.RequestHandler
}

type RowCountsPayload struct {
	RowsWritten uint64 `json:"rows_written"`
	RowsRead    uint64 `json:"rows_read"`
}

func NewHttpApiRouter(service *stats.Stats, cfg config.StatsServiceConfiguration, gatherer prometheus.Gatherer) *HttpApiRouter {
	router := &HttpApiRouter{
		Stats:         service,
		Configuration: cfg,
		Gatherer:      gatherer,
	}
	if gatherer != nil {
		router.metricsHandler = fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return router
}

func (router *HttpApiRouter) GetFastHTTPHandler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		router.handleRequest(ctx)
	}
}

func (router *HttpApiRouter) handleRequest(ctx *fasthttp.RequestCtx) {
	startTime := time.Now()
	defer func() {
		recoverPanic(ctx)
		logger.LogAccessEvent("%s %s %s %d %v", string(ctx.Method()), string(ctx.Path()), ctx.RemoteAddr(), ctx.Response.StatusCode(), time.Since(startTime))
	}()

	switch string(ctx.Path()) {
	case "/health":
		router.HandleHealthRequest(ctx)
		return
	case "/metrics":
		router.HandleMetricsRequest(ctx)
		return
	}

	if !router.checkAuth(ctx) {
		ctx.Error("Unauthorized", fasthttp.StatusUnauthorized)
		return
	}

	router.routePath(ctx)
}

func (router *HttpApiRouter) routePath(ctx *fasthttp.RequestCtx) {
	switch string(ctx.Path()) {
	case "/stats":
		router.HandleStatsRequest(ctx)
	case "/stats/report":
		router.HandleReportRequest(ctx)
	case "/persistence":
		router.HandlePersistenceRequest(ctx)
	default:
		ctx.Error("Not Found", fasthttp.StatusNotFound)
	}
}

func (router *HttpApiRouter) checkAuth(ctx *fasthttp.RequestCtx) bool {
	headerToken := string(ctx.Request.Header.Peek("Authorization"))

	if !router.authenticationRequired() && headerToken == "" {
		return true
	}

	var footer string
	var claims paseto.JSONToken
	if err := paseto.NewV2().Decrypt(headerToken, secretKey(router.Configuration.AuthenticationSecret), &claims, &footer); err != nil {
		return false
	}
	return claims.Validate(paseto.Subject(adminTokenSubject), paseto.ValidAt(time.Now())) == nil
}

// authenticationRequired is true once a token or a non-default secret is
// configured.
func (router *HttpApiRouter) authenticationRequired() bool {
	secret := router.Configuration.AuthenticationSecret
	return router.Configuration.AuthenticationToken != "" ||
		(secret != "" && secret != config.DefaultAuthenticationSecret)
}

// IssueAdminToken returns a paseto v2 local token accepted by the router
// for validFor.
func IssueAdminToken(secret string, validFor time.Duration) (string, error) {
	now := time.Now()
	return paseto.NewV2().Encrypt(secretKey(secret), paseto.JSONToken{
		Subject:    adminTokenSubject,
		IssuedAt:   now,
		NotBefore:  now,
		Expiration: now.Add(validFor),
	}, "")
}

func secretKey(secret string) []byte {
	return []byte(fmt.Sprintf("%-32s", secret))[:32]
}

func (router *HttpApiRouter) HandleStatsRequest(ctx *fasthttp.RequestCtx) {
	if !isMethodAllowed(ctx, "GET") {
		return
	}
	snapshot := router.Stats.Snapshot()
	writeJSON(ctx, RowCountsPayload{RowsWritten: snapshot.RowsWritten, RowsRead: snapshot.RowsRead})
}

// HandleReportRequest lets row processors outside this process add to the
// totals. A report that would wrap either counter is rejected whole.
func (router *HttpApiRouter) HandleReportRequest(ctx *fasthttp.RequestCtx) {
	if !isMethodAllowed(ctx, "POST") {
		return
	}

	var payload RowCountsPayload
	if err := json.Unmarshal(ctx.PostBody(), &payload); err != nil {
		ctx.Error("Bad Request", fasthttp.StatusBadRequest)
		return
	}

	snapshot := router.Stats.Snapshot()
	if payload.RowsWritten > math.MaxUint64-snapshot.RowsWritten || payload.RowsRead > math.MaxUint64-snapshot.RowsRead {
		ctx.Error("Counter overflow", fasthttp.StatusBadRequest)
		return
	}
	if !router.Stats.TryIncrementRowsWritten(payload.RowsWritten) || !router.Stats.TryIncrementRowsRead(payload.RowsRead) {
		ctx.Error("Counter overflow", fasthttp.StatusBadRequest)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

func (router *HttpApiRouter) HandlePersistenceRequest(ctx *fasthttp.RequestCtx) {
	if !isMethodAllowed(ctx, "GET") {
		return
	}
	writeJSON(ctx, router.Stats.PersistenceMetrics().GetCurrentState())
}

func (router *HttpApiRouter) HandleMetricsRequest(ctx *fasthttp.RequestCtx) {
	if !isMethodAllowed(ctx, "GET") {
		return
	}
	if router.metricsHandler == nil {
		ctx.Error("Not Found", fasthttp.StatusNotFound)
		return
	}
	router.metricsHandler(ctx)
}

func (router *HttpApiRouter) HandleHealthRequest(ctx *fasthttp.RequestCtx) {
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBodyString("ok")
}

func isMethodAllowed(ctx *fasthttp.RequestCtx, methods ...string) bool {
	reqMethod := string(ctx.Method())
	for _, m := range methods {
		if reqMethod == m {
			return true
		}
	}
	ctx.Error("Method Not Allowed", fasthttp.StatusMethodNotAllowed)
	return false
}

func recoverPanic(ctx *fasthttp.RequestCtx) {
	if r := recover(); r != nil {
		logger.LogErrorEvent("PANIC: %v\n%s", r, debug.Stack())
		ctx.Error("Internal Server Error", fasthttp.StatusInternalServerError)
	}
}

func writeJSON(ctx *fasthttp.RequestCtx, value interface{}) {
	ctx.SetContentType("application/json")
	if err := json.NewEncoder(ctx).Encode(value); err != nil {
		ctx.Error("Internal Server Error", fasthttp.StatusInternalServerError)
	}
}
