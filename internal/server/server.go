package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"hackathon-bot/internal/config"
	"hackathon-bot/internal/export"
	"hackathon-bot/internal/logger"
	"hackathon-bot/internal/util"
)

// HealthFunc reports whether the backing store is reachable.
type HealthFunc func(ctx context.Context) error

func New(cfg config.Config, exports export.Builder, health HealthFunc, log *logger.Logger) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           Router(cfg.ExportSecret, exports, health, log, time.Now),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Router serves /health and the signed CSV export links.
func Router(secret string, exports export.Builder, health HealthFunc, log *logger.Logger, now func() time.Time) http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if health != nil {
			if err := health(r.Context()); err != nil {
				log.Warn("health check failed", zap.Error(err))
				status, code = "unavailable", http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": status, "ts": now().UTC().Format(time.RFC3339)})
	})

	// CSV export (admin-only link with token = HMAC over kind and expiry)
	r.Get("/export/{kind}.csv", func(w http.ResponseWriter, r *http.Request) {
		kind, ok := export.ParseKind(chi.URLParam(r, "kind"))
		if !ok {
			http.Error(w, "unknown export", http.StatusNotFound)
			return
		}
		q := r.URL.Query()
		token, rawExp := q.Get("token"), q.Get("exp")
		if token == "" || rawExp == "" {
			http.Error(w, "exp and token required", http.StatusBadRequest)
			return
		}
		exp, err := strconv.ParseInt(rawExp, 10, 64)
		if err != nil {
			http.Error(w, "bad exp", http.StatusBadRequest)
			return
		}
		if !util.VerifyHMAC(secret, signedPayload(kind, exp), token) {
			http.Error(w, "invalid token", http.StatusForbidden)
			return
		}
		if now().Unix() > exp {
			http.Error(w, "link expired", http.StatusGone)
			return
		}
		t, err := exports.Build(r.Context(), kind)
		if err != nil {
			log.Error("export failed", zap.String("kind", string(kind)), zap.Error(err))
			http.Error(w, "export failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName(kind, now())+`"`)
		if err := export.WriteCSV(w, t); err != nil {
			log.Warn("export write failed", zap.String("kind", string(kind)), zap.Error(err))
		}
	})

	return r
}

// ExportLink builds a signed download URL for kind that stops working at exp.
func ExportLink(baseURL, secret string, kind export.Kind, exp time.Time) string {
	q := url.Values{}
	q.Set("exp", strconv.FormatInt(exp.Unix(), 10))
	q.Set("token", util.HMACSHA256Hex(secret, signedPayload(kind, exp.Unix())))
	return baseURL + "/export/" + string(kind) + ".csv?" + q.Encode()
}

func signedPayload(kind export.Kind, exp int64) string {
	return "export:" + string(kind) + ":" + strconv.FormatInt(exp, 10)
}
