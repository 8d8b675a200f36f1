package controllers

import (
	"context"
	"net/http"

	"github.com/sekolahku/settlement-backend/api/responses"
	"github.com/sekolahku/settlement-backend/pkg/config"
	pkgerrors "github.com/sekolahku/settlement-backend/pkg/errors"
	"github.com/sekolahku/settlement-backend/pkg/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Settle-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports ready only when every backing store answers a ping.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbPinger, redisPinger pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Settle-Env", cfg.App.Env)
		ctx := r.Context()

		if dbPinger != nil {
			if err := dbPinger.Ping(ctx); err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database unavailable"))
				return
			}
		}
		if redisPinger != nil {
			if err := redisPinger.Ping(ctx); err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis unavailable"))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
