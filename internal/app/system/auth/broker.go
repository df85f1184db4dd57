package auth

import (
	"net/http"

	"github.com/dalemusser/stratawiki/internal/app/system/apperr"
	"github.com/dalemusser/stratawiki/internal/app/system/jsonutil"
	"github.com/dalemusser/stratawiki/internal/app/system/metrics"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// BrokerKeyHeader carries the identity broker's shared key.
const BrokerKeyHeader = "X-Broker-Key"

// BrokerKeyAuth returns middleware that admits only the identity broker.
//
// The broker completes the OAuth handshake and hands the verified identity
// to the session endpoint. It proves itself with the key in X-Broker-Key,
// checked against keyHash (a bcrypt hash from configuration).
//
// If keyHash is empty, logs a warning and rejects all requests.
func BrokerKeyAuth(keyHash string, logger *zap.Logger) func(http.Handler) http.Handler {
	if keyHash == "" {
		logger.Warn("broker key hash not configured - all session requests will be rejected")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if keyHash == "" {
				logger.Warn("broker request rejected: broker key not configured",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				jsonutil.WriteError(w, apperr.Unauthenticated())
				return
			}

			provided := r.Header.Get(BrokerKeyHeader)
			if provided == "" {
				logger.Debug("broker request rejected: missing key",
					zap.String("path", r.URL.Path),
				)
				metrics.AuthFailuresTotal.WithLabelValues("broker_key").Inc()
				jsonutil.WriteError(w, apperr.Unauthenticated())
				return
			}

			if err := bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(provided)); err != nil {
				logger.Warn("broker request rejected: invalid key",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				metrics.AuthFailuresTotal.WithLabelValues("broker_key").Inc()
				jsonutil.WriteError(w, apperr.Unauthenticated())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
