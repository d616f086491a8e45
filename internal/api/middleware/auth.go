package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
)

// APIKey returns middleware gating requests on the X-A2A-Key header.
// With no keys configured the gate is disabled; production deployments run
// behind an external gate and configure keys here as a second line.
func APIKey(keys []string) func(next http.Handler) http.Handler {
	keySet := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		keySet[k] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(keySet) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			provided := r.Header.Get("X-A2A-Key")
			for k := range keySet {
				if subtle.ConstantTimeCompare([]byte(provided), []byte(k)) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid or missing API key"})
		})
	}
}
