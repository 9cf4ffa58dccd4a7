package server

import (
	"errors"
	"os"
	"strings"

	"github.com/faciam-dev/gcadmin/internal/logger"
	pkgutil "github.com/faciam-dev/gcadmin/pkg/util"
)

// allowedOrigins returns the list of origins allowed for CORS.
func allowedOrigins() []string {
	allowed := pkgutil.GetEnv("ALLOWED_ORIGINS", "http://localhost:5173")
	origins := strings.Split(allowed, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	return origins
}

// jwtSecret fetches JWT_SECRET.
func jwtSecret() (string, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return "", errors.New("JWT_SECRET environment variable is not set")
	}
	return secret, nil
}

// scopeSecret fetches SCOPE_TOKEN_SECRET, falling back to the JWT secret.
func scopeSecret(fallback string) []byte {
	if s := os.Getenv("SCOPE_TOKEN_SECRET"); s != "" {
		return []byte(s)
	}
	logger.L.Warn("SCOPE_TOKEN_SECRET not set; signing scope tokens with JWT_SECRET")
	return []byte(fallback)
}
