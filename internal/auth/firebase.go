// Package auth guards the operator-facing HTTP API with Firebase ID-token
// verification, adapted from services/user.go's AuthMiddleware — the
// teacher's package-level FirebaseApp global becomes an instance field
// here, and the verified user is attached to the request context instead
// of being discarded.
package auth

import (
	"context"
	"net/http"
	"strings"

	firebase "firebase.google.com/go"
	"google.golang.org/api/option"

	"github.com/tokensentinel/sentinel/internal/telemetry"
)

type contextKey string

const userContextKey contextKey = "sentinel-user"

// User is the authenticated operator identity extracted from a verified
// Firebase ID token.
type User struct {
	UID   string
	Email string
}

// Verifier wraps a Firebase App to authenticate operator API requests.
type Verifier struct {
	app *firebase.App
	log *telemetry.Logger
}

// NewVerifier loads the service-account credentials file, matching
// InitFirebase's behavior.
func NewVerifier(credentialsFile string) (*Verifier, error) {
	opt := option.WithCredentialsFile(credentialsFile)
	app, err := firebase.NewApp(context.Background(), nil, opt)
	if err != nil {
		return nil, err
	}
	return &Verifier{app: app, log: telemetry.New("auth")}, nil
}

// Middleware rejects requests without a valid Bearer ID token and attaches
// the verified User to the request context otherwise.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "missing Authorization header", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		client, err := v.app.Auth(r.Context())
		if err != nil {
			v.log.Error("firebase auth client error: %v", err)
			http.Error(w, "internal auth error", http.StatusInternalServerError)
			return
		}

		token, err := client.VerifyIDToken(r.Context(), tokenString)
		if err != nil {
			v.log.Warn("invalid token: %v", err)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		user := &User{UID: token.UID}
		if email, ok := token.Claims["email"].(string); ok {
			user.Email = email
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserFromContext retrieves the authenticated User a Middleware call
// attached, if any.
func UserFromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(userContextKey).(*User)
	return u, ok
}
