package shield

import (
	"crypto/sha256"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/docmerge/kit"
)

// APIKey is a named bcrypt hash of a bearer token.
type APIKey struct {
	Name string `yaml:"name"`
	Hash string `yaml:"hash"`
}

// HashKey returns the bcrypt hash to store for a new API key.
func HashKey(key string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// KeyAuth checks "Authorization: Bearer <key>" against a set of bcrypt
// hashes. Verified keys are remembered by their SHA-256 so bcrypt runs once
// per key, not once per request.
type KeyAuth struct {
	keys     []APIKey
	verified sync.Map // [32]byte → key name
	skip     []string
}

// NewKeyAuth returns an authenticator for keys. Paths starting with one of
// skipPrefixes are let through unauthenticated. With no keys every request
// passes.
func NewKeyAuth(keys []APIKey, skipPrefixes ...string) *KeyAuth {
	return &KeyAuth{keys: keys, skip: skipPrefixes}
}

// Verify returns the name of the key matching token.
func (a *KeyAuth) Verify(token string) (string, bool) {
	sum := sha256.Sum256([]byte(token))
	if name, ok := a.verified.Load(sum); ok {
		return name.(string), true
	}
	for _, k := range a.keys {
		if bcrypt.CompareHashAndPassword([]byte(k.Hash), []byte(token)) == nil {
			a.verified.Store(sum, k.Name)
			return k.Name, true
		}
	}
	return "", false
}

// Middleware rejects unauthenticated requests with 401 and records the key
// name in the context (kit.WithCaller).
func (a *KeyAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(a.keys) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		for _, prefix := range a.skip {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if ok {
			if name, valid := a.Verify(token); valid {
				next.ServeHTTP(w, r.WithContext(kit.WithCaller(r.Context(), name)))
				return
			}
		}

		w.Header().Set("WWW-Authenticate", `Bearer realm="docmerge"`)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "missing or invalid api key"})
	})
}
