package core

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// HashIdentity derives the opaque caller identity from a raw network address.
// SHA-256 over address+salt, hex-encoded. The salt is process-wide and loaded
// once at startup, so the same address always hashes identically within a
// process lifetime. The hash is never reversed, only compared.
func HashIdentity(rawAddr, salt string) string {
	sum := sha256.Sum256([]byte(rawAddr + salt))
	return hex.EncodeToString(sum[:])
}

// ClientIP extracts the originating client address from a request.
// X-Forwarded-For (first hop) wins, then X-Real-IP, then RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}

	if rip := r.Header.Get("X-Real-IP"); rip != "" {
		return strings.TrimSpace(rip)
	}

	ip := r.RemoteAddr
	// Remove port if present
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

// ProjectKeys is a freshly generated public/secret key pair for a project.
type ProjectKeys struct {
	PublicKey string
	SecretKey string
}

// GenerateKeys mints a project key pair: a pub_ prefixed 16-byte public key
// and a sec_ prefixed 32-byte secret used for submission signing.
func GenerateKeys() (ProjectKeys, error) {
	pub := make([]byte, 16)
	if _, err := rand.Read(pub); err != nil {
		return ProjectKeys{}, err
	}
	sec := make([]byte, 32)
	if _, err := rand.Read(sec); err != nil {
		return ProjectKeys{}, err
	}
	return ProjectKeys{
		PublicKey: "pub_" + hex.EncodeToString(pub),
		SecretKey: "sec_" + hex.EncodeToString(sec),
	}, nil
}
