package admin

import (
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/alexedwards/argon2id"
)

// tokenHashParams are the OWASP minimum Argon2id parameters.
// Memory: 47 MiB, Iterations: 1, Parallelism: 1
var tokenHashParams = &argon2id.Params{
	Memory:      47 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// HashToken returns an Argon2id hash of token in PHC format, suitable for
// admin.token_hash.
// Format: $argon2id$v=19$m=48128,t=1,p=1$<salt>$<hash>
func HashToken(token string) (string, error) {
	if token == "" {
		return "", errors.New("token must not be empty")
	}
	return argon2id.CreateHash(token, tokenHashParams)
}

// IsTokenHash reports whether s looks like a hash produced by HashToken.
func IsTokenHash(s string) bool {
	return strings.HasPrefix(s, "$argon2id$")
}

// checkToken reports whether presented matches the configured plain token
// or token hash.
func (h *AdminAPIHandler) checkToken(presented string) bool {
	if presented == "" {
		return false
	}
	if h.token != "" && subtle.ConstantTimeCompare([]byte(presented), []byte(h.token)) == 1 {
		return true
	}
	if h.tokenHash != "" {
		match, err := argon2id.ComparePasswordAndHash(presented, h.tokenHash)
		if err != nil {
			h.logger.Warn("token hash comparison failed", "error", err)
			return false
		}
		return match
	}
	return false
}
