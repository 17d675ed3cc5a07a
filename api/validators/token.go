package validators

import (
	"errors"
	"strings"
)

var ErrInvalidToken = errors.New("invalid auth token")

// ExtractBearerToken pulls the JWT out of an Authorization header. Both the
// standard "Bearer <jwt>" form and the "Bearer-<jwt>" form handed out at
// login are accepted.
func ExtractBearerToken(header string) (string, error) {
	raw := strings.TrimSpace(header)
	if len(raw) < 7 || !strings.EqualFold(raw[:6], "bearer") {
		return "", ErrInvalidToken
	}
	token := raw[6:]
	switch token[0] {
	case ' ', '-':
		token = strings.TrimSpace(token[1:])
	default:
		return "", ErrInvalidToken
	}
	// Clients that echo the login token verbatim send "Bearer Bearer-<jwt>".
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer-") {
		token = token[7:]
	}
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", ErrInvalidToken
	}
	return token, nil
}
