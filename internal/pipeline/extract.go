package pipeline

import (
	"net/http"
	"strings"

	"github.com/jermoo/oidcrs/internal/credential"
)

type extracted struct {
	token     string
	tokenType credential.TokenType
}

// extract implements EXTRACT: inspect the Authorization header, the
// access_token query parameter, and the access_token form-body parameter,
// in that order, rejecting ambiguity. Returns a zero extracted and a nil
// error when no credential was found at all — that is REQUIRE's job to
// reject, not EXTRACT's.
func extract(r *http.Request, queryAllowed bool) (extracted, error) {
	var found []extracted

	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.Fields(header)
		if len(parts) != 2 {
			return extracted{}, shapeError("Authorization header must be \"scheme credentials\"")
		}
		switch strings.ToLower(parts[0]) {
		case "bearer":
			found = append(found, extracted{token: parts[1], tokenType: credential.TokenTypeBearer})
		case "dpop":
			found = append(found, extracted{token: parts[1], tokenType: credential.TokenTypeDPoP})
		default:
			return extracted{}, shapeError("unsupported Authorization scheme")
		}
	}

	if q := r.URL.Query().Get("access_token"); q != "" {
		if !queryAllowed {
			return extracted{}, shapeError("query string credentials are disabled")
		}
		found = append(found, extracted{token: q, tokenType: credential.TokenTypeBearer})
	}

	if strings.Contains(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err == nil {
			if v := r.PostForm.Get("access_token"); v != "" {
				found = append(found, extracted{token: v, tokenType: credential.TokenTypeBearer})
			}
		}
	}

	if len(found) > 1 {
		return extracted{}, shapeError("Multiple authentication methods")
	}
	if len(found) == 0 {
		return extracted{}, nil
	}
	return found[0], nil
}

// shapeErr is a sentinel wrapper so extract's callers can distinguish a
// shape failure from "no credential found".
type shapeErr struct{ msg string }

func (e shapeErr) Error() string { return e.msg }

func shapeError(msg string) error { return shapeErr{msg: msg} }
