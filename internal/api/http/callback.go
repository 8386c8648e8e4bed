package http

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-capa/internal/capa"
	"github.com/mind-engage/mindengage-capa/internal/xqueue"
)

const callbackIssuer = "capa-xqueue"

// CallbackSigner issues and checks the tokens embedded in grader callback
// URLs, so a reply can only land on the state it was queued for.
type CallbackSigner struct {
	hmac    []byte
	baseURL string
	ttl     time.Duration
}

func NewCallbackSigner(secret, baseURL string, ttl time.Duration) *CallbackSigner {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &CallbackSigner{hmac: []byte(secret), baseURL: strings.TrimSuffix(baseURL, "/"), ttl: ttl}
}

type callbackClaims struct {
	State string `json:"state"`
	jwt.RegisteredClaims
}

func (s *CallbackSigner) Issue(stateID string) (string, error) {
	now := time.Now()
	claims := &callbackClaims{
		State: stateID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    callbackIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.hmac)
}

// Parse returns the state id a valid token names.
func (s *CallbackSigner) Parse(token string) (string, error) {
	t, err := jwt.ParseWithClaims(token, &callbackClaims{}, func(t *jwt.Token) (interface{}, error) {
		return s.hmac, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(callbackIssuer))
	if err != nil {
		return "", err
	}
	c, ok := t.Claims.(*callbackClaims)
	if !ok || !t.Valid || c.State == "" {
		return "", errors.New("invalid callback token")
	}
	return c.State, nil
}

// URL builds the callback URL for a state. Signing failures yield an empty
// URL, which the grader treats as no callback.
func (s *CallbackSigner) URL(stateID string) string {
	tok, err := s.Issue(stateID)
	if err != nil {
		return ""
	}
	return s.baseURL + "/xqueue/callback/" + url.PathEscape(tok)
}

// POST /xqueue/callback/{token}  form: xqueue_header, xqueue_body
func CallbackHandler(svc *capa.Service, signer *CallbackSigner, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stateID, err := signer.Parse(chi.URLParam(r, "token"))
		if err != nil {
			http.Error(w, "bad callback token", http.StatusForbidden)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		key, body, err := xqueue.ParseCallback(r.PostForm)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		res, err := svc.GraderReply(r.Context(), stateID, key, body)
		if err != nil {
			log.Warn("grader reply rejected", zap.String("state", stateID), zap.Error(err))
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
