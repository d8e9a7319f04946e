package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mihaimyh/gofeatured/pkg/billing"
	"github.com/mihaimyh/gofeatured/pkg/featured"
	"github.com/mihaimyh/gofeatured/pkg/ratelimit"
)

const (
	checkoutScope       = "checkout"
	reindexSecretHeader = "X-Reindex-Secret"
	maxRequestBodyBytes = 16 * 1024
)

var errMethodNotAllowed = &featured.Error{
	Kind:    featured.KindValidation,
	Code:    "METHOD_NOT_ALLOWED",
	Message: "method not allowed",
	Status:  http.StatusMethodNotAllowed,
}

var errInvalidReindexSecret = featured.NewError(featured.KindAuth, "FORBIDDEN", "invalid reindex secret")

// Handler provides the featured placement HTTP endpoints
type Handler struct {
	config  Config
	origins map[string]bool
}

// Checkout handles POST /api/billing/checkout.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.handleError(w, r, errMethodNotAllowed)
		return
	}

	principal, ok := h.config.GetPrincipal(r)
	if !ok {
		h.handleError(w, r, featured.ErrUnauthorized)
		return
	}

	var body CheckoutRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		h.handleError(w, r, featured.ErrInvalidRequest.WithCause(err))
		return
	}
	body.JobID = strings.TrimSpace(body.JobID)
	if body.JobID == "" {
		h.handleError(w, r, featured.ErrInvalidRequest)
		return
	}

	employerID := principal.EmployerID
	if body.EmployerID != "" && body.EmployerID != principal.EmployerID {
		if principal.Role != RoleAdmin {
			h.handleError(w, r, featured.ErrForbidden)
			return
		}
		employerID = body.EmployerID
	}

	session, err := h.config.Checkout.CreateCheckout(r.Context(), billing.CheckoutRequest{
		EmployerID:    employerID,
		JobID:         body.JobID,
		CustomerEmail: principal.Email,
		Origin:        h.origin(r),
		RateKey:       ratelimit.Key(checkoutScope, ratelimit.Identifier(principal.EmployerID, r), r.URL.Path),
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// Reindex handles POST /api/search/reindex.
func (h *Handler) Reindex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.handleError(w, r, errMethodNotAllowed)
		return
	}

	secret := r.Header.Get(reindexSecretHeader)
	if h.config.ReindexSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(h.config.ReindexSecret)) != 1 {
		h.handleError(w, r, errInvalidReindexSecret)
		return
	}
	if h.config.Search == nil || !h.config.Search.Enabled() {
		h.handleError(w, r, featured.ErrSearchNotConfigured)
		return
	}

	n, err := h.config.Search.ReindexAll(r.Context())
	if err != nil {
		h.config.Logger.Error("reindex failed", featured.Field{Key: "error", Value: err})
		if featured.KindOf(err) == "" {
			err = featured.ErrSearchUnavailable.WithCause(err)
		}
		h.handleError(w, r, err)
		return
	}

	h.config.Logger.Info("reindex completed", featured.Field{Key: "indexed", Value: n})
	writeJSON(w, http.StatusOK, ReindexResponse{Indexed: n})
}

// origin returns the Origin header when it may be used for return URLs.
func (h *Handler) origin(r *http.Request) string {
	origin := strings.TrimRight(r.Header.Get("Origin"), "/")
	if origin == "" {
		return ""
	}
	if len(h.origins) > 0 && !h.origins[origin] {
		return ""
	}
	return origin
}

// handleError handles errors with appropriate HTTP status codes
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if h.config.OnError != nil {
		h.config.OnError(w, r, err)
		return
	}
	WriteError(w, err)
}

// WriteError writes the JSON error envelope for err. Rate limit errors also
// carry Retry-After.
func WriteError(w http.ResponseWriter, err error) {
	var fe *featured.Error
	if errors.As(err, &fe) && fe.ResetAt != nil {
		w.Header().Set(ratelimit.HeaderRetryAfter, ratelimit.RetryAfterSeconds(time.Until(*fe.ResetAt)))
	}
	writeJSON(w, featured.StatusOf(err), featured.NewErrorResponse(err))
}

func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}
