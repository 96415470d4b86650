package usher

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/sciplat/usher/routing"
	"github.com/sciplat/usher/session"
)

// resolveHandler answers redirect requests. It builds a parameter bundle
// from the authenticated request, resolves it against the routing table and
// sends the caller on to the resolved target.
type resolveHandler struct {
	routePrefix string
	baseURL     string
	userHeader  string
	tokenHeader string
	table       *routing.Table
	clients     *session.Manager
}

func (h *resolveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		resolutionSeconds.Observe(time.Since(start).Seconds())
	}()
	path := strings.TrimPrefix(r.URL.Path, h.routePrefix)
	logger := log.WithFields(log.Fields{
		"request_id": uuid.NewString(),
		"path":       path,
	})

	user := r.Header.Get(h.userHeader)
	token := r.Header.Get(h.tokenHeader)
	if user == "" || token == "" {
		logger.Warnf("request without %s or %s header", h.userHeader, h.tokenHeader)
		resolutionsTotal.WithLabelValues(resultUnauthorized).Inc()
		http.Error(w, "delegated user and token required", http.StatusUnauthorized)
		return
	}
	logger = logger.WithField("user", user)

	client, err := h.clients.Client(r.Context(), user, token)
	if err != nil {
		logger.Error("unable to build platform client: ", err)
		resolutionsTotal.WithLabelValues(resultClientFailure).Inc()
		http.Error(w, "unable to reach the platform", http.StatusInternalServerError)
		return
	}

	bundle := routing.NewBundle(user, h.baseURL, path, token, client)
	target, err := h.table.Resolve(r.Context(), bundle)
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	resolutionsTotal.WithLabelValues(resultRedirect).Inc()
	logger.Info("redirecting to ", target)
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

// fail translates the typed resolution errors into transport responses. The
// response bodies stay generic, the details go to the log only.
func (h *resolveHandler) fail(w http.ResponseWriter, logger *log.Entry, err error) {
	var (
		noMatch    *routing.MatchNotFoundError
		hookErr    *routing.HookError
		resolveErr *routing.ResolutionError
	)
	switch {
	case errors.As(err, &noMatch):
		logger.Warn(err)
		resolutionsTotal.WithLabelValues(resultNoMatch).Inc()
		http.Error(w, "no route for this path", http.StatusNotFound)
	case errors.As(err, &hookErr):
		logger.Error("hook failed: ", err)
		resolutionsTotal.WithLabelValues(resultHookFailure).Inc()
		http.Error(w, "resolution failed", http.StatusInternalServerError)
	case errors.As(err, &resolveErr):
		logger.Error("target did not resolve: ", err)
		resolutionsTotal.WithLabelValues(resultResolution).Inc()
		http.Error(w, "resolution failed", http.StatusInternalServerError)
	default:
		logger.Error("resolution failed: ", err)
		resolutionsTotal.WithLabelValues(resultInternal).Inc()
		http.Error(w, "resolution failed", http.StatusInternalServerError)
	}
}
