package handlers

import (
	"net/http"
	"time"

	"chatello/gateway/pkg/proxy"
)

// ServiceName is reported by the banner.
const ServiceName = "Chatello SaaS API"

// BannerResponse is the body of GET /.
type BannerResponse struct {
	Service   string    `json:"service"`
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Storage   string    `json:"storage"`
	Timestamp time.Time `json:"timestamp"`
}

// BannerHandler answers GET / with the service name and version. It does
// not touch storage; use the readiness endpoint for that.
type BannerHandler struct {
	version string
	storage string
	clock   func() time.Time
}

// NewBannerHandler creates the banner handler. storage names the backend
// in use.
func NewBannerHandler(version, storage string) *BannerHandler {
	return &BannerHandler{version: version, storage: storage, clock: time.Now}
}

// ServeHTTP implements http.Handler.
func (h *BannerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = proxy.WriteJSONResponse(w, http.StatusOK, &BannerResponse{
		Service:   ServiceName,
		Status:    "healthy",
		Version:   h.version,
		Storage:   h.storage,
		Timestamp: h.clock().UTC(),
	})
}
