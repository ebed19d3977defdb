package activity

import (
	"encoding/json"
	"log"
	"net/http"

	"automation-bridge/internal/apiserver/appbundle"
	"automation-bridge/internal/shared/apperr"
)

// AlreadyDefined activity 已存在时 Create 返回的提示
const AlreadyDefined = "Activity already defined"

// Handler activity 领域 HTTP 处理器
type Handler struct {
	builder *Builder
	decoder appbundle.RequestDecoder
}

// NewHandler 创建处理器
func NewHandler(builder *Builder, decoder appbundle.RequestDecoder) *Handler {
	return &Handler{builder: builder, decoder: decoder}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/aps/designautomation/activities", h.List)
	mux.HandleFunc("POST /api/aps/designautomation/activities", h.Create)
}

// List 列出自有 activity
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ids, err := h.builder.ListActivities(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

// Create 确保 activity 存在
//
// 新建时返回 {"activity": 限定 ID}，已存在时返回 {"activity": "Activity already defined"}。
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := appbundle.DecodeDefinition(w, r, h.decoder)
	if !ok {
		return
	}
	result, err := h.builder.EnsureActivity(r.Context(), req.Engine, req.ZipFileName)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if !result.Created {
		writeJSON(w, http.StatusOK, map[string]string{"activity": AlreadyDefined})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"activity": result.ID})
}

func writeAppError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[Activity] request failed: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
