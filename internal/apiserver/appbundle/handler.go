package appbundle

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"automation-bridge/internal/shared/apperr"
	"automation-bridge/internal/shared/schema"
)

// RequestDecoder 按 schema 校验并解码请求体（schema.Validator 实现）
type RequestDecoder interface {
	Decode(name string, body []byte, out any) error
}

// DefinitionRequest bundle / activity 定义请求
type DefinitionRequest struct {
	ZipFileName string `json:"zipFileName"`
	Engine      string `json:"engine"`
}

// Handler bundle 领域 HTTP 处理器
type Handler struct {
	provisioner *Provisioner
	decoder     RequestDecoder
}

// NewHandler 创建处理器
func NewHandler(provisioner *Provisioner, decoder RequestDecoder) *Handler {
	return &Handler{provisioner: provisioner, decoder: decoder}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/appbundles", h.ListLocal)
	mux.HandleFunc("GET /api/aps/designautomation/engines", h.ListEngines)
	mux.HandleFunc("POST /api/aps/designautomation/appbundles", h.Create)
}

// ListLocal 列出本地压缩包
func (h *Handler) ListLocal(w http.ResponseWriter, r *http.Request) {
	names, err := h.provisioner.ListLocalBundles()
	if err != nil {
		log.Printf("[AppBundle] list local bundles: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list bundles")
		return
	}
	writeJSON(w, http.StatusOK, names)
}

// ListEngines 列出执行引擎
func (h *Handler) ListEngines(w http.ResponseWriter, r *http.Request) {
	engines, err := h.provisioner.ListEngines(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, engines)
}

// Create 上传 bundle 新版本并更新别名
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := DecodeDefinition(w, r, h.decoder)
	if !ok {
		return
	}
	result, err := h.provisioner.EnsureBundle(r.Context(), req.ZipFileName, req.Engine)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// DecodeDefinition 读取并校验定义请求，失败时已写入 400 响应
func DecodeDefinition(w http.ResponseWriter, r *http.Request, decoder RequestDecoder) (*DefinitionRequest, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return nil, false
	}
	var req DefinitionRequest
	if decoder != nil {
		err = decoder.Decode(schema.DefinitionRequest, body, &req)
	} else {
		err = json.Unmarshal(body, &req)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return &req, true
}

func writeAppError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[AppBundle] request failed: %v", err)
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
