package workitem

import (
	"encoding/json"
	"log"
	"net/http"

	"automation-bridge/internal/shared/apperr"
	"automation-bridge/internal/shared/schema"
)

const maxUploadMemory = 32 << 20

// RequestDecoder 按 schema 校验并解码（schema.Validator 实现）
type RequestDecoder interface {
	Decode(name string, body []byte, out any) error
}

// Handler 作业领域 HTTP 处理器
type Handler struct {
	service *Service
	decoder RequestDecoder
}

// NewHandler 创建处理器
func NewHandler(service *Service, decoder RequestDecoder) *Handler {
	return &Handler{service: service, decoder: decoder}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/aps/designautomation/workitems", h.Submit)
}

// Submit 接收 multipart 请求（inputFile + data）并提交作业
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "expected multipart/form-data")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("inputFile")
	if err != nil {
		writeError(w, http.StatusBadRequest, "inputFile is required")
		return
	}
	defer file.Close()

	raw := r.FormValue("data")
	var data JobData
	if h.decoder != nil {
		err = h.decoder.Decode(schema.WorkItemData, []byte(raw), &data)
	} else {
		err = json.Unmarshal([]byte(raw), &data)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	handle, err := h.service.SubmitJob(r.Context(), JobRequest{
		FileName: header.Filename,
		File:     file,
		Size:     header.Size,
		Data:     data,
	})
	if err != nil {
		status := apperr.HTTPStatus(err)
		if status >= http.StatusInternalServerError {
			log.Printf("[WorkItem] submit failed: %v", err)
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, handle)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
