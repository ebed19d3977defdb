package callback

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"automation-bridge/internal/shared/cache"
	"automation-bridge/pkg/logging"
)

const maxCallbackBody = 1 << 20

// Handler 完成回调 HTTP 处理器
type Handler struct {
	signer     *Signer
	guard      cache.ReplayGuard
	dispatcher *Dispatcher
	logger     *logging.Logger
	observer   Observer
}

// NewHandler 创建 Handler
func NewHandler(signer *Signer, guard cache.ReplayGuard, dispatcher *Dispatcher, logger *logging.Logger, observer Observer) *Handler {
	if logger == nil {
		logger = logging.Default("callback")
	}
	if observer == nil {
		observer = noopObserver{}
	}
	return &Handler{
		signer:     signer,
		guard:      guard,
		dispatcher: dispatcher,
		logger:     logger,
		observer:   observer,
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST "+CallbackPath, h.HandleCallback)
}

// HandleCallback 处理完成回调
//
// 路由: POST /api/aps/callback/designautomation?v=1&id=..&outputFileName=..&state=..
//
// 状态令牌无法验证时返回 400 且不推送；重复回调返回 200 且不推送；
// 其余情况总是 200，推送失败只记录日志。
// 作业状态不是 success 时仍推送两次 onComplete，但不签发 downloadResult，
// 此时引擎没有写出输出对象。
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("v") != strconv.Itoa(StateVersion) {
		h.observer.RecordCallback("rejected")
		writeError(w, http.StatusBadRequest, "unsupported callback version")
		return
	}

	requesterID := q.Get("id")
	outputFileName := q.Get("outputFileName")
	claims, err := h.signer.Verify(q.Get("state"), requesterID, outputFileName)
	if err != nil {
		h.observer.RecordCallback("rejected")
		h.logger.WithRequester(requesterID).WithError(err).Warn("Rejected callback")
		writeError(w, http.StatusBadRequest, "invalid callback state")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		h.observer.RecordCallback("rejected")
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if h.guard != nil {
		first, err := h.guard.MarkSeen(r.Context(), claims.ID, replayTTL(claims))
		if err != nil {
			// 防重放存储不可用时照常处理
			h.logger.WithError(err).Warn("Replay guard unavailable")
		} else if !first {
			h.observer.RecordCallback("duplicate")
			h.logger.WithRequester(requesterID).Info("Duplicate callback ignored")
			writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
			return
		}
	}

	h.observer.RecordCallback("accepted")
	h.dispatcher.Dispatch(context.WithoutCancel(r.Context()), Completion{
		RequesterID:    requesterID,
		OutputFileName: outputFileName,
		Body:           body,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// replayTTL 记录保留到令牌过期
func replayTTL(claims *StateClaims) time.Duration {
	ttl := time.Minute
	if claims.ExpiresAt != nil {
		if d := time.Until(claims.ExpiresAt.Time); d > ttl {
			ttl = d
		}
	}
	return ttl
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
