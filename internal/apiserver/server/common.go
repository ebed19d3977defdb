// Package server 路由配置与核心基础设施
//
// 本包把各领域包（appbundle、activity、workitem、callback、notify）
// 组装为一个 HTTP 处理器，包括：
//   - handler.go: 路由与中间件
//   - common.go: Handler 定义与通用工具函数
//   - metrics.go: Prometheus 指标
package server

import (
	"encoding/json"
	"net/http"

	"automation-bridge/api"
	"automation-bridge/internal/apiserver/activity"
	"automation-bridge/internal/apiserver/appbundle"
	"automation-bridge/internal/apiserver/callback"
	"automation-bridge/internal/apiserver/notify"
	"automation-bridge/internal/apiserver/workitem"
	"automation-bridge/internal/shared/cache"
	"automation-bridge/internal/shared/schema"
	"automation-bridge/pkg/logging"
)

// Deps Handler 依赖的领域服务，由 main 组装
type Deps struct {
	Provisioner *appbundle.Provisioner
	Builder     *activity.Builder
	Jobs        *workitem.Service
	Registry    *notify.Registry
	Signer      *callback.Signer
	Dispatcher  *callback.Dispatcher
	ReplayGuard cache.ReplayGuard
	Validator   *schema.Validator
	Metrics     *Metrics
	Logger      *logging.Logger
	CORSOrigins []string
}

// Handler API 处理器
//
// Handler 是所有 HTTP API 的入口，负责把请求路由到对应的领域处理器。
type Handler struct {
	provisioner *appbundle.Provisioner
	builder     *activity.Builder
	jobs        *workitem.Service
	registry    *notify.Registry
	signer      *callback.Signer
	dispatcher  *callback.Dispatcher
	replayGuard cache.ReplayGuard
	validator   *schema.Validator
	metrics     *Metrics
	logger      *logging.Logger
	corsOrigins []string
}

// NewHandler 创建 Handler 实例
func NewHandler(d Deps) *Handler {
	h := &Handler{
		provisioner: d.Provisioner,
		builder:     d.Builder,
		jobs:        d.Jobs,
		registry:    d.Registry,
		signer:      d.Signer,
		dispatcher:  d.Dispatcher,
		replayGuard: d.ReplayGuard,
		validator:   d.Validator,
		metrics:     d.Metrics,
		logger:      d.Logger,
		corsOrigins: d.CORSOrigins,
	}
	if h.metrics == nil {
		h.metrics = NewMetrics("automation")
	}
	if h.logger == nil {
		h.logger = logging.Default("api-server")
	}
	return h
}

// GetMetrics 返回指标实例
func (h *Handler) GetMetrics() *Metrics {
	return h.metrics
}

// writeJSON 将数据以 JSON 格式写入 HTTP 响应
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Health 健康检查接口
//
// 路由: GET /health
//
// 返回 {"status": "ok"} 以及当前本副本持有的通知连接数。
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	connections := 0
	if h.registry != nil {
		connections = h.registry.Count()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "connections": connections})
}

// OpenAPI 返回内嵌的 OpenAPI 文档
//
// 路由: GET /api/openapi.yaml
func (h *Handler) OpenAPI(w http.ResponseWriter, r *http.Request) {
	data, err := api.OpenAPIFS.ReadFile(api.SpecFile)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "openapi document unavailable"})
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.Write(data)
}
