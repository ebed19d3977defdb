package server

import (
	"net/http"
	"strings"

	"automation-bridge/internal/apiserver/activity"
	"automation-bridge/internal/apiserver/appbundle"
	"automation-bridge/internal/apiserver/callback"
	"automation-bridge/internal/apiserver/notify"
	"automation-bridge/internal/apiserver/workitem"
)

// Router 返回配置好的 HTTP 路由
//
// 路由规则：
//
// 基础:
//   - GET  /health                                - 服务健康检查
//   - GET  /metrics                               - Prometheus 指标
//   - GET  /api/openapi.yaml                      - OpenAPI 文档
//
// 定义 (AppBundle / Activity):
//   - GET  /api/appbundles                        - 本地 bundle 压缩包
//   - GET  /api/aps/designautomation/engines      - 执行引擎列表
//   - POST /api/aps/designautomation/appbundles   - 上传 bundle 新版本
//   - GET  /api/aps/designautomation/activities   - 自有 activity 列表
//   - POST /api/aps/designautomation/activities   - 确保 activity 存在
//
// 作业 (WorkItem):
//   - POST /api/aps/designautomation/workitems    - 暂存输入并提交作业
//   - POST /api/aps/callback/designautomation     - 完成回调
//
// WebSocket:
//   - GET  /ws/designautomation                   - 通知通道
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// 健康检查
	mux.HandleFunc("GET /health", h.Health)

	// Prometheus 指标端点
	mux.Handle("GET /metrics", h.metrics.Handler())

	mux.HandleFunc("GET /api/openapi.yaml", h.OpenAPI)

	if h.provisioner != nil {
		appbundle.NewHandler(h.provisioner, h.validator).RegisterRoutes(mux)
	}
	if h.builder != nil {
		activity.NewHandler(h.builder, h.validator).RegisterRoutes(mux)
	}
	if h.jobs != nil {
		workitem.NewHandler(h.jobs, h.validator).RegisterRoutes(mux)
	}
	if h.signer != nil && h.dispatcher != nil {
		cbHandler := callback.NewHandler(h.signer, h.replayGuard, h.dispatcher, h.logger, h.metrics)
		cbHandler.RegisterRoutes(mux)
	}

	// 应用指标中间件到 REST API
	apiHandler := h.metrics.MetricsMiddleware(mux)

	// 应用 CORS 中间件
	corsHandler := corsMiddleware(h.corsOrigins)(apiHandler)

	// 创建顶层路由，WebSocket 绕过 metrics 中间件（避免 http.Hijacker 问题）
	topMux := http.NewServeMux()
	if h.registry != nil {
		notify.NewHandler(h.registry, h.corsOrigins, h.metrics).RegisterRoutes(topMux)
	}
	topMux.Handle("/", corsHandler)

	return topMux
}

// corsMiddleware 添加 CORS 头支持跨域请求
//
// origins 为空或包含 "*" 时允许任意来源。
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowAll := len(origins) == 0
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(o, "/")] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case allowAll:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && allowed[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
