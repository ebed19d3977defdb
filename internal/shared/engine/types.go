// Package engine 执行引擎（Design Automation v3）REST 客户端
//
// 引擎本身是不透明的远端 API：本包只负责请求构造、鉴权头注入、
// 分页遍历和按 HTTP 状态码归类错误。
package engine

// Page 分页结果
type Page struct {
	PaginationToken string   `json:"paginationToken,omitempty"`
	Data            []string `json:"data"`
}

// AppBundle 创建 bundle / 新版本的请求体
type AppBundle struct {
	ID          string `json:"id,omitempty"`
	Engine      string `json:"engine"`
	Description string `json:"description,omitempty"`
}

// UploadParameters 预签名的 multipart 上传目标
type UploadParameters struct {
	EndpointURL string            `json:"endpointURL"`
	FormData    map[string]string `json:"formData"`
}

// AppBundleVersion 创建 bundle / 新版本的响应
type AppBundleVersion struct {
	ID               string           `json:"id"`
	Engine           string           `json:"engine"`
	Description      string           `json:"description,omitempty"`
	Version          int              `json:"version"`
	UploadParameters UploadParameters `json:"uploadParameters"`
}

// ActivityVersion 创建 activity 的响应
type ActivityVersion struct {
	ID      string `json:"id"`
	Engine  string `json:"engine"`
	Version int    `json:"version"`
}

// Alias 别名
type Alias struct {
	ID      string `json:"id"`
	Version int    `json:"version"`
}

// AliasPatch 别名重定向请求体
type AliasPatch struct {
	Version int `json:"version"`
}
