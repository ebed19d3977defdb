package api

import "embed"

//go:embed openapi/*.yaml
var OpenAPIFS embed.FS

// SpecFile 对外提供的 OpenAPI 文档路径
const SpecFile = "openapi/automation.yaml"
