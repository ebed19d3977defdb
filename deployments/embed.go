// Package deployments 嵌入部署相关文件到二进制
//
// 包含：
//   - docker-compose.yml: MinIO + Redis + api-server 本地部署
package deployments

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

// DockerCompose 本地部署 Docker Compose 模板
//
//go:embed docker-compose.yml
var DockerCompose string

// ComposeServices 返回模板中定义的服务名
func ComposeServices() ([]string, error) {
	var doc struct {
		Services map[string]yaml.Node `yaml:"services"`
	}
	if err := yaml.Unmarshal([]byte(DockerCompose), &doc); err != nil {
		return nil, fmt.Errorf("parse docker-compose.yml: %w", err)
	}
	names := make([]string, 0, len(doc.Services))
	for name := range doc.Services {
		names = append(names, name)
	}
	return names, nil
}
