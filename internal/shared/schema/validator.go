// Package schema 按内嵌 OpenAPI 文档校验请求体
package schema

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"

	"automation-bridge/api"
	"automation-bridge/internal/shared/apperr"
)

// 文档中的 schema 名称
const (
	DefinitionRequest = "DefinitionRequest"
	WorkItemData      = "WorkItemData"
	WorkItemStatus    = "WorkItemStatus"
)

// Validator OpenAPI schema 校验器
type Validator struct {
	doc *openapi3.T
}

// Load 加载并校验内嵌的 OpenAPI 文档
func Load() (*Validator, error) {
	data, err := api.OpenAPIFS.ReadFile(api.SpecFile)
	if err != nil {
		return nil, fmt.Errorf("read openapi document: %w", err)
	}
	return LoadFromData(data)
}

// LoadFromData 从原始 YAML/JSON 加载
func LoadFromData(data []byte) (*Validator, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("parse openapi document: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("invalid openapi document: %w", err)
	}
	return &Validator{doc: doc}, nil
}

// Validate 校验 JSON 文本是否符合指定 schema
func (v *Validator) Validate(name string, body []byte) error {
	ref, ok := v.doc.Components.Schemas[name]
	if !ok || ref.Value == nil {
		return fmt.Errorf("schema %q not found", name)
	}
	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		return apperr.Errorf(apperr.KindInvalidInput, "Validate", "malformed JSON: %v", err)
	}
	if err := ref.Value.VisitJSON(value); err != nil {
		return apperr.Errorf(apperr.KindInvalidInput, "Validate", "%s: %v", name, err)
	}
	return nil
}

// Decode 校验后解码到 out
func (v *Validator) Decode(name string, body []byte, out any) error {
	if err := v.Validate(name, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperr.Errorf(apperr.KindInvalidInput, "Decode", "%s: %v", name, err)
	}
	return nil
}
