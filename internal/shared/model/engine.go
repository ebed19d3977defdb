// Package model 定义 Design Automation 编排的核心数据模型
//
// 包含：
//   - EngineProfile: 引擎族 → 命令行模板/输出扩展名/初始化脚本（只读表）
//   - BundlePackage: 本地 bundle 压缩包及其派生名称
//   - ActivityDefinition: 可执行的作业模板
//   - WorkItem: 一次作业实例及其参数绑定
package model

import (
	"strings"

	"automation-bridge/internal/shared/apperr"
)

// EngineFamily 引擎族（封闭枚举）
type EngineFamily int

const (
	EngineUnknown EngineFamily = iota
	Engine3dsMax
	EngineAutoCAD
	EngineInventor
	EngineRevit
)

// String 返回引擎族在引擎标识中出现的子串
func (f EngineFamily) String() string {
	switch f {
	case Engine3dsMax:
		return "3dsMax"
	case EngineAutoCAD:
		return "AutoCAD"
	case EngineInventor:
		return "Inventor"
	case EngineRevit:
		return "Revit"
	default:
		return "Unknown"
	}
}

// BundlePlaceholder 命令行模板中 bundle 名称的占位符
const BundlePlaceholder = "{bundle}"

// EngineProfile 引擎族的作业参数
type EngineProfile struct {
	Family          EngineFamily
	CommandLine     string // 含 BundlePlaceholder 的命令行模板
	OutputExtension string // 输出文件扩展名（含点）
	Script          string // 初始化脚本，可为空
}

// RenderCommandLine 用 bundle 规范名替换命令行模板中的占位符
func (p EngineProfile) RenderCommandLine(bundleName string) string {
	return strings.ReplaceAll(p.CommandLine, BundlePlaceholder, bundleName)
}

// engineProfiles 按匹配顺序排列的引擎表
var engineProfiles = []EngineProfile{
	{
		Family:          Engine3dsMax,
		CommandLine:     `$(engine.path)\3dsmaxbatch.exe -sceneFile "$(args[inputFile].path)" "$(settings[script].path)"`,
		OutputExtension: ".max",
		Script:          "da = dotNetClass(\"Autodesk.Forge.Sample.DesignAutomation.Max.RuntimeExecute\")\nda.ModifyWindowWidthHeight()\n",
	},
	{
		Family:          EngineAutoCAD,
		CommandLine:     `$(engine.path)\accoreconsole.exe /i "$(args[inputFile].path)" /al "$(appbundles[` + BundlePlaceholder + `].path)" /s "$(settings[script].path)"`,
		OutputExtension: ".dwg",
		Script:          "UpdateParam\n",
	},
	{
		Family:          EngineInventor,
		CommandLine:     `$(engine.path)\InventorCoreConsole.exe /i "$(args[inputFile].path)" /al "$(appbundles[` + BundlePlaceholder + `].path)"`,
		OutputExtension: ".ipt",
	},
	{
		Family:          EngineRevit,
		CommandLine:     `$(engine.path)\revitcoreconsole.exe /i "$(args[inputFile].path)" /al "$(appbundles[` + BundlePlaceholder + `].path)"`,
		OutputExtension: ".rvt",
	},
}

// LookupEngine 按子串匹配引擎标识（如 "Autodesk.AutoCAD+24"）
//
// 没有匹配时返回 InvalidEngine 错误。
func LookupEngine(engineID string) (EngineProfile, error) {
	for _, p := range engineProfiles {
		if strings.Contains(engineID, p.Family.String()) {
			return p, nil
		}
	}
	return EngineProfile{Family: EngineUnknown}, apperr.InvalidEngine(engineID)
}
