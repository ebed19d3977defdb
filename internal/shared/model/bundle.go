package model

import "fmt"

const (
	// DefaultAlias 固定别名，始终指向最新可用版本
	DefaultAlias = "dev"

	// LatestAlias 执行引擎内置的草稿别名，列表中需要排除
	LatestAlias = "$LATEST"

	bundleSuffix   = "AppBundle"
	activitySuffix = "Activity"
)

// QualifiedID 拼接带所有者前缀和别名的标识：owner.name+alias
func QualifiedID(owner, name, alias string) string {
	return fmt.Sprintf("%s.%s+%s", owner, name, alias)
}

// BundlePackage 本地暂存的 bundle 压缩包
type BundlePackage struct {
	ZipName string // 压缩包名（不含 .zip）
	Engine  string // 目标引擎标识
}

// CanonicalName bundle 在执行引擎中的名称
func (b BundlePackage) CanonicalName() string {
	return b.ZipName + bundleSuffix
}

// ActivityName 与该 bundle 配套的 activity 名称
func (b BundlePackage) ActivityName() string {
	return b.ZipName + activitySuffix
}

// QualifiedID bundle 的限定标识
func (b BundlePackage) QualifiedID(owner, alias string) string {
	return QualifiedID(owner, b.CanonicalName(), alias)
}

// ArchiveFile 本地压缩包文件名
func (b BundlePackage) ArchiveFile() string {
	return b.ZipName + ".zip"
}

// BundleFromCanonical 从 bundle 规范名（xxxAppBundle）还原 BundlePackage
func BundleFromCanonical(name, engine string) BundlePackage {
	zip := name
	if n := len(name) - len(bundleSuffix); n > 0 && name[n:] == bundleSuffix {
		zip = name[:n]
	}
	return BundlePackage{ZipName: zip, Engine: engine}
}
