package config

import "time"

// Environment 环境类型
type Environment string

const (
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test" // 测试环境（集成测试 + E2E 共用）
	EnvDevelopment Environment = "dev"
)

// YAMLConfig YAML 配置文件结构
type YAMLConfig struct {
	Server      ServerConfig      `yaml:"server"`
	APS         APSConfig         `yaml:"aps"`
	Callback    CallbackConfig    `yaml:"callback"`
	ObjectStore ObjectStoreConfig `yaml:"objstore"`
	Redis       RedisConfig       `yaml:"redis"`
	Bundles     BundlesConfig     `yaml:"bundles"`
	Log         LogConfig         `yaml:"log"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Port        string   `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"` // 为空时允许任意来源
}

// APSConfig 外部授权方与执行引擎配置
type APSConfig struct {
	ClientID     string        `yaml:"-"` // 只从 APS_CLIENT_ID 环境变量读取
	ClientSecret string        `yaml:"-"` // 只从 APS_CLIENT_SECRET 环境变量读取
	AuthURL      string        `yaml:"auth_url"`
	EngineURL    string        `yaml:"engine_url"`
	WebhookURL   string        `yaml:"webhook_url"` // 回调的对外根地址
	Scopes       []string      `yaml:"scopes"`
	TokenSkew    time.Duration `yaml:"token_skew"` // 凭据提前刷新窗口
	Alias        string        `yaml:"alias"`      // 固定别名，默认 dev
	HTTPTimeout  time.Duration `yaml:"http_timeout"`
}

// CallbackConfig 回调状态令牌配置
type CallbackConfig struct {
	Secret   string        `yaml:"-"`         // 只从 CALLBACK_SECRET 读取，缺省使用 client secret
	TokenTTL time.Duration `yaml:"token_ttl"` // 回调令牌有效期
}

// ObjectStoreConfig MinIO/S3 对象存储配置
type ObjectStoreConfig struct {
	Endpoint      string        `yaml:"endpoint"` // 例如 localhost:9000
	AccessKey     string        `yaml:"-"`        // 只从 MINIO_ROOT_USER 环境变量读取
	SecretKey     string        `yaml:"-"`        // 只从 MINIO_ROOT_PASSWORD 环境变量读取
	UseSSL        bool          `yaml:"use_ssl"`
	Region        string        `yaml:"region"`
	Bucket        string        `yaml:"bucket"`         // 为空时按 client id 推导
	CDNURL        string        `yaml:"cdn_url"`        // 下载地址的 CDN 根地址替换
	BearerHeaders bool          `yaml:"bearer_headers"` // 制品引用附带 Bearer 凭据
	DownloadTTL   time.Duration `yaml:"download_ttl"`
	UploadTTL     time.Duration `yaml:"upload_ttl"` // 输出 put 引用有效期
}

// RedisConfig Redis 配置（可选：回调防重放 + 跨副本通知转发）
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       int    `yaml:"db"`
	Password string `yaml:"-"`   // 只从 REDIS_PASSWORD 环境变量读取
	URL      string `yaml:"url"` // 直接指定 URL，优先于 host/port/db
}

// BundlesConfig 本地 bundle 压缩包目录
type BundlesConfig struct {
	Dir string `yaml:"dir"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}
