package model

// Verb 参数方向
type Verb string

const (
	VerbGet  Verb = "get"
	VerbPut  Verb = "put"
	VerbPost Verb = "post"
)

// 固定的三参数契约
const (
	ParamInputFile  = "inputFile"
	ParamInputJSON  = "inputJson"
	ParamOutputFile = "outputFile"
	ParamOnComplete = "onComplete" // 回调地址，不是数据制品

	paramsDocLocalName = "params.json"
	scriptSetting      = "script"
)

// Parameter activity 参数定义
type Parameter struct {
	Verb        Verb   `json:"verb"`
	Description string `json:"description,omitempty"`
	LocalName   string `json:"localName,omitempty"`
	Required    bool   `json:"required"`
	Zip         bool   `json:"zip"`
	OnDemand    bool   `json:"ondemand"`
}

// Setting activity 设置项
type Setting struct {
	Value string `json:"value"`
}

// ActivityDefinition 可执行作业模板
type ActivityDefinition struct {
	ID          string               `json:"id"`
	Engine      string               `json:"engine"`
	CommandLine []string             `json:"commandLine"`
	AppBundles  []string             `json:"appbundles"`
	Parameters  map[string]Parameter `json:"parameters"`
	Settings    map[string]Setting   `json:"settings,omitempty"`
	Description string               `json:"description,omitempty"`
}

// NewActivityDefinition 根据引擎参数和 bundle 构造 activity 定义
//
// 命令行使用 bundle 规范名渲染，appbundles 引用 owner.bundle+alias。
func NewActivityDefinition(profile EngineProfile, bundle BundlePackage, owner, alias string) *ActivityDefinition {
	def := &ActivityDefinition{
		ID:          bundle.ActivityName(),
		Engine:      bundle.Engine,
		CommandLine: []string{profile.RenderCommandLine(bundle.CanonicalName())},
		AppBundles:  []string{bundle.QualifiedID(owner, alias)},
		Parameters: map[string]Parameter{
			ParamInputFile: {
				Verb:        VerbGet,
				Description: "input file",
				LocalName:   "$(" + ParamInputFile + ")",
				Required:    true,
			},
			ParamInputJSON: {
				Verb:        VerbGet,
				Description: "input json",
				LocalName:   paramsDocLocalName,
				Required:    false,
			},
			ParamOutputFile: {
				Verb:        VerbPut,
				Description: "output file",
				LocalName:   ParamOutputFile + profile.OutputExtension,
				Required:    true,
			},
		},
		Description: "Activity for " + bundle.CanonicalName(),
	}
	if profile.Script != "" {
		def.Settings = map[string]Setting{scriptSetting: {Value: profile.Script}}
	}
	return def
}
