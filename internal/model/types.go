package model

// WorkflowState 工作流状态机的状态
type WorkflowState string

const (
	StateIdle              WorkflowState = "idle"
	StatePlanning          WorkflowState = "planning"
	StateGeneratingImages  WorkflowState = "generating_images"
	StateGeneratingCaption WorkflowState = "generating_caption"
	StateCompleted         WorkflowState = "completed"
)

// 用户输入约束
const (
	MinSlideCount      = 1
	MaxSlideCount      = 10
	MaxReferenceImages = 20
)

// 支持的画幅比例
const (
	RatioSquare   = "1:1"
	RatioPortrait = "4:5"
)

// ValidRatio 校验画幅比例是否受支持
func ValidRatio(ratio string) bool {
	return ratio == RatioSquare || ratio == RatioPortrait
}

// CarouselSegment 轮播图单页，由规划步骤创建，图片生成步骤补全ImageURL
type CarouselSegment struct {
	ID           int    `json:"id"`                  // 1开始，与数组位置+1一致
	LogicalStep  string `json:"logical_step"`        // hook/info/solution/closing
	KeyMessage   string `json:"key_message"`         // 页面核心文案
	VisualPrompt string `json:"visual_prompt"`       // 图片生成提示词
	ImageURL     string `json:"image_url,omitempty"` // data URI，图片生成成功后写入一次
}

// InstagramPost 最终发布文案
type InstagramPost struct {
	Caption  string   `json:"caption"`  // 正文
	Hashtags []string `json:"hashtags"` // 话题标签列表
}

// ReferenceImage 用户上传的风格参考图
type ReferenceImage struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"-"`
}

// WorkflowSnapshot 发布给观察者的工作流快照，内容为深拷贝
type WorkflowSnapshot struct {
	RunID           string            `json:"run_id,omitempty"`
	State           WorkflowState     `json:"state"`
	Topic           string            `json:"topic,omitempty"`
	Segments        []CarouselSegment `json:"segments,omitempty"`
	Post            *InstagramPost    `json:"post,omitempty"`
	ErrorMessage    string            `json:"error,omitempty"`
	NeedsCredential bool              `json:"needs_credential,omitempty"`
}
