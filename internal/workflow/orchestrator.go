package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"carouselgen/internal/gemini"
	"carouselgen/internal/model"
	"carouselgen/internal/storage"
)

var (
	// ErrRunInFlight 已有工作流在运行，同一时刻最多一次运行
	ErrRunInFlight = errors.New("workflow: a run is already in flight")
	// ErrEmptyTopic 主题为空
	ErrEmptyTopic = errors.New("workflow: topic must not be empty")
	// ErrCredentialRequired 没有有效凭据，引导用户先录入
	ErrCredentialRequired = errors.New("workflow: credential required")
	// ErrSlideCount 页数超出1..10
	ErrSlideCount = fmt.Errorf("workflow: slide count must be between %d and %d", model.MinSlideCount, model.MaxSlideCount)
	// ErrInvalidRatio 画幅比例不受支持
	ErrInvalidRatio = errors.New("workflow: unsupported aspect ratio")
	// ErrTooManyReferences 参考图超出上限
	ErrTooManyReferences = fmt.Errorf("workflow: at most %d reference images", model.MaxReferenceImages)
)

// GenerationService 三个生成操作，由internal/gemini实现
type GenerationService interface {
	GeneratePlan(ctx context.Context, credential, topic string, count int, ratio string, refs []model.ReferenceImage) ([]*model.CarouselSegment, error)
	GenerateImage(ctx context.Context, credential string, seg *model.CarouselSegment, ratio string, refs []model.ReferenceImage) (string, error)
	GenerateInstagramPost(ctx context.Context, credential, topic string, segments []*model.CarouselSegment) (*model.InstagramPost, error)
}

// CredentialSource 编排器需要的凭据读取与作废能力
type CredentialSource interface {
	Get() (string, bool)
	Clear() error
}

// 确保gemini.Client实现了GenerationService接口
var _ GenerationService = (*gemini.Client)(nil)

// Observer 接收工作流快照，图片每生成一张就会重新发布一次
type Observer func(model.WorkflowSnapshot)

// StartRequest 发起一次工作流运行
type StartRequest struct {
	Topic       string `json:"topic"`
	SlideCount  int    `json:"slide_count"`
	AspectRatio string `json:"aspect_ratio"`
}

// Orchestrator 四状态顺序状态机：idle→planning→generating_images→
// generating_caption→completed，任何客户端错误回到idle并保留已产出内容。
// 状态只通过状态机迁移修改，外部只能读快照。
type Orchestrator struct {
	client GenerationService
	creds  CredentialSource
	runs   *storage.DB // 可为nil，测试中不归档

	mu              sync.Mutex
	runID           string
	state           model.WorkflowState
	topic           string
	ratio           string
	segments        []*model.CarouselSegment
	post            *model.InstagramPost
	refs            []model.ReferenceImage
	lastError       string
	needsCredential bool
	observers       []Observer
}

// New 创建编排器，初始状态idle
func New(client GenerationService, creds CredentialSource, runs *storage.DB) *Orchestrator {
	return &Orchestrator{
		client: client,
		creds:  creds,
		runs:   runs,
		state:  model.StateIdle,
	}
}

// Subscribe 注册快照观察者
func (o *Orchestrator) Subscribe(fn Observer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observers = append(o.observers, fn)
}

// Snapshot 返回当前状态的深拷贝
func (o *Orchestrator) Snapshot() model.WorkflowSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() model.WorkflowSnapshot {
	snap := model.WorkflowSnapshot{
		RunID:           o.runID,
		State:           o.state,
		Topic:           o.topic,
		ErrorMessage:    o.lastError,
		NeedsCredential: o.needsCredential,
	}
	for _, seg := range o.segments {
		snap.Segments = append(snap.Segments, *seg)
	}
	if o.post != nil {
		p := *o.post
		p.Hashtags = append([]string(nil), o.post.Hashtags...)
		snap.Post = &p
	}
	return snap
}

func (o *Orchestrator) publish() {
	o.mu.Lock()
	snap := o.snapshotLocked()
	observers := make([]Observer, len(o.observers))
	copy(observers, o.observers)
	o.mu.Unlock()
	for _, fn := range observers {
		fn(snap)
	}
}

// Start 校验输入并启动后台运行。没有凭据时不改变状态，返回ErrCredentialRequired
func (o *Orchestrator) Start(req StartRequest) error {
	req.Topic = strings.TrimSpace(req.Topic)
	if req.Topic == "" {
		return ErrEmptyTopic
	}
	if req.SlideCount < model.MinSlideCount || req.SlideCount > model.MaxSlideCount {
		return ErrSlideCount
	}
	if req.AspectRatio == "" {
		req.AspectRatio = model.RatioSquare
	}
	if !model.ValidRatio(req.AspectRatio) {
		return ErrInvalidRatio
	}

	o.mu.Lock()
	if o.state != model.StateIdle && o.state != model.StateCompleted {
		o.mu.Unlock()
		return ErrRunInFlight
	}
	credential, ok := o.creds.Get()
	if !ok {
		o.needsCredential = true
		o.mu.Unlock()
		return ErrCredentialRequired
	}

	// 新运行清空上一轮的产物
	o.runID = uuid.NewString()
	o.topic = req.Topic
	o.ratio = req.AspectRatio
	o.segments = nil
	o.post = nil
	o.lastError = ""
	o.needsCredential = false
	o.state = model.StatePlanning
	runID := o.runID
	refs := append([]model.ReferenceImage(nil), o.refs...)
	o.mu.Unlock()

	logrus.WithFields(logrus.Fields{"run_id": runID, "topic": req.Topic, "slides": req.SlideCount}).
		Info("workflow run started")

	go o.run(credential, req, refs)
	return nil
}

// run 后台顺序执行三个阶段。provider调用没有超时，挂起的请求会阻塞整个运行
func (o *Orchestrator) run(credential string, req StartRequest, refs []model.ReferenceImage) {
	ctx := context.Background()
	o.publish()

	segments, err := o.client.GeneratePlan(ctx, credential, req.Topic, req.SlideCount, req.AspectRatio, refs)
	if err != nil {
		o.fail(fmt.Errorf("plan: %w", err))
		return
	}

	o.mu.Lock()
	o.segments = segments
	o.state = model.StateGeneratingImages
	o.mu.Unlock()
	o.publish()

	// 逐页生成：上一页的结果发布之后才请求下一页
	for _, seg := range segments {
		url, err := o.client.GenerateImage(ctx, credential, seg, req.AspectRatio, refs)
		if err != nil {
			o.fail(fmt.Errorf("image for segment %d: %w", seg.ID, err))
			return
		}
		o.mu.Lock()
		seg.ImageURL = url
		o.mu.Unlock()
		o.publish()
	}

	o.mu.Lock()
	o.state = model.StateGeneratingCaption
	o.mu.Unlock()
	o.publish()

	post, err := o.client.GenerateInstagramPost(ctx, credential, req.Topic, segments)
	if err != nil {
		o.fail(fmt.Errorf("post: %w", err))
		return
	}

	o.mu.Lock()
	o.post = post
	o.state = model.StateCompleted
	o.mu.Unlock()
	o.record()
	o.publish()
}

// fail 错误路径：分类错误、回到idle、保留已产出的分页和图片
func (o *Orchestrator) fail(err error) {
	kind := gemini.KindOf(err)

	// 先作废被拒绝的凭据，再公布idle状态
	if kind == gemini.KindInvalidCredential {
		if cerr := o.creds.Clear(); cerr != nil {
			logrus.WithError(cerr).Error("clear rejected credential")
		}
	}

	o.mu.Lock()
	o.lastError = err.Error()
	o.state = model.StateIdle
	if kind == gemini.KindInvalidCredential || kind == gemini.KindMissingCredential {
		o.needsCredential = true
	}
	runID := o.runID
	o.mu.Unlock()

	logrus.WithError(err).WithField("run_id", runID).Error("workflow run aborted")
	o.record()
	o.publish()
}

// record 把运行结果归档到sqlite
func (o *Orchestrator) record() {
	if o.runs == nil {
		return
	}
	o.mu.Lock()
	rec := storage.RunRecord{
		ID:         o.runID,
		Topic:      o.topic,
		SlideCount: len(o.segments),
		FinalState: string(o.state),
		Error:      o.lastError,
	}
	o.mu.Unlock()
	if err := o.runs.RecordRun(rec); err != nil {
		logrus.WithError(err).Error("record workflow run")
	}
}

// Reset 回到idle并丢弃产物，运行中不可重置
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != model.StateIdle && o.state != model.StateCompleted {
		return ErrRunInFlight
	}
	o.runID = ""
	o.topic = ""
	o.segments = nil
	o.post = nil
	o.lastError = ""
	o.state = model.StateIdle
	return nil
}

// AddReferenceImages 追加风格参考图，超过上限整批拒绝，已有集合不变
func (o *Orchestrator) AddReferenceImages(imgs ...model.ReferenceImage) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.refs)+len(imgs) > model.MaxReferenceImages {
		return ErrTooManyReferences
	}
	o.refs = append(o.refs, imgs...)
	return nil
}

// ClearReferenceImages 清空参考图集合
func (o *Orchestrator) ClearReferenceImages() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.refs = nil
}

// ReferenceImageCount 当前参考图数量
func (o *Orchestrator) ReferenceImageCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.refs)
}
