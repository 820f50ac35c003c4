package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"carouselgen/internal/model"
)

const (
	defaultPlanModel  = "gemini-2.5-flash"
	defaultImageModel = "gemini-2.5-flash-image"
	defaultPostModel  = "gemini-2.5-flash"
)

// mockPixel 1x1 PNG像素，Mock模式下作为生成结果返回
const mockPixel = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR4nGNgYAAAAAMAASsJTYQAAAAASUVORK5CYII="

// Client Gemini生成客户端，三个操作相互独立，每次调用都携带凭据
type Client struct {
	PlanModel  string
	ImageModel string
	PostModel  string
	Mock       bool
}

// NewClient 创建客户端，模型名为空时使用默认值
func NewClient(planModel, imageModel, postModel string, mock bool) *Client {
	if planModel == "" {
		planModel = defaultPlanModel
	}
	if imageModel == "" {
		imageModel = defaultImageModel
	}
	if postModel == "" {
		postModel = defaultPostModel
	}
	return &Client{PlanModel: planModel, ImageModel: imageModel, PostModel: postModel, Mock: mock}
}

func (c *Client) connect(ctx context.Context, credential string) (*genai.Client, error) {
	if strings.TrimSpace(credential) == "" {
		return nil, Errorf(KindMissingCredential, "credential not set")
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  credential,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, classify(err, "connect")
	}
	return cli, nil
}

// planSchema 规划结果的结构化输出schema
var planSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"id":            {Type: genai.TypeInteger},
			"logical_step":  {Type: genai.TypeString},
			"key_message":   {Type: genai.TypeString},
			"visual_prompt": {Type: genai.TypeString},
		},
		Required: []string{"id", "logical_step", "key_message", "visual_prompt"},
	},
}

// postSchema 文案结果的结构化输出schema
var postSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"caption":  {Type: genai.TypeString},
		"hashtags": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
	},
	Required: []string{"caption", "hashtags"},
}

// GeneratePlan 规划count页轮播图，返回的Segment按顺序编号1..count
func (c *Client) GeneratePlan(ctx context.Context, credential, topic string, count int, ratio string, refs []model.ReferenceImage) ([]*model.CarouselSegment, error) {
	if c.Mock {
		return mockPlan(topic, count), nil
	}

	cli, err := c.connect(ctx, credential)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(
		"You are a social media content strategist. Plan an Instagram carousel about the topic %q with exactly %d slides at aspect ratio %s. "+
			"Each slide needs: logical_step (one of hook/info/solution/closing), key_message (short display text, same language as the topic), "+
			"visual_prompt (a detailed English image-generation instruction matching the overall visual style). "+
			"Return a JSON array of %d objects with fields id, logical_step, key_message, visual_prompt.",
		topic, count, ratio, count)

	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	for _, ref := range refs {
		parts = append(parts, genai.NewPartFromBytes(ref.Data, ref.MIMEType))
	}

	resp, err := cli.Models.GenerateContent(ctx, c.PlanModel,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   planSchema,
		})
	if err != nil {
		return nil, classify(err, "generate plan")
	}

	text := resp.Text()
	if text == "" {
		return nil, Errorf(KindMalformed, "generate plan: empty response")
	}

	var segments []*model.CarouselSegment
	if err := json.Unmarshal([]byte(cleanJSON(text)), &segments); err != nil {
		return nil, wrapError(KindMalformed, err, "generate plan: unparseable response")
	}
	if len(segments) != count {
		return nil, Errorf(KindMalformed, "generate plan: expected %d segments, got %d", count, len(segments))
	}
	for i := range segments {
		segments[i].ID = i + 1
	}
	return segments, nil
}

// GenerateImage 为单页生成一张图片，返回data URI
func (c *Client) GenerateImage(ctx context.Context, credential string, seg *model.CarouselSegment, ratio string, refs []model.ReferenceImage) (string, error) {
	if c.Mock {
		return "data:image/png;base64," + mockPixel, nil
	}

	cli, err := c.connect(ctx, credential)
	if err != nil {
		return "", err
	}

	prompt := fmt.Sprintf(
		"Generate a single %s social media slide image.\nVisual instruction: %s\nThe image must prominently feature this text, accurately rendered: %q",
		ratio, seg.VisualPrompt, seg.KeyMessage)
	if len(refs) > 0 {
		prompt += "\nMatch the visual style of the attached reference images."
	}

	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	for _, ref := range refs {
		parts = append(parts, genai.NewPartFromBytes(ref.Data, ref.MIMEType))
	}

	resp, err := cli.Models.GenerateContent(ctx, c.ImageModel,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{
			ResponseModalities: []string{"IMAGE", "TEXT"},
			ImageConfig:        &genai.ImageConfig{AspectRatio: ratio},
		})
	if err != nil {
		return "", classify(err, "generate image")
	}

	// 取响应中第一个内联二进制部分
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mime := part.InlineData.MIMEType
				if mime == "" {
					mime = "image/png"
				}
				return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(part.InlineData.Data), nil
			}
		}
	}
	return "", Errorf(KindMalformed, "generate image: no image returned")
}

// GenerateInstagramPost 根据全部分页生成正文和话题标签
func (c *Client) GenerateInstagramPost(ctx context.Context, credential, topic string, segments []*model.CarouselSegment) (*model.InstagramPost, error) {
	if c.Mock {
		return mockPost(topic), nil
	}

	cli, err := c.connect(ctx, credential)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	for _, seg := range segments {
		fmt.Fprintf(&b, "%d. %s: %s\n", seg.ID, seg.LogicalStep, seg.KeyMessage)
	}
	prompt := fmt.Sprintf(
		"Write an Instagram caption for a carousel about %q, in the same language as the topic. Slides:\n%s"+
			"Return JSON with fields caption (engaging, with a call to action) and hashtags (10 to 15 relevant tags, each starting with #).",
		topic, b.String())

	resp, err := cli.Models.GenerateContent(ctx, c.PostModel,
		[]*genai.Content{genai.NewContentFromParts([]*genai.Part{genai.NewPartFromText(prompt)}, genai.RoleUser)},
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   postSchema,
		})
	if err != nil {
		return nil, classify(err, "generate post")
	}

	text := resp.Text()
	if text == "" {
		return nil, Errorf(KindMalformed, "generate post: empty response")
	}

	var post model.InstagramPost
	if err := json.Unmarshal([]byte(cleanJSON(text)), &post); err != nil {
		return nil, wrapError(KindMalformed, err, "generate post: unparseable response")
	}
	return &post, nil
}

// Ping 凭据校验用的最小生成调用
func (c *Client) Ping(ctx context.Context, credential string) error {
	if c.Mock {
		if strings.TrimSpace(credential) == "" {
			return Errorf(KindMissingCredential, "credential not set")
		}
		return nil
	}

	cli, err := c.connect(ctx, credential)
	if err != nil {
		return err
	}
	_, err = cli.Models.GenerateContent(ctx, c.PlanModel,
		[]*genai.Content{genai.NewContentFromParts([]*genai.Part{genai.NewPartFromText("ping")}, genai.RoleUser)},
		nil)
	if err != nil {
		return classify(err, "ping")
	}
	return nil
}

// cleanJSON 去掉模型偶尔包裹的markdown代码栅栏
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimSuffix(s, "```")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}

func mockPlan(topic string, count int) []*model.CarouselSegment {
	steps := []string{"hook", "info", "solution", "closing"}
	out := make([]*model.CarouselSegment, 0, count)
	for i := 1; i <= count; i++ {
		step := steps[len(steps)-1]
		if i-1 < len(steps) {
			step = steps[i-1]
		}
		out = append(out, &model.CarouselSegment{
			ID:           i,
			LogicalStep:  step,
			KeyMessage:   fmt.Sprintf("%s #%d", topic, i),
			VisualPrompt: fmt.Sprintf("minimal flat illustration about %s, slide %d", topic, i),
		})
	}
	return out
}

func mockPost(topic string) *model.InstagramPost {
	tags := make([]string, 0, 12)
	for i := 1; i <= 12; i++ {
		tags = append(tags, fmt.Sprintf("#tag%d", i))
	}
	return &model.InstagramPost{
		Caption:  fmt.Sprintf("A carousel about %s.", topic),
		Hashtags: tags,
	}
}
