package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"carouselgen/internal/model"
)

func mockClient() *Client {
	return NewClient("", "", "", true)
}

func TestGeneratePlanMock(t *testing.T) {
	c := mockClient()

	segments, err := c.GeneratePlan(context.Background(), "key", "시간 관리", 3, model.RatioSquare, nil)
	require.NoError(t, err)
	require.Len(t, segments, 3)
	for i, seg := range segments {
		assert.Equal(t, i+1, seg.ID)
		assert.NotEmpty(t, seg.LogicalStep)
		assert.NotEmpty(t, seg.KeyMessage)
		assert.NotEmpty(t, seg.VisualPrompt)
		assert.Empty(t, seg.ImageURL)
	}
}

func TestGenerateImageMock(t *testing.T) {
	c := mockClient()

	url, err := c.GenerateImage(context.Background(), "key",
		&model.CarouselSegment{ID: 1, VisualPrompt: "p", KeyMessage: "m"}, model.RatioSquare, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"))
}

func TestGenerateInstagramPostMock(t *testing.T) {
	c := mockClient()

	post, err := c.GenerateInstagramPost(context.Background(), "key", "시간 관리", mockPlan("시간 관리", 3))
	require.NoError(t, err)
	assert.NotEmpty(t, post.Caption)
	assert.GreaterOrEqual(t, len(post.Hashtags), 10)
	assert.LessOrEqual(t, len(post.Hashtags), 15)
}

func TestMissingCredential(t *testing.T) {
	c := mockClient()
	c.Mock = false

	_, err := c.GeneratePlan(context.Background(), "", "topic", 3, model.RatioSquare, nil)
	require.Error(t, err)
	assert.Equal(t, KindMissingCredential, KindOf(err))

	_, err = c.GenerateImage(context.Background(), "  ", &model.CarouselSegment{}, model.RatioSquare, nil)
	require.Error(t, err)
	assert.Equal(t, KindMissingCredential, KindOf(err))

	_, err = c.GenerateInstagramPost(context.Background(), "", "topic", nil)
	require.Error(t, err)
	assert.Equal(t, KindMissingCredential, KindOf(err))
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"unauthorized", genai.APIError{Code: 401, Status: "UNAUTHENTICATED"}, KindInvalidCredential},
		{"forbidden", genai.APIError{Code: 403, Status: "PERMISSION_DENIED"}, KindInvalidCredential},
		{"bad api key", genai.APIError{Code: 400, Message: "API key not valid. Please pass a valid API key."}, KindInvalidCredential},
		{"bad request", genai.APIError{Code: 400, Message: "invalid argument"}, KindUnknown},
		{"rate limited", genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}, KindUnavailable},
		{"overloaded", genai.APIError{Code: 503, Status: "UNAVAILABLE", Message: "The model is overloaded."}, KindUnavailable},
		{"internal", genai.APIError{Code: 500, Status: "INTERNAL"}, KindUnavailable},
		{"plain error", errors.New("dial tcp: timeout"), KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classify(tc.err, "op")
			assert.Equal(t, tc.want, KindOf(got))
		})
	}
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.Equal(t, KindMalformed, KindOf(Errorf(KindMalformed, "bad response")))
}

func TestCleanJSON(t *testing.T) {
	raw := `[{"id":1}]`
	assert.Equal(t, raw, cleanJSON(raw))
	assert.Equal(t, raw, cleanJSON("```json\n"+raw+"\n```"))
	assert.Equal(t, raw, cleanJSON("```\n"+raw+"\n```"))
	assert.Equal(t, raw, cleanJSON("  "+raw+"  "))
}
