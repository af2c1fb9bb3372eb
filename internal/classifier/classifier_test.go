package classifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apellegr/llm-gateway/internal/envelope"
)

func userTurn(text string) envelope.Turn {
	return envelope.Turn{Role: envelope.RoleUser, Content: envelope.Content{Text: text}}
}

func TestClassifyEmptyMessageIsConversation(t *testing.T) {
	svc := New(nil, nil, nil, nil, nil)
	v := svc.Classify(context.Background(), []envelope.Turn{userTurn("")}, "", false)
	require.NotNil(t, v)
	assert.Equal(t, envelope.CategoryConversation, v.Category)
	assert.GreaterOrEqual(t, v.Confidence, 0.85)
}

func TestClassifyCodeFence(t *testing.T) {
	svc := New(nil, nil, nil, nil, nil)
	v := svc.Classify(context.Background(), []envelope.Turn{userTurn("```go\nfunc main() {}\n```")}, "", false)
	require.NotNil(t, v)
	assert.Equal(t, envelope.CategoryCode, v.Category)
	assert.GreaterOrEqual(t, v.Confidence, 0.95)
}

func TestClassifyGreeting(t *testing.T) {
	svc := New(nil, nil, nil, nil, nil)
	v := svc.Classify(context.Background(), []envelope.Turn{userTurn("Hi there!")}, "", false)
	require.NotNil(t, v)
	assert.Equal(t, envelope.CategoryGreetings, v.Category)
}

func TestClassifyWeatherImplicit(t *testing.T) {
	svc := New(nil, nil, nil, nil, nil)
	v := svc.Classify(context.Background(), []envelope.Turn{userTurn("Do I need an umbrella in Paris today?")}, "", false)
	require.NotNil(t, v)
	assert.Equal(t, envelope.CategoryRealtime, v.Category)
	assert.GreaterOrEqual(t, v.Confidence, 0.9)
}

func TestClassifyVerdictCategoryIsInClosedSet(t *testing.T) {
	svc := New(nil, nil, nil, nil, nil)
	samples := []string{
		"Hi", "Can you help me refactor this go struct? ```go\ntype X struct{}\n```",
		"What's the price of bitcoin right now", "Compare the pros and cons of Rust and Go for systems programming",
	}
	for _, s := range samples {
		v := svc.Classify(context.Background(), []envelope.Turn{userTurn(s)}, "", false)
		require.NotNil(t, v)
		assert.True(t, isKnownCategory(v.Category))
		assert.GreaterOrEqual(t, v.Confidence, 0.0)
		assert.LessOrEqual(t, v.Confidence, 1.0)
	}
}

func TestApplyUserPreferenceCategoryOverride(t *testing.T) {
	prefs := func(userID string) (envelope.UserPreference, bool) {
		return envelope.UserPreference{
			CategoryOverrides: map[envelope.Category]string{envelope.CategoryGreetings: "friendly-backend"},
		}, true
	}
	svc := New(nil, nil, nil, nil, prefs)
	v := svc.Classify(context.Background(), []envelope.Turn{userTurn("Hello")}, "user-1", false)
	require.NotNil(t, v)
	require.NotEmpty(t, v.SuggestedBackends)
	assert.Equal(t, "friendly-backend", v.SuggestedBackends[0])
}
