package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apellegr/llm-gateway/internal/config"
	"github.com/apellegr/llm-gateway/internal/envelope"
)

func testStore() *config.Store {
	doc := &config.Document{
		DefaultBackend: "general",
		Backends: []envelope.Backend{
			{Name: "general", Specialties: []string{"conversation"}, Speed: "fast", ContextWindow: 8000},
			{Name: "coder", Specialties: []string{"code"}, Speed: "fast", ContextWindow: 16000},
			{Name: "premium", Specialties: []string{"complex", "research"}, Speed: "slow", ContextWindow: 128000, Premium: true},
		},
	}
	return config.NewStore("unused.yaml", doc)
}

func TestRouteNilVerdictUsesDefault(t *testing.T) {
	svc := New(testStore(), nil)
	d := svc.Route(nil, 0, "", false)
	assert.Equal(t, "general", d.Primary)
	assert.Contains(t, d.AllBackends, "general")
}

func TestRoutePrimaryAlwaysInAllBackends(t *testing.T) {
	svc := New(testStore(), nil)
	v := &envelope.Verdict{Category: envelope.CategoryCode, Confidence: 0.9, Complexity: envelope.ComplexitySimple, SuggestedBackends: []string{"coder"}}
	d := svc.Route(v, 0, "", false)
	require.NotEmpty(t, d.Primary)
	assert.Contains(t, d.AllBackends, d.Primary)
}

func TestRouteToolsOverrideForcesPremium(t *testing.T) {
	svc := New(testStore(), nil)
	v := &envelope.Verdict{Category: envelope.CategoryCode, Confidence: 0.9, Complexity: envelope.ComplexitySimple, SuggestedBackends: []string{"coder"}}
	d := svc.Route(v, 0, "", true)
	assert.Equal(t, "premium", d.Primary)
	assert.True(t, d.ToolsRouted)
}

func TestRouteMultiCategoryTriggersFanout(t *testing.T) {
	svc := New(testStore(), nil)
	v := &envelope.Verdict{Category: envelope.CategoryMulti, Confidence: 0.7, Complexity: envelope.ComplexityComplex, SuggestedBackends: []string{"general", "coder", "premium"}}
	d := svc.Route(v, 0, "", false)
	assert.True(t, d.MultiModel)
	assert.LessOrEqual(t, len(d.AllBackends), 3)
}

func TestRouteContextForcingPicksLargerWindow(t *testing.T) {
	svc := New(testStore(), nil)
	v := &envelope.Verdict{Category: envelope.CategoryConversation, Confidence: 0.9, Complexity: envelope.ComplexitySimple, SuggestedBackends: []string{"general"}}
	d := svc.Route(v, 40000, "", false)
	assert.Equal(t, "premium", d.Primary)
}

func TestEstimateContextLengthGrowsWithInputSize(t *testing.T) {
	short := EstimateContextLength("hello there")
	long := EstimateContextLength(largeText(5000))
	assert.Greater(t, long, short)
}

func largeText(words int) string {
	out := ""
	for i := 0; i < words; i++ {
		out += "word "
	}
	return out
}
