package usecases

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/0xcro3dile/roomload-go/internal/domain/entities"
)

func TestGather_MergesInQueryOrder(t *testing.T) {
	r := &fakeRetriever{
		answers: map[string][]entities.ContextChunk{
			"slow": {{Content: "first"}, {Content: "shared"}},
			"fast": {{Content: "shared"}, {Content: "second"}},
		},
		delay: map[string]time.Duration{"slow": 20 * time.Millisecond},
	}
	g := NewContextGatherer(r, nil, 4, time.Second, zap.NewNop())

	got := g.Gather(context.Background(), []string{"slow", "fast"})
	assert.Equal(t, []entities.ContextChunk{{Content: "first"}, {Content: "shared"}, {Content: "second"}}, got)
}

func TestGather_ToleratesFailingQuery(t *testing.T) {
	r := &fakeRetriever{
		answers: map[string][]entities.ContextChunk{"ok": {{Content: "rate table"}}},
		fail:    map[string]bool{"broken": true},
	}
	g := NewContextGatherer(r, nil, 4, time.Second, zap.NewNop())

	got := g.Gather(context.Background(), []string{"broken", "ok"})
	assert.Equal(t, []entities.ContextChunk{{Content: "rate table"}}, got)
	assert.ElementsMatch(t, []string{"broken", "ok"}, r.seen())
}

func TestGather_TimesOutSlowQueries(t *testing.T) {
	r := &fakeRetriever{
		answers: map[string][]entities.ContextChunk{"ok": {{Content: "factors"}}},
		block:   map[string]bool{"hung": true},
	}
	g := NewContextGatherer(r, nil, 4, 30*time.Millisecond, zap.NewNop())

	start := time.Now()
	got := g.Gather(context.Background(), []string{"hung", "ok"})
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, []entities.ContextChunk{{Content: "factors"}}, got)
}

func TestGather_WithoutRetriever(t *testing.T) {
	g := NewContextGatherer(nil, nil, 0, 0, nil)
	assert.Nil(t, g.Gather(context.Background(), g.Topics()))
	assert.Equal(t, DefaultTopics, g.Topics())
}

func TestJoinContext(t *testing.T) {
	got := JoinContext([]entities.ContextChunk{
		{Content: "Offices: 40 VA/m2", Source: "rates.md"},
		{Content: "Storage: 10 VA/m2"},
	})
	assert.Equal(t, "[Source: rates.md]\nOffices: 40 VA/m2\n\nStorage: 10 VA/m2", got)
	assert.Empty(t, JoinContext(nil))
}
