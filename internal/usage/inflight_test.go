package usage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInflightGuard(t *testing.T) {
	g := NewInflightGuard(1)

	release, ok := g.Allow(ToolMerge, "anon:A")
	assert.True(t, ok)

	_, ok = g.Allow(ToolMerge, "anon:a")
	assert.False(t, ok, "caller ids compare case-insensitively")

	other, ok := g.Allow(ToolSplit, "anon:a")
	assert.True(t, ok, "other tools are independent")
	other()

	release()
	release()

	again, ok := g.Allow(ToolMerge, "anon:a")
	assert.True(t, ok)
	again()

	g.mu.Lock()
	assert.Empty(t, g.sem, "idle keys are dropped")
	g.mu.Unlock()
}

func TestInflightGuardCapacity(t *testing.T) {
	g := NewInflightGuard(2)
	r1, ok1 := g.Allow(ToolImages, "u")
	r2, ok2 := g.Allow(ToolImages, "u")
	_, ok3 := g.Allow(ToolImages, "u")
	assert.True(t, ok1)
	assert.True(t, ok2)
	assert.False(t, ok3)
	r1()
	r2()
}
