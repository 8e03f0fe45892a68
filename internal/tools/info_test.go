package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newCatalogDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	d := NewDispatcher(builtinRegistry(t), nil)
	d.RegisterBuiltins(Deps{})
	return d
}

func TestInfoToolsTargets(t *testing.T) {
	d := newCatalogDispatcher(t)

	all := dispatchOne(t, d, "general", "info.tools", map[string]any{"target": "all"})
	assert.Contains(t, all.Output, "[AVAILABLE TOOLS - SUMMARY LIST]")
	assert.Contains(t, all.Output, "- flow.switch_mode(")
	assert.Contains(t, all.Output, "- system.write_file(")

	one := dispatchOne(t, d, "general", "info.tools", map[string]any{"target": "flow.continue"})
	assert.Contains(t, one.Output, "[DETAILED MANUAL: FLOW.CONTINUE]")
	assert.Contains(t, one.Output, "next_step")

	group := dispatchOne(t, d, "general", "info.tools", map[string]any{"target": "game"})
	assert.Contains(t, group.Output, "[MANUAL FOR GROUP: 'GAME']")
	assert.Contains(t, group.Output, "--- TOOL: game.llama ---")
	assert.Contains(t, group.Output, "--- TOOL: game.oss ---")

	missing := dispatchOne(t, d, "general", "info.tools", map[string]any{"target": "sys"})
	assert.Contains(t, missing.Output, "Help Error: No tool or group found for 'sys'")
	assert.False(t, missing.Silent)

	def := dispatchOne(t, d, "general", "info.tools", nil)
	assert.Contains(t, def.Output, "[AVAILABLE TOOLS - SUMMARY LIST]")
}

func TestDescribeListsOnlyPermittedTools(t *testing.T) {
	d := newCatalogDispatcher(t)

	analyst := d.Describe("analyst")
	assert.Contains(t, analyst, "[ALLOWED TOOLS FOR MODE: 'analyst']")
	assert.Contains(t, analyst, "knowledge.memorize(")
	assert.NotContains(t, analyst, "system.write_file")

	game := d.Describe("game")
	assert.Contains(t, game, "knowledge.recall_emotion(")
	assert.NotContains(t, game, "knowledge.memorize(")
}

func TestRelevantTips(t *testing.T) {
	d := newCatalogDispatcher(t)
	insights := []Insight{
		{Tool: "system.read_file", Insight: "root-relative paths"},
		{Tool: "flow.continue", Insight: "use sparingly"},
	}

	assert.Equal(t, "[TOOL TIPS (FROM PAST EXPERIENCE)]\n- flow.continue: use sparingly", d.RelevantTips("analyst", insights))
	assert.Contains(t, d.RelevantTips("developer", insights), "system.read_file")
	assert.Empty(t, d.RelevantTips("analyst", nil))
}
