package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// UsageInstructions precede every tool listing.
const UsageInstructions = `[TOOL USAGE RULES]
- Call tools by listing them in the "tools" array of your JSON reply: {"name": "...", "args": {...}}.
- Tools run in the listed order. A failing tool does not stop the others.
- VISIBLE tools give you another turn to react to their result.
- SILENT tools (memorize, add_tool_insight, propose_law, thinking, log_event) are only recorded.
- Files can be read anywhere in the project but written only inside the incubator.`

const divider = "============================================================"

// InfoTools serves the catalog of whatever is registered on d.
func InfoTools(d *Dispatcher) []Spec {
	return []Spec{
		{
			Name:    "info.tools",
			Summary: "info.tools(target) - Show tool help: 'all', a group such as 'system', or one tool name.",
			Manual: `Params:
  target (str): "all" for the summary list, a group prefix, or an exact tool name.`,
			Handler: func(_ context.Context, c Call) (Output, error) {
				target := c.Args.String("target", c.Args.String("group", "all"))
				return d.help(strings.ToLower(strings.TrimSpace(target)))
			},
		},
	}
}

func (d *Dispatcher) help(target string) (Output, error) {
	lines := []string{UsageInstructions, "", divider, ""}
	specs := d.Specs()

	if target == "all" {
		lines = append(lines,
			"[AVAILABLE TOOLS - SUMMARY LIST]",
			"(For detailed params, use: info.tools(target='tool_name'))",
			"")
		for _, s := range specs {
			lines = append(lines, "- "+s.Summary)
		}
		return Visible("%s", strings.Join(lines, "\n")), nil
	}

	if s, ok := d.lookup(target); ok {
		lines = append(lines, fmt.Sprintf("[DETAILED MANUAL: %s]", strings.ToUpper(target)), s.Summary, s.Manual)
		return Visible("%s", strings.Join(lines, "\n")), nil
	}

	prefix := target
	if !strings.HasSuffix(prefix, ".") {
		prefix += "."
	}
	var matches []Spec
	for _, s := range specs {
		if strings.HasPrefix(s.Name, prefix) {
			matches = append(matches, s)
		}
	}
	if len(matches) == 0 {
		return Visible("Help Error: No tool or group found for '%s'.\nTry 'all', %s, or a specific tool name.",
			target, groupList(specs)), nil
	}
	lines = append(lines, fmt.Sprintf("[MANUAL FOR GROUP: '%s']", strings.ToUpper(target)))
	for _, s := range matches {
		lines = append(lines, "", "--- TOOL: "+s.Name+" ---", s.Summary, s.Manual)
	}
	return Visible("%s", strings.Join(lines, "\n")), nil
}

func groupList(specs []Spec) string {
	seen := map[string]bool{}
	var groups []string
	for _, s := range specs {
		g, _, ok := strings.Cut(s.Name, ".")
		if ok && !seen[g] {
			seen[g] = true
			groups = append(groups, "'"+g+"'")
		}
	}
	sort.Strings(groups)
	return strings.Join(groups, ", ")
}

// Describe renders the tool block of a prompt for modeID.
func (d *Dispatcher) Describe(modeID string) string {
	var b strings.Builder
	b.WriteString(UsageInstructions)
	fmt.Fprintf(&b, "\n\n[ALLOWED TOOLS FOR MODE: '%s']\n", modeID)
	for _, s := range d.Permitted(modeID) {
		b.WriteString("- ")
		b.WriteString(s.Summary)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// RelevantTips formats the recorded insights for tools modeID may run.
func (d *Dispatcher) RelevantTips(modeID string, insights []Insight) string {
	var lines []string
	for _, in := range insights {
		if d.policy.Allowed(modeID, in.Tool) {
			lines = append(lines, fmt.Sprintf("- %s: %s", in.Tool, in.Insight))
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "[TOOL TIPS (FROM PAST EXPERIENCE)]\n" + strings.Join(lines, "\n")
}
