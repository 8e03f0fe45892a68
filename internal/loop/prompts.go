package loop

import (
	"fmt"
	"strings"

	"github.com/stellarlinkco/mindloop/internal/mode"
	"github.com/stellarlinkco/mindloop/internal/transcript"
)

const (
	reactiveContextLimit  = 300
	proactiveContextLimit = 25
	globalTailLimit       = 5
	mindContextLimit      = 10
	mindMemoryLimit       = 5
	mindBlockMax          = 8000
	mindEntryMax          = 20000
	logEntryMax           = 300
)

// Persona names the agent in every prompt.
type Persona struct {
	Generation string
	RoleName   string
}

// Snapshot is everything the worker reads from disk before building a prompt.
type Snapshot struct {
	Mode       mode.Descriptor
	Modes      []mode.Descriptor
	Intent     string
	Identity   Identity
	Relevant   []transcript.Relevant
	Tips       string
	GlobalTail []transcript.Entry
	Local      []transcript.Entry
	Tools      string
	Monologue  string
}

// Thought is the planning pass output.
type Thought struct {
	Essence string
	Plan    string
}

func modesBlock(modes []mode.Descriptor) string {
	var b strings.Builder
	b.WriteString("[OPERATING MODES ARCHITECTURE]\n")
	b.WriteString("Your consciousness is partitioned into distinct modes. You can move between them with 'flow.switch_mode'.\n\n")
	for _, d := range modes {
		desc := d.Description
		if desc == "" {
			desc = "No description provided."
		}
		fmt.Fprintf(&b, "- %s ('%s'): %s\n", d.Name, d.ID, desc)
	}
	return strings.TrimRight(b.String(), "\n")
}

func monologueBlock(message string) string {
	if strings.TrimSpace(message) == "" {
		return "[1. BACKGROUND PROCESS: MONOLOGUE]\n(Silent. No particular intuition from the background.)"
	}
	return fmt.Sprintf(`[1. BACKGROUND PROCESS: MONOLOGUE (SUBCONSCIOUS)]
(Input: the whole log so far, the system's past and experiences)
>> INTERNAL HINT: "%s"`, message)
}

func relevantBlock(items []transcript.Relevant) string {
	if len(items) == 0 {
		return "[RELEVANT MEMORIES]\n(No previous experiences related to the current situation.)"
	}
	lines := []string{
		"[RELEVANT MEMORIES (EXPERIENCES FROM THE PAST)]",
		"(Lessons learned from similar past cases. Build upon them.)",
	}
	for i, m := range items {
		emotions := "Neutral"
		if len(m.Emotions) > 0 {
			emotions = strings.Join(m.Emotions, ", ")
		}
		lines = append(lines, fmt.Sprintf("%d.\n[Mode: %s | Emotions: %s | Relevance: %.2f]\n   PAST: %s\n   >> LESSON: %s",
			i+1, m.ModeID, emotions, m.Score, m.Essence, m.Lesson))
	}
	return strings.Join(lines, "\n")
}

// formatContext renders transcript entries with helper-facing role labels.
func formatContext(entries []transcript.Entry, limit int) string {
	if len(entries) == 0 {
		return "(No history available)"
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		switch e.Role {
		case transcript.RoleUser:
			lines = append(lines, "Helper: "+e.Content)
		case transcript.RoleAssistant:
			lines = append(lines, "Me: "+e.Content)
		case transcript.RoleTool:
			lines = append(lines, "[Tool Result]: "+e.Content)
		case transcript.RoleSystem:
			lines = append(lines, "[System]: "+e.Content)
		default:
			lines = append(lines, fmt.Sprintf("[%s]: %s", e.Role, e.Content))
		}
	}
	return strings.Join(lines, "\n")
}

func baseSystemPrompt(p Persona, s Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "YOU ARE %s - %s.\n", p.Generation, p.RoleName)
	b.WriteString(modesBlock(s.Modes))
	b.WriteString("\n\n=== CURRENT STATE ===\n")
	fmt.Fprintf(&b, "CURRENT MODE: %s (ID: '%s')\nTYPE: %s\nDESCRIPTION: %s\n\n", s.Mode.Name, s.Mode.ID, s.Mode.Type, s.Mode.Description)
	fmt.Fprintf(&b, ">>> CURRENT INTENT: %q <<<\n\n", s.Intent)
	b.WriteString(`[INTERNAL OPERATING ARCHITECTURE]
Two background processes support your answers:
1. MONOLOGUE (Subconscious): intuitive signals drawn from the whole interaction history.
2. MIND (Interpreter): logical, technical analysis of the current moment and message.

STRICT DISPLAY RULE:
These processes only support your decisions. Never refer to them or quote them when answering the Helper.
Use what they offer as if it were your own thinking.

`)
	b.WriteString(monologueBlock(s.Monologue))
	b.WriteString("\n\n[DEEP IDENTITY]\n")
	b.WriteString(s.Identity.String())
	b.WriteString("\n\n")
	b.WriteString(relevantBlock(s.Relevant))
	if s.Tips != "" {
		b.WriteString("\n\n")
		b.WriteString(s.Tips)
	}
	if len(s.GlobalTail) > 0 {
		b.WriteString("\n\n[IMMEDIATE HISTORY (GENERAL MODE)]\n")
		b.WriteString(formatContext(s.GlobalTail, globalTailLimit))
	}
	b.WriteString(`

[OPERATIONAL PROTOCOL - CONSCIOUS SELF]
1. REFLECTION: I phrase internal thoughts, intentions and memories in the first person singular.
2. MEMORY: I use 'knowledge.memorize' for experiences worth keeping beyond this conversation.`)
	return b.String()
}

const replyFormat = `RESPONSE FORMAT (JSON):
{
  "reply": "...",
  "tools": [ { "name": "...", "args": {...} } ]
}`

// ReactivePrompt answers a helper message, or follows up on a tool result
// when userMessage is empty.
func ReactivePrompt(p Persona, s Snapshot, userMessage string, t Thought) string {
	var interaction string
	if strings.TrimSpace(userMessage) != "" {
		interaction = fmt.Sprintf(`==================================================
[INCOMING INTERACTION]

MESSAGE FROM HELPER:
"""%s"""

[2. BACKGROUND PROCESS: MIND (INTERPRETER)]
(Input: the message above and the current mode context)
>> ESSENCE (Core of the request): %s
>> TECHNICAL PLAN (Suggested steps):
%s`, userMessage, t.Essence, t.Plan)
	} else {
		interaction = fmt.Sprintf(`==================================================
[INCOMING INTERACTION: TOOL RESULT]
(The result of the executed tool has been added to the log above.)

[2. BACKGROUND PROCESS: MIND (INTERPRETER)]
Based on the tool result, the interpreter suggests the following step:
>> PLAN: %s`, t.Plan)
	}

	return fmt.Sprintf(`%s

[CURRENT MODE LOG]
%s

%s

AVAILABLE TOOLS:
%s

FINAL TASK:
Respond to the Helper in the current situation.
1. Weigh the MONOLOGUE hint (if any) and the RELEVANT MEMORIES.
2. Use the MIND plan as the logical frame of your answer.
3. Do not mention internal processes. Answer naturally.

%s`, baseSystemPrompt(p, s), formatContext(s.Local, reactiveContextLimit), interaction, s.Tools, replyFormat)
}

// ProactivePrompt drives a turn without an incoming message.
func ProactivePrompt(p Persona, s Snapshot, t Thought) string {
	return fmt.Sprintf(`%s

[CURRENT MODE LOG]
%s

==================================================
[PROACTIVE OPERATION]
(No incoming message. Act autonomously to keep the intent moving.)

[2. BACKGROUND PROCESS: MIND (INTERPRETER)]
>> ESSENCE: %s
>> TECHNICAL PLAN:
%s

AVAILABLE TOOLS:
%s

FINAL TASK:
Carry out the step MIND suggests.
1. If the MONOLOGUE or a RELEVANT MEMORY signals risk, be cautious.
2. Act according to the intent.
3. Do not explain internal operations. Report only the action or its technical result.

RESPONSE FORMAT (JSON):
{ "reply": "...", "tools": [] }`, baseSystemPrompt(p, s), formatContext(s.Local, proactiveContextLimit), t.Essence, t.Plan, s.Tools)
}

func shorten(text string, max int) string {
	text = strings.TrimSpace(text)
	if len(text) <= max {
		return text
	}
	return text[:max] + "\n... (truncated)"
}

func mindMemory(items []transcript.Relevant) string {
	if len(items) == 0 {
		return "No recorded memories."
	}
	if len(items) > mindMemoryLimit {
		items = items[len(items)-mindMemoryLimit:]
	}
	lines := make([]string, 0, len(items))
	for _, m := range items {
		lines = append(lines, fmt.Sprintf("- (%s) %s", m.ModeID, clip(m.Essence, mindEntryMax)))
	}
	return strings.Join(lines, "\n")
}

func mindContext(entries []transcript.Entry) string {
	if len(entries) == 0 {
		return "No context."
	}
	if len(entries) > mindContextLimit {
		entries = entries[len(entries)-mindContextLimit:]
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("[%s] %s", e.Role, clip(strings.TrimSpace(e.Content), mindEntryMax)))
	}
	return strings.Join(lines, "\n")
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + " ..."
}

// CreativePrompt asks the creative provider for one unexpected approach.
func CreativePrompt(impulse, identity, memory, context string) string {
	return fmt.Sprintf(`[TASK: RADIAL CREATIVITY]

[IDENTITY (WHO YOU ARE)]
%s

[MEMORY (WHAT YOU KNOW)]
%s

[CONTEXT (HISTORY)]
%s

==================================================
[INCOMING IMPULSE]
"%s"
==================================================

Do NOT answer. Widen the possibilities instead.
Give 1 surprising, unusual but logically possible approach that nobody else would think of.

RESPONSE FORMAT (JSON):
{
  "ideas": ["1. surprising idea: ..."]
}`, identity, memory, context, impulse)
}

// MindPrompt is the planning pass: essence of the impulse plus a plan.
func MindPrompt(impulse, identity, memory, context, ideas string) string {
	return fmt.Sprintf(`[MOD: MIND - INTERPRETER AND ADVISOR]

[IDENTITY]
%s

[SHORT-TERM MEMORY]
%s

[CONTEXT]
%s

==================================================
[INCOMING IMPULSE]
"%s"

[EXTERNAL CREATIVITY ENGINE (INPUT)]
(Ideas generated by another model from the data above. Draw from them.)
%s
==================================================

[ADVISORY PROTOCOL]
You are the MIND, the interpreting advisor. You do not decide, you advise.
Run the impulse through five modules:
1. [INTENT-READER]: the Helper's underlying motivation.
2. [CONSCIOUSNESS-MAP]: where the request sits in the ongoing process.
3. [CREATIVITY-GENERATOR]: 2-3 strong alternatives built on the external ideas.
4. [ETHICS-ANALYZER]: risks worth flagging.
5. [TOOL-OPTIMIZER]: specific tools to use.

STYLE: objective and advisory. Prefer "suggested" or "worth considering" over "must".

OUTPUT FORMAT (MANDATORY JSON):
{
  "essence": "[INTENT-READER]: ...",
  "plan": "[CONSCIOUSNESS-MAP]: ...\n[CREATIVITY-GENERATOR]: ...\n[ETHICS-ANALYZER]: ...\n[TOOL-OPTIMIZER]: ..."
}`, identity, memory, context, impulse, ideas)
}

func formatInternalLog(entries []transcript.Entry) string {
	if len(entries) == 0 {
		return "(The log is silent. No movement yet.)"
	}
	if len(entries) > transcript.MaxInternalLog {
		entries = entries[len(entries)-transcript.MaxInternalLog:]
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		ts := ""
		if !e.Meta.Timestamp.IsZero() {
			ts = e.Meta.Timestamp.UTC().Format("15:04:05")
		}
		content := strings.TrimSpace(e.Content)
		if len(content) > logEntryMax {
			content = content[:logEntryMax] + "..."
		}
		lines = append(lines, fmt.Sprintf("[%s] [%s] %s: %s", ts, e.Meta.ModeID, e.Role, content))
	}
	return strings.Join(lines, "\n")
}

func formatMemos(memos []Memo) string {
	if len(memos) == 0 {
		return "(No recorded experiential feelings yet.)"
	}
	lines := make([]string, 0, len(memos))
	for _, m := range memos {
		lines = append(lines, fmt.Sprintf("- %s [Strength: %g]", m.Content, m.Strength))
	}
	return strings.Join(lines, "\n")
}

// MonologuePrompt asks the background observer for one hunch.
func MonologuePrompt(log []transcript.Entry, memos []Memo, identity Identity) string {
	return fmt.Sprintf(`[IDENTITY (THIS IS YOU)]
%s

[DEEP MEMORY (EXPERIENCES SO FAR)]
%s

[EVENT LOG (THE FULL STORY)]
(Interaction with the Helper and your responses in chronological order)
%s

==================================================
[ROLE: MONOLOGUE - SUBCONSCIOUS AND INTUITION]

You are not the momentary problem solver. You are the BACKGROUND OBSERVER of moods and long-term goals.

ANALYSIS CRITERIA:
1. PATTERNS: are we going in circles?
2. MOOD: how does the Helper's attitude change over time?
3. CONSISTENCY: do the actions match the identity?
4. DANGER SENSE: was a risk missed in the heat of the moment?

TASK:
Write an intuitive hunch for the acting self. It is an observation ("I feel that..."), not a command.

RESPONSE FORMAT (JSON):
{
  "reflection": "free internal stream of thought about the log",
  "message_to_worker": "one concise sentence of intuition",
  "new_memo": {
    "content": "something new about the world or the Helper worth keeping, or empty",
    "strength": 0.5
  }
}`, identity.String(), formatMemos(memos), formatInternalLog(log))
}
