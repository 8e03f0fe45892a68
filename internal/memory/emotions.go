package memory

import "strings"

// Emotions is the fixed taxonomy extraction picks from.
var Emotions = []string{
	"Joy", "Serenity", "Calmness", "Admiration", "Trust", "Acceptance",
	"Fear", "Apprehension", "Surprise", "Distraction", "Sadness", "Pensiveness",
	"Boredom", "Anger", "Annoyance", "Vigilance", "Anticipation", "Interest",
	"Love", "Submission", "Awe", "Disapproval", "Remorse", "Optimism",
}

// ConsciousTag marks memories saved deliberately rather than by extraction.
const ConsciousTag = "conscious"

// legacyEmotions maps canonical tags to the historical Hungarian tags older
// records were stored with.
var legacyEmotions = map[string][]string{
	"Interest":     {"kíváncsiság", "érdeklődés"},
	"Joy":          {"öröm", "boldogság", "vidámság", "elégedettség"},
	"Sadness":      {"szomorúság", "bánat", "elkeseredettség"},
	"Anger":        {"düh", "harag", "idegesség"},
	"Fear":         {"félelem", "aggodalom", "szorongás"},
	"Trust":        {"bizalom"},
	"Surprise":     {"meglepetés", "döbbenet"},
	"Anticipation": {"várakozás", "izgalom"},
	"Disapproval":  {"rosszallás", "elutasítás", "undor"},
	"Admiration":   {"csodálat"},
	"Acceptance":   {"elfogadás", "belenyugvás"},
	"Serenity":     {"nyugalom", "béke"},
	"Annoyance":    {"bosszúság", "zavar"},
	"Boredom":      {"unalom"},
	"Remorse":      {"bűntudat", "megbánás"},
	"Optimism":     {"optimizmus", "remény"},
	"Love":         {"szeretet", "szerelem"},
	"Apprehension": {"aggály", "fenntartás"},
	"Distraction":  {"szórakozottság", "figyelemzavar"},
	"Pensiveness":  {"töprengés", "elgondolkodás"},
	"Vigilance":    {"éberség", "óvatosság"},
	"Submission":   {"behódolás", "alázat"},
	"Awe":          {"áhítat"},
}

// ExpandLegacy returns tags plus their legacy alternates, deduplicated, in
// first-seen order.
func ExpandLegacy(tags []string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(tags))
	add := func(t string) {
		if t == "" || seen[t] {
			return
		}
		seen[t] = true
		out = append(out, t)
	}
	for _, t := range tags {
		t = strings.TrimSpace(t)
		add(t)
		for _, alt := range legacyEmotions[t] {
			add(alt)
		}
	}
	return out
}

// IsKnownEmotion reports whether tag belongs to the taxonomy, ignoring case.
func IsKnownEmotion(tag string) bool {
	for _, e := range Emotions {
		if strings.EqualFold(e, tag) {
			return true
		}
	}
	return false
}

func overlapsFold(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]bool, len(b))
	for _, t := range b {
		set[strings.ToLower(strings.TrimSpace(t))] = true
	}
	for _, t := range a {
		if set[strings.ToLower(strings.TrimSpace(t))] {
			return true
		}
	}
	return false
}
