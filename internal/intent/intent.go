// Package intent extracts task-creation intent from chat text.
//
// Detection and extraction run over the concatenation of the user's message
// and the assistant's reply. Both passes are ordered rule lists evaluated
// top to bottom with first match wins; there is no scoring beyond pattern
// presence. When intent is detected but no title can be extracted, the
// result is marked NeedsClarification and callers must ask a follow-up
// question, never create an empty-titled task.
package intent

import (
	"regexp"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/taskdeck/taskdeck/internal/task"
)

// Result is the outcome of one extraction pass.
type Result struct {
	// Intent reports whether the text looks like a task-creation request.
	Intent bool

	// NeedsClarification is set when intent was detected but no usable
	// title could be extracted. Title is empty in that case.
	NeedsClarification bool

	Title    string
	DueDate  *time.Time
	Priority task.Priority
	Tags     []string
}

// Draft converts a successful extraction into a task draft. Call only when
// Intent is true and NeedsClarification is false.
func (r Result) Draft() task.Draft {
	return task.Draft{
		Title:    r.Title,
		Priority: r.Priority,
		DueDate:  r.DueDate,
		Tags:     r.Tags,
	}
}

// intentPatterns decide "is this a task-creation request". Ordered; first
// match wins (the order only matters for future per-rule behavior, the
// boolean outcome is the same).
var intentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bremind me\b`),
	regexp.MustCompile(`(?i)\b(add|create|make|set up|new)\b[^.!?]*\b(task|todo|to-do|reminder|item)\b`),
	regexp.MustCompile(`(?i)\b(don'?t forget|do not forget)\s+to\b`),
	regexp.MustCompile(`(?i)\bi (need|have|want) to\b`),
	regexp.MustCompile(`(?i)\b(schedule|put)\b[^.!?]*\b(on my (list|calendar|plate))\b`),
	regexp.MustCompile(`(?i)\badd(ed)?\b[^.!?]*\bto (your|the|my) (list|tasks)\b`),
}

// titleRules extract the task title. Ordered; first rule whose pattern
// matches supplies the title.
var titleRules = []*regexp.Regexp{
	// An explicitly quoted title wins outright.
	regexp.MustCompile(`"([^"]{1,200})"`),
	regexp.MustCompile(`(?i)\bremind me\s+to\s+(.+?)(?:\s+(?:by|before|on|at|this|next)\b|\s+(?:today|tomorrow|tonight)\b|[.!?\n]|$)`),
	regexp.MustCompile(`(?i)\b(?:don'?t forget|do not forget)\s+to\s+(.+?)(?:\s+(?:by|before|on|at|this|next)\b|\s+(?:today|tomorrow|tonight)\b|[.!?\n]|$)`),
	regexp.MustCompile(`(?i)\bi (?:need|have|want) to\s+(.+?)(?:\s+(?:by|before|on|at|this|next)\b|\s+(?:today|tomorrow|tonight)\b|[.!?\n]|$)`),
	regexp.MustCompile(`(?i)\b(?:add|create|make|set up)\s+(?:a\s+|an\s+|the\s+)?(?:new\s+)?(?:task|todo|to-do|reminder|item)\s*(?:to|for|:|called|named)?\s+(.+?)(?:\s+(?:by|before|due|on|at|this|next)\b|\s+(?:today|tomorrow|tonight)\b|[.!?\n]|$)`),
}

// highPriorityWords and lowPriorityWords map keyword presence to a priority
// bucket; absent both, medium.
var (
	highPriorityWords = regexp.MustCompile(`(?i)\b(urgent|asap|critical|important|high priority|right away|immediately)\b`)
	lowPriorityWords  = regexp.MustCompile(`(?i)\b(low priority|no rush|whenever|someday|eventually|not urgent)\b`)
)

// tagVocabulary is the fixed keyword → category-tag mapping. Checked in
// order so output tag order is stable.
var tagVocabulary = []struct {
	pattern *regexp.Regexp
	tag     string
}{
	{regexp.MustCompile(`(?i)\b(work|office|meeting|standup|client|deadline|report|presentation)\b`), "work"},
	{regexp.MustCompile(`(?i)\b(grocer(y|ies)|shopping|buy|purchase|store)\b`), "shopping"},
	{regexp.MustCompile(`(?i)\b(doctor|dentist|gym|workout|medication|appointment|health)\b`), "health"},
	{regexp.MustCompile(`(?i)\b(bill|pay|bank|invoice|tax(es)?|budget|finance)\b`), "finance"},
	{regexp.MustCompile(`(?i)\b(home|house|clean|laundry|repair|garden|chore)\b`), "home"},
	{regexp.MustCompile(`(?i)\b(call|phone|text|email|message|reply)\b`), "communication"},
}

// dateParser is shared; when.Parser is safe for concurrent use once rules
// are added.
var dateParser = newDateParser()

func newDateParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// Extract runs detection and extraction over the user message and the
// assistant reply, resolving relative dates against the current time.
func Extract(userMessage, assistantReply string) Result {
	return ExtractAt(userMessage, assistantReply, time.Now())
}

// ExtractAt is Extract with an explicit reference time for relative dates.
func ExtractAt(userMessage, assistantReply string, now time.Time) Result {
	combined := strings.TrimSpace(userMessage + "\n" + assistantReply)

	res := Result{Priority: task.PriorityMedium}

	if !detectIntent(combined) {
		return res
	}
	res.Intent = true

	// Title: user message first, assistant reply as fallback. A reply like
	// "I've added 'Buy milk' to your list" often restates the title more
	// cleanly than the request.
	res.Title = extractTitle(userMessage)
	if res.Title == "" {
		res.Title = extractTitle(assistantReply)
	}
	if res.Title == "" {
		res.NeedsClarification = true
		return res
	}

	res.DueDate = extractDueDate(combined, now)
	res.Priority = extractPriority(combined)
	res.Tags = extractTags(combined)
	return res
}

func detectIntent(text string) bool {
	for _, re := range intentPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func extractTitle(text string) string {
	for _, re := range titleRules {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		title := strings.TrimSpace(m[1])
		title = strings.Trim(title, `"',;:. `)
		if title == "" {
			continue
		}
		if len(title) > task.MaxTitleLen {
			title = strings.TrimSpace(title[:task.MaxTitleLen])
		}
		return title
	}
	return ""
}

// slashDate matches loose numeric dates like 3/14 or 03/14/2026.
var slashDate = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?\b`)

var nextWeek = regexp.MustCompile(`(?i)\bnext week\b`)

func extractDueDate(text string, now time.Time) *time.Time {
	// Natural-language pass (today, tomorrow, weekday names, "in 3 days",
	// month-day forms).
	if r, err := dateParser.Parse(text, now); err == nil && r != nil {
		due := r.Time
		return &due
	}

	if nextWeek.MatchString(text) {
		due := now.AddDate(0, 0, 7)
		return &due
	}

	// Loose numeric fallback.
	if m := slashDate.FindStringSubmatch(text); m != nil {
		month := atoiClamp(m[1], 1, 12)
		day := atoiClamp(m[2], 1, 31)
		year := now.Year()
		if m[3] != "" {
			year = atoiClamp(m[3], 0, 9999)
			if year < 100 {
				year += 2000
			}
		}
		due := time.Date(year, time.Month(month), day, 17, 0, 0, 0, now.Location())
		if m[3] == "" && due.Before(now) {
			due = due.AddDate(1, 0, 0)
		}
		return &due
	}

	return nil
}

func extractPriority(text string) task.Priority {
	switch {
	case highPriorityWords.MatchString(text):
		return task.PriorityHigh
	case lowPriorityWords.MatchString(text):
		return task.PriorityLow
	default:
		return task.PriorityMedium
	}
}

func extractTags(text string) []string {
	var tags []string
	for _, entry := range tagVocabulary {
		if entry.pattern.MatchString(text) {
			tags = append(tags, entry.tag)
		}
	}
	return tags
}

func atoiClamp(s string, lo, hi int) int {
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
