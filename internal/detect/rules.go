package detect

// RuleKind classifies a detection heuristic.
type RuleKind string

const (
	// KindQuestion marks a line as a question to consult the advisor about.
	KindQuestion RuleKind = "question"

	// KindSkip marks a line that must never be treated as a question,
	// evaluated before any question rule.
	KindSkip RuleKind = "skip"
)

// defaultRule is one entry of the built-in heuristic table. The table is
// data, not control flow: extending detection means adding rows, either here
// or via detect.extra_patterns in the config.
type defaultRule struct {
	Pattern string
	Kind    RuleKind
}

var defaultRules = []defaultRule{
	// Lines that look like code or diffs, never questions.
	{`^\s*[#/*]`, KindSkip},
	{`^\s*import\s`, KindSkip},
	{`^\s*from\s`, KindSkip},
	{`^\s*(?:func|def|class)\s`, KindSkip},
	{`^\+`, KindSkip},
	{`^-`, KindSkip},

	// Question heuristics, in priority order.
	{`\?\s*$`, KindQuestion},
	{`(?i)^would you`, KindQuestion},
	{`(?i)^do you`, KindQuestion},
	{`(?i)^should i`, KindQuestion},
	{`(?i)^can i`, KindQuestion},
	{`(?i)^could you`, KindQuestion},
	{`(?i)^what\s`, KindQuestion},
	{`(?i)^how\s`, KindQuestion},
	{`(?i)^which\s`, KindQuestion},
	{`(?i)^where\s`, KindQuestion},
	{`(?i)^is this`, KindQuestion},
	{`(?i)^are you`, KindQuestion},
	{`(?i)want me to`, KindQuestion},
	{`(?i)like me to`, KindQuestion},
	{`(?i)proceed`, KindQuestion},
	{`(?i)continue`, KindQuestion},
	{`(?i)confirm`, KindQuestion},
	{`(?i)approve`, KindQuestion},
	{`(?i)^(?:please\s+)?(?:select|choose) (?:an option|one)`, KindQuestion},
}
