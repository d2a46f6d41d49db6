// Package rules evaluates ordered (predicate, outcome) lists where the first
// matching rule wins. Rule order is the precedence.
package rules

type Rule[In, Out any] struct {
	Name    string
	Match   func(In) bool
	Outcome func(In) Out
}

type List[In, Out any] []Rule[In, Out]

// FirstMatch returns the outcome of the first rule whose predicate holds.
func (l List[In, Out]) FirstMatch(in In) (Out, string, bool) {
	for _, r := range l {
		if r.Match != nil && r.Match(in) {
			return r.Outcome(in), r.Name, true
		}
	}
	var zero Out
	return zero, "", false
}

func (l List[In, Out]) Names() []string {
	names := make([]string, len(l))
	for i, r := range l {
		names[i] = r.Name
	}
	return names
}

// Const adapts a fixed outcome to a rule outcome func.
func Const[In, Out any](out Out) func(In) Out {
	return func(In) Out { return out }
}
