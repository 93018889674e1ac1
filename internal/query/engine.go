package query

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"tracedb/internal/errs"
	"tracedb/internal/listener"
	"tracedb/internal/metrics"
	"tracedb/internal/otelspan"
	"tracedb/pkg/types"
)

func kindLabel(k types.QueryKind) string {
	switch k {
	case types.QueryFilter:
		return "filter"
	case types.QueryRegexFilter:
		return "regex"
	default:
		return "tree"
	}
}

// Classify implements spec.md §4.8's three-way dispatch.
func Classify(expr string) types.QueryKind {
	if !strings.HasPrefix(expr, "/") && !strings.Contains(expr, "(") {
		return types.QueryFilter
	}
	if isRegexLiteral(expr) {
		return types.QueryRegexFilter
	}
	return types.QueryTreeExpression
}

// isRegexLiteral reports whether expr matches /<body>/<flags> with
// flags drawn from {g,i,m}.
func isRegexLiteral(expr string) bool {
	if len(expr) < 2 || expr[0] != '/' {
		return false
	}
	end := strings.LastIndex(expr, "/")
	if end <= 0 {
		return false
	}
	for _, f := range expr[end+1:] {
		if f != 'g' && f != 'i' && f != 'm' {
			return false
		}
	}
	return true
}

// Run evaluates expr against l and returns a populated QueryResult.
// A plain substring filter never returns an error (a string that is
// not a valid regex falls back to a literal match). A regex filter
// with an unparsable body and an unparsable tree expression both
// return a CodeQueryParse error and an empty QueryResult.
func Run(l *listener.Listener, expr string) (types.QueryResult, error) {
	return RunTraced(context.Background(), nil, l, expr)
}

// RunTraced is Run with an "query.run" span opened against tracer (if
// non-nil) around the evaluation, tagged with the classified kind.
func RunTraced(ctx context.Context, tracer *otelspan.Manager, l *listener.Listener, expr string) (types.QueryResult, error) {
	start := time.Now()
	kind := Classify(expr)

	if tracer != nil {
		_, span := tracer.StartQuery(ctx, kindLabel(kind), len(expr))
		defer span.End()
	}

	res := types.QueryResult{Expression: expr, Kind: kind}

	switch kind {
	case types.QueryFilter:
		pred, compiled := substringPredicate(expr)
		res.Compiled = compiled
		res.Results = runFilter(l, pred)
	case types.QueryRegexFilter:
		pred, compiled, err := regexPredicate(expr)
		if err != nil {
			return types.QueryResult{}, errs.New(errs.CodeQueryParse, "query", "Run", "unparsable filter regex").Wrap(err)
		}
		res.Compiled = compiled
		res.Results = runFilter(l, pred)
	case types.QueryTreeExpression:
		ast, err := parseTreeExpr(expr)
		if err != nil {
			return types.QueryResult{}, errs.New(errs.CodeQueryParse, "query", "Run", "unparsable tree expression").Wrap(err)
		}
		res.Compiled = ast.String()
		root := NewDatabaseNode(l)
		res.Results = ast.Eval(root)
	}

	res.Duration = time.Since(start)
	label := kindLabel(kind)
	metrics.QueryDuration.WithLabelValues(label).Observe(res.Duration.Seconds())
	metrics.QueryResultCount.WithLabelValues(label).Observe(float64(len(res.Results)))
	return res, nil
}

// eventPredicate is a pure predicate over an event, or nil to match
// everything.
type eventPredicate func(types.Event) bool

// substringPredicate compiles expr as an unanchored regular expression
// and matches it against event names/arguments — Go's regexp.MatchString
// performs unanchored substring search, so a plain filter string like
// "A" behaves as a literal substring test while a string like ".*"
// behaves as its regex meaning (match everything). This is the
// resolution documented in DESIGN.md for the "substring filter vs
// regex filter" naming in spec.md §4.8: both paths share one matcher,
// differing only in how delimiters/flags are parsed off the string.
// A string that fails to compile as a regex (e.g. one containing an
// unbalanced bracket) falls back to a literal, case-insensitive
// substring match.
func substringPredicate(expr string) (eventPredicate, string) {
	if expr == "" {
		return nil, ""
	}
	if re, err := regexp.Compile(expr); err == nil {
		return regexEventMatcher(re), expr
	}
	needle := strings.ToLower(expr)
	return func(e types.Event) bool {
		if e.Type != nil && strings.Contains(strings.ToLower(e.Type.Name), needle) {
			return true
		}
		for _, v := range e.Args {
			if strings.Contains(strings.ToLower(v.AsString()), needle) {
				return true
			}
		}
		return false
	}, expr
}

func regexPredicate(expr string) (eventPredicate, string, error) {
	end := strings.LastIndex(expr, "/")
	body := expr[1:end]
	flags := expr[end+1:]

	goFlags := ""
	if strings.ContainsRune(flags, 'i') {
		goFlags += "i"
	}
	if strings.ContainsRune(flags, 'm') {
		goFlags += "m"
	}
	pattern := body
	if goFlags != "" {
		pattern = "(?" + goFlags + ")" + body
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, "", err
	}
	return regexEventMatcher(re), pattern, nil
}

func regexEventMatcher(re *regexp.Regexp) eventPredicate {
	return func(e types.Event) bool {
		if e.Type != nil && re.MatchString(e.Type.Name) {
			return true
		}
		for _, v := range e.Args {
			if re.MatchString(v.AsString()) {
				return true
			}
		}
		return false
	}
}

// timedNode pairs a result node with the event time it was matched at,
// since NodePosition alone is only time-ordered within one zone's
// renumbered block (EndEventBatch hands out one dense sequence zone by
// zone, so positions follow zone order, not time, across zones) and
// can't carry the across-zone ordering runFilter promises.
type timedNode struct {
	time int64
	node types.Node
}

// runFilter iterates every zone index over the full time range,
// skipping INTERNAL and scope-leave events (a scope-enter match already
// materializes its whole scope), pushing matches (scopes for
// scope-enter events, otherwise bare events) into the result, then
// stable-sorts by the database's (time, position) comparator.
func runFilter(l *listener.Listener, pred eventPredicate) []types.Node {
	var matches []timedNode
	for _, zi := range l.ZoneIndices() {
		zn := zoneNode{zi: zi}
		zi.ForEach(minInt64, maxInt64, func(e types.Event) bool {
			if e.IsInternal() || e.IsScopeLeave() {
				return true
			}
			if pred != nil && !pred(e) {
				return true
			}
			if e.IsScopeEnter() {
				if s, ok := zi.GetScopeAt(e.Time); ok {
					matches = append(matches, timedNode{time: e.Time, node: scopeNode{zi: zi, scope: s, parent: zn}})
					return true
				}
			}
			matches = append(matches, timedNode{time: e.Time, node: eventNode{e: e, parent: zn}})
			return true
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		mi, mj := matches[i], matches[j]
		if mi.time != mj.time {
			return mi.time < mj.time
		}
		return mi.node.NodePosition() < mj.node.NodePosition()
	})
	out := make([]types.Node, len(matches))
	for i, m := range matches {
		out[i] = m.node
	}
	return out
}

const (
	minInt64 = -1 << 63
	maxInt64 = 1<<63 - 1
)
