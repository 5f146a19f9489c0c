package storagekernel

import (
	"regexp"
	"sync"

	sqlite3 "github.com/ncruces/go-sqlite3"
)

// regexpCache avoids recompiling a pattern on every row REGEXP touches;
// the predicate evaluator and ad-hoc queries both reuse the same small set
// of patterns repeatedly within one invocation.
var regexpCache sync.Map // map[string]*regexp.Regexp

func compileRegexp(pattern string) (*regexp.Regexp, error) {
	if v, ok := regexpCache.Load(pattern); ok {
		return v.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	regexpCache.Store(pattern, re)
	return re, nil
}

// regexpFunc implements SQLite's "column REGEXP pattern" operator, which
// SQLite lowers to a call to a two-argument scalar function named regexp
// with (pattern, text) argument order.
func regexpFunc(ctx sqlite3.Context, args ...sqlite3.Value) {
	pattern := args[0].Text()
	text := args[1].Text()
	re, err := compileRegexp(pattern)
	if err != nil {
		ctx.ResultError(err)
		return
	}
	ctx.ResultBool(re.MatchString(text))
}
