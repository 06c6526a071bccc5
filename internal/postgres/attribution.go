package postgres

import (
	"runtime"
	"strings"
)

const modulePrefix = "github.com/linnemanlabs/sentinel/internal/"

// Query origins recorded on every query log line and DB span.
const (
	OriginHTTP         = "http"
	OriginAnalysisTask = "analysis_task"
)

// querySite names the application code behind a query.
type querySite struct {
	// Caller is the store method issuing the query, e.g. (*Store).ApplyAnalysis.
	Caller string
	// Handler is the first frame above the store layer, e.g. (*Writer).Apply.
	Handler string
	// Origin is OriginHTTP, OriginAnalysisTask or empty when neither is on the stack.
	Origin string
}

// resolveQuerySite inspects the current goroutine's stack. skip counts frames
// above resolveQuerySite itself that belong to the tracer.
func resolveQuerySite(skip int) querySite {
	pcs := make([]uintptr, 48)
	n := runtime.Callers(skip+2, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	fns := make([]string, 0, n)
	for {
		fr, more := frames.Next()
		if fr.Function != "" {
			fns = append(fns, fr.Function)
		}
		if !more {
			break
		}
	}
	return classifyFrames(fns)
}

// classifyFrames picks caller, handler and origin from function names ordered
// innermost first, as runtime.CallersFrames yields them.
func classifyFrames(fns []string) querySite {
	var site querySite
	for _, fn := range fns {
		rel, ok := strings.CutPrefix(fn, modulePrefix)
		if !ok {
			continue
		}
		pkg := rel
		if i := strings.Index(rel, "."); i >= 0 {
			pkg = rel[:i]
		}

		switch {
		case pkg == "postgres":
			// tracer and pool plumbing
			continue
		case strings.HasSuffix(pkg, "pgstore"):
			if site.Caller == "" {
				site.Caller = shortenFuncName(fn)
			}
			continue
		}

		if site.Caller == "" {
			// query issued outside a store, e.g. a migration or health check
			site.Caller = shortenFuncName(fn)
			continue
		}
		if site.Handler == "" {
			site.Handler = shortenFuncName(fn)
		}

		switch {
		case pkg == "watch" && strings.HasPrefix(rel, "watch.(*Dispatcher).run"):
			site.Origin = OriginAnalysisTask
		case pkg == "eventapi" && site.Origin == "":
			site.Origin = OriginHTTP
		}
	}
	return site
}

// shortenFuncName drops the import path and package, keeping receiver and method.
func shortenFuncName(fn string) string {
	if i := strings.LastIndex(fn, "/"); i >= 0 && i+1 < len(fn) {
		fn = fn[i+1:]
	}
	if dot := strings.Index(fn, "."); dot >= 0 && dot+1 < len(fn) {
		fn = fn[dot+1:]
	}
	return fn
}
