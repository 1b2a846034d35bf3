// Package quickhub is a tabbed web search launcher with a JavaScript console
// that runs user code in an isolated context.
//
// # Overview
//
// Code typed into the console never runs on the host's own goroutines or
// globals. It is posted as a message to a sandbox, either an in-process
// goja runtime ([sandbox.Frame]) or a child process ([sandbox.Process]),
// and the sandbox answers with log and result messages correlated by id.
//
// # Basic Usage
//
//	a, _ := app.New(config.Default())
//	defer a.Close()
//
//	// Console: output and result land in a.Console()
//	a.RunConsole(ctx, `console.log("hi"); return 6 * 7`)
//
//	// Or wait for the result directly
//	res, _, _ := a.Eval(ctx, `return await Promise.resolve(1)`)
//
//	// Tabs and search
//	t := a.Tabs().Add()
//	a.Tabs().SetQuery(t.ID, "golang generics")
//	a.SearchActive(ctx)
//
// See the [channel], [sandbox], [protocol], [console], [tabs], and [search]
// packages for detailed API documentation.
package quickhub
