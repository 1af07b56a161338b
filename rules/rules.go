//go:build ruleguard

// Package gorules defines custom linter rules run by gocritic's ruleguard checker.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// WaitGroupGo detects the manual Add/Done pattern around a goroutine literal
// and suggests wg.Go (Go 1.25+).
//
//	wg.Add(1)
//	go func() {
//	    defer wg.Done()
//	    work()
//	}()
//
// becomes
//
//	wg.Go(func() { work() })
func WaitGroupGo(m dsl.Matcher) {
	m.Match(
		`$wg.Add(1); go func() { defer $wg.Done(); $*body }()`,
	).
		Where(m["wg"].Type.Is("*sync.WaitGroup") || m["wg"].Type.Is("sync.WaitGroup")).
		Report("use $wg.Go(func() { $body }) instead of manual Add/Done pattern (Go 1.25+)").
		Suggest("$wg.Go(func() { $body })")
}

// TimeDateTimeConstants flags magic layout strings that have named constants.
func TimeDateTimeConstants(m dsl.Matcher) {
	m.Match(`$t.Format("2006-01-02 15:04:05")`).
		Report(`use $t.Format(time.DateTime) instead of magic format string`).
		Suggest(`$t.Format(time.DateTime)`)

	m.Match(`$t.Format("2006-01-02")`).
		Report(`use $t.Format(time.DateOnly) instead of magic format string`).
		Suggest(`$t.Format(time.DateOnly)`)

	m.Match(`$t.Format("15:04:05")`).
		Report(`use $t.Format(time.TimeOnly) instead of magic format string`).
		Suggest(`$t.Format(time.TimeOnly)`)
}

// EngineClock keeps lifecycle timestamps on the injected clock so tests and
// demo seeding stay deterministic.
func EngineClock(m dsl.Matcher) {
	m.Import("time")

	m.Match(`time.Now()`).
		Where(m.File().PkgPath.Matches(`/internal/(alert|engine|notice)$`)).
		Report("use the injected clock instead of time.Now() in lifecycle code")
}

// CacheJanitor flags go-cache instances that start a janitor goroutine.
// Expired entries are removed explicitly with DeleteExpired, which keeps
// goleak checks clean.
func CacheJanitor(m dsl.Matcher) {
	m.Import("github.com/patrickmn/go-cache")

	m.Match(`cache.New($ttl, $interval)`).
		Where(!m["interval"].Text.Matches(`^0$`)).
		Report("pass 0 as the cleanup interval and call DeleteExpired; janitor goroutines leak past Close")
}

// LoggerErrorField prefers the logger.Error field helper over stringified errors.
func LoggerErrorField(m dsl.Matcher) {
	m.Import("github.com/tphakala/wildalert/internal/logger")

	m.Match(`logger.String("error", $err.Error())`).
		Report("use logger.Error($err) instead of logger.String(\"error\", $err.Error())").
		Suggest("logger.Error($err)")
}

// FmtPrintInLibraries keeps console output out of internal packages; use the
// module logger instead.
func FmtPrintInLibraries(m dsl.Matcher) {
	m.Match(`fmt.Println($*_)`, `fmt.Printf($*_)`, `log.Printf($*_)`, `log.Println($*_)`).
		Where(m.File().PkgPath.Matches(`/internal/`)).
		Report("use the module logger instead of printing to stdout")
}
