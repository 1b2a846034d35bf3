// Package bench measures the console round trip for both isolation modes.
//
// Run with: go test -v -run=Test ./bench/
// Benchmarks: go test -bench=. -benchtime=3x ./bench/
package bench

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/caffeineduck/quickhub/channel"
	"github.com/caffeineduck/quickhub/console"
	"github.com/caffeineduck/quickhub/sandbox"
)

const childArg = "sandbox-child"

// The test binary doubles as the sandbox child for process isolation.
func TestMain(m *testing.M) {
	if len(os.Args) > 1 && os.Args[len(os.Args)-1] == childArg {
		if err := sandbox.Serve(context.Background(), os.Stdin, os.Stdout); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func frameFactory() (channel.Isolate, error) {
	return sandbox.NewFrame(), nil
}

func processFactory() (channel.Isolate, error) {
	return sandbox.NewProcess(sandbox.WithCommand(os.Args[0], childArg)), nil
}

func open(tb testing.TB, factory channel.Factory, opts ...channel.Option) *channel.Channel {
	tb.Helper()
	opts = append([]channel.Option{channel.WithRetryInterval(time.Millisecond), channel.WithMaxRetries(5000)}, opts...)
	ch := channel.New(factory, opts...)
	if err := ch.Initialize(); err != nil {
		tb.Fatal(err)
	}
	return ch
}

func mustRun(tb testing.TB, ch *channel.Channel, code string) {
	res, err := ch.Run(context.Background(), code)
	if err != nil {
		tb.Fatal(err)
	}
	if !res.OK {
		tb.Fatalf("run failed: %s", res.Error)
	}
}

// --- Cold start (new sandbox each time) ---

func BenchmarkFrame_ColdStart(b *testing.B) {
	for i := 0; i < b.N; i++ {
		ch := open(b, frameFactory)
		mustRun(b, ch, "return 1")
		ch.Close()
	}
}

func BenchmarkProcess_ColdStart(b *testing.B) {
	for i := 0; i < b.N; i++ {
		ch := open(b, processFactory)
		mustRun(b, ch, "return 1")
		ch.Close()
	}
}

// --- Warm runs (reuse sandbox) ---

func benchWarm(b *testing.B, factory channel.Factory, code string, opts ...channel.Option) {
	ch := open(b, factory, opts...)
	defer ch.Close()

	mustRun(b, ch, "return 1") // warmup

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mustRun(b, ch, code)
	}
}

func BenchmarkFrame_Warm(b *testing.B) {
	benchWarm(b, frameFactory, "return 1")
}

func BenchmarkFrame_Warm_Log(b *testing.B) {
	benchWarm(b, frameFactory, `console.log("hello"); return 1`,
		channel.WithRenderer(console.NewLog(console.WithCapacity(100))))
}

func BenchmarkFrame_Warm_Computation(b *testing.B) {
	benchWarm(b, frameFactory, "let s = 0; for (let i = 0; i < 1000; i++) s += i*i; return s")
}

func BenchmarkFrame_Warm_Await(b *testing.B) {
	benchWarm(b, frameFactory, "await new Promise(r => setTimeout(r, 0)); return 1")
}

func BenchmarkProcess_Warm(b *testing.B) {
	benchWarm(b, processFactory, "return 1")
}

// --- Native Node benchmarks ---

func BenchmarkNative_Node(b *testing.B) {
	if _, err := exec.LookPath("node"); err != nil {
		b.Skip("node not available")
	}
	for i := 0; i < b.N; i++ {
		exec.Command("node", "-e", "1").Run()
	}
}

// =============================================================================
// COMPARISON TEST - Human readable output
// =============================================================================

func TestComparison(t *testing.T) {
	if testing.Short() {
		t.Skip("comparison spawns processes")
	}

	type result struct {
		name string
		cold time.Duration
		warm time.Duration
	}
	var results []result

	measure := func(runs int, fn func()) time.Duration {
		var total time.Duration
		for i := 0; i < runs; i++ {
			start := time.Now()
			fn()
			total += time.Since(start)
		}
		return total / time.Duration(runs)
	}

	runs := 5
	for _, iso := range []struct {
		name    string
		factory channel.Factory
	}{
		{"frame (in-process)", frameFactory},
		{"process (child)", processFactory},
	} {
		start := time.Now()
		ch := open(t, iso.factory)
		mustRun(t, ch, "return 1")
		cold := time.Since(start)

		warm := measure(runs, func() { mustRun(t, ch, "return 1") })
		ch.Close()

		results = append(results, result{name: iso.name, cold: cold, warm: warm})
	}

	if _, err := exec.LookPath("node"); err == nil {
		cold := measure(1, func() { exec.Command("node", "-e", "1").Run() })
		warm := measure(runs, func() { exec.Command("node", "-e", "1").Run() })
		results = append(results, result{name: "node -e", cold: cold, warm: warm})
	}

	fmt.Println()
	fmt.Printf("Platform: %s/%s, CPUs: %d\n", runtime.GOOS, runtime.GOARCH, runtime.NumCPU())
	fmt.Println("┌────────────────────────┬───────────┬───────────┐")
	fmt.Println("│ Runtime                │ Cold      │ Warm      │")
	fmt.Println("├────────────────────────┼───────────┼───────────┤")
	for _, r := range results {
		fmt.Printf("│ %-22s │ %9s │ %9s │\n", r.name, formatDuration(r.cold), formatDuration(r.warm))
	}
	fmt.Println("└────────────────────────┴───────────┴───────────┘")
	fmt.Println()
}

func formatDuration(d time.Duration) string {
	if d >= time.Second {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	if d >= time.Millisecond {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%dµs", d.Microseconds())
}

// =============================================================================
// MEMORY
// =============================================================================

func TestMemoryUsage(t *testing.T) {
	var m runtime.MemStats

	runtime.GC()
	runtime.ReadMemStats(&m)
	before := m.Alloc

	ch := open(t, frameFactory)
	for i := 0; i < 5; i++ {
		mustRun(t, ch, "globalThis.xs = (globalThis.xs || []).concat([1, 2, 3]); return xs.length")
	}

	runtime.ReadMemStats(&m)
	after := m.Alloc

	ch.Close()

	runtime.GC()
	runtime.ReadMemStats(&m)
	afterGC := m.Alloc

	t.Logf("Memory before: %d KB", before/1024)
	t.Logf("Memory after 5 runs: %d KB", after/1024)
	t.Logf("Memory after close and GC: %d KB", afterGC/1024)
}
