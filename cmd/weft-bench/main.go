// weft-bench is a benchmark and convergence stress test. It runs N
// replicas against an in-process sequencer, drives them with random
// concurrent edits, and verifies that every replica converges to the
// same document.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"time"

	"github.com/fatih/color"

	"github.com/phroun/weft"
)

type BenchResult struct {
	Name     string
	Duration time.Duration
	Ops      int
	Extra    string
}

func (r BenchResult) String() string {
	if r.Ops > 0 {
		opsPerSec := float64(r.Ops) / r.Duration.Seconds()
		return fmt.Sprintf("%-40s %12v  (%d ops, %.2f ops/sec) %s",
			r.Name, r.Duration.Round(time.Millisecond), r.Ops, opsPerSec, r.Extra)
	}
	if r.Extra != "" {
		return fmt.Sprintf("%-40s %12v  %s", r.Name, r.Duration.Round(time.Millisecond), r.Extra)
	}
	return fmt.Sprintf("%-40s %12v", r.Name, r.Duration.Round(time.Millisecond))
}

// loopback sequences ops from every replica and fans the resulting
// envelopes back to all of them, the origin included.
type loopback struct {
	seq      int64
	replicas []*weft.Weft
}

func (l *loopback) transportFor(clientID string) weft.TransportInterface {
	return weft.TransportFunc(func(op weft.Op) error {
		l.seq++
		env := weft.Envelope{Seq: l.seq, ClientID: clientID, Op: op}
		env.MinSeq = l.minSeq()
		for _, r := range l.replicas {
			if err := r.Receive(env); err != nil {
				return fmt.Errorf("deliver seq %d to %s: %w", env.Seq, r.ClientID(), err)
			}
		}
		return nil
	})
}

func (l *loopback) minSeq() int64 {
	min := l.seq
	for _, r := range l.replicas {
		if s := r.Seq(); s < min {
			min = s
		}
	}
	return min
}

const alphabet = "abcdefghijklmnopqrstuvwxyz \n"

func randomText(rng *rand.Rand, n int) string {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = alphabet[rng.Intn(len(alphabet))]
	}
	return string(buf)
}

func main() {
	replicaCount := flag.Int("replicas", 4, "number of replicas")
	opCount := flag.Int("ops", 20000, "number of random operations")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	fmt.Println("Weft Benchmark and Convergence Test")
	fmt.Println("===================================")
	fmt.Printf("Replicas: %d, Ops: %d, Seed: %d\n", *replicaCount, *opCount, *seed)
	fmt.Printf("Go version: %s, GOMAXPROCS: %d\n", runtime.Version(), runtime.GOMAXPROCS(0))
	fmt.Println()

	rng := rand.New(rand.NewSource(*seed))
	lb := &loopback{}
	for i := 0; i < *replicaCount; i++ {
		id := fmt.Sprintf("bench-%02d", i)
		w, err := weft.New(weft.Options{ClientID: id, Transport: lb.transportFor(id)})
		if err != nil {
			color.Red("replica %s: %v", id, err)
			os.Exit(1)
		}
		lb.replicas = append(lb.replicas, w)
	}

	var results []BenchResult

	start := time.Now()
	for i := 0; i < *opCount; i++ {
		w := lb.replicas[rng.Intn(len(lb.replicas))]
		docLen := w.Len()
		switch roll := rng.Intn(10); {
		case roll < 6 || docLen == 0:
			pos := rng.Intn(docLen + 1)
			if err := w.Insert(pos, randomText(rng, 1+rng.Intn(8))); err != nil {
				color.Red("insert: %v", err)
				os.Exit(1)
			}
		case roll < 9:
			s := rng.Intn(docLen)
			e := s + 1 + rng.Intn(docLen-s)
			if e-s > 16 {
				e = s + 16
			}
			if err := w.Remove(s, e); err != nil {
				color.Red("remove: %v", err)
				os.Exit(1)
			}
		default:
			s := rng.Intn(docLen + 1)
			e := s + rng.Intn(docLen+1-s)
			if _, err := w.Intervals("bench").Add(s, e, "highlight", nil); err != nil {
				color.Red("interval add: %v", err)
				os.Exit(1)
			}
		}
	}
	results = append(results, BenchResult{
		Name: "random concurrent edits", Duration: time.Since(start), Ops: *opCount,
		Extra: fmt.Sprintf("final length %d", lb.replicas[0].Len()),
	})

	start = time.Now()
	want := lb.replicas[0].Text()
	wantIntervals := len(lb.replicas[0].Intervals("bench").All())
	converged := true
	for _, r := range lb.replicas[1:] {
		if r.Text() != want {
			color.Red("DIVERGED: %s disagrees with %s", r.ClientID(), lb.replicas[0].ClientID())
			converged = false
		}
		if got := len(r.Intervals("bench").All()); got != wantIntervals {
			color.Red("DIVERGED: %s has %d intervals, want %d", r.ClientID(), got, wantIntervals)
			converged = false
		}
	}
	results = append(results, BenchResult{
		Name: "convergence check", Duration: time.Since(start),
		Extra: fmt.Sprintf("%d replicas, %d intervals", len(lb.replicas), wantIntervals),
	})

	start = time.Now()
	var evicted, merged int
	for _, r := range lb.replicas {
		stats := r.Pack()
		evicted += stats.TombstonesEvicted
		merged += stats.SegmentsMerged
	}
	results = append(results, BenchResult{
		Name: "pack all replicas", Duration: time.Since(start), Ops: len(lb.replicas),
		Extra: fmt.Sprintf("evicted %d, merged %d", evicted, merged),
	})
	for _, r := range lb.replicas {
		if r.Text() != want {
			color.Red("DIVERGED after pack: %s", r.ClientID())
			converged = false
		}
	}

	fmt.Println()
	for _, r := range results {
		fmt.Println(r)
	}
	fmt.Println()
	if !converged {
		color.Red("FAIL: replicas diverged")
		os.Exit(1)
	}
	color.Green("PASS: all replicas converged")
}
