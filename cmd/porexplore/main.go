// Command porexplore drives the partial-order unfolding engine over a
// handful of built-in concurrency scenarios.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"

	"github.com/wbrown/janus-por/por"
	"github.com/wbrown/janus-por/por/cex"
	"github.com/wbrown/janus-por/por/csd"
	"github.com/wbrown/janus-por/por/race"
	"github.com/wbrown/janus-por/por/scenarios"
	"github.com/wbrown/janus-por/por/scheduler"
	"github.com/wbrown/janus-por/por/solver"
	"github.com/wbrown/janus-por/por/unfolding"
)

func main() {
	var (
		maxCSD          int
		enableRace      bool
		exploreSchedule bool
		logEvents       bool
		policyName      string
		scenarioName    string
	)

	flag.IntVar(&maxCSD, "max-context-switch-degree", 0, "reject branches needing more than N preempting context switches (0 = unlimited)")
	flag.BoolVar(&enableRace, "enable-race-detection", false, "track memory accesses and report data races")
	flag.BoolVar(&exploreSchedule, "explore-schedules", false, "enumerate conflicting extensions and replay each alternative branch")
	flag.BoolVar(&logEvents, "log-por-events", false, "print every committed event and scheduling decision")
	flag.StringVar(&policyName, "thread-scheduling", "first", "thread-scheduling policy: first, last, round-robin, random")
	flag.StringVar(&scenarioName, "scenario", "", "run a single named scenario instead of the full demo set")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Explores a handful of concurrency scenarios under partial-order reduction.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nKnown scenarios: two-threads-no-contention, two-threads-contending-lock,\n")
		fmt.Fprintf(os.Stderr, "  signal-wait, lost-notification, data-race-concrete, data-race-symbolic, csd-bound\n")
	}
	flag.Parse()

	policy, err := scheduler.ParsePolicy(policyName)
	if err != nil {
		log.Fatalf("%v", err)
	}

	csdLimit := -1
	if maxCSD > 0 {
		csdLimit = maxCSD
	}

	banner(color.New(color.FgCyan, color.Bold).SprintFunc()("=== por explorer ==="))

	names := []string{
		"two-threads-no-contention",
		"two-threads-contending-lock",
		"signal-wait",
		"lost-notification",
		"data-race-concrete",
		"data-race-symbolic",
		"csd-bound",
	}
	if scenarioName != "" {
		names = []string{scenarioName}
	}

	for _, name := range names {
		runScenario(name, policy, csdLimit, enableRace, exploreSchedule, logEvents)
	}
}

func banner(s string) { fmt.Println(s); fmt.Println() }

func runScenario(name string, policy scheduler.Policy, csdLimit int, enableRace, exploreSchedule, logEvents bool) {
	heading := color.New(color.FgYellow, color.Bold).SprintFunc()
	fmt.Println(heading(fmt.Sprintf("--- %s ---", name)))

	var trace scheduler.Context
	if logEvents {
		trace = scheduler.NewLoggingContext(os.Stdout)
	}

	switch name {
	case "two-threads-no-contention":
		r := scenarios.TwoThreadsNoContention()
		reportUnfolding(r.Unfolding)

	case "two-threads-contending-lock":
		cfg, mainAcq := scenarios.PendingAcquire()
		s := scheduler.New(cfg, policy, trace, csdLimit)
		if trace != nil {
			trace.ScheduleBegin(por.RootThreadId())
		}

		alts := cex.Enumerate(cfg, mainAcq.Event(), false)
		fmt.Printf("conflicting extensions before main's first acquire: %d\n", len(alts))
		for _, a := range alts {
			fmt.Printf("  - %s (%s)\n", a.Event, a.Reason)
		}
		if exploreSchedule {
			pool := scheduler.NewWorkerPool(0)
			branches, err := scheduler.CatchUp(cfg, mainAcq.Event(), pool, false)
			if err != nil {
				log.Printf("catch-up failed: %v", err)
			} else {
				fmt.Printf("replayed %d alternative branch(es)\n", len(branches))
			}
		}

		if _, err := s.Commit(mainAcq); err != nil {
			log.Fatalf("commit failed: %v", err)
		}
		if trace != nil {
			trace.ScheduleComplete(1, nil)
		}
		reportUnfolding(cfg.Unfolding())

	case "signal-wait":
		r := scenarios.SignalWait()
		notifier := r.Cfg.WasNotified(r.Final.CondPredecessors()[0])
		fmt.Printf("was_notified: %v\n", notifier != nil)
		reportUnfolding(r.Unfolding)

	case "lost-notification":
		r := scenarios.LostNotification()
		for _, e := range r.Cfg.Events() {
			if e.Kind() == por.Signal {
				fmt.Printf("signal is_lost: %v\n", e.IsLost())
			}
		}
		reportUnfolding(r.Unfolding)

	case "data-race-concrete":
		a, b, r := scenarios.DataRaceConcreteOffsets()
		detector := race.NewDetector(solver.NopSolver{})
		races := detector.Observe(race.Fingerprint(0, "0"), a)
		races = append(races, detector.Observe(race.Fingerprint(0, "0"), b)...)
		fmt.Printf("races found: %d\n", len(races))
		for _, rc := range races {
			fmt.Printf("  - %s\n", rc.Reason)
		}
		if enableRace {
			reportUnfolding(r.Unfolding)
		}

	case "data-race-symbolic":
		a, b, r := scenarios.DataRaceSymbolicOffset()
		detector := race.NewDetector(solver.NopSolver{})
		races := detector.Observe(race.Fingerprint(0, "sym"), a)
		races = append(races, detector.Observe(race.Fingerprint(0, "sym"), b)...)
		fmt.Printf("races found under NopSolver (always ambiguous): %d\n", len(races))
		if enableRace {
			reportUnfolding(r.Unfolding)
		}

	case "csd-bound":
		r := scenarios.CSDBound()
		computed := csd.EventCSD(r.Final)
		fmt.Printf("compute_csd(final_event) = %d\n", computed)
		fmt.Printf("is_above_limit(final_event, %d) = %v\n", computed-1, csd.EventIsAboveLimit(r.Final, computed-1))
		fmt.Printf("is_above_limit(final_event, %d) = %v\n", computed, csd.EventIsAboveLimit(r.Final, computed))

	default:
		log.Fatalf("unknown scenario %q", name)
	}

	fmt.Println()
}

func reportUnfolding(u *unfolding.Unfolding) {
	unfolding.Render(os.Stdout, u.Stats())
}
