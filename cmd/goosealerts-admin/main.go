// goosealerts-admin exposes the resolver's offline maintenance
// operations: reviewing merge suggestions, confirming or skipping
// them, inspecting store counts, and cleaning up abandoned entities.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/mcqweb/goosealerts/internal/config"
	"github.com/mcqweb/goosealerts/internal/resolver"
	"github.com/mcqweb/goosealerts/internal/storage"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: goosealerts-admin [-config path] <command> [args]

Commands:
  suggest [-threshold 0.75]     list likely duplicate entities
  merge <variant> <canonical>   fold one entity into another
  skip <name-a> <name-b>        never suggest this pair again
  stats                         print store table counts
  cleanup [-older-than 168h]    delete teamless entities not seen recently
`)
	os.Exit(2)
}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer func() { _ = store.Close() }()

	res := resolver.New(store)

	switch args[0] {
	case "suggest":
		err = runSuggest(res, args[1:])
	case "merge":
		err = runMerge(res, args[1:])
	case "skip":
		err = runSkip(res, args[1:])
	case "stats":
		err = runStats(store)
	case "cleanup":
		err = runCleanup(store, args[1:])
	default:
		usage()
	}
	if err != nil {
		log.Fatalf("%s failed: %v", args[0], err)
	}
}

func runSuggest(res *resolver.Resolver, args []string) error {
	fs := flag.NewFlagSet("suggest", flag.ExitOnError)
	threshold := fs.Float64("threshold", 0.75, "Minimum match score")
	if err := fs.Parse(args); err != nil {
		return err
	}

	suggestions, err := res.SuggestMerges(*threshold)
	if err != nil {
		return err
	}
	if len(suggestions) == 0 {
		fmt.Println("No merge suggestions above threshold.")
		return nil
	}
	for _, s := range suggestions {
		fmt.Printf("%.2f  %-30q %-30q shared=%v\n", s.Score, s.EntityA, s.EntityB, s.MatchingTokens)
	}
	fmt.Printf("\n%d suggestion(s). Confirm with: goosealerts-admin merge <variant> <canonical>\n", len(suggestions))
	return nil
}

func runMerge(res *resolver.Resolver, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("expected: merge <variant> <canonical>")
	}
	if err := res.ConfirmMerge(args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("Merged %q into %q.\n", args[0], args[1])
	return nil
}

func runSkip(res *resolver.Resolver, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("expected: skip <name-a> <name-b>")
	}
	if err := res.SkipPair(args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("Pair %q / %q will not be suggested again.\n", args[0], args[1])
	return nil
}

func runStats(store *storage.Store) error {
	stats, err := store.Stats()
	if err != nil {
		return err
	}
	tables := make([]string, 0, len(stats))
	for t := range stats {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	for _, t := range tables {
		fmt.Printf("%-15s %d\n", t, stats[t])
	}
	return nil
}

// runCleanup removes entities that carry no team history and have not
// been sighted recently. These are typically one-off junk rows from a
// source mangling a name badly enough that nothing ever matched it.
func runCleanup(store *storage.Store, args []string) error {
	fs := flag.NewFlagSet("cleanup", flag.ExitOnError)
	olderThan := fs.Duration("older-than", 7*24*time.Hour, "Only delete entities not seen within this window")
	dryRun := fs.Bool("dry-run", false, "List candidates without deleting")
	if err := fs.Parse(args); err != nil {
		return err
	}

	entities, err := store.ListEntities()
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-*olderThan)
	deleted := 0
	for _, e := range entities {
		if len(e.Teams) > 0 || e.LastSeen.After(cutoff) {
			continue
		}
		if *dryRun {
			fmt.Printf("would delete %q (last seen %s, %d sightings)\n",
				e.ID, e.LastSeen.Format(time.RFC3339), e.OccurrenceCount)
			continue
		}
		if err := store.DeleteEntity(e.ID); err != nil {
			return fmt.Errorf("deleting %q: %w", e.ID, err)
		}
		deleted++
	}
	if !*dryRun {
		fmt.Printf("Deleted %d teamless entities.\n", deleted)
	}
	return nil
}
