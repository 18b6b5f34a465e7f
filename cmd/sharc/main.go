// Command sharc is an illustrative CLI exercising the embedded database
// end to end: creating and opening files, verifying the provenance
// ledger, building an HNSW index over an existing column, and walking
// the property graph from a starting concept.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/sharc-db/sharc"
	"github.com/sharc-db/sharc/internal/graph"
	"github.com/sharc-db/sharc/internal/sharcerr"
	"github.com/sharc-db/sharc/internal/vector/hnsw"
)

// Exit codes per spec.md §6.
const (
	exitOK        = 0
	exitIntegrity = 1
	exitIO        = 2
	exitUsage     = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		printUsage()
		return exitUsage
	}

	switch args[0] {
	case "open":
		return cmdOpen(args[1:])
	case "create":
		return cmdCreate(args[1:])
	case "verify-ledger":
		return cmdVerifyLedger(args[1:])
	case "hnsw-build":
		return cmdHNSWBuild(args[1:])
	case "graph-bfs":
		return cmdGraphBFS(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "sharc: unknown command %q\n", args[0])
		printUsage()
		return exitUsage
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage:
  sharc open [--config sharc.yaml] <file>
  sharc create [--page-size N] <file>
  sharc verify-ledger <file>
  sharc hnsw-build <file> <table> <column>
  sharc graph-bfs [--max-depth N] <file> <start-key>`)
}

func cmdOpen(args []string) int {
	fs := flag.NewFlagSet("open", flag.ContinueOnError)
	config := fs.String("config", "", "path to a YAML OpenOptions file (§6); defaults applied for anything it omits")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() < 1 {
		printUsage()
		return exitUsage
	}

	opts := sharc.DefaultOpenOptions()
	if *config != "" {
		loaded, err := sharc.LoadOpenOptionsYAML(*config)
		if err != nil {
			return reportErr(err)
		}
		opts = loaded
	}

	db, err := sharc.Open(fs.Arg(0), opts)
	if err != nil {
		return reportErr(err)
	}
	defer db.Close()
	fmt.Printf("opened %s\n", fs.Arg(0))
	return exitOK
}

func cmdCreate(args []string) int {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	pageSize := fs.Int("page-size", 4096, "page size in bytes")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() < 1 {
		printUsage()
		return exitUsage
	}
	db, err := sharc.Create(fs.Arg(0), *pageSize)
	if err != nil {
		return reportErr(err)
	}
	defer db.Close()
	fmt.Printf("created %s (page size %d)\n", fs.Arg(0), *pageSize)
	return exitOK
}

func cmdVerifyLedger(args []string) int {
	if len(args) < 1 {
		printUsage()
		return exitUsage
	}
	opts := sharc.DefaultOpenOptions()
	opts.Writable = false
	db, err := sharc.Open(args[0], opts)
	if err != nil {
		return reportErr(err)
	}
	defer db.Close()

	if err := db.VerifyLedger(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "sharc: ledger integrity failure: %v\n", err)
		return exitIntegrity
	}
	if err := db.Audit().VerifyIntegrity(); err != nil {
		fmt.Fprintf(os.Stderr, "sharc: audit log integrity failure: %v\n", err)
		return exitIntegrity
	}
	fmt.Printf("ledger OK (%d entries), audit OK (%d events)\n", db.Ledger().Len(), db.Audit().Len())
	return exitOK
}

func cmdHNSWBuild(args []string) int {
	if len(args) < 3 {
		printUsage()
		return exitUsage
	}
	table, column := args[1], args[2]
	opts := sharc.DefaultOpenOptions()
	db, err := sharc.Open(args[0], opts)
	if err != nil {
		return reportErr(err)
	}
	defer db.Close()

	if _, err := db.VectorIndex(table, column, 0, hnsw.MetricCosine); err != nil {
		fmt.Fprintf(os.Stderr, "sharc: %v\n", err)
		return exitIO
	}
	if err := db.CompactVectorIndex(table, column); err != nil {
		fmt.Fprintf(os.Stderr, "sharc: %v\n", err)
		return exitIO
	}
	fmt.Printf("rebuilt HNSW index on %s.%s\n", table, column)
	return exitOK
}

func cmdGraphBFS(args []string) int {
	fs := flag.NewFlagSet("graph-bfs", flag.ContinueOnError)
	maxDepth := fs.Int("max-depth", 0, "maximum traversal depth (0 = unlimited)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() < 2 {
		printUsage()
		return exitUsage
	}

	opts := sharc.DefaultOpenOptions()
	opts.Writable = false
	db, err := sharc.Open(fs.Arg(0), opts)
	if err != nil {
		return reportErr(err)
	}
	defer db.Close()

	startKey := fs.Arg(1)
	startID, err := findConceptID(db, startKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sharc: %v\n", err)
		return exitIO
	}

	nodes, err := db.Graph().BFS(startID, graph.TraverseOptions{
		Direction: graph.DirectionBoth,
		MaxDepth:  *maxDepth,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "sharc: %v\n", err)
		return exitIO
	}
	for _, n := range nodes {
		fmt.Printf("%d\tdepth=%d\n", n.ConceptID, n.Depth)
	}
	return exitOK
}

func findConceptID(db *sharc.Database, key string) (int64, error) {
	id, ok := db.Graph().Lookup(key)
	if !ok {
		return 0, fmt.Errorf("no concept with key %q", key)
	}
	return id, nil
}

func reportErr(err error) int {
	fmt.Fprintf(os.Stderr, "sharc: %v\n", err)

	var se *sharcerr.Error
	if ok := asSharcErr(err, &se); ok {
		switch se.Group() {
		case sharcerr.GroupIntegrity:
			return exitIntegrity
		case sharcerr.GroupIO, sharcerr.GroupFormat:
			return exitIO
		}
	}
	return exitIO
}

func asSharcErr(err error, target **sharcerr.Error) bool {
	for err != nil {
		if se, ok := err.(*sharcerr.Error); ok {
			*target = se
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
