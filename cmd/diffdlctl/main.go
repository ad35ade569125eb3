// Command diffdlctl is a small inspector CLI around the diffdl engine: it
// runs the built-in reachability demo program, lets a user stage edges
// and watch reach converge, and prints the edge relation as a table and
// reach query results with colorized counts (cmd/datalog's demo/interactive split, retargeted at
// a running engine instead of a stored database).
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/wbrown/janus-diffdl/diffdl"
)

func main() {
	var workers int
	var verbose bool
	var interactive bool
	var help bool

	flag.IntVar(&workers, "workers", 1, "number of workers in the pool")
	flag.BoolVar(&verbose, "verbose", false, "enable timely-class profiling, printed to stdout")
	flag.BoolVar(&interactive, "i", false, "interactive mode")
	flag.BoolVar(&help, "h", false, "show help")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Inspector for the diffdl reachability demo program.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                # Run the demo and exit\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -i             # Interactive mode\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -workers 4 -i  # Interactive mode, 4-way worker pool\n", os.Args[0])
	}
	flag.Parse()

	if help {
		flag.Usage()
		os.Exit(0)
	}

	config := diffdl.NewConfig()
	config.NumWorkers = workers
	if verbose {
		config.Profiling = diffdl.ProfilingTimelyLogSink
	}

	rp, err := diffdl.Run(config, buildReachabilityProgram())
	if err != nil {
		log.Fatalf("failed to start engine: %v", err)
	}
	defer rp.Close()
	if verbose {
		rp.EnableTimelyProfiling(true)
	}

	if interactive {
		runInteractive(rp)
		return
	}
	runDemo(rp)
}

func runDemo(rp *diffdl.RunningProgram) {
	fmt.Println("=== diffdl reachability demo ===")
	r := newResultRenderer()

	seed := []diffdl.Update{
		insertEdge(0, 1),
		insertEdge(1, 2),
		insertEdge(2, 3),
		insertEdge(3, 0),
		insertEdge(2, 4),
	}
	fmt.Println("\nAdding edges: 0->1, 1->2, 2->3, 3->0, 2->4")
	if err := rp.TransactionStart(); err != nil {
		log.Fatalf("transaction start: %v", err)
	}
	if err := rp.ApplyUpdates(seed); err != nil {
		log.Fatalf("apply updates: %v", err)
	}
	if err := rp.TransactionCommit(); err != nil {
		log.Fatalf("commit: %v", err)
	}

	edges, err := rp.GetInputRelationData(relEdge)
	if err != nil {
		log.Fatalf("get edge data: %v", err)
	}
	fmt.Print(r.renderEdgeTable("edge", edges))

	fmt.Println("\nQuerying what node 0 can reach:")
	printReach(rp, r, 0)
	fmt.Println("\nQuerying what node 2 can reach:")
	printReach(rp, r, 2)
}

func runInteractive(rp *diffdl.RunningProgram) {
	r := newResultRenderer()
	fmt.Println("=== diffdl reachability — interactive mode ===")
	fmt.Println("Commands:")
	fmt.Println("  .help             - show this help")
	fmt.Println("  .exit             - exit")
	fmt.Println("  edge <from> <to>  - stage an edge insert")
	fmt.Println("  deledge <from> <to> - stage an edge delete")
	fmt.Println("  commit            - commit the open transaction")
	fmt.Println("  rollback          - roll back the open transaction")
	fmt.Println("  dump              - list every edge, committed or staged")
	fmt.Println("  reach <node>      - list everything <node> can reach")
	fmt.Println()

	if err := rp.TransactionStart(); err != nil {
		log.Fatalf("transaction start: %v", err)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case ".exit":
			return

		case ".help":
			fmt.Println("edge/deledge <from> <to>, commit, rollback, dump, reach <node>")

		case "edge", "deledge":
			from, to, err := parseEdgeArgs(fields)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			u := insertEdge(from, to)
			if fields[0] == "deledge" {
				u = deleteEdge(from, to)
			}
			if err := rp.ApplyUpdates([]diffdl.Update{u}); err != nil {
				fmt.Println("error:", err)
			}

		case "commit":
			if err := rp.TransactionCommit(); err != nil {
				fmt.Println("error:", err)
				continue
			}
			if err := rp.TransactionStart(); err != nil {
				log.Fatalf("transaction start: %v", err)
			}

		case "rollback":
			if err := rp.TransactionRollback(); err != nil {
				fmt.Println("error:", err)
				continue
			}
			if err := rp.TransactionStart(); err != nil {
				log.Fatalf("transaction start: %v", err)
			}

		case "dump":
			edges, err := rp.GetInputRelationData(relEdge)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Print(r.renderEdgeTable("edge", edges))

		case "reach":
			if len(fields) != 2 {
				fmt.Println("usage: reach <node>")
				continue
			}
			n, err := strconv.Atoi(fields[1])
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			printReach(rp, r, node(n))

		default:
			fmt.Println("unknown command. Use .help for help.")
		}
	}
}

func printReach(rp *diffdl.RunningProgram, r *resultRenderer, from node) {
	set, err := rp.QueryArrangement(arrReachByFrom, from)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println(r.renderValues(fmt.Sprintf("node %d reaches", from), set))
}

func insertEdge(from, to int) diffdl.Update {
	return diffdl.Update{Kind: diffdl.UpdateInsert, RelId: relEdge, Value: edge{From: node(from), To: node(to)}}
}

func deleteEdge(from, to int) diffdl.Update {
	return diffdl.Update{Kind: diffdl.UpdateDeleteValue, RelId: relEdge, Value: edge{From: node(from), To: node(to)}}
}

func parseEdgeArgs(fields []string) (int, int, error) {
	if len(fields) != 3 {
		return 0, 0, fmt.Errorf("usage: %s <from> <to>", fields[0])
	}
	from, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, err
	}
	to, err := strconv.Atoi(fields[2])
	if err != nil {
		return 0, 0, err
	}
	return from, to, nil
}
