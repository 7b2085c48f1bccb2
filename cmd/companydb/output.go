package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/saltyorg/companydb/internal/database"
)

// parseArg turns a command-line parameter into a SQL value: integers and
// floats keep their numeric type, the literal NULL becomes nil and anything
// else is bound as text. Quote a value with single quotes to force text.
func parseArg(s string) any {
	if len(s) >= 2 && strings.HasPrefix(s, "'") && strings.HasSuffix(s, "'") {
		return s[1 : len(s)-1]
	}
	if strings.EqualFold(s, "null") {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func parseArgs(args []string) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = parseArg(a)
	}
	return out
}

func parseBatch(sets []string) [][]any {
	out := make([][]any, len(sets))
	for i, set := range sets {
		out[i] = parseArgs(strings.Split(set, ","))
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeStats(w io.Writer, path string, stats database.Stats) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "database\t%s\n", path)
	fmt.Fprintf(tw, "size\t%s\n", humanize.Bytes(uint64(max(stats.SizeBytes, 0))))
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "TABLE\tROWS")
	for _, t := range stats.Tables {
		fmt.Fprintf(tw, "%s\t%s\n", t, humanize.Comma(stats.RowCounts[t]))
	}

	return tw.Flush()
}

// writePlan prints plan steps as an indented tree.
func writePlan(w io.Writer, steps []database.PlanStep) {
	depth := map[int64]int{0: -1}
	for _, s := range steps {
		d := depth[s.Parent] + 1
		depth[s.ID] = d
		fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", d), s.Detail)
	}
}
