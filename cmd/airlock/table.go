// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/bureau-foundation/airlock/lib/convert"
)

// printBatchTable writes one row per document with its terminal state.
func printBatchTable(results []convert.Result) {
	writer := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "DOCUMENT\tSTATE\tPAGES\tTIME\tRESULT")
	for _, result := range results {
		state := styleFailed.Render(result.State.String())
		detail := ""
		switch result.State {
		case convert.StateCompleted:
			state = styleSafe.Render(result.State.String())
			detail = result.OutputPath
		case convert.StateFailed:
			detail = failureText(result)
		}
		pages := ""
		if result.Pages > 0 {
			pages = fmt.Sprintf("%d", result.Pages)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
			result.Doc.Name(), state, pages,
			result.Duration.Round(time.Millisecond), detail)
	}
	writer.Flush()
}
