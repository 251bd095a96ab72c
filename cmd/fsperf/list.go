package main

import (
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/josefbacik/fsperf/internal/runner"
	"github.com/josefbacik/fsperf/internal/suite"
)

func listTests(cmd *cobra.Command, _ []string) error {
	writeTestList(cmd.OutOrStdout(), suite.Default())
	return nil
}

func writeTestList(w io.Writer, tests []runner.Test) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Test", "Traces", "Flags"})
	for _, test := range tests {
		t.AppendRow(table.Row{test.Name(), strings.Join(test.Functions(), ","), flagString(test.Flags())})
	}
	t.Render()
}

func flagString(f runner.Flags) string {
	var out []string
	if f.OneOff {
		out = append(out, "oneoff")
	}
	if f.SkipMkfsAndMount {
		out = append(out, "own-device")
	}
	if f.NeedsRemountAfterSetup {
		out = append(out, "remount")
	}
	return strings.Join(out, ",")
}
