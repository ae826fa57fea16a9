package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/authconnector/internal/models"
	"github.com/dmitrijs2005/authconnector/internal/syncer"
)

func writeTitle(w io.Writer, title string) {
	fmt.Fprintf(w, "\n%s\n%s\n\n", title, strings.Repeat("=", len(title)))
}

func writeStats(w io.Writer, title string, s models.Stats) {
	writeTitle(w, title)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "created\tupdated\tdeleted")
	fmt.Fprintf(tw, "%d\t%d\t%d\n", s.Created, s.Updated, s.Deleted)
	_ = tw.Flush()
}

func writeFailures(w io.Writer, failures []syncer.Failure) {
	if len(failures) == 0 {
		return
	}
	writeTitle(w, fmt.Sprintf("Failed records (%d)", len(failures)))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "email\taction\terror")
	for _, f := range failures {
		fmt.Fprintf(tw, "%s\t%s\t%v\n", f.Email, f.Action, f.Err)
	}
	_ = tw.Flush()
}

func writeResult(w io.Writer, res *syncer.Result, remote bool) {
	if res == nil {
		return
	}
	if remote {
		writeStats(w, "Remote changes", res.Remote)
	}
	writeStats(w, "Local changes", res.Local)
	writeFailures(w, res.Failures)
	if res.Partial {
		fmt.Fprintln(w, "\nThe run was interrupted, the numbers above are partial.")
	}
}

func writeDuration(w io.Writer, d time.Duration) {
	fmt.Fprintf(w, "Finished in %.2fs.\n", d.Seconds())
}
