package report

import (
	"fmt"
	"io"
	"strings"
)

// Section is the console rendering of one catalog entry.
type Section struct {
	Title       string
	Explanation string
	Body        string
	Summary     string
	Err         error
}

// Banner frames "<title> Result:" with '=' lines of the same width.
func Banner(title string) string {
	heading := title + " Result:"
	rule := strings.Repeat("=", len(heading))
	return rule + "\n" + heading + "\n" + rule + "\n"
}

// PrintSection writes the explanation, banner, result and summary of one
// query. A failed query prints its error in place of the result.
func PrintSection(w io.Writer, s Section) error {
	var b strings.Builder
	if s.Explanation != "" {
		b.WriteString(strings.TrimRight(s.Explanation, "\n"))
		b.WriteString("\n")
	}
	b.WriteString(Banner(s.Title))
	switch {
	case s.Err != nil:
		fmt.Fprintf(&b, "ERROR: %v\n", s.Err)
	case s.Body != "":
		b.WriteString(s.Body)
		if !strings.HasSuffix(s.Body, "\n") {
			b.WriteString("\n")
		}
	}
	if s.Summary != "" {
		b.WriteString(strings.TrimRight(s.Summary, "\n"))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// Failure names one query that did not complete.
type Failure struct {
	QueryID string
	Reason  string
}

// PrintStatus writes the closing block of a run.
func PrintStatus(w io.Writer, dir string, total int, failures []Failure) error {
	var b strings.Builder
	rule := strings.Repeat("=", 90)
	b.WriteString(rule)
	b.WriteString("\n")
	fmt.Fprintf(&b, "Completed %d of %d queries.\n", total-len(failures), total)
	for _, f := range failures {
		fmt.Fprintf(&b, "  FAILED %s: %s\n", f.QueryID, f.Reason)
	}
	if dir != "" {
		fmt.Fprintf(&b, "The output files are saved in %s\n", dir)
	}
	b.WriteString(rule)
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}
