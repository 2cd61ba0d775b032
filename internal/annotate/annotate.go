// Package annotate asks a text-completion service to summarize diagnostic
// output and explain diagnostic queries.
package annotate

import (
	"context"
	"fmt"
	"strings"
)

// Gateway is the annotation capability consumed by the pipeline. Both calls
// are independent and stateless.
type Gateway interface {
	SummarizeOutput(ctx context.Context, text string) (string, error)
	ExplainQuery(ctx context.Context, sqlText string) (string, error)
}

// Operation names used in errors.
const (
	OpSummarize = "summarize"
	OpExplain   = "explain"
)

// AnnotationError reports a failed or timed-out completion call.
type AnnotationError struct {
	Op    string
	Cause error
}

func (e *AnnotationError) Error() string {
	return fmt.Sprintf("annotation %s: %v", e.Op, e.Cause)
}

func (e *AnnotationError) Unwrap() error {
	return e.Cause
}

// Placeholder is the text recorded in place of an annotation that failed.
func Placeholder(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("(annotation unavailable: %v)", err)
}

// maxInputBytes caps the text embedded in a prompt.
const maxInputBytes = 48 * 1024

const truncatedMarker = "\n... (truncated)\n"

// SummaryPrompt builds the result-summary prompt.
func SummaryPrompt(output string) string {
	var b strings.Builder
	b.WriteString("Below is an output returned from a MySQL system table used to analyze MySQL performance status. ")
	b.WriteString("Please interpret and summarize the output. Instructions: ")
	b.WriteString("1-highlight the key information of the output from an experienced MySQL DBA perspective; ")
	b.WriteString("2-highlight the potential performance impact based on the data returned in the output; ")
	b.WriteString("3-give professional suggestions based on the highlights; ")
	b.WriteString("4-if no data is in the output, respond that no data was returned; ")
	b.WriteString("5-if too many rows are returned in the output, summarize only the top 10 rows.\n")
	b.WriteString(" #start of output\n")
	b.WriteString(truncate(output))
	b.WriteString("\n#end of output\n")
	return b.String()
}

// ExplainPrompt builds the query-explanation prompt.
func ExplainPrompt(sqlText string) string {
	var b strings.Builder
	b.WriteString("Below is a MySQL SQL statement. Please explain the purpose of the query from a professional MySQL DBA perspective.\n\n")
	b.WriteString(" #start of SQL\n")
	b.WriteString(truncate(sqlText))
	b.WriteString("\n#end of SQL\n")
	return b.String()
}

func truncate(text string) string {
	if len(text) <= maxInputBytes {
		return text
	}
	cut := maxInputBytes
	// Avoid splitting a UTF-8 sequence.
	for cut > 0 && text[cut]&0xC0 == 0x80 {
		cut--
	}
	return text[:cut] + truncatedMarker
}
