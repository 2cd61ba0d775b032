// Package tabular holds the in-memory form of one diagnostic result set and
// its quoted, delimited text encoding.
//
// Encoding rules:
//   - the header line carries every column name, the data lines every cell;
//   - each field is wrapped in double quotes and followed by the separator,
//     so every line ends with a trailing separator before '\n';
//   - an embedded double quote is written twice ("") unless Legacy is set,
//     in which case it is written as-is and the output cannot be decoded
//     unambiguously.
package tabular

import (
	"bufio"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Result is the column/row form of one query's output. Rows may be empty.
type Result struct {
	Columns []string
	Rows    [][]string
}

// Empty reports whether the result carries no data rows.
func (r Result) Empty() bool {
	return len(r.Rows) == 0
}

// Column returns the values of the named column, matched case-insensitively.
func (r Result) Column(name string) ([]string, bool) {
	idx := -1
	for i, c := range r.Columns {
		if strings.EqualFold(c, name) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}
	out := make([]string, 0, len(r.Rows))
	for _, row := range r.Rows {
		if idx < len(row) {
			out = append(out, row[idx])
		}
	}
	return out, true
}

// Encoder renders a Result as quoted delimited text.
type Encoder struct {
	Separator rune
	Legacy    bool
}

// DefaultEncoder uses ',' and escapes embedded quotes.
var DefaultEncoder = Encoder{Separator: ','}

// Encode writes r to w.
func (e Encoder) Encode(w io.Writer, r Result) error {
	bw := bufio.NewWriter(w)
	if err := e.writeLine(bw, r.Columns); err != nil {
		return err
	}
	for _, row := range r.Rows {
		if err := e.writeLine(bw, row); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// String renders r to a string.
func (e Encoder) String(r Result) string {
	var b strings.Builder
	_ = e.Encode(&b, r)
	return b.String()
}

func (e Encoder) writeLine(w *bufio.Writer, fields []string) error {
	sep := e.separator()
	for _, field := range fields {
		if err := w.WriteByte('"'); err != nil {
			return err
		}
		if e.Legacy {
			if _, err := w.WriteString(field); err != nil {
				return err
			}
		} else if _, err := w.WriteString(strings.ReplaceAll(field, `"`, `""`)); err != nil {
			return err
		}
		if err := w.WriteByte('"'); err != nil {
			return err
		}
		if _, err := w.WriteRune(sep); err != nil {
			return err
		}
	}
	return w.WriteByte('\n')
}

func (e Encoder) separator() rune {
	if e.Separator == 0 {
		return ','
	}
	return e.Separator
}

// Decode parses text produced by a non-legacy Encoder with the same separator.
// The first record becomes the header. Cell bytes come back unchanged,
// including CR and LF inside quotes; an empty line is a record with no fields.
func Decode(r io.Reader, sep rune) (Result, error) {
	if sep == 0 {
		sep = ','
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return Result{}, errors.Wrap(err, "decode tabular")
	}
	d := decoder{src: string(data), sep: sep, line: 1}
	var out Result
	first := true
	for d.pos < len(d.src) {
		rec, err := d.record()
		if err != nil {
			return Result{}, errors.Wrapf(err, "decode tabular line %d", d.line)
		}
		if first {
			out.Columns = rec
			first = false
			continue
		}
		out.Rows = append(out.Rows, rec)
	}
	if first {
		return Result{}, errors.New("decode tabular: missing header")
	}
	return out, nil
}

type decoder struct {
	src  string
	pos  int
	sep  rune
	line int
}

func (d *decoder) record() ([]string, error) {
	rec := []string{}
	for {
		if d.pos >= len(d.src) {
			return nil, errors.New("missing line break")
		}
		if d.src[d.pos] == '\n' {
			d.pos++
			d.line++
			return rec, nil
		}
		field, err := d.field()
		if err != nil {
			return nil, err
		}
		rec = append(rec, field)
	}
}

func (d *decoder) field() (string, error) {
	if d.src[d.pos] != '"' {
		return "", errors.New("field is not quoted")
	}
	d.pos++
	var b strings.Builder
	for {
		i := strings.IndexByte(d.src[d.pos:], '"')
		if i < 0 {
			return "", errors.New("unterminated quoted field")
		}
		chunk := d.src[d.pos : d.pos+i]
		d.line += strings.Count(chunk, "\n")
		b.WriteString(chunk)
		d.pos += i + 1
		if d.pos < len(d.src) && d.src[d.pos] == '"' {
			b.WriteByte('"')
			d.pos++
			continue
		}
		break
	}
	r, size := utf8.DecodeRuneInString(d.src[d.pos:])
	if size == 0 || r != d.sep {
		return "", errors.New("missing trailing separator")
	}
	d.pos += size
	return b.String(), nil
}
