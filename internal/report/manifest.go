package report

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	"myperf/internal/runinfo"

	"github.com/google/uuid"
)

// ManifestName is the run metadata file written next to the query outputs.
const ManifestName = "summary.json"

// Query status values recorded in the manifest.
const (
	StatusOK         = "ok"
	StatusFailed     = "failed"
	StatusUnresolved = "unresolved"
)

// Manifest captures the persisted metadata for one run.
type Manifest struct {
	RunID         string          `json:"run_id"`
	RunUUID       string          `json:"run_uuid"`
	Dir           string          `json:"dir"`
	ServerVersion string          `json:"server_version"`
	ServerComment string          `json:"server_comment"`
	Server        string          `json:"server"`
	State         string          `json:"state"`
	Annotated     bool            `json:"annotated"`
	StartedAt     string          `json:"started_at"`
	FinishedAt    string          `json:"finished_at"`
	ArchiveName   string          `json:"archive_name,omitempty"`
	ArchiveCodec  string          `json:"archive_codec,omitempty"`
	Environment   *runinfo.Info   `json:"environment,omitempty"`
	Queries       []QueryManifest `json:"queries"`
	Details       map[string]any  `json:"details"`
}

// QueryManifest describes one catalog entry of the run.
type QueryManifest struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	File        string   `json:"file,omitempty"`
	Status      string   `json:"status"`
	ErrorKind   string   `json:"error_kind,omitempty"`
	Error       string   `json:"error,omitempty"`
	Variant     int      `json:"variant"`
	Digest      string   `json:"digest,omitempty"`
	Tables      []string `json:"tables,omitempty"`
	Rows        int      `json:"rows"`
	ElapsedMS   int64    `json:"elapsed_ms"`
	Explanation string   `json:"explanation,omitempty"`
	Summary     string   `json:"summary,omitempty"`
}

// NewRunUUID returns a time-ordered identifier for the manifest.
func NewRunUUID() string {
	if v7, err := uuid.NewV7(); err == nil {
		return v7.String()
	}
	return uuid.New().String()
}

// FormatTime renders manifest timestamps.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// WriteManifest writes summary.json into the run directory.
func (w *Writer) WriteManifest(runID string, m Manifest) (string, error) {
	path, err := w.path(runID, ManifestName)
	if err != nil {
		return "", err
	}
	err = w.writeFile(path, func(out io.Writer) error {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return encodeManifestStable(enc, m)
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

// ReadManifest loads summary.json from dir.
func ReadManifest(dir string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(data, &m)
	return m, err
}

func encodeManifestStable(enc *json.Encoder, m Manifest) error {
	type manifestAlias Manifest
	alias := manifestAlias(m)
	rawDetails, err := encodeOrderedValue(alias.Details)
	if err != nil {
		return err
	}
	alias.Details = nil
	payload := struct {
		manifestAlias
		Details json.RawMessage `json:"details"`
	}{
		manifestAlias: alias,
		Details:       rawDetails,
	}
	return enc.Encode(payload)
}

func encodeOrderedValue(v any) (json.RawMessage, error) {
	if v == nil {
		return json.RawMessage("null"), nil
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Map && rv.IsNil() {
		return json.RawMessage("null"), nil
	}
	buf := &strings.Builder{}
	if err := writeOrderedJSON(buf, v); err != nil {
		return nil, err
	}
	return json.RawMessage(buf.String()), nil
}

func writeOrderedJSON(w io.Writer, v any) error {
	if v == nil {
		_, err := io.WriteString(w, "null")
		return err
	}
	if raw, ok := v.(json.RawMessage); ok {
		_, err := w.Write(raw)
		return err
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			return writeOrderedMap(w, rv)
		}
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() != reflect.Uint8 {
			return writeOrderedSlice(w, rv)
		}
	}
	return writeScalarJSON(w, v)
}

func writeOrderedMap(w io.Writer, rv reflect.Value) error {
	keys := make([]string, 0, rv.Len())
	for _, k := range rv.MapKeys() {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)
	if _, err := io.WriteString(w, "{"); err != nil {
		return err
	}
	for i, key := range keys {
		if i > 0 {
			if _, err := io.WriteString(w, ","); err != nil {
				return err
			}
		}
		if err := writeScalarJSON(w, key); err != nil {
			return err
		}
		if _, err := io.WriteString(w, ":"); err != nil {
			return err
		}
		val := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
		if err := writeOrderedJSON(w, val.Interface()); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "}")
	return err
}

func writeOrderedSlice(w io.Writer, rv reflect.Value) error {
	if _, err := io.WriteString(w, "["); err != nil {
		return err
	}
	for i := 0; i < rv.Len(); i++ {
		if i > 0 {
			if _, err := io.WriteString(w, ","); err != nil {
				return err
			}
		}
		if err := writeOrderedJSON(w, rv.Index(i).Interface()); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "]")
	return err
}

func writeScalarJSON(w io.Writer, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	_, err := w.Write(bytes.TrimRight(buf.Bytes(), "\n"))
	return err
}
