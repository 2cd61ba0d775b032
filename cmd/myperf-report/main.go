package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"myperf/internal/config"
	"myperf/internal/report"
	"myperf/internal/uploader"
	"myperf/internal/util"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// FileContent holds inlined run file content.
type FileContent struct {
	Name      string `json:"name"`
	Content   string `json:"content"`
	Truncated bool   `json:"truncated"`
}

// RunEntry is one collected run in the index.
type RunEntry struct {
	RunID         string                 `json:"run_id"`
	RunUUID       string                 `json:"run_uuid"`
	Dir           string                 `json:"dir"`
	Server        string                 `json:"server"`
	ServerVersion string                 `json:"server_version"`
	State         string                 `json:"state"`
	Annotated     bool                   `json:"annotated"`
	StartedAt     string                 `json:"started_at"`
	FinishedAt    string                 `json:"finished_at"`
	Failed        []string               `json:"failed"`
	ArchiveName   string                 `json:"archive_name,omitempty"`
	Queries       []report.QueryManifest `json:"queries"`
	Files         map[string]FileContent `json:"files"`
}

// Index is the JSON payload written to runs.json.
type Index struct {
	GeneratedAt string     `json:"generated_at"`
	Source      string     `json:"source"`
	Runs        []RunEntry `json:"runs"`
}

const indexName = "runs.json"

func main() {
	input := flag.String("input", "", "run output directory or s3://bucket/prefix (defaults to output.dir)")
	output := flag.String("output", ".", "directory for "+indexName)
	configPath := flag.String("config", "", "path to config file (for output.dir and S3 access)")
	maxBytes := flag.Int("max-bytes", 64*1024, "max bytes to inline per run file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fail("load config: %v", err)
	}
	source := strings.TrimSpace(*input)
	if source == "" {
		source = cfg.Output.Dir
	}
	ctx := context.Background()

	var runs []RunEntry
	if strings.HasPrefix(source, "s3://") {
		bucket, prefix, parseErr := parseS3URI(source)
		if parseErr != nil {
			fail("parse s3 input: %v", parseErr)
		}
		runs, err = loadS3Runs(ctx, cfg.Storage.S3, bucket, prefix, *maxBytes)
	} else {
		runs, err = loadLocalRuns(source, *maxBytes)
	}
	if err != nil {
		fail("load runs: %v", err)
	}
	sortRuns(runs)

	idx := Index{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Source:      source,
		Runs:        runs,
	}
	target, err := writeIndex(*output, idx)
	if err != nil {
		fail("write index: %v", err)
	}
	fmt.Printf("indexed %d run(s) into %s\n", len(runs), target)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// sortRuns orders runs newest first by run id, which is a UTC timestamp.
func sortRuns(runs []RunEntry) {
	sort.SliceStable(runs, func(i, j int) bool {
		ti, errI := util.ParseRunStamp(runs[i].RunID)
		tj, errJ := util.ParseRunStamp(runs[j].RunID)
		if errI != nil || errJ != nil {
			return runs[i].RunID > runs[j].RunID
		}
		if ti.Equal(tj) {
			return runs[i].Dir > runs[j].Dir
		}
		return ti.After(tj)
	})
}

func entryFromManifest(m report.Manifest, dir string) RunEntry {
	e := RunEntry{
		RunID:         m.RunID,
		RunUUID:       m.RunUUID,
		Dir:           dir,
		Server:        m.Server,
		ServerVersion: m.ServerVersion,
		State:         m.State,
		Annotated:     m.Annotated,
		StartedAt:     m.StartedAt,
		FinishedAt:    m.FinishedAt,
		ArchiveName:   m.ArchiveName,
		Queries:       m.Queries,
		Files:         map[string]FileContent{},
	}
	if strings.TrimSpace(e.RunID) == "" {
		e.RunID = path.Base(filepath.ToSlash(dir))
	}
	for _, q := range m.Queries {
		if q.Error != "" {
			e.Failed = append(e.Failed, q.ID)
		}
	}
	return e
}

func loadLocalRuns(root string, maxBytes int) ([]RunEntry, error) {
	dirs, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	runs := make([]RunEntry, 0, len(dirs))
	for _, dirEntry := range dirs {
		if !dirEntry.IsDir() {
			continue
		}
		dir := filepath.Join(root, dirEntry.Name())
		m, err := report.ReadManifest(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				util.Warnf("skip run %s: %v", dir, err)
			}
			continue
		}
		entry := entryFromManifest(m, dir)
		for _, q := range m.Queries {
			if q.File == "" {
				continue
			}
			entry.Files[q.File] = mustReadFile(filepath.Join(dir, q.File), maxBytes)
		}
		runs = append(runs, entry)
	}
	return runs, nil
}

func mustReadFile(path string, maxBytes int) FileContent {
	content, truncated, err := readFileLimited(path, maxBytes)
	if err != nil {
		return FileContent{Name: filepath.Base(path)}
	}
	return FileContent{Name: filepath.Base(path), Content: content, Truncated: truncated}
}

func readFileLimited(path string, maxBytes int) (string, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, err
	}
	defer util.CloseWithErr(f, "run input")
	return readLimited(f, maxBytes)
}

func readLimited(r io.Reader, maxBytes int) (string, bool, error) {
	data, err := io.ReadAll(io.LimitReader(r, int64(maxBytes)+1))
	if err != nil {
		return "", false, err
	}
	truncated := len(data) > maxBytes
	if truncated {
		data = data[:maxBytes]
	}
	return string(data), truncated, nil
}

func writeIndex(output string, idx Index) (string, error) {
	if err := os.MkdirAll(output, 0o755); err != nil {
		return "", err
	}
	target := filepath.Join(output, indexName)
	f, err := os.Create(target)
	if err != nil {
		return "", err
	}
	defer util.CloseWithErr(f, "index output")
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return target, enc.Encode(idx)
}

func parseS3URI(input string) (bucket string, prefix string, err error) {
	trimmed := strings.TrimPrefix(input, "s3://")
	if trimmed == "" {
		return "", "", fmt.Errorf("missing s3 bucket")
	}
	parts := strings.SplitN(trimmed, "/", 2)
	bucket = parts[0]
	if bucket == "" {
		return "", "", fmt.Errorf("missing s3 bucket")
	}
	if len(parts) == 2 {
		prefix = strings.TrimPrefix(parts[1], "/")
		if prefix != "" && !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
	}
	return bucket, prefix, nil
}

func loadS3Runs(ctx context.Context, cfg config.S3Config, bucket, prefix string, maxBytes int) ([]RunEntry, error) {
	client, err := uploader.NewS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	keys, err := listManifestKeys(ctx, client, bucket, prefix)
	if err != nil {
		return nil, err
	}
	runs := make([]RunEntry, 0, len(keys))
	for _, key := range keys {
		dir := strings.TrimSuffix(key, "/"+report.ManifestName)
		entry, err := readRunFromS3(ctx, client, bucket, dir, maxBytes)
		if err != nil {
			util.Warnf("skip run s3://%s/%s: %v", bucket, dir, err)
			continue
		}
		runs = append(runs, entry)
	}
	return runs, nil
}

func listManifestKeys(ctx context.Context, client *s3.Client, bucket, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/"+report.ManifestName) {
				keys = append(keys, key)
			}
		}
	}
	return keys, nil
}

func readRunFromS3(ctx context.Context, client *s3.Client, bucket, dir string, maxBytes int) (RunEntry, error) {
	data, truncated, err := readObjectLimited(ctx, client, bucket, dir+"/"+report.ManifestName, 16*maxBytes)
	if err != nil {
		return RunEntry{}, err
	}
	if truncated {
		return RunEntry{}, fmt.Errorf("manifest exceeds %d bytes", 16*maxBytes)
	}
	var m report.Manifest
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return RunEntry{}, err
	}
	entry := entryFromManifest(m, "s3://"+bucket+"/"+dir)
	for _, q := range m.Queries {
		if q.File == "" {
			continue
		}
		content, truncated, err := readObjectLimited(ctx, client, bucket, dir+"/"+q.File, maxBytes)
		if err != nil {
			entry.Files[q.File] = FileContent{Name: q.File}
			continue
		}
		entry.Files[q.File] = FileContent{Name: q.File, Content: content, Truncated: truncated}
	}
	return entry, nil
}

func readObjectLimited(ctx context.Context, client *s3.Client, bucket, key string, maxBytes int) (string, bool, error) {
	resp, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return "", false, fmt.Errorf("missing object %s", key)
		}
		return "", false, err
	}
	defer util.CloseWithErr(resp.Body, "s3 response body")
	return readLimited(resp.Body, maxBytes)
}
