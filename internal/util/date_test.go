package util

import (
	"testing"
	"time"
)

func TestRunStampUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	ts := time.Date(2024, 3, 1, 7, 4, 5, 999, loc)
	if got := RunStamp(ts); got != "20240229230405" {
		t.Fatalf("RunStamp=%s, want 20240229230405", got)
	}
}

func TestParseRunStamp(t *testing.T) {
	cases := []struct {
		name string
		want time.Time
	}{
		{"20240229230405", time.Date(2024, 2, 29, 23, 4, 5, 0, time.UTC)},
		{"20240229230405-2", time.Date(2024, 2, 29, 23, 4, 5, 0, time.UTC)},
	}
	for _, c := range cases {
		got, err := ParseRunStamp(c.name)
		if err != nil {
			t.Fatalf("ParseRunStamp(%s) err=%v", c.name, err)
		}
		if !got.Equal(c.want) {
			t.Fatalf("ParseRunStamp(%s)=%v, want %v", c.name, got, c.want)
		}
	}
	if _, err := ParseRunStamp("not-a-stamp"); err == nil {
		t.Fatalf("expected error for malformed stamp")
	}
}
