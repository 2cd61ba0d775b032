package runinfo

import (
	"runtime"
	"testing"
)

var knownEnv = []string{
	"KUBERNETES_SERVICE_HOST", "POD_NAMESPACE", "NAMESPACE", "POD_NAME", "JOB_NAME",
	"GITHUB_ACTIONS", "GITHUB_JOB", "GITHUB_REPOSITORY", "GITHUB_RUN_ID", "GITHUB_SERVER_URL",
	"GITLAB_CI", "CI_JOB_NAME", "CI_JOB_URL", "JENKINS_URL", "BUILD_URL", "CI",
	EnvLabel, EnvOperator, EnvTrigger,
}

func clearKnownEnv(t *testing.T) {
	t.Helper()
	for _, key := range knownEnv {
		t.Setenv(key, "")
	}
}

func TestFromEnvManual(t *testing.T) {
	clearKnownEnv(t)
	info := FromEnv()
	if info.Trigger != TriggerManual {
		t.Fatalf("expected manual trigger, got %s", info.Trigger)
	}
	if info.OS != runtime.GOOS || info.Arch != runtime.GOARCH {
		t.Fatalf("unexpected platform %s/%s", info.OS, info.Arch)
	}
	if info.Provider != "" {
		t.Fatalf("unexpected provider %s", info.Provider)
	}
}

func TestFromEnvKubernetes(t *testing.T) {
	clearKnownEnv(t)
	t.Setenv("KUBERNETES_SERVICE_HOST", "10.96.0.1")
	t.Setenv("POD_NAMESPACE", "db-ops")
	t.Setenv("POD_NAME", "myperf-28490210-abcde")
	t.Setenv("JOB_NAME", "myperf-hourly")

	info := FromEnv()
	if info.Trigger != TriggerKubernetes || info.Provider != "kubernetes" {
		t.Fatalf("unexpected scheduler %s/%s", info.Trigger, info.Provider)
	}
	if info.Namespace != "db-ops" || info.Pod != "myperf-28490210-abcde" || info.Job != "myperf-hourly" {
		t.Fatalf("unexpected pod metadata: %+v", info)
	}
}

func TestFromEnvGitHubActions(t *testing.T) {
	clearKnownEnv(t)
	t.Setenv("GITHUB_ACTIONS", "true")
	t.Setenv("GITHUB_REPOSITORY", "acme/db-health")
	t.Setenv("GITHUB_RUN_ID", "123456")
	t.Setenv("GITHUB_JOB", "collect")

	info := FromEnv()
	if info.Trigger != TriggerCI || info.Provider != "github_actions" {
		t.Fatalf("unexpected scheduler %s/%s", info.Trigger, info.Provider)
	}
	if info.BuildURL != "https://github.com/acme/db-health/actions/runs/123456" {
		t.Fatalf("unexpected build url %s", info.BuildURL)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	clearKnownEnv(t)
	t.Setenv("CI", "1")
	t.Setenv(EnvLabel, "INC-4821")
	t.Setenv(EnvOperator, "oncall-dba")
	t.Setenv(EnvTrigger, "Alert")

	info := FromEnv()
	if info.Label != "INC-4821" || info.Operator != "oncall-dba" {
		t.Fatalf("overrides not applied: %+v", info)
	}
	if info.Trigger != "alert" {
		t.Fatalf("expected normalized trigger, got %s", info.Trigger)
	}
	if info.Provider != "generic" {
		t.Fatalf("expected generic provider, got %s", info.Provider)
	}
}
