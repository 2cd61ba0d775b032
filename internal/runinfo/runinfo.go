// Package runinfo describes where and why a collection run happened.
package runinfo

import (
	"os"
	"os/user"
	"runtime"
	"strings"
)

// Environment variables an operator can set to label a run.
const (
	EnvLabel    = "MYPERF_RUN_LABEL"
	EnvOperator = "MYPERF_RUN_OPERATOR"
	EnvTrigger  = "MYPERF_RUN_TRIGGER"
)

// Trigger values recorded when no explicit trigger is given.
const (
	TriggerManual     = "manual"
	TriggerCI         = "ci"
	TriggerKubernetes = "kubernetes"
)

// Info captures collector host and scheduling metadata for the run manifest.
type Info struct {
	Hostname  string `json:"hostname,omitempty"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	Operator  string `json:"operator,omitempty"`
	Label     string `json:"label,omitempty"`
	Trigger   string `json:"trigger"`
	Provider  string `json:"provider,omitempty"`
	Namespace string `json:"namespace,omitempty"`
	Pod       string `json:"pod,omitempty"`
	Job       string `json:"job,omitempty"`
	BuildURL  string `json:"build_url,omitempty"`
}

// FromEnv builds run metadata from the process environment. Explicit
// MYPERF_RUN_* values take precedence over detected ones.
func FromEnv() Info {
	info := Info{OS: runtime.GOOS, Arch: runtime.GOARCH}
	if host, err := os.Hostname(); err == nil {
		info.Hostname = host
	}
	if u, err := user.Current(); err == nil {
		info.Operator = u.Username
	}
	detectScheduler(&info)
	applyOverrides(&info)
	if info.Trigger == "" {
		info.Trigger = TriggerManual
	}
	return info
}

func detectScheduler(info *Info) {
	if env("KUBERNETES_SERVICE_HOST") != "" {
		info.Trigger = TriggerKubernetes
		info.Provider = "kubernetes"
		info.Namespace = envFirst("POD_NAMESPACE", "NAMESPACE")
		info.Pod = envFirst("POD_NAME", "HOSTNAME")
		info.Job = env("JOB_NAME")
		return
	}
	switch {
	case isTruthy(env("GITHUB_ACTIONS")):
		info.Provider = "github_actions"
		info.Job = env("GITHUB_JOB")
		if repo, run := env("GITHUB_REPOSITORY"), env("GITHUB_RUN_ID"); repo != "" && run != "" {
			server := env("GITHUB_SERVER_URL")
			if server == "" {
				server = "https://github.com"
			}
			info.BuildURL = strings.TrimRight(server, "/") + "/" + repo + "/actions/runs/" + run
		}
	case isTruthy(env("GITLAB_CI")):
		info.Provider = "gitlab_ci"
		info.Job = env("CI_JOB_NAME")
		info.BuildURL = env("CI_JOB_URL")
	case env("JENKINS_URL") != "":
		info.Provider = "jenkins"
		info.Job = env("JOB_NAME")
		info.BuildURL = env("BUILD_URL")
	case isTruthy(env("CI")):
		info.Provider = "generic"
	default:
		return
	}
	info.Trigger = TriggerCI
}

func applyOverrides(info *Info) {
	setFromEnv(&info.Label, EnvLabel)
	setFromEnv(&info.Operator, EnvOperator)
	setFromEnv(&info.Trigger, EnvTrigger)
	info.Trigger = strings.ToLower(info.Trigger)
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envFirst(keys ...string) string {
	for _, key := range keys {
		if value := env(key); value != "" {
			return value
		}
	}
	return ""
}

func setFromEnv(dst *string, key string) {
	if value := env(key); value != "" {
		*dst = value
	}
}

func isTruthy(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
