package instance

import (
	"os"
	"strconv"
)

// idEnv is checked before K_REVISION, which Cloud Run sets per revision.
var idEnv = []string{"COMPONENTRY_WORKER_ID", "K_REVISION"}

// GetID names this process in lock holder tokens. Without an explicit id it
// uses the hostname, and as a last resort the pid.
func GetID() string {
	for _, key := range idEnv {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "pid-" + strconv.Itoa(os.Getpid())
}
