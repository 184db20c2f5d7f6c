package instance

import "github.com/angelmondragon/settlement-engine/pkg/env"

// ID names the running process in logs. WORKER_ID comes from our deploy
// manifests and wins over the platform DYNO name.
func ID(fallback string) string {
	if id, ok := env.First("WORKER_ID", "DYNO"); ok {
		return id
	}
	return fallback
}
