package docker

import (
	"fmt"

	"github.com/google/uuid"
)

// Label keys used for collab resources
const (
	LabelProject   = "collab.project"
	LabelSession   = "collab.session"
	LabelRunID     = "collab.run_id"
	LabelComponent = "collab.component"
	LabelRedisPort = "collab.redis.port"
)

// ComponentRedis is the component label of the bus container.
const ComponentRedis = "redis"

// BuildLabels creates the standard label set for collab resources.
// component may be empty.
func BuildLabels(session, runID, component string) map[string]string {
	labels := map[string]string{
		LabelProject: "true",
		LabelSession: session,
		LabelRunID:   runID,
	}

	if component != "" {
		labels[LabelComponent] = component
	}

	return labels
}

// GenerateRunID creates a new UUID for a bus run.
// Each invocation of `collab up` gets a unique run ID.
func GenerateRunID() string {
	return uuid.New().String()
}

// RedisContainerName returns the Redis container name for a session
func RedisContainerName(session string) string {
	return fmt.Sprintf("collab-redis-%s", session)
}

// SessionFilter returns the label filter value selecting a session's resources.
func SessionFilter(session string) string {
	return fmt.Sprintf("%s=%s", LabelSession, session)
}
