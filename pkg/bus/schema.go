package bus

import "fmt"

// Redis key pattern helpers
//
// All keys and channels are namespaced by session name so that several
// experiment sessions can share one Redis server.
//
// Key pattern: collab:{session}:{entity}
// Channel pattern: collab:{session}:{event_type}_events

// ObjectsKey returns the registry hash mapping object ID to object type.
// Pattern: collab:{session}:objects
func ObjectsKey(session string) string {
	return fmt.Sprintf("collab:%s:objects", session)
}

// ObjectKey returns the hash holding the last pushed attribute values of an object.
// Pattern: collab:{session}:object:{object_id}
func ObjectKey(session, objectID string) string {
	return fmt.Sprintf("collab:%s:object:%s", session, objectID)
}

// ObjectEventsChannel returns the Pub/Sub channel carrying discover, update and remove events.
// Pattern: collab:{session}:object_events
func ObjectEventsChannel(session string) string {
	return fmt.Sprintf("collab:%s:object_events", session)
}
