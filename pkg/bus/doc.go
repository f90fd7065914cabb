// Package bus implements an attribute-based shared-state bus on Redis.
//
// # Overview
//
// Processes join a named session as objects of a type ("Coordinator",
// "Participant"). Each object publishes named attributes whose values are
// opaque byte strings, and subscribes to the attributes of other object
// types. Remote objects are reported to a Handler through three callbacks:
// Discover when an object of a subscribed type appears, Reflect when it
// pushes subscribed attributes, and Remove when it leaves.
//
// # Redis Schema
//
// Object registry: collab:{session}:objects (hash object_id -> object_type)
// Object state: collab:{session}:object:{object_id} (hash attribute -> bytes)
// Events: collab:{session}:object_events (Pub/Sub, JSON Event)
//
// A push writes the object's hash and publishes an update event in one
// MULTI/EXEC transaction, so a late joiner can pull the last pushed values
// with RequestUpdate instead of waiting for the next push.
//
// # Delivery
//
// Pub/Sub is at-most-once and no ordering is promised between distinct
// pushes. Discovery of objects that registered before a session started
// is replayed from the registry, and an update from an object not yet
// discovered triggers its discovery first. Handlers should tolerate
// repeated and missing updates.
//
// # Usage Example
//
//	client, err := bus.NewClient(&redis.Options{Addr: "localhost:6379"}, "pilot")
//	sess, err := client.Join(ctx, "Participant")
//	sess.Publish("Input", "Index", "Ready")
//	sess.Subscribe("Coordinator", "Output", "ActiveModel")
//	sess.Start(ctx, handler)
//	sess.Push(ctx, bus.Attributes{"Index": codec.EncodeInt32(0)})
//	defer sess.Leave(context.Background())
package bus
