package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dyluth/collab/internal/printer"
	"github.com/dyluth/collab/internal/protocol"
	"github.com/dyluth/collab/internal/resolver"
	"github.com/dyluth/collab/internal/watch"
	"github.com/dyluth/collab/pkg/bus"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [OBJECT_ID]",
	Short: "Inspect objects on the session bus",
	Long: `Inspect the coordinator and participant objects of a session.

List Mode (no OBJECT_ID):
  Displays every registered object with a one-line summary.

Get Mode (with OBJECT_ID):
  Displays the decoded attributes of one object as pretty-printed JSON.
  Supports short IDs as printed by 'collab watch' (e.g. "3f2a9c1b").

Examples:
  collab inspect
  collab inspect 3f2a9c1b`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	client, err := connect(ctx, cfg, newLogger(cfg))
	if err != nil {
		return err
	}
	defer client.Close()

	if len(args) == 0 {
		return listObjects(ctx, client)
	}
	return showObject(ctx, client, args[0])
}

func listObjects(ctx context.Context, client *bus.Client) error {
	objects, err := client.Objects(ctx)
	if err != nil {
		return err
	}
	if len(objects) == 0 {
		printer.Info("No objects in session '%s'\n", client.SessionName())
		return nil
	}

	ids := make([]string, 0, len(objects))
	for id := range objects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if objects[ids[i]] != objects[ids[j]] {
			return objects[ids[i]] < objects[ids[j]]
		}
		return ids[i] < ids[j]
	})

	printer.Printf("%-12s %-38s %s\n", "TYPE", "ID", "STATE")
	for _, id := range ids {
		typ := objects[id]
		attrs, err := client.Attributes(ctx, id)
		if err != nil {
			printer.Printf("%-12s %-38s %v\n", typ, id, err)
			continue
		}
		printer.Printf("%-12s %-38s %s\n", typ, id, summarizeObject(typ, attrs))
	}
	return nil
}

// summarizeObject renders the key attributes of an object on one line.
func summarizeObject(typ bus.ObjectType, attrs bus.Attributes) string {
	switch typ {
	case protocol.ObjectCoordinator:
		u, err := protocol.DecodeCoordinatorUpdate(attrs)
		if err != nil {
			return fmt.Sprintf("malformed: %v", err)
		}
		model, _ := u.ActiveModel.Get()
		return fmt.Sprintf("model=%q", model)
	case protocol.ObjectParticipant:
		u, err := protocol.DecodeParticipantUpdate(attrs)
		if err != nil {
			return fmt.Sprintf("malformed: %v", err)
		}
		index, ok := u.Index.Get()
		if !ok {
			return "unclaimed"
		}
		ready, _ := u.Ready.Get()
		return fmt.Sprintf("index=%d ready=%t", index, ready)
	}
	return fmt.Sprintf("%d attribute(s)", len(attrs))
}

func showObject(ctx context.Context, client *bus.Client, shortID string) error {
	id, typ, err := resolver.ResolveObjectID(ctx, client, shortID)
	if err != nil {
		if ambiguous, ok := err.(*resolver.AmbiguousError); ok {
			return printer.Error("ambiguous object ID", resolver.FormatAmbiguousError(ambiguous), nil)
		}
		if resolver.IsNotFoundError(err) {
			return printer.Error("object not found", err.Error(), []string{"List objects with:\n  collab inspect"})
		}
		return err
	}

	attrs, err := client.Attributes(ctx, id)
	if err != nil {
		return err
	}
	decoded, derr := watch.Describe(typ, attrs)

	doc := map[string]any{
		"id":         id,
		"type":       typ,
		"attributes": decoded,
	}
	if derr != nil {
		doc["error"] = derr.Error()
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode object: %w", err)
	}
	printer.Println(string(data))
	return nil
}
