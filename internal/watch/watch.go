// Package watch streams bus activity for operators.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dyluth/collab/internal/model"
	"github.com/dyluth/collab/internal/protocol"
	"github.com/dyluth/collab/pkg/bus"
	"github.com/fatih/color"
)

// OutputFormat selects how events are written.
type OutputFormat string

const (
	// OutputFormatDefault is human-readable, one line per event.
	OutputFormatDefault OutputFormat = "default"
	// OutputFormatJSON is line-delimited JSON.
	OutputFormatJSON OutputFormat = "json"
)

// ParseOutputFormat validates a format name.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputFormatDefault, OutputFormatJSON:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("unknown format: %s", s)
	}
}

// Record is the JSON form of one bus event.
type Record struct {
	Time       time.Time      `json:"time"`
	Kind       bus.EventKind  `json:"kind"`
	ObjectID   string         `json:"object_id"`
	ObjectType bus.ObjectType `json:"object_type"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Formatter writes events in one output format.
type Formatter struct {
	format OutputFormat
	w      io.Writer
	now    func() time.Time
}

// NewFormatter creates a formatter writing to w.
func NewFormatter(format OutputFormat, w io.Writer) *Formatter {
	return &Formatter{format: format, w: w, now: time.Now}
}

// Write formats one event.
func (f *Formatter) Write(ev *bus.Event) error {
	rec := Record{
		Time:       f.now(),
		Kind:       ev.Kind,
		ObjectID:   ev.ObjectID,
		ObjectType: ev.ObjectType,
	}
	if len(ev.Attributes) > 0 {
		attrs, err := Describe(ev.ObjectType, ev.Attributes)
		rec.Attributes = attrs
		if err != nil {
			rec.Error = err.Error()
		}
	}

	if f.format == OutputFormatJSON {
		return json.NewEncoder(f.w).Encode(rec)
	}
	_, err := fmt.Fprintln(f.w, formatLine(rec))
	return err
}

var kindColor = map[bus.EventKind]*color.Color{
	bus.EventDiscover: color.New(color.FgGreen),
	bus.EventUpdate:   color.New(color.FgCyan),
	bus.EventRemove:   color.New(color.FgYellow),
}

func formatLine(rec Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] ", rec.Time.Format("15:04:05"))
	kind := string(rec.Kind)
	if c, ok := kindColor[rec.Kind]; ok {
		kind = c.Sprintf("%-8s", kind)
	}
	fmt.Fprintf(&b, "%s %s %s", kind, rec.ObjectType, shortID(rec.ObjectID))

	for _, name := range sortedKeys(rec.Attributes) {
		fmt.Fprintf(&b, " %s=%s", name, formatValue(rec.Attributes[name]))
	}
	if rec.Error != "" {
		fmt.Fprintf(&b, " error=%q", rec.Error)
	}
	return b.String()
}

func formatValue(v any) string {
	switch v := v.(type) {
	case []float64:
		return model.FormatVector(v, 3)
	case string:
		return fmt.Sprintf("%q", v)
	case []string:
		return fmt.Sprintf("%q", v)
	default:
		return fmt.Sprint(v)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Describe decodes the attributes of a coordinator or participant object.
// Unknown names are reported by size. On a decode error the raw sizes are
// returned with the error.
func Describe(objectType bus.ObjectType, attrs bus.Attributes) (map[string]any, error) {
	out := make(map[string]any, len(attrs))
	for name, raw := range attrs {
		out[name] = fmt.Sprintf("<%d bytes>", len(raw))
	}

	switch objectType {
	case protocol.ObjectCoordinator:
		u, err := protocol.DecodeCoordinatorUpdate(attrs)
		if err != nil {
			return out, err
		}
		setOpt(out, protocol.AttrActiveModel, u.ActiveModel)
		setOpt(out, protocol.AttrInitialInput, u.InitialInput)
		setOpt(out, protocol.AttrTargetOutput, u.TargetOutput)
		setOpt(out, protocol.AttrOutput, u.Output)
		setOpt(out, protocol.AttrInputIndices, u.InputIndices)
		setOpt(out, protocol.AttrOutputIndices, u.OutputIndices)
		setOpt(out, protocol.AttrInputLabels, u.InputLabels)
		setOpt(out, protocol.AttrOutputLabels, u.OutputLabels)
	case protocol.ObjectParticipant:
		u, err := protocol.DecodeParticipantUpdate(attrs)
		if err != nil {
			return out, err
		}
		setOpt(out, protocol.AttrIndex, u.Index)
		setOpt(out, protocol.AttrInput, u.Input)
		setOpt(out, protocol.AttrReady, u.Ready)
	}
	return out, nil
}

func setOpt[T any](out map[string]any, name string, o protocol.Opt[T]) {
	if v, ok := o.Get(); ok {
		out[name] = v
	}
}

// StreamActivity writes every bus event of the session to w until ctx is
// cancelled.
func StreamActivity(ctx context.Context, client *bus.Client, format OutputFormat, w io.Writer) error {
	sub, err := client.Watch(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	f := NewFormatter(format, w)
	errs := sub.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if err := f.Write(ev); err != nil {
				return fmt.Errorf("failed to write event: %w", err)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if format == OutputFormatDefault {
				fmt.Fprintf(w, "⚠️  skipped malformed message: %v\n", err)
			}
		}
	}
}

// PollForObject polls until an object of the given type is registered on
// the bus and returns its ID. Polls every 200ms for the specified timeout.
func PollForObject(ctx context.Context, client *bus.Client, objectType bus.ObjectType, timeout time.Duration) (string, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	timeoutCh := time.After(timeout)

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		objects, err := client.Objects(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to list objects: %w", err)
		}
		for id, t := range objects {
			if t == objectType {
				return id, nil
			}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timeoutCh:
			return "", fmt.Errorf("timeout waiting for %s after %v", objectType, timeout)
		case <-ticker.C:
		}
	}
}
