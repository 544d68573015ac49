// Package clef formats and parses compact log event format (CLEF) payloads:
// one JSON object per event with reserved "@"-prefixed fields.
package clef

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bft-labs/logship/internal/domain"
)

// Record is a structured event before formatting.
type Record struct {
	Timestamp       time.Time
	Level           domain.Level
	MessageTemplate string
	Message         string
	Exception       string
	Properties      map[string]any
}

// Formatter renders a record as a single payload fragment without a
// trailing newline.
type Formatter interface {
	Format(r Record) ([]byte, error)
}

// CompactFormatter writes records in CLEF. The level is omitted for
// Information, which is the format's default.
type CompactFormatter struct{}

// Format implements Formatter.
func (CompactFormatter) Format(r Record) ([]byte, error) {
	buf := make([]byte, 0, 256)

	buf = append(buf, `{"@t":`...)
	buf = appendString(buf, r.Timestamp.Format(time.RFC3339Nano))

	if r.MessageTemplate != "" || r.Message == "" {
		buf = append(buf, `,"@mt":`...)
		buf = appendString(buf, r.MessageTemplate)
	}
	if r.Message != "" {
		buf = append(buf, `,"@m":`...)
		buf = appendString(buf, r.Message)
	}
	if r.Level != domain.LevelInformation {
		buf = append(buf, `,"@l":`...)
		buf = appendString(buf, r.Level.String())
	}
	if r.Exception != "" {
		buf = append(buf, `,"@x":`...)
		buf = appendString(buf, r.Exception)
	}

	keys := make([]string, 0, len(r.Properties))
	for k := range r.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, err := json.Marshal(r.Properties[k])
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", k, err)
		}
		name := k
		if strings.HasPrefix(name, "@") {
			name = "@" + name
		}
		buf = append(buf, ',')
		buf = appendString(buf, name)
		buf = append(buf, ':')
		buf = append(buf, v...)
	}

	buf = append(buf, '}')
	return buf, nil
}

func appendString(buf []byte, s string) []byte {
	b, _ := json.Marshal(s)
	return append(buf, b...)
}

// Event formats r with f into a pipeline event.
func Event(f Formatter, r Record) (domain.Event, error) {
	payload, err := f.Format(r)
	if err != nil {
		return domain.Event{}, err
	}
	return domain.Event{Payload: payload, Level: r.Level}, nil
}

// reserved holds the CLEF fields ParseLine inspects.
type reserved struct {
	Timestamp *string `json:"@t"`
	Level     *string `json:"@l"`
}

// ParseLine turns one line of input into an event. JSON objects are kept
// verbatim, with the level read from "@l" and "@t" added when missing.
// Any other text becomes the message of a new event at defaultLevel.
func ParseLine(line []byte, defaultLevel domain.Level, now time.Time) (domain.Event, error) {
	text := strings.TrimSpace(string(line))
	if text == "" {
		return domain.Event{}, fmt.Errorf("empty line")
	}

	if strings.HasPrefix(text, "{") {
		var fields reserved
		if err := json.Unmarshal([]byte(text), &fields); err == nil {
			level := domain.LevelInformation
			if fields.Level != nil {
				if level, err = domain.ParseLevel(*fields.Level); err != nil {
					return domain.Event{}, err
				}
			}
			if fields.Timestamp == nil {
				ts := appendString([]byte(`{"@t":`), now.Format(time.RFC3339Nano))
				rest := strings.TrimSpace(text[1:])
				if rest != "}" {
					ts = append(ts, ',')
				}
				text = string(ts) + rest
			}
			return domain.Event{Payload: []byte(text), Level: level}, nil
		}
	}

	return Event(CompactFormatter{}, Record{
		Timestamp: now,
		Level:     defaultLevel,
		Message:   text,
	})
}
