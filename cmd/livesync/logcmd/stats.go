package logcmd

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/sensorwatch/livesync/pkg/log"
)

// Stats holds aggregate statistics about a capture file.
type Stats struct {
	TotalEvents      int
	EventsByLayer    map[log.Layer]int
	EventsByCategory map[log.Category]int
	EventsByType     map[string]int
	ErrorsByKind     map[log.ErrorKind]int
	Connections      map[string]*ConnectionStats
	Start, End       time.Time
}

// ConnectionStats holds statistics for one connection attempt.
type ConnectionStats struct {
	Transport string
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Frames    int
}

// Collect reads path and aggregates its events.
func Collect(path string) (*Stats, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByLayer:    make(map[log.Layer]int),
		EventsByCategory: make(map[log.Category]int),
		EventsByType:     make(map[string]int),
		ErrorsByKind:     make(map[log.ErrorKind]int),
		Connections:      make(map[string]*ConnectionStats),
	}
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	if s.Start.IsZero() || event.Timestamp.Before(s.Start) {
		s.Start = event.Timestamp
	}
	if event.Timestamp.After(s.End) {
		s.End = event.Timestamp
	}
	if event.Envelope != nil {
		s.EventsByType[event.Envelope.Type]++
	}
	if event.Error != nil {
		s.ErrorsByKind[event.Error.Kind]++
	}

	if event.ConnectionID == "" {
		return
	}
	conn, ok := s.Connections[event.ConnectionID]
	if !ok {
		conn = &ConnectionStats{Transport: event.Transport, FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
		s.Connections[event.ConnectionID] = conn
	}
	conn.Events++
	if event.Frame != nil {
		conn.Frames++
	}
	if event.Timestamp.After(conn.LastSeen) {
		conn.LastSeen = event.Timestamp
	}
}

// RunStats prints statistics for path to w.
func RunStats(path string, w io.Writer) error {
	stats, err := Collect(path)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== livesync Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n", stats.Start.Format(time.RFC3339), stats.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.End.Sub(stats.Start).Round(time.Second))
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerEnvelope, log.LayerSession} {
		if n := stats.EventsByLayer[layer]; n > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", layer.String()+":", n)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryControl, log.CategoryState, log.CategoryError} {
		if n := stats.EventsByCategory[cat]; n > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", cat.String()+":", n)
		}
	}

	if len(stats.EventsByType) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Events by Type:")
		types := make([]string, 0, len(stats.EventsByType))
		for t := range stats.EventsByType {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Fprintf(w, "  %-20s %d\n", t+":", stats.EventsByType[t])
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Connections: %d\n", len(stats.Connections))
	ids := make([]string, 0, len(stats.Connections))
	for id := range stats.Connections {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return stats.Connections[ids[i]].FirstSeen.Before(stats.Connections[ids[j]].FirstSeen)
	})
	for _, id := range ids {
		c := stats.Connections[id]
		fmt.Fprintf(w, "  [%s] %s: %d events, %d frames, duration %s\n",
			shortenConnID(id), c.Transport, c.Events, c.Frames, c.LastSeen.Sub(c.FirstSeen).Round(time.Millisecond))
	}

	if len(stats.ErrorsByKind) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Errors:")
		for _, kind := range []log.ErrorKind{log.ErrorTransport, log.ErrorNotAuthenticated, log.ErrorHandler, log.ErrorProtocol, log.ErrorServer} {
			if n := stats.ErrorsByKind[kind]; n > 0 {
				fmt.Fprintf(w, "  %-18s %d\n", kind.String()+":", n)
			}
		}
	}
}
