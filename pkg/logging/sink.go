// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import "sync"

// BufferedSink collects log entries in memory. Tests use it to verify
// warnings and errors a component emitted:
//
//	sink := logging.NewBufferedSink()
//	logger := logging.New(logging.Config{Quiet: true, Sink: sink})
//
//	logger.Warn("volume skipped", "volume_id", 42)
//
//	entries := sink.Entries()
//	assert.Equal(t, "volume skipped", entries[0].Message)
type BufferedSink struct {
	mu      sync.Mutex
	entries []Entry
}

// NewBufferedSink creates an empty BufferedSink.
func NewBufferedSink() *BufferedSink {
	return &BufferedSink{}
}

// Record appends the entry to the buffer.
func (s *BufferedSink) Record(entry Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
}

// Entries returns a copy of all collected entries.
func (s *BufferedSink) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]Entry, len(s.entries))
	copy(result, s.entries)
	return result
}

// AtLevel returns the collected entries at the given level.
func (s *BufferedSink) AtLevel(level Level) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []Entry
	for _, e := range s.entries {
		if e.Level == level {
			result = append(result, e)
		}
	}
	return result
}

var _ Sink = (*BufferedSink)(nil)
