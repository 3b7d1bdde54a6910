// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package printjob turns broker messages into print jobs.
package printjob

import (
	"log/slog"
	"time"

	"github.com/z5labs/printq/broker"

	"github.com/google/uuid"
)

// Message properties carrying the job metadata.
const (
	JobNameProperty  = "JobName"
	FileNameProperty = "FileName"
)

// Job is a single document to back up and print.
//
// An empty JobName or FileName means the property was absent.
type Job struct {
	ID        uuid.UUID
	MessageID string
	Source    string
	Payload   []byte
	JobName   string
	FileName  string
	ArrivedAt time.Time
}

// LogValue implements the [slog.LogValuer] interface.
func (j Job) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", j.ID.String()),
		slog.String("message_id", j.MessageID),
		slog.String("job_name", j.JobName),
		slog.String("file_name", j.FileName),
		slog.Int("size", len(j.Payload)),
	)
}

// Decode builds a [Job] from a binary message. Any other kind of message
// reports false and should be discarded by the caller.
func Decode(msg broker.Message, now time.Time) (Job, bool) {
	if msg.Kind != broker.KindBytes {
		return Job{}, false
	}

	return Job{
		ID:        uuid.New(),
		MessageID: msg.ID,
		Source:    msg.Destination,
		Payload:   msg.Body,
		JobName:   msg.Property(JobNameProperty),
		FileName:  msg.Property(FileNameProperty),
		ArrivedAt: now,
	}, true
}
