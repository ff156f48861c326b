// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logpipe

import (
	"github.com/strider-robotics/strider/lib/logserver"
)

// Service is a connection to the log service.
type Service interface {
	// Query reports whether the service is ready to accept tasks.
	Query() bool

	NewTask() (Task, error)
	Close() error
}

// Task is one logging session on the service.
type Task interface {
	AddVar(name string) error
	VarList() []string

	// StartLog begins sampling every period control cycles. A positive
	// limit ends the task after that many samples.
	StartLog(period, limit int) error

	// GetData returns the next queued sample of channel, or nil.
	GetData(channel int) *logserver.Sample

	// IsDone reports whether the task has ended and every sample has
	// been collected.
	IsDone() bool

	AbortLog()
}

// Connect adapts a log server client to Service.
func Connect(client *logserver.Client) Service {
	return clientService{client}
}

type clientService struct {
	client *logserver.Client
}

func (s clientService) Query() bool  { return s.client.Query() }
func (s clientService) Close() error { return s.client.Close() }

func (s clientService) NewTask() (Task, error) {
	task, err := s.client.NewTask()
	if err != nil {
		return nil, err
	}
	return task, nil
}
