package syncer

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/authconnector/internal/models"
)

// ErrInterrupted marks a run stopped by its context before completion.
var ErrInterrupted = errors.New("sync interrupted")

// Failure is a record that could not be applied.
type Failure struct {
	Email  string
	Action models.Action
	Err    error
}

// Result summarizes a run. When Partial is set the run was cut short and
// the counters only cover the work done before that.
type Result struct {
	RunID       string
	Remote      models.Stats
	Local       models.Stats
	Requests    int
	Differences int
	Partial     bool
	Failures    []Failure
	Duration    time.Duration
}
