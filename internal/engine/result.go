// Package engine orchestrates the build pipeline: a strictly sequential
// chain of phases that turns a validated bakefile into a tagged image
// in the local store. The first failing phase aborts the build and no
// partial image is ever tagged.
package engine

import (
	"time"
)

// Status of one build phase.
type Status string

const (
	// StatusDone indicates the phase ran and succeeded
	StatusDone Status = "done"
	// StatusCached indicates the phase's output was reused from cache
	StatusCached Status = "cached"
	// StatusSkipped indicates the phase was disabled by configuration
	StatusSkipped Status = "skipped"
	// StatusFailed indicates the phase failed and aborted the build
	StatusFailed Status = "failed"
)

// BuildResult is the complete record of one build.
type BuildResult struct {
	BuildID   string        `json:"build_id" yaml:"build_id"`
	Ref       string        `json:"ref,omitempty" yaml:"ref,omitempty"`
	Digest    string        `json:"digest,omitempty" yaml:"digest,omitempty"`
	Lockfile  string        `json:"lockfile,omitempty" yaml:"lockfile,omitempty"`
	StartTime time.Time     `json:"start_time" yaml:"start_time"`
	EndTime   time.Time     `json:"end_time" yaml:"end_time"`
	Duration  time.Duration `json:"duration_ms" yaml:"duration_ms"`
	Phases    []PhaseResult `json:"phases" yaml:"phases"`
}

// PhaseResult records one phase of the pipeline.
type PhaseResult struct {
	Name     string        `json:"name" yaml:"name"`
	Status   Status        `json:"status" yaml:"status"`
	Detail   string        `json:"detail,omitempty" yaml:"detail,omitempty"`
	Duration time.Duration `json:"duration_ms" yaml:"duration_ms"`
}

// Failed reports whether any phase failed.
func (r *BuildResult) Failed() bool {
	for _, p := range r.Phases {
		if p.Status == StatusFailed {
			return true
		}
	}
	return false
}
