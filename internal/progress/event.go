package progress

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageGenerationStart  Stage = "GENERATION_START"
	StageHTMLStored       Stage = "HTML_STORED"
	StageGenerationError  Stage = "GENERATION_ERROR"
	StageScreenshotStored Stage = "SCREENSHOT_STORED"
	StageScreenshotError  Stage = "SCREENSHOT_ERROR"
)

// Failed reports whether the stage marks a failure.
func (s Stage) Failed() bool {
	return s == StageGenerationError || s == StageScreenshotError
}

// Event captures one pipeline milestone for a site.
type Event struct {
	// SiteID identifies the site being generated.
	SiteID int64 `json:"site_id"`
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time `json:"ts"`
	// Stage names the milestone.
	Stage Stage `json:"stage"`
	// Key is the storage key written by a *_STORED stage.
	Key string `json:"key,omitempty"`
	// Bytes is the size of the stored object.
	Bytes int64 `json:"bytes,omitempty"`
	// Digest is the hex SHA-256 of the stored object.
	Digest string `json:"digest,omitempty"`
	// Dur is the time spent on the step that finished.
	Dur time.Duration `json:"dur_ns,omitempty"`
	// Note carries error text for failure stages.
	Note string `json:"note,omitempty"`
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.SiteID <= 0 {
		return errors.New("site id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageGenerationStart:
	case StageHTMLStored, StageScreenshotStored:
		if e.Key == "" {
			return fmt.Errorf("%s requires key", e.Stage)
		}
	case StageGenerationError, StageScreenshotError:
		if e.Note == "" {
			return fmt.Errorf("%s requires note", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// Attributes returns routing attributes for message brokers.
func (e Event) Attributes() map[string]string {
	return map[string]string{
		"site_id": strconv.FormatInt(e.SiteID, 10),
		"stage":   string(e.Stage),
	}
}
