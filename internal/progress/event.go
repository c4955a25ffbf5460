package progress

import (
	"encoding/json"
	"fmt"
)

// Discriminates the variants of [Event].
type Kind string

const (
	KindPercent Kind = "percent" // Percentage-complete update for the current stage.
	KindLog     Kind = "log"     // One line of human-readable output.
	KindSuccess Kind = "success" // Terminal: the image was produced.
	KindFailure Kind = "failure" // Terminal: the build stopped at Stage.
)

// One entry in the ordered stream a build emits.
//
// Only the fields belonging to Kind are populated. A stream carries zero or
// more percent and log events followed by exactly one success or failure
// event, after which nothing else is emitted.
type Event struct {
	Kind      Kind    `json:"kind"`
	Stage     string  `json:"stage,omitempty"`     // Stage that emitted the event.
	Percent   float64 `json:"percent,omitempty"`   // 0-100, for KindPercent.
	Text      string  `json:"text,omitempty"`      // For KindLog.
	ImagePath string  `json:"imagePath,omitempty"` // For KindSuccess.
	ImageName string  `json:"imageName,omitempty"` // For KindSuccess.
	Message   string  `json:"message,omitempty"`   // For KindFailure.
}

// Creates a percent event, clamping p to 0-100.
func Percent(stage string, p float64) Event {
	switch {
	case p < 0:
		p = 0
	case p > 100:
		p = 100
	}
	return Event{Kind: KindPercent, Stage: stage, Percent: p}
}

// Creates a log event.
func Log(stage, text string) Event {
	return Event{Kind: KindLog, Stage: stage, Text: text}
}

// Creates the terminal success event.
func Success(imagePath, imageName string) Event {
	return Event{Kind: KindSuccess, ImagePath: imagePath, ImageName: imageName}
}

// Creates the terminal failure event.
func Failure(stage, message string) Event {
	return Event{Kind: KindFailure, Stage: stage, Message: message}
}

// Returns true for success and failure events.
func (e Event) Terminal() bool {
	return e.Kind == KindSuccess || e.Kind == KindFailure
}

// Returns a single-line rendering, used by plain-text consumers.
func (e Event) String() string {
	switch e.Kind {
	case KindPercent:
		return fmt.Sprintf("[%s] %.0f%%", e.Stage, e.Percent)
	case KindLog:
		return fmt.Sprintf("[%s] %s", e.Stage, e.Text)
	case KindSuccess:
		return fmt.Sprintf("image ready: %s", e.ImagePath)
	case KindFailure:
		return fmt.Sprintf("build failed at %s: %s", e.Stage, e.Message)
	default:
		return string(e.Kind)
	}
}

// Encodes the event. Percent events always carry the percent field, even
// at 0.
func (e Event) MarshalJSON() ([]byte, error) {
	type plain Event
	if e.Kind != KindPercent {
		return json.Marshal(plain(e))
	}
	return json.Marshal(struct {
		plain
		Percent float64 `json:"percent"`
	}{plain(e), e.Percent})
}

// Validates the discriminator when decoding an event from the wire.
func (e *Event) UnmarshalJSON(data []byte) error {
	type plain Event
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	switch p.Kind {
	case KindPercent, KindLog, KindSuccess, KindFailure:
	default:
		return fmt.Errorf("unknown event kind %q", p.Kind)
	}
	*e = Event(p)
	return nil
}
