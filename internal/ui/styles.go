package ui

import (
	"fmt"

	"github.com/nardoguy14/pr-helper/internal/model"
)

// ANSI256 color codes.
const (
	colorAccent  = 74  // blue
	colorMuted   = 245 // medium gray
	colorGood    = 114 // green
	colorWarn    = 214 // orange
	colorDanger  = 203 // red
	colorNeutral = 250 // light gray
)

var noColor bool

// statusColors maps each derived item status to its display color.
var statusColors = map[model.ItemStatus]int{
	model.StatusOpen:              colorNeutral,
	model.StatusNeedsReview:       colorWarn,
	model.StatusReviewed:          colorAccent,
	model.StatusWaitingForChanges: colorDanger,
	model.StatusReadyToMerge:      colorGood,
}

func colorize(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderStatus returns the item status in its display color.
func RenderStatus(status model.ItemStatus) string {
	code, ok := statusColors[status]
	if !ok {
		code = colorNeutral
	}
	return colorize(code, string(status))
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string {
	return colorize(colorAccent, s)
}

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string {
	return colorize(colorMuted, s)
}

// RenderRelevance marks items assigned to the user or awaiting their review.
func RenderRelevance(it *model.ReviewItem) string {
	switch {
	case it.UserIsAssignee:
		return colorize(colorWarn, "assigned")
	case it.UserIsRequestedReviewer:
		return colorize(colorAccent, "review requested")
	case it.UserHasReviewed:
		return colorize(colorMuted, "reviewed")
	}
	return ""
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
