// Package directions turns route maneuvers into the icons, instruction
// text and proximity callouts presented to the driver.
package directions

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"driver-nav-service/internal/domain"
)

// CalloutThresholds are the distances (m) before a maneuver at which an
// approach callout is spoken, largest first.
var CalloutThresholds = []int{1000, 500, 200, 50}

// CalloutBand is the tolerance (m) around each threshold.
const CalloutBand = 10.0

var modifierText = map[string]string{
	"left":         "left",
	"right":        "right",
	"sharp left":   "sharp left",
	"sharp right":  "sharp right",
	"slight left":  "slight left",
	"slight right": "slight right",
	"straight":     "straight",
	"uturn":        "U-turn",
}

var maneuverIcon = map[string]string{
	"turn-left":         "↰",
	"turn-right":        "↱",
	"turn-sharp-left":   "⤺",
	"turn-sharp-right":  "⤻",
	"turn-slight-left":  "↖",
	"turn-slight-right": "↗",
	"turn-straight":     "↑",
	"turn-uturn":        "↩",
	"depart":            "▶",
	"arrive":            "◉",
	"merge":             "⤵",
	"fork":              "⑂",
	"roundabout":        "↻",
	"continue":          "↑",
	"new name":          "↑",
	"on ramp":           "↗",
	"off ramp":          "↘",
	"end of road":       "↰",
}

const defaultIcon = "↑"

// ManeuverIcon returns the glyph for a maneuver. A modifier-specific glyph
// wins over the type glyph; unknown maneuvers get the "continue" arrow.
func ManeuverIcon(maneuverType, modifier string) string {
	if modifier != "" {
		// OSRM modifiers are space separated ("sharp right").
		if icon, ok := maneuverIcon[maneuverType+"-"+strings.ReplaceAll(modifier, " ", "-")]; ok {
			return icon
		}
	}
	if icon, ok := maneuverIcon[maneuverType]; ok {
		return icon
	}
	return defaultIcon
}

// DirectionText renders the spoken/displayed instruction for a step.
func DirectionText(step domain.Step) string {
	street := ""
	if step.Name != "" {
		street = " onto " + step.Name
	}
	dir := modifierText[step.Modifier]

	or := func(s, fallback string) string {
		if s == "" {
			return fallback
		}
		return s
	}

	switch step.Instruction {
	case "depart":
		return "Head " + or(dir, "forward") + street
	case "arrive":
		return "You have arrived at your destination"
	case "turn":
		return joinWords("Turn", dir) + street
	case "merge":
		return joinWords("Merge", dir) + street
	case "fork":
		return "Take the " + or(dir, "fork") + street
	case "roundabout", "rotary":
		return "Enter the roundabout and take the exit" + street
	case "end of road":
		return "At the end of the road, turn " + or(dir, "left") + street
	case "continue":
		return joinWords("Continue", dir) + street
	case "new name":
		return "Continue" + street
	case "on ramp":
		return "Take the ramp" + street
	case "off ramp":
		return "Take the exit" + street
	default:
		return "Continue" + street
	}
}

func joinWords(verb, dir string) string {
	if dir == "" {
		return verb
	}
	return verb + " " + dir
}

// Callout is an approach announcement for the upcoming maneuver.
type Callout struct {
	Text      string
	Threshold int
}

// ApproachCallout returns the callout for a step when distance lies within
// CalloutBand of one of the CalloutThresholds.
func ApproachCallout(step domain.Step, distance float64) (Callout, bool) {
	for _, th := range CalloutThresholds {
		t := float64(th)
		if distance > t+CalloutBand || distance < t-CalloutBand {
			continue
		}

		var prefix string
		if th >= 1000 {
			prefix = fmt.Sprintf("In %d kilometer", th/1000)
		} else {
			prefix = fmt.Sprintf("In %d meters", th)
		}
		return Callout{
			Text:      prefix + ", " + lowerFirst(DirectionText(step)),
			Threshold: th,
		}, true
	}
	return Callout{}, false
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	var b strings.Builder
	b.WriteRune(unicode.ToLower(r))
	b.WriteString(s[size:])
	return b.String()
}
