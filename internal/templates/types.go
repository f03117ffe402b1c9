package templates

import (
	"errors"
	"strings"
	"time"
)

// ErrTemplateNotFound is returned by Lookup for a type with no template.
var ErrTemplateNotFound = errors.New("notification template not found")

// Type identifies a semantic event ("partner joined", "achievement unlocked").
type Type string

const (
	PartnerJoined       Type = "PARTNER_JOINED"
	PartnerLeft         Type = "PARTNER_LEFT"
	RoomCreated         Type = "ROOM_CREATED"
	RoomFull            Type = "ROOM_FULL"
	RoomClosed          Type = "ROOM_CLOSED"
	PoopAdded           Type = "POOP_ADDED"
	PoopMilestone       Type = "POOP_MILESTONE"
	AchievementUnlocked Type = "ACHIEVEMENT_UNLOCKED"
	StreakBroken        Type = "STREAK_BROKEN"
	DailyReminder       Type = "DAILY_REMINDER"
	SyncFailed          Type = "SYNC_FAILED"
	NetworkOffline      Type = "NETWORK_OFFLINE"
	NetworkOnline       Type = "NETWORK_ONLINE"
	SettingsSaved       Type = "SETTINGS_SAVED"
	GenericError        Type = "GENERIC_ERROR"
)

// ParseType normalizes user input ("room_full", " ROOM_FULL ") into a Type.
func ParseType(s string) Type {
	return Type(strings.ToUpper(strings.TrimSpace(s)))
}

// Level is the presentation surface category.
type Level string

const (
	LevelToast  Level = "toast"
	LevelPopup  Level = "popup"
	LevelModal  Level = "modal"
	LevelBanner Level = "banner"
	LevelInline Level = "inline"
)

// Levels lists the closed set of surfaces in a stable order.
var Levels = []Level{LevelToast, LevelPopup, LevelModal, LevelBanner, LevelInline}

func (l Level) Valid() bool {
	switch l {
	case LevelToast, LevelPopup, LevelModal, LevelBanner, LevelInline:
		return true
	}
	return false
}

type Animation string

const (
	AnimationNone   Animation = "none"
	AnimationFade   Animation = "fade"
	AnimationSlide  Animation = "slide"
	AnimationBounce Animation = "bounce"
	AnimationZoom   Animation = "zoom"
)

const (
	PriorityMin      = 1
	PriorityLow      = 2
	PriorityNormal   = 3
	PriorityHigh     = 4
	PriorityCritical = 5
)

// ClampPriority keeps p inside 1..5.
func ClampPriority(p int) int {
	if p < PriorityMin {
		return PriorityMin
	}
	if p > PriorityCritical {
		return PriorityCritical
	}
	return p
}

// Action is a button rendered on surfaces that support actions.
// A nil CloseOnClick means the action dismisses the notification.
type Action struct {
	ID           string `json:"id" yaml:"id"`
	Label        string `json:"label" yaml:"label"`
	Primary      bool   `json:"primary,omitempty" yaml:"primary,omitempty"`
	CloseOnClick *bool  `json:"close_on_click,omitempty" yaml:"close_on_click,omitempty"`
}

// Dismisses reports whether invoking the action ends the notification.
func (a Action) Dismisses() bool {
	return a.CloseOnClick == nil || *a.CloseOnClick
}

// Template holds the per-type presentation defaults.
// A zero Duration means persistent.
type Template struct {
	Title     string
	Message   string
	Icon      string
	Level     Level
	Priority  int
	Duration  time.Duration
	Animation Animation
	SoundID   string
	Vibration []time.Duration
	Actions   []Action
}

func (t Template) clone() Template {
	if t.Vibration != nil {
		t.Vibration = append([]time.Duration(nil), t.Vibration...)
	}
	if t.Actions != nil {
		t.Actions = append([]Action(nil), t.Actions...)
	}
	return t
}

// Expand replaces {key} placeholders in s with vars[key]. Unknown keys stay as-is.
func Expand(s string, vars map[string]string) string {
	if len(vars) == 0 || !strings.Contains(s, "{") {
		return s
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(s)
}
