package templates

import "time"

func ms(v ...int) []time.Duration {
	out := make([]time.Duration, len(v))
	for i, n := range v {
		out[i] = time.Duration(n) * time.Millisecond
	}
	return out
}

func builtin() map[Type]Template {
	return map[Type]Template{
		PartnerJoined: {
			Title: "Partner joined", Message: "{name} joined the room", Icon: "👋",
			Level: LevelToast, Priority: PriorityNormal, Duration: 3 * time.Second,
			Animation: AnimationSlide, SoundID: "join", Vibration: ms(100),
		},
		PartnerLeft: {
			Title: "Partner left", Message: "{name} left the room", Icon: "🚪",
			Level: LevelToast, Priority: PriorityLow, Duration: 3 * time.Second,
			Animation: AnimationFade,
		},
		RoomCreated: {
			Title: "Room created", Message: "Share code {code} with your partner", Icon: "🏠",
			Level: LevelPopup, Priority: PriorityNormal, Duration: 8 * time.Second,
			Animation: AnimationZoom, SoundID: "success",
			Actions: []Action{{ID: "copy", Label: "Copy code", Primary: true, CloseOnClick: boolp(false)}, {ID: "dismiss", Label: "OK"}},
		},
		RoomFull: {
			Title: "Room full", Message: "This room already has two members", Icon: "⛔",
			Level: LevelBanner, Priority: PriorityHigh, Duration: 5 * time.Second,
			Animation: AnimationSlide, SoundID: "warning", Vibration: ms(200, 100, 200),
		},
		RoomClosed: {
			Title: "Room closed", Message: "The room was closed by its owner", Icon: "🔒",
			Level: LevelModal, Priority: PriorityHigh, Duration: 0,
			Animation: AnimationFade, SoundID: "warning",
			Actions: []Action{{ID: "leave", Label: "Back to lobby", Primary: true}},
		},
		PoopAdded: {
			Title: "New record", Message: "{name} logged a new entry", Icon: "💩",
			Level: LevelToast, Priority: PriorityLow, Duration: 2500 * time.Millisecond,
			Animation: AnimationBounce, SoundID: "plop", Vibration: ms(50),
		},
		PoopMilestone: {
			Title: "Milestone reached", Message: "{count} entries logged together!", Icon: "🏅",
			Level: LevelPopup, Priority: PriorityHigh, Duration: 6 * time.Second,
			Animation: AnimationBounce, SoundID: "fanfare", Vibration: ms(100, 50, 100, 50, 300),
			Actions: []Action{{ID: "view", Label: "View stats", Primary: true}},
		},
		AchievementUnlocked: {
			Title: "Achievement unlocked", Message: "You earned {achievement}", Icon: "🏆",
			Level: LevelPopup, Priority: PriorityHigh, Duration: 5 * time.Second,
			Animation: AnimationBounce, SoundID: "achievement", Vibration: ms(100, 50, 100),
			Actions: []Action{{ID: "view", Label: "View", Primary: true}, {ID: "share", Label: "Share", CloseOnClick: boolp(false)}},
		},
		StreakBroken: {
			Title: "Streak broken", Message: "Your {days}-day streak ended", Icon: "💔",
			Level: LevelPopup, Priority: PriorityNormal, Duration: 5 * time.Second,
			Animation: AnimationFade, SoundID: "sad",
		},
		DailyReminder: {
			Title: "Daily reminder", Message: "Don't forget to log today", Icon: "⏰",
			Level: LevelInline, Priority: PriorityLow, Duration: 10 * time.Second,
			Animation: AnimationSlide,
		},
		SyncFailed: {
			Title: "Sync failed", Message: "Changes could not be saved, retrying", Icon: "⚠️",
			Level: LevelBanner, Priority: PriorityHigh, Duration: 0,
			Animation: AnimationSlide, SoundID: "error",
			Actions: []Action{{ID: "retry", Label: "Retry now", Primary: true}},
		},
		NetworkOffline: {
			Title: "Offline", Message: "You are offline; changes will sync later", Icon: "📡",
			Level: LevelBanner, Priority: PriorityCritical, Duration: 0,
			Animation: AnimationSlide, Vibration: ms(300),
		},
		NetworkOnline: {
			Title: "Back online", Message: "Connection restored", Icon: "✅",
			Level: LevelToast, Priority: PriorityNormal, Duration: 2 * time.Second,
			Animation: AnimationFade,
		},
		SettingsSaved: {
			Title: "Saved", Message: "Settings saved", Icon: "💾",
			Level: LevelToast, Priority: PriorityMin, Duration: 1500 * time.Millisecond,
			Animation: AnimationFade,
		},
		GenericError: {
			Title: "Something went wrong", Message: "{error}", Icon: "❌",
			Level: LevelModal, Priority: PriorityCritical, Duration: 0,
			Animation: AnimationZoom, SoundID: "error", Vibration: ms(400),
			Actions: []Action{{ID: "ok", Label: "OK", Primary: true}},
		},
	}
}

func boolp(v bool) *bool { return &v }
