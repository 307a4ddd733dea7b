package main

// Every message on a room channel is JSON tagged by an "action" field.
// Inbound payloads decode into clientAction at the boundary; anything the
// decoder or validators reject never reaches the session.

// clientAction covers all messages coming from clients.
type clientAction struct {
	Action   string        `json:"action"`
	IsReady  *bool         `json:"is_ready,omitempty"`  // set_ready
	PlayerID *int          `json:"player_id,omitempty"` // kick_player
	Settings *GameSettings `json:"settings,omitempty"`  // update_settings
	Text     string        `json:"text,omitempty"`      // guess / chat
	Query    string        `json:"query,omitempty"`     // get_suggestions
}

// GameSettings is the host-adjustable portion of a room's configuration.
type GameSettings struct {
	TotalRounds   int    `json:"total_rounds"`
	MusicDuration int    `json:"music_duration"` // seconds
	GameType      string `json:"game_type"`      // "regular" or "speed"
}

// StateMessage carries a full room snapshot.
type StateMessage struct {
	Action string    `json:"action"` // "update_state"
	State  RoomState `json:"state"`
}

// SignalMessage is an action tag with no payload ("round_start").
type SignalMessage struct {
	Action string `json:"action"`
}

// SettingsMessage confirms a settings change to the whole room.
type SettingsMessage struct {
	Action   string       `json:"action"` // "settings_updated"
	Settings GameSettings `json:"settings"`
}

// RevealMessage ends the guessing window and exposes the answer.
type RevealMessage struct {
	Action        string      `json:"action"` // "round_end"
	CorrectAnswer string      `json:"correct_answer"`
	SongTitle     string      `json:"song_title"`
	AlbumImage    string      `json:"album_image"`
	Scores        map[int]int `json:"scores"`
}

// NotificationMessage is a game event rendered in the room's feed, as
// opposed to player chat. Types: "round_start", "round_end",
// "correct_guesses", "wrong_guesses", "no_guesses", "game_over".
type NotificationMessage struct {
	Action         string   `json:"action"` // "game_notification"
	Type           string   `json:"type"`
	Message        string   `json:"message"`
	CorrectPlayers []string `json:"correct_players,omitempty"`
}

// GuessResultMessage is sent only to the guessing player.
type GuessResultMessage struct {
	Action       string `json:"action"` // "guess_result"
	Correct      bool   `json:"correct"`
	PointsEarned int    `json:"points_earned"`
}

// ChatMessage relays sanitized player chat.
type ChatMessage struct {
	Action     string `json:"action"` // "chat_message"
	PlayerName string `json:"player_name"`
	Text       string `json:"text"`
}

// SuggestionsMessage answers a get_suggestions query on the asking
// connection only.
type SuggestionsMessage struct {
	Action      string   `json:"action"` // "suggestions"
	Suggestions []string `json:"suggestions"`
}

// ErrorMessage is only ever unicast to the offending connection.
type ErrorMessage struct {
	Action  string `json:"action"` // "error"
	Message string `json:"message"`
}

// GameOverMessage carries the final score mapping.
type GameOverMessage struct {
	Action      string      `json:"action"` // "game_over"
	Leaderboard map[int]int `json:"leaderboard"`
}

func stateMessage(state RoomState) StateMessage {
	return StateMessage{
		Action: "update_state",
		State:  state,
	}
}

func notification(kind, message string) NotificationMessage {
	return NotificationMessage{
		Action:  "game_notification",
		Type:    kind,
		Message: message,
	}
}

func errorMessage(message string) ErrorMessage {
	return ErrorMessage{
		Action:  "error",
		Message: message,
	}
}
