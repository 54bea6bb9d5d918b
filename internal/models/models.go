package models

import (
	"fmt"
	"strconv"
)

// Mode is the conversational state of an operator session
type Mode uint8

const (
	ModeIdle Mode = iota
	ModeLive
	ModeAwaitingSource
	ModeAwaitingTarget
	ModeAwaitingPhone
	ModeAwaitingSessionString
	ModeAwaitingAuthCode
	ModeAwaitingPassword
	ModeAwaitingRange
	ModeAwaitingTillMsg
	ModeAwaitingTillFile
)

var modeNames = [...]string{
	ModeIdle:                  "idle",
	ModeLive:                  "live",
	ModeAwaitingSource:        "awaiting_source",
	ModeAwaitingTarget:        "awaiting_target",
	ModeAwaitingPhone:         "awaiting_phone",
	ModeAwaitingSessionString: "awaiting_session_string",
	ModeAwaitingAuthCode:      "awaiting_auth_code",
	ModeAwaitingPassword:      "awaiting_password",
	ModeAwaitingRange:         "awaiting_range",
	ModeAwaitingTillMsg:       "awaiting_till_msg",
	ModeAwaitingTillFile:      "awaiting_till_file",
}

// Modes lists every mode in declaration order
func Modes() []Mode {
	modes := make([]Mode, len(modeNames))
	for i := range modeNames {
		modes[i] = Mode(i)
	}
	return modes
}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// AwaitingInput reports whether the mode consumes the operator's next text message
func (m Mode) AwaitingInput() bool {
	return m != ModeIdle && m != ModeLive && int(m) < len(modeNames)
}

// ParseMode maps a persisted mode name back to a Mode
func ParseMode(s string) (Mode, error) {
	for i, name := range modeNames {
		if name == s {
			return Mode(i), nil
		}
	}
	return ModeIdle, fmt.Errorf("unknown mode %q", s)
}

func (m Mode) MarshalText() ([]byte, error) {
	if int(m) >= len(modeNames) {
		return nil, fmt.Errorf("unknown mode %d", uint8(m))
	}
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Session is the per-operator configuration. A zero channel ID means unset.
type Session struct {
	UserID            int64
	SourceChannel     int64
	TargetChannel     int64
	Mode              Mode
	ForwardCount      int64
	UserPhone         string
	SessionCredential string
}

// NewSession returns the default idle session for a user
func NewSession(userID int64) Session {
	return Session{UserID: userID, Mode: ModeIdle}
}

// ChannelsConfigured reports whether both source and target are set
func (s Session) ChannelsConfigured() bool {
	return s.SourceChannel != 0 && s.TargetChannel != 0
}

// channelPrefix is the supergroup/channel prefix of canonical Bot API chat IDs
const channelPrefix = "-100"

// NormalizeChannelID converts a legacy positive short ID into the canonical
// -100 form. Negative IDs are returned unchanged.
func NormalizeChannelID(id int64) (int64, bool) {
	if id <= 0 {
		return id, false
	}
	fixed, err := strconv.ParseInt(channelPrefix+strconv.FormatInt(id, 10), 10, 64)
	if err != nil {
		return id, false
	}
	return fixed, true
}

// BareChannelID strips the -100 prefix, yielding the MTProto channel ID.
// It returns false for IDs that are not in canonical channel form.
func BareChannelID(id int64) (int64, bool) {
	s := strconv.FormatInt(id, 10)
	if len(s) <= len(channelPrefix) || s[:len(channelPrefix)] != channelPrefix {
		return 0, false
	}
	bare, err := strconv.ParseInt(s[len(channelPrefix):], 10, 64)
	if err != nil || bare == 0 {
		return 0, false
	}
	return bare, true
}
