package whoop

import (
	"strings"
	"time"
)

// Domain records are immutable snapshots parsed from single WHOOP API JSON
// objects. Identity fields are provider-assigned, never generated locally.
// Parsing is strict: required fields missing or mistyped raise a ParseError
// naming the field, because downstream planning logic treats absence as a
// meaningful "unavailable" signal rather than zero.

// Cycle is one physiological day as tracked by WHOOP.
type Cycle struct {
	ID             int64
	UserID         int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Start          time.Time
	End            *time.Time
	TimezoneOffset string
	ScoreState     string
	Score          map[string]any
}

// Sleep is one sleep activity, tied to a cycle.
type Sleep struct {
	ID             string
	CycleID        int64
	UserID         int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Start          time.Time
	End            time.Time
	TimezoneOffset string
	Nap            bool
	ScoreState     string
	Score          map[string]any
}

// Recovery is identified by the cycle/sleep pair it was computed from.
type Recovery struct {
	CycleID    int64
	SleepID    string
	UserID     int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ScoreState string
	Score      map[string]any
}

// Workout is one recorded workout activity.
type Workout struct {
	ID             string
	UserID         int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Start          time.Time
	End            time.Time
	TimezoneOffset string
	SportName      string
	ScoreState     string
	SportID        *int64
	Score          map[string]any
}

// Profile is the basic user profile.
type Profile struct {
	UserID    int64
	Email     string
	FirstName string
	LastName  string
}

// BodyMeasurement is the user's latest body measurement.
type BodyMeasurement struct {
	HeightMeter    float64
	WeightKilogram float64
	MaxHeartRate   int64
}

// Snapshot bundles the latest data for schedule generation. Any field can be
// nil when the provider has no data for it.
type Snapshot struct {
	Cycle    *Cycle
	Recovery *Recovery
	Sleep    *Sleep
	Workouts []Workout
	Profile  *Profile
	Body     *BodyMeasurement
}

func parseCycle(data map[string]any) (Cycle, error) {
	var c Cycle
	var err error
	if c.ID, err = requiredInt64(data, "id"); err != nil {
		return c, err
	}
	if c.UserID, err = requiredInt64(data, "user_id"); err != nil {
		return c, err
	}
	if c.CreatedAt, err = requiredTime(data, "created_at"); err != nil {
		return c, err
	}
	if c.UpdatedAt, err = requiredTime(data, "updated_at"); err != nil {
		return c, err
	}
	if c.Start, err = requiredTime(data, "start"); err != nil {
		return c, err
	}
	if c.End, err = optionalTime(data["end"]); err != nil {
		return c, err
	}
	if c.TimezoneOffset, err = requiredString(data, "timezone_offset"); err != nil {
		return c, err
	}
	if c.ScoreState, err = requiredString(data, "score_state"); err != nil {
		return c, err
	}
	c.Score = optionalMap(data["score"])
	return c, nil
}

func parseSleep(data map[string]any) (Sleep, error) {
	var s Sleep
	var err error
	if s.ID, err = requiredString(data, "id"); err != nil {
		return s, err
	}
	if s.CycleID, err = requiredInt64(data, "cycle_id"); err != nil {
		return s, err
	}
	if s.UserID, err = requiredInt64(data, "user_id"); err != nil {
		return s, err
	}
	if s.CreatedAt, err = requiredTime(data, "created_at"); err != nil {
		return s, err
	}
	if s.UpdatedAt, err = requiredTime(data, "updated_at"); err != nil {
		return s, err
	}
	if s.Start, err = requiredTime(data, "start"); err != nil {
		return s, err
	}
	if s.End, err = requiredTime(data, "end"); err != nil {
		return s, err
	}
	if s.TimezoneOffset, err = requiredString(data, "timezone_offset"); err != nil {
		return s, err
	}
	if s.Nap, err = requiredBool(data, "nap"); err != nil {
		return s, err
	}
	if s.ScoreState, err = requiredString(data, "score_state"); err != nil {
		return s, err
	}
	s.Score = optionalMap(data["score"])
	return s, nil
}

func parseRecovery(data map[string]any) (Recovery, error) {
	var r Recovery
	var err error
	if r.CycleID, err = requiredInt64(data, "cycle_id"); err != nil {
		return r, err
	}
	if r.SleepID, err = requiredString(data, "sleep_id"); err != nil {
		return r, err
	}
	if r.UserID, err = requiredInt64(data, "user_id"); err != nil {
		return r, err
	}
	if r.CreatedAt, err = requiredTime(data, "created_at"); err != nil {
		return r, err
	}
	if r.UpdatedAt, err = requiredTime(data, "updated_at"); err != nil {
		return r, err
	}
	if r.ScoreState, err = requiredString(data, "score_state"); err != nil {
		return r, err
	}
	r.Score = optionalMap(data["score"])
	return r, nil
}

func parseWorkout(data map[string]any) (Workout, error) {
	var w Workout
	var err error
	if w.ID, err = requiredString(data, "id"); err != nil {
		return w, err
	}
	if w.UserID, err = requiredInt64(data, "user_id"); err != nil {
		return w, err
	}
	if w.CreatedAt, err = requiredTime(data, "created_at"); err != nil {
		return w, err
	}
	if w.UpdatedAt, err = requiredTime(data, "updated_at"); err != nil {
		return w, err
	}
	if w.Start, err = requiredTime(data, "start"); err != nil {
		return w, err
	}
	if w.End, err = requiredTime(data, "end"); err != nil {
		return w, err
	}
	if w.TimezoneOffset, err = requiredString(data, "timezone_offset"); err != nil {
		return w, err
	}
	if w.SportName, err = requiredString(data, "sport_name"); err != nil {
		return w, err
	}
	if w.ScoreState, err = requiredString(data, "score_state"); err != nil {
		return w, err
	}
	w.SportID = optionalInt64(data["sport_id"])
	w.Score = optionalMap(data["score"])
	return w, nil
}

func parseProfile(data map[string]any) (Profile, error) {
	var p Profile
	var err error
	if p.UserID, err = requiredInt64(data, "user_id"); err != nil {
		return p, err
	}
	if p.Email, err = requiredString(data, "email"); err != nil {
		return p, err
	}
	if p.FirstName, err = requiredString(data, "first_name"); err != nil {
		return p, err
	}
	if p.LastName, err = requiredString(data, "last_name"); err != nil {
		return p, err
	}
	return p, nil
}

func parseBodyMeasurement(data map[string]any) (BodyMeasurement, error) {
	var b BodyMeasurement
	var err error
	if b.HeightMeter, err = requiredFloat(data, "height_meter"); err != nil {
		return b, err
	}
	if b.WeightKilogram, err = requiredFloat(data, "weight_kilogram"); err != nil {
		return b, err
	}
	if b.MaxHeartRate, err = requiredInt64(data, "max_heart_rate"); err != nil {
		return b, err
	}
	return b, nil
}

// Field extraction helpers. JSON numbers decode as float64, so integer
// fields accept float64 values without a fractional part.

func requiredString(data map[string]any, key string) (string, error) {
	value, ok := data[key].(string)
	if !ok || strings.TrimSpace(value) == "" {
		return "", &ParseError{Field: key}
	}
	return strings.TrimSpace(value), nil
}

func optionalString(value any) string {
	s, ok := value.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

func requiredInt64(data map[string]any, key string) (int64, error) {
	if v := optionalInt64(data[key]); v != nil {
		return *v, nil
	}
	return 0, &ParseError{Field: key}
}

func optionalInt64(value any) *int64 {
	switch v := value.(type) {
	case float64:
		n := int64(v)
		if float64(n) == v {
			return &n
		}
	case int64:
		return &v
	case int:
		n := int64(v)
		return &n
	}
	return nil
}

func requiredFloat(data map[string]any, key string) (float64, error) {
	switch v := data[key].(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	}
	return 0, &ParseError{Field: key}
}

func requiredBool(data map[string]any, key string) (bool, error) {
	value, ok := data[key].(bool)
	if !ok {
		return false, &ParseError{Field: key}
	}
	return value, nil
}

func requiredTime(data map[string]any, key string) (time.Time, error) {
	value, ok := data[key].(string)
	if !ok || strings.TrimSpace(value) == "" {
		return time.Time{}, &ParseError{Field: key}
	}
	parsed, err := parseTimestamp(value)
	if err != nil {
		return time.Time{}, &ParseError{Field: key}
	}
	return parsed, nil
}

func optionalTime(value any) (*time.Time, error) {
	s, ok := value.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parsed, err := parseTimestamp(s)
	if err != nil {
		return nil, &ParseError{Msg: "invalid timestamp: " + s}
	}
	return &parsed, nil
}

func parseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02T15:04:05", value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func optionalMap(value any) map[string]any {
	m, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	return m
}
