// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package localdb

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a row does not exist for the user or is soft-deleted.
	ErrNotFound = errors.New("not found")
	// ErrInvalid wraps every input validation failure.
	ErrInvalid = errors.New("invalid input")
)

// MuscleGroup is the primary focus of a workout.
type MuscleGroup string

const (
	MuscleChest     MuscleGroup = "Chest"
	MuscleBack      MuscleGroup = "Back"
	MuscleLegs      MuscleGroup = "Legs"
	MuscleShoulders MuscleGroup = "Shoulders"
	MuscleArms      MuscleGroup = "Arms"
	MuscleCore      MuscleGroup = "Core"
	MuscleFullBody  MuscleGroup = "Full Body"
	MuscleCardio    MuscleGroup = "Cardio"
)

// MuscleGroups lists every accepted value in display order.
var MuscleGroups = []MuscleGroup{
	MuscleChest, MuscleBack, MuscleLegs, MuscleShoulders,
	MuscleArms, MuscleCore, MuscleFullBody, MuscleCardio,
}

func (m MuscleGroup) Valid() bool {
	for _, g := range MuscleGroups {
		if g == m {
			return true
		}
	}
	return false
}

// SessionStatus is the lifecycle state of a training session.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusPaused    SessionStatus = "paused"
	StatusCompleted SessionStatus = "completed"
	StatusAbandoned SessionStatus = "abandoned"
)

// DayMask is a weekly schedule bitmask. Bit 0 is Monday and bit 6 is Sunday
// (ISO weekday order). All weekday conversions go through this type.
type DayMask int

// MaxDayMask has every weekday set.
const MaxDayMask DayMask = 1<<7 - 1

// dayBit maps time.Weekday (Sunday=0) to its ISO bit.
func dayBit(d time.Weekday) DayMask {
	iso := (int(d) + 6) % 7 // Monday=0 ... Sunday=6
	return 1 << iso
}

// DayMaskOf builds a mask from weekdays.
func DayMaskOf(days ...time.Weekday) DayMask {
	var m DayMask
	for _, d := range days {
		m |= dayBit(d)
	}
	return m
}

// Has reports whether d is scheduled.
func (m DayMask) Has(d time.Weekday) bool { return m&dayBit(d) != 0 }

// With returns m with d scheduled.
func (m DayMask) With(d time.Weekday) DayMask { return m | dayBit(d) }

// Without returns m with d removed.
func (m DayMask) Without(d time.Weekday) DayMask { return m &^ dayBit(d) }

// Days lists scheduled weekdays starting from Monday.
func (m DayMask) Days() []time.Weekday {
	var days []time.Weekday
	for i := 0; i < 7; i++ {
		d := time.Weekday((i + 1) % 7)
		if m.Has(d) {
			days = append(days, d)
		}
	}
	return days
}

func (m DayMask) Valid() bool { return m >= 0 && m <= MaxDayMask }

func (m DayMask) String() string {
	days := m.Days()
	if len(days) == 0 {
		return "none"
	}
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = d.String()[:3]
	}
	return strings.Join(names, ",")
}

// Workout is a named plan owning an ordered list of exercises.
type Workout struct {
	ID          string
	UserID      string
	Name        string
	Description string
	DayMask     DayMask
	MuscleGroup MuscleGroup
	ImageURI    string
	VideoURI    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
	SyncedAt    *time.Time
	Exercises   []Exercise
}

// Exercise is one movement in a workout with its target sets and reps.
type Exercise struct {
	ID        string
	UserID    string
	WorkoutID string
	Name      string
	Sets      int
	Reps      int
	SortOrder int
	ImageURI  string
	VideoURI  string
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
	SyncedAt  *time.Time
}

// Session is one run of a workout.
type Session struct {
	ID             string
	UserID         string
	WorkoutID      string
	WorkoutName    string
	Status         SessionStatus
	StartTime      time.Time
	EndTime        *time.Time
	PausedDuration int // seconds
	PausedAt       *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
	SyncedAt       *time.Time
	Logs           []SetLog
}

// SetLog records one performed set.
type SetLog struct {
	ID            string
	UserID        string
	SessionID     string
	ExerciseID    string
	ExerciseName  string // joined on read, not stored
	Weight        float64
	RepsCompleted int
	Completed     bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ProgressPhoto is a body photo, optionally tied to a session or workout.
type ProgressPhoto struct {
	ID        string
	UserID    string
	URI       string
	TakenAt   time.Time
	Note      string
	SessionID string
	WorkoutID string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WeightLog is one body weight measurement.
type WeightLog struct {
	ID        string
	UserID    string
	Weight    float64
	Date      time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WorkoutInput carries the editable fields of a workout.
type WorkoutInput struct {
	Name        string
	Description string
	DayMask     DayMask
	MuscleGroup MuscleGroup
	ImageURI    string
	VideoURI    string
	Exercises   []ExerciseInput // only used on create
}

// ExerciseInput carries the editable fields of an exercise.
type ExerciseInput struct {
	Name     string
	Sets     int
	Reps     int
	ImageURI string
	VideoURI string
}

// SetInput is a set recorded during a session, persisted on completion.
type SetInput struct {
	ID         string  `json:"id"`
	ExerciseID string  `json:"exercise_id"`
	Weight     float64 `json:"weight"`
	Reps       int     `json:"reps"`
	Completed  bool    `json:"completed"`
}

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// SanitizeText strips markup and surrounding whitespace from user text.
func SanitizeText(s string) string {
	return strings.TrimSpace(htmlTag.ReplaceAllString(s, ""))
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Normalize sanitizes text fields and validates the input.
func (in *WorkoutInput) Normalize() error {
	in.Name = SanitizeText(in.Name)
	in.Description = SanitizeText(in.Description)
	if in.Name == "" {
		return invalid("workout name is required")
	}
	if !in.DayMask.Valid() {
		return invalid("day mask %d out of range", in.DayMask)
	}
	if !in.MuscleGroup.Valid() {
		return invalid("unknown muscle group %q", in.MuscleGroup)
	}
	for i := range in.Exercises {
		if err := in.Exercises[i].Normalize(); err != nil {
			return fmt.Errorf("exercise %d: %w", i, err)
		}
	}
	return nil
}

// Normalize sanitizes text fields and validates the input.
func (in *ExerciseInput) Normalize() error {
	in.Name = SanitizeText(in.Name)
	if in.Name == "" {
		return invalid("exercise name is required")
	}
	if in.Sets < 1 {
		return invalid("sets must be at least 1")
	}
	if in.Reps < 1 {
		return invalid("reps must be at least 1")
	}
	return nil
}

// Validate checks a recorded set.
func (in SetInput) Validate() error {
	if in.ExerciseID == "" {
		return invalid("exercise id is required")
	}
	if in.Weight < 0 {
		return invalid("weight cannot be negative")
	}
	if in.Reps < 0 {
		return invalid("reps cannot be negative")
	}
	return nil
}
