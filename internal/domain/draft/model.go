package draft

import (
	"errors"
	"time"
)

// Domain errors
var (
	ErrEmptyDayID      = errors.New("day ID is required")
	ErrEmptyExerciseID = errors.New("exercise ID is required")
	ErrInvalidSet      = errors.New("set number must be >= 1")
)

// Exercise is the coach-planned descriptor for one exercise of a training day.
// It is authoritative server data: refreshed wholesale on every merge, never
// edited locally.
type Exercise struct {
	ID       string      `json:"id"`
	Name     string      `json:"name,omitempty"`
	Sets     int         `json:"sets"`
	Reps     int         `json:"reps"`
	Weight   float64     `json:"weight"`
	RPE      float64     `json:"rpe,omitempty"`
	SetsData []ServerSet `json:"sets_data,omitempty"`
}

// ServerSet is a per-set result the server already knows about.
// Completed is a pointer because the server may omit it; only an explicit
// value is allowed to override local completion state during merge.
type ServerSet struct {
	SetNumber int     `json:"set_number"`
	Weight    float64 `json:"weight"`
	Reps      int     `json:"reps"`
	RPE       float64 `json:"rpe,omitempty"`
	Notes     string  `json:"notes,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
}

// SetEntry is one recorded set: what the athlete actually did (or plans to do)
// for a numbered set of an exercise. Weight and reps are unit-agnostic.
type SetEntry struct {
	Weight    float64 `json:"weight"`
	Reps      int     `json:"reps"`
	RPE       float64 `json:"rpe,omitempty"`
	Notes     string  `json:"notes,omitempty"`
	Completed bool    `json:"completed"`
}

// SetPatch is a partial SetEntry: only non-nil fields are applied.
type SetPatch struct {
	Weight    *float64 `json:"weight,omitempty"`
	Reps      *int     `json:"reps,omitempty"`
	RPE       *float64 `json:"rpe,omitempty"`
	Notes     *string  `json:"notes,omitempty"`
	Completed *bool    `json:"completed,omitempty"`
}

// ApplyTo shallow-merges the patch into an existing entry.
// PRE: e is non-nil
// POST: fields set on the patch overwrite the entry, others are untouched
func (p SetPatch) ApplyTo(e *SetEntry) {
	if p.Weight != nil {
		e.Weight = *p.Weight
	}
	if p.Reps != nil {
		e.Reps = *p.Reps
	}
	if p.RPE != nil {
		e.RPE = *p.RPE
	}
	if p.Notes != nil {
		e.Notes = *p.Notes
	}
	if p.Completed != nil {
		e.Completed = *p.Completed
	}
}

// IsZero reports whether the patch carries no fields.
func (p SetPatch) IsZero() bool {
	return p.Weight == nil && p.Reps == nil && p.RPE == nil && p.Notes == nil && p.Completed == nil
}

// PendingChange is one unconfirmed local edit awaiting transmission.
// Timestamp (epoch millis) drives last-write-wins dedup within a drain batch.
// Attempts counts failed transmissions for the requeue cap.
type PendingChange struct {
	ID         string   `json:"id"`
	ExerciseID string   `json:"exerciseId"`
	SetNumber  int      `json:"setNumber"`
	Data       SetPatch `json:"data"`
	Timestamp  int64    `json:"timestamp"`
	Attempts   int      `json:"attempts,omitempty"`
}

// Draft is the locally persisted, possibly-ahead-of-server representation of
// one training day's workout in progress. Exactly one Draft exists per day ID.
type Draft struct {
	DayID          string                      `json:"dayId"`
	Exercises      []Exercise                  `json:"exercises"`
	SetsData       map[string]map[int]SetEntry `json:"setsData"`
	LastModified   int64                       `json:"lastModified"`
	LastSynced     int64                       `json:"lastSynced"`
	PendingChanges []PendingChange             `json:"pendingChanges"`
}

// Validate checks that the Draft has valid data.
// PRE: Draft struct is populated
// POST: Returns nil if valid, error otherwise
func (d *Draft) Validate() error {
	if d.DayID == "" {
		return ErrEmptyDayID
	}
	return nil
}

// plannedEntry builds the default SetEntry for an exercise from its planned
// weight/reps/RPE.
func plannedEntry(ex Exercise) SetEntry {
	return SetEntry{Weight: ex.Weight, Reps: ex.Reps, RPE: ex.RPE}
}

// serverEntry converts a server-reported set result into a SetEntry.
func serverEntry(s ServerSet) SetEntry {
	e := SetEntry{Weight: s.Weight, Reps: s.Reps, RPE: s.RPE, Notes: s.Notes}
	if s.Completed != nil {
		e.Completed = *s.Completed
	}
	return e
}

// New initializes a Draft from a server exercise snapshot. For each exercise
// the server-known per-set results are copied first, then the remaining set
// numbers up to the planned count are padded with planned defaults.
// PRE: dayID is non-empty, exercises is the authoritative day plan
// POST: SetsData holds a dense 1..Sets range for every exercise
func New(dayID string, exercises []Exercise, now time.Time) Draft {
	d := Draft{
		DayID:          dayID,
		Exercises:      exercises,
		SetsData:       make(map[string]map[int]SetEntry, len(exercises)),
		LastModified:   now.UnixMilli(),
		LastSynced:     now.UnixMilli(),
		PendingChanges: []PendingChange{},
	}
	for _, ex := range exercises {
		sets := make(map[int]SetEntry, ex.Sets)
		for _, s := range ex.SetsData {
			if s.SetNumber >= 1 && s.SetNumber <= ex.Sets {
				sets[s.SetNumber] = serverEntry(s)
			}
		}
		for n := 1; n <= ex.Sets; n++ {
			if _, ok := sets[n]; !ok {
				sets[n] = plannedEntry(ex)
			}
		}
		d.SetsData[ex.ID] = sets
	}
	return d
}

// Merge reconciles the Draft against a fresh authoritative server snapshot.
// Planning metadata is replaced verbatim. Exercises dropped from the snapshot
// lose their local set data, pending edits included. Surviving sets keep the
// local weight/reps/RPE/notes but take the server's completion state whenever
// the server explicitly reports one — completion is also mutated by other
// surfaces (a coach, another device) and the UI must show the latest truth.
// PRE: exercises is the fresh server snapshot
// POST: SetsData is dense 1..Sets per surviving exercise, LastModified updated
func (d *Draft) Merge(exercises []Exercise, now time.Time) {
	d.Exercises = exercises
	if d.SetsData == nil {
		d.SetsData = make(map[string]map[int]SetEntry, len(exercises))
	}

	keep := make(map[string]bool, len(exercises))
	for _, ex := range exercises {
		keep[ex.ID] = true
	}
	for id := range d.SetsData {
		if !keep[id] {
			delete(d.SetsData, id)
		}
	}
	if len(d.PendingChanges) > 0 {
		remaining := d.PendingChanges[:0]
		for _, c := range d.PendingChanges {
			if keep[c.ExerciseID] {
				remaining = append(remaining, c)
			}
		}
		d.PendingChanges = remaining
	}

	for _, ex := range exercises {
		sets := d.SetsData[ex.ID]
		if sets == nil {
			sets = make(map[int]SetEntry, ex.Sets)
			d.SetsData[ex.ID] = sets
		}

		serverSets := make(map[int]ServerSet, len(ex.SetsData))
		for _, s := range ex.SetsData {
			serverSets[s.SetNumber] = s
		}

		// Shrink past the new planned count, then fill or reconcile 1..Sets.
		for n := range sets {
			if n > ex.Sets {
				delete(sets, n)
			}
		}
		for n := 1; n <= ex.Sets; n++ {
			local, hasLocal := sets[n]
			if !hasLocal {
				if s, ok := serverSets[n]; ok {
					sets[n] = serverEntry(s)
				} else {
					sets[n] = plannedEntry(ex)
				}
				continue
			}
			if s, ok := serverSets[n]; ok && s.Completed != nil {
				local.Completed = *s.Completed
				sets[n] = local
			}
		}
	}
	d.LastModified = now.UnixMilli()
}

// ensureSet guarantees a SetEntry exists for the exercise/set slot, defaulting
// from the exercise's planned values when the slot is new.
func (d *Draft) ensureSet(exerciseID string, setNumber int) {
	if d.SetsData == nil {
		d.SetsData = make(map[string]map[int]SetEntry)
	}
	sets := d.SetsData[exerciseID]
	if sets == nil {
		sets = make(map[int]SetEntry)
		d.SetsData[exerciseID] = sets
	}
	if _, ok := sets[setNumber]; !ok {
		entry := SetEntry{}
		if ex, ok := d.exercise(exerciseID); ok {
			entry = plannedEntry(ex)
		}
		sets[setNumber] = entry
	}
}

// exercise looks up the planned exercise descriptor by ID.
func (d *Draft) exercise(exerciseID string) (Exercise, bool) {
	for _, ex := range d.Exercises {
		if ex.ID == exerciseID {
			return ex, true
		}
	}
	return Exercise{}, false
}

// ApplyPatch shallow-merges a partial edit into the target set and appends a
// matching pending change.
// PRE: changeID is a fresh unique ID, setNumber >= 1
// POST: SetEntry updated, pending change queued, LastModified updated
func (d *Draft) ApplyPatch(changeID, exerciseID string, setNumber int, patch SetPatch, now time.Time) {
	d.ensureSet(exerciseID, setNumber)
	entry := d.SetsData[exerciseID][setNumber]
	patch.ApplyTo(&entry)
	d.SetsData[exerciseID][setNumber] = entry
	d.PendingChanges = append(d.PendingChanges, PendingChange{
		ID:         changeID,
		ExerciseID: exerciseID,
		SetNumber:  setNumber,
		Data:       patch,
		Timestamp:  now.UnixMilli(),
	})
	d.LastModified = now.UnixMilli()
}

// ToggleCompletion flips the completed flag of the target set, creating the
// slot from planned defaults when missing, and queues a matching change.
// POST: Returns the new completed value for synchronous optimistic UI updates
func (d *Draft) ToggleCompletion(changeID, exerciseID string, setNumber int, now time.Time) bool {
	d.ensureSet(exerciseID, setNumber)
	entry := d.SetsData[exerciseID][setNumber]
	entry.Completed = !entry.Completed
	d.SetsData[exerciseID][setNumber] = entry
	completed := entry.Completed
	d.PendingChanges = append(d.PendingChanges, PendingChange{
		ID:         changeID,
		ExerciseID: exerciseID,
		SetNumber:  setNumber,
		Data:       SetPatch{Completed: &completed},
		Timestamp:  now.UnixMilli(),
	})
	d.LastModified = now.UnixMilli()
	return completed
}

// RemoveSet deletes the set and renumbers every higher set number down by one,
// keeping set numbers a dense 1..M sequence. Pending changes targeting the
// removed set are dropped; changes above it are renumbered with it.
// PRE: setNumber >= 1
// POST: no gap remains at the removed position
func (d *Draft) RemoveSet(exerciseID string, setNumber int, now time.Time) {
	sets := d.SetsData[exerciseID]
	if sets == nil {
		return
	}
	if _, ok := sets[setNumber]; !ok {
		return
	}
	max := 0
	for n := range sets {
		if n > max {
			max = n
		}
	}
	delete(sets, setNumber)
	for n := setNumber + 1; n <= max; n++ {
		if e, ok := sets[n]; ok {
			sets[n-1] = e
			delete(sets, n)
		}
	}

	if len(d.PendingChanges) > 0 {
		remaining := d.PendingChanges[:0]
		for _, c := range d.PendingChanges {
			if c.ExerciseID == exerciseID {
				if c.SetNumber == setNumber {
					continue
				}
				if c.SetNumber > setNumber {
					c.SetNumber--
				}
			}
			remaining = append(remaining, c)
		}
		d.PendingChanges = remaining
	}
	d.LastModified = now.UnixMilli()
}

// Set returns the SetEntry for an exercise/set slot.
func (d *Draft) Set(exerciseID string, setNumber int) (SetEntry, bool) {
	sets := d.SetsData[exerciseID]
	if sets == nil {
		return SetEntry{}, false
	}
	e, ok := sets[setNumber]
	return e, ok
}

// ExerciseSets returns a copy of all recorded sets for an exercise.
func (d *Draft) ExerciseSets(exerciseID string) map[int]SetEntry {
	sets := d.SetsData[exerciseID]
	out := make(map[int]SetEntry, len(sets))
	for n, e := range sets {
		out[n] = e
	}
	return out
}

// CompletionCount returns how many of the first totalSets sets are completed.
// Set numbers beyond totalSets are ignored, so leftover entries from a
// previously larger planned count cannot inflate the count.
func (d *Draft) CompletionCount(exerciseID string, totalSets int) int {
	sets := d.SetsData[exerciseID]
	count := 0
	for n, e := range sets {
		if n >= 1 && n <= totalSets && e.Completed {
			count++
		}
	}
	return count
}

// DedupLatest collapses a drained batch to one change per (exercise, set),
// keeping the entry with the latest timestamp. Winners retain the batch's
// relative order. Sending intermediate values would waste requests and can
// race out of order over the network.
func DedupLatest(changes []PendingChange) []PendingChange {
	type key struct {
		exerciseID string
		setNumber  int
	}
	latest := make(map[key]int, len(changes))
	var order []key
	for i, c := range changes {
		k := key{c.ExerciseID, c.SetNumber}
		if j, ok := latest[k]; ok {
			if c.Timestamp >= changes[j].Timestamp {
				latest[k] = i
			}
			continue
		}
		latest[k] = i
		order = append(order, k)
	}
	out := make([]PendingChange, 0, len(order))
	for _, k := range order {
		out = append(out, changes[latest[k]])
	}
	return out
}
