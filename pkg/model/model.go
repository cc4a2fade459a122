// Package model defines the shared data types of the relationship and
// memory substrate (spec section 3): bots, users, relationship state,
// tasks, and the structured plans that flow through the turn pipeline.
package model

import "time"

// KnappStage is one of the ten ordered relational-development stages.
type KnappStage string

const (
	StageInitiating      KnappStage = "initiating"
	StageExperimenting   KnappStage = "experimenting"
	StageIntensifying    KnappStage = "intensifying"
	StageIntegrating     KnappStage = "integrating"
	StageBonding         KnappStage = "bonding"
	StageDifferentiating KnappStage = "differentiating"
	StageCircumscribing  KnappStage = "circumscribing"
	StageStagnating      KnappStage = "stagnating"
	StageAvoiding        KnappStage = "avoiding"
	StageTerminating     KnappStage = "terminating"
)

// knappOrder fixes the growth ordering used by the stage manager (section
// 4.16) to reason about "ahead of" / "behind" without re-deriving it from
// the enum's declaration order every time.
var knappOrder = map[KnappStage]int{
	StageInitiating:      0,
	StageExperimenting:   1,
	StageIntensifying:    2,
	StageIntegrating:     3,
	StageBonding:         4,
	StageDifferentiating: 5,
	StageCircumscribing:  6,
	StageStagnating:      7,
	StageAvoiding:        8,
	StageTerminating:     9,
}

// Rank returns the stage's position for ordering comparisons; unknown
// stages rank below initiating so corrupted data never outranks a known one.
func (s KnappStage) Rank() int {
	if r, ok := knappOrder[s]; ok {
		return r
	}
	return -1
}

// RelationshipDimensions holds the six bounded relationship dimensions
// (spec section 3). Every dimension is a float in [0,1].
type RelationshipDimensions struct {
	Closeness float64 `json:"closeness"`
	Trust     float64 `json:"trust"`
	Liking    float64 `json:"liking"`
	Respect   float64 `json:"respect"`
	Warmth    float64 `json:"warmth"`
	Power     float64 `json:"power"`
}

// DefaultDimensions returns the documented defaults: five dimensions at
// 0.3, power at 0.5.
func DefaultDimensions() RelationshipDimensions {
	return RelationshipDimensions{
		Closeness: 0.3,
		Trust:     0.3,
		Liking:    0.3,
		Respect:   0.3,
		Warmth:    0.3,
		Power:     0.5,
	}
}

// Map returns the dimensions keyed by name, for generic iteration (delta
// clamping, audit logging, backfilling).
func (d RelationshipDimensions) Map() map[string]float64 {
	return map[string]float64{
		"closeness": d.Closeness,
		"trust":     d.Trust,
		"liking":    d.Liking,
		"respect":   d.Respect,
		"warmth":    d.Warmth,
		"power":     d.Power,
	}
}

// DimensionsFromMap rebuilds a RelationshipDimensions from a name-keyed map, used
// after clamping deltas that were computed generically.
func DimensionsFromMap(m map[string]float64) RelationshipDimensions {
	return RelationshipDimensions{
		Closeness: m["closeness"],
		Trust:     m["trust"],
		Liking:    m["liking"],
		Respect:   m["respect"],
		Warmth:    m["warmth"],
		Power:     m["power"],
	}
}

// DimensionNames is the fixed iteration order used by the audit log and by
// tests enumerating "every dimension".
var DimensionNames = []string{"closeness", "trust", "liking", "respect", "warmth", "power"}

// MoodState is the PAD (pleasure/arousal/dominance) affect model plus a
// derived busyness scalar.
type MoodState struct {
	Pleasure  float64 `json:"pleasure"`  // [-1,1]
	Arousal   float64 `json:"arousal"`   // [-1,1]
	Dominance float64 `json:"dominance"` // [-1,1]
	Busyness  float64 `json:"busyness"`  // [0,1]
}

// DefaultMood returns a neutral starting mood.
func DefaultMood() MoodState {
	return MoodState{Pleasure: 0, Arousal: 0, Dominance: 0, Busyness: 0.2}
}

// BigFive is the five-factor personality vector used by the profile
// factory and the behavior processor's pacing model, in [-1,1] per trait
// (the profile factory itself only emits the narrower [-0.8,0.8]).
type BigFive struct {
	Openness          float64 `json:"openness"`
	Conscientiousness float64 `json:"conscientiousness"`
	Extraversion      float64 `json:"extraversion"`
	Agreeableness     float64 `json:"agreeableness"`
	Neuroticism       float64 `json:"neuroticism"`
}

// TaskCategory classifies a BotTask's role in the backlog (spec section 3).
type TaskCategory string

const (
	CategoryIdentity            TaskCategory = "B1"
	CategoryDailyNeeds          TaskCategory = "B2"
	CategoryGrowthArcs          TaskCategory = "B3"
	CategoryRelationshipBuild   TaskCategory = "B4"
	CategoryBoundaryRepair      TaskCategory = "B5"
	CategoryContinuity          TaskCategory = "B6"
)

// BotTask is a single backlog task carried on a Bot's profile or in a
// user's session pool.
type BotTask struct {
	ID             string       `json:"id"`
	Description    string       `json:"description"`
	Category       TaskCategory `json:"category"`
	Importance     float64      `json:"importance"` // [0,1]
	TaskType       string       `json:"task_type"`
	LastAttemptAt  *time.Time   `json:"last_attempt_at,omitempty"`
	AttemptCount   int          `json:"attempt_count"`
}

// Bot is the stable, mostly-immutable identity of a persona.
type Bot struct {
	ID                string                 `json:"id"`
	Name              string                 `json:"name"`
	BasicInfo         map[string]any         `json:"basic_info"`
	BigFive           BigFive                `json:"big_five"`
	Persona           map[string]any         `json:"persona"`
	CharacterSidewrite string                `json:"character_sidewrite"`
	BacklogTasks      []BotTask              `json:"backlog_tasks"`
	CreatedAt         time.Time              `json:"created_at"`
}

// SessionTaskPool is the per-user bounded (cap 20) carry-across-turns task
// list described in spec section 3 ("assets.current_session_tasks").
const SessionTaskPoolCap = 20

// Assets holds the miscellaneous per-user state bag, currently just the
// session task pool, kept as its own type so the evolver/task planner
// contract is explicit rather than a raw map.
type Assets struct {
	CurrentSessionTasks []BotTask `json:"current_session_tasks"`
}

// SPTInfo tracks "substantive topic" depth (1=shallow .. 4=deep), consumed
// by the stage manager's growth/decay rules.
type SPTInfo struct {
	Depth int `json:"depth"`
}

// User is a Bot-scoped relationship record, unique by (BotID, ExternalID).
type User struct {
	ID                 string                  `json:"id"`
	BotID              string                  `json:"bot_id"`
	ExternalID         string                  `json:"external_id"`
	BasicInfo          map[string]any          `json:"basic_info"`
	CurrentStage       KnappStage              `json:"current_stage"`
	Dimensions         RelationshipDimensions  `json:"dimensions"`
	Mood               MoodState               `json:"mood_state"`
	InferredProfile    map[string]any          `json:"inferred_profile"`
	Assets             Assets                  `json:"assets"`
	SPT                SPTInfo                 `json:"spt_info"`
	ConversationSummary string                 `json:"conversation_summary"`
	ActivePatch        *ReflectionPatch        `json:"active_patch,omitempty"`
	UpdatedAt          time.Time               `json:"updated_at"`
	CreatedAt          time.Time               `json:"created_at"`
}

// ReflectionPatch is the plain-data, store-serializable form of a LATS
// cross-turn reflection patch (spec section 4.14). It lives in model
// rather than pkg/lats so the store can persist it without the store or
// model packages depending on the search package; pkg/lats converts to and
// from its own richer Patch type at the turn boundary.
type ReflectionPatch struct {
	PlanAddMustCoverPoints    []string           `json:"plan_add_must_cover_points,omitempty"`
	PlanRemoveMustCoverPoints []string           `json:"plan_remove_must_cover_points,omitempty"`
	StyleRelative             bool               `json:"style_relative"`
	StyleDeltas               map[string]float64 `json:"style_deltas,omitempty"`
	StageAddPacingNotes       []string           `json:"stage_add_pacing_notes,omitempty"`
	StageAdjustViolationSensitivity float64       `json:"stage_adjust_violation_sensitivity,omitempty"`
	SearchAddQuerySeeds       []string           `json:"search_add_query_seeds,omitempty"`
	SearchRemoveQuerySeeds    []string           `json:"search_remove_query_seeds,omitempty"`
	SearchStrengthenEntities  []string           `json:"search_strengthen_entities,omitempty"`
	TTLTurns                  int                `json:"ttl_turns"`
	TTLRemaining              int                `json:"ttl_remaining"`
}

// MessageRole is the role of a persisted message.
type MessageRole string

const (
	RoleUser   MessageRole = "user"
	RoleAI     MessageRole = "ai"
	RoleSystem MessageRole = "system"
)

// Message is one persisted turn message (spec section 3). RoleOrder backs
// the (created_at asc, role asc, id asc) read ordering so "user" sorts
// before "ai" at identical timestamps.
type Message struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Role      MessageRole    `json:"role"`
	Content   string         `json:"content"`
	Meta      map[string]any `json:"meta,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// RoleOrder gives the tiebreak rank used when sorting messages with equal
// CreatedAt: user (0) before ai (1) before system (2).
func (r MessageRole) RoleOrder() int {
	switch r {
	case RoleUser:
		return 0
	case RoleAI:
		return 1
	default:
		return 2
	}
}

// Transcript is Store A: one row per completed turn.
type Transcript struct {
	ID            string         `json:"id"`
	UserID        string         `json:"user_id"`
	SessionID     string         `json:"session_id,omitempty"`
	ThreadID      string         `json:"thread_id,omitempty"`
	TurnIndex     int            `json:"turn_index,omitempty"`
	UserText      string         `json:"user_text"`
	BotText       string         `json:"bot_text"`
	Entities      []string       `json:"entities,omitempty"`
	Topic         string         `json:"topic,omitempty"`
	Importance    float64        `json:"importance,omitempty"`
	ShortContext  string         `json:"short_context,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// NoteType classifies a DerivedNote.
type NoteType string

const (
	NoteFact       NoteType = "fact"
	NotePreference NoteType = "preference"
	NoteActivity   NoteType = "activity"
	NoteDecision   NoteType = "decision"
	NoteOther      NoteType = "other"
)

// DerivedNote is Store B: a per-note record linked to a transcript.
type DerivedNote struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	TranscriptID  string    `json:"transcript_id"`
	NoteType      NoteType  `json:"note_type"`
	Content       string    `json:"content"`
	Importance    float64   `json:"importance,omitempty"`
	SourcePointer string    `json:"source_pointer"`
	CreatedAt     time.Time `json:"created_at"`
}

// State is the full per-(bot,user) state handled by the Store adapter and
// threaded through the turn pipeline.
type State struct {
	Bot  Bot
	User User
	// RecentMessages is capped at 20, ordered chronologically (see Store.LoadState).
	RecentMessages []Message
}
