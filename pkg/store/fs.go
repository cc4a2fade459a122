package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/persona-core/pkg/model"
	"github.com/kadirpekel/persona-core/pkg/profile"
)

// FSStore is the filesystem fallback backend (section 4.1: "missing
// DATABASE_URL falls back to local filesystem store with the same
// interface"). One directory per bot holds bot.json; one subdirectory per
// (bot, external user id) holds relationship.json plus append-only JSONL
// logs.
type FSStore struct {
	baseDir string
	mu      sync.Mutex
}

// NewFSStore opens (creating if absent) a filesystem-backed Store rooted at
// baseDir.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("store: creating base dir: %w", err)
	}
	return &FSStore{baseDir: baseDir}, nil
}

func (s *FSStore) botDir(botID string) string {
	return filepath.Join(s.baseDir, safeSegment(botID))
}

func (s *FSStore) userDir(botID, externalID string) string {
	return filepath.Join(s.botDir(botID), safeSegment(externalID))
}

// safeSegment prevents an id containing path separators from escaping the
// store root.
func safeSegment(id string) string {
	return filepath.Base(filepath.Clean("/" + id))
}

type fsRelationship struct {
	User model.User `json:"user"`
}

func (s *FSStore) LoadState(ctx context.Context, userExtID, botID string) (*model.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bot, err := s.loadOrCreateBot(botID)
	if err != nil {
		return nil, err
	}

	userDir := s.userDir(botID, userExtID)
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		return nil, fmt.Errorf("store: creating user dir: %w", err)
	}

	user, created, err := s.loadOrCreateUser(userDir, botID, userExtID)
	if err != nil {
		return nil, err
	}
	if !created {
		prior := user.Dimensions
		user.Dimensions = BackfillDimensions(user.Dimensions, prior)
	}

	messages, err := s.loadRecentMessages(userDir)
	if err != nil {
		return nil, err
	}

	return &model.State{Bot: *bot, User: *user, RecentMessages: messages}, nil
}

func (s *FSStore) loadOrCreateBot(botID string) (*model.Bot, error) {
	dir := s.botDir(botID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: creating bot dir: %w", err)
	}
	path := filepath.Join(dir, "bot.json")

	raw, err := os.ReadFile(path)
	if err == nil {
		var bot model.Bot
		if uerr := json.Unmarshal(raw, &bot); uerr != nil {
			return nil, fmt.Errorf("store: parsing bot.json: %w", uerr)
		}
		return &bot, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("store: reading bot.json: %w", err)
	}

	basicInfo, bigFive, persona := profile.BotProfile(botID)
	bot := model.Bot{
		ID:        botID,
		Name:      fmt.Sprintf("%v", persona["name"]),
		BasicInfo: basicInfo,
		BigFive:   bigFive,
		Persona:   persona,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.writeJSON(path, bot); err != nil {
		return nil, err
	}
	return &bot, nil
}

func (s *FSStore) loadOrCreateUser(userDir, botID, externalID string) (*model.User, bool, error) {
	path := filepath.Join(userDir, "relationship.json")

	raw, err := os.ReadFile(path)
	if err == nil {
		var rel fsRelationship
		if uerr := json.Unmarshal(raw, &rel); uerr != nil {
			return nil, false, fmt.Errorf("store: parsing relationship.json: %w", uerr)
		}
		return &rel.User, false, nil
	}
	if !os.IsNotExist(err) {
		return nil, false, fmt.Errorf("store: reading relationship.json: %w", err)
	}

	basicInfo, inferredProfile := profile.UserProfile(externalID)
	now := time.Now().UTC()
	user := model.User{
		ID:              uuid.NewString(),
		BotID:           botID,
		ExternalID:      externalID,
		BasicInfo:       basicInfo,
		CurrentStage:    model.StageInitiating,
		Dimensions:      model.DefaultDimensions(),
		Mood:            model.DefaultMood(),
		InferredProfile: inferredProfile,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.writeJSON(path, fsRelationship{User: user}); err != nil {
		return nil, false, err
	}
	return &user, true, nil
}

func (s *FSStore) loadRecentMessages(userDir string) ([]model.Message, error) {
	messages, err := readJSONL[model.Message](filepath.Join(userDir, "messages.jsonl"), 0)
	if err != nil {
		return nil, err
	}
	SortMessages(messages)
	if len(messages) > RecentMessageCap {
		messages = messages[len(messages)-RecentMessageCap:]
	}
	return messages, nil
}

func (s *FSStore) SaveTurn(ctx context.Context, userExtID, botID string, state *model.State, userText, aiText string, newMemory *NewMemory) ([]DimensionAudit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userDir := s.userDir(botID, userExtID)

	now := time.Now().UTC()
	userMsg := model.Message{ID: uuid.NewString(), UserID: state.User.ID, Role: model.RoleUser, Content: userText, CreatedAt: now}
	aiMsg := model.Message{ID: uuid.NewString(), UserID: state.User.ID, Role: model.RoleAI, Content: aiText, CreatedAt: now.Add(time.Millisecond)}
	if err := appendJSONL(filepath.Join(userDir, "messages.jsonl"), userMsg, aiMsg); err != nil {
		return nil, err
	}

	path := filepath.Join(userDir, "relationship.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("store: reading relationship.json for save: %w", err)
	}
	var rel fsRelationship
	if err := json.Unmarshal(raw, &rel); err != nil {
		return nil, fmt.Errorf("store: parsing relationship.json for save: %w", err)
	}

	oldDims := rel.User.Dimensions
	clamped, audits := ClampAllDimensions(oldDims, state.User.Dimensions)

	rel.User = state.User
	rel.User.Dimensions = clamped
	rel.User.UpdatedAt = now

	if err := s.writeJSON(path, rel); err != nil {
		return nil, err
	}

	if newMemory != nil {
		if newMemory.Transcript != nil {
			if _, err := s.appendTranscriptLocked(userDir, *newMemory.Transcript); err != nil {
				return nil, err
			}
			if len(newMemory.Notes) > 0 {
				if err := s.appendNotesLocked(userDir, newMemory.Notes); err != nil {
					return nil, err
				}
			}
		}
		if err := appendJSONL(filepath.Join(userDir, "memories.jsonl"), map[string]any{
			"turn_at":    now,
			"user_text":  userText,
			"ai_text":    aiText,
			"notes":      len(newMemory.Notes),
			"dimensions": audits,
		}); err != nil {
			return nil, err
		}
	}

	return audits, nil
}

func (s *FSStore) AppendTranscript(ctx context.Context, relationshipID string, t model.Transcript) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	userDir, err := s.findUserDirByRelationshipID(relationshipID)
	if err != nil {
		return "", err
	}
	return s.appendTranscriptLocked(userDir, t)
}

func (s *FSStore) appendTranscriptLocked(userDir string, t model.Transcript) (string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if err := appendJSONL(filepath.Join(userDir, "transcripts.jsonl"), t); err != nil {
		return "", err
	}
	return t.ID, nil
}

func (s *FSStore) AppendNotes(ctx context.Context, relationshipID, transcriptID string, notes []model.DerivedNote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	userDir, err := s.findUserDirByRelationshipID(relationshipID)
	if err != nil {
		return err
	}
	for i := range notes {
		notes[i].TranscriptID = transcriptID
	}
	return s.appendNotesLocked(userDir, notes)
}

func (s *FSStore) appendNotesLocked(userDir string, notes []model.DerivedNote) error {
	for i := range notes {
		if notes[i].ID == "" {
			notes[i].ID = uuid.NewString()
		}
		if notes[i].CreatedAt.IsZero() {
			notes[i].CreatedAt = time.Now().UTC()
		}
	}
	items := make([]any, len(notes))
	for i, n := range notes {
		items[i] = n
	}
	return appendJSONL(filepath.Join(userDir, "derived_notes.jsonl"), items...)
}

func (s *FSStore) SearchTranscripts(ctx context.Context, relationshipID, query string, limit, scanLimit int) ([]model.Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	userDir, err := s.findUserDirByRelationshipID(relationshipID)
	if err != nil {
		return nil, err
	}
	if scanLimit <= 0 {
		scanLimit = DefaultScanLimit
	}
	all, err := readJSONL[model.Transcript](filepath.Join(userDir, "transcripts.jsonl"), scanLimit)
	if err != nil {
		return nil, err
	}
	return RankTranscripts(all, query, limit), nil
}

func (s *FSStore) SearchNotes(ctx context.Context, relationshipID, query string, limit, scanLimit int) ([]model.DerivedNote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	userDir, err := s.findUserDirByRelationshipID(relationshipID)
	if err != nil {
		return nil, err
	}
	if scanLimit <= 0 {
		scanLimit = NotesScanLimit
	}
	all, err := readJSONL[model.DerivedNote](filepath.Join(userDir, "derived_notes.jsonl"), scanLimit)
	if err != nil {
		return nil, err
	}
	return RankNotes(all, query, limit), nil
}

func (s *FSStore) ClearAllMemoryFor(ctx context.Context, userExtID, botID string, resetProfile bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	userDir := s.userDir(botID, userExtID)

	for _, name := range []string{"messages.jsonl", "memories.jsonl", "transcripts.jsonl", "derived_notes.jsonl"} {
		if err := os.WriteFile(filepath.Join(userDir, name), nil, 0o644); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("store: clearing %s: %w", name, err)
		}
	}
	if resetProfile {
		if err := os.Remove(filepath.Join(userDir, "relationship.json")); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("store: resetting relationship.json: %w", err)
		}
	}
	return nil
}

// findUserDirByRelationshipID walks bot directories looking for the user
// subdirectory whose relationship.json carries this relationship id. The
// filesystem backend is a single-process fallback so this linear scan over
// a development-scale dataset is acceptable; production deployments use the
// SQL backend (see sql.go).
func (s *FSStore) findUserDirByRelationshipID(relationshipID string) (string, error) {
	botDirs, err := os.ReadDir(s.baseDir)
	if err != nil {
		return "", fmt.Errorf("store: scanning base dir: %w", err)
	}
	for _, bd := range botDirs {
		if !bd.IsDir() {
			continue
		}
		botPath := filepath.Join(s.baseDir, bd.Name())
		userDirs, err := os.ReadDir(botPath)
		if err != nil {
			continue
		}
		for _, ud := range userDirs {
			if !ud.IsDir() {
				continue
			}
			userPath := filepath.Join(botPath, ud.Name())
			raw, err := os.ReadFile(filepath.Join(userPath, "relationship.json"))
			if err != nil {
				continue
			}
			var rel fsRelationship
			if json.Unmarshal(raw, &rel) == nil && rel.User.ID == relationshipID {
				return userPath, nil
			}
		}
	}
	return "", fmt.Errorf("store: relationship %q: %w", relationshipID, ErrNotFound)
}

func (s *FSStore) writeJSON(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("store: writing %s: %w", filepath.Base(path), err)
	}
	return nil
}

func appendJSONL(path string, items ...any) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("store: opening %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("store: encoding line for %s: %w", filepath.Base(path), err)
		}
		if _, err := w.Write(raw); err != nil {
			return err
		}
		if _, err := w.WriteString("\n"); err != nil {
			return err
		}
	}
	return w.Flush()
}

// readJSONL reads up to scanLimit most recent lines (0 = unbounded) from a
// JSONL file, decoding each into T. A missing file yields an empty slice.
func readJSONL[T any](path string, scanLimit int) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: opening %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("store: scanning %s: %w", filepath.Base(path), err)
	}

	if scanLimit > 0 && len(lines) > scanLimit {
		lines = lines[len(lines)-scanLimit:]
	}

	out := make([]T, 0, len(lines))
	for _, line := range lines {
		var v T
		if err := json.Unmarshal([]byte(line), &v); err != nil {
			return nil, fmt.Errorf("store: decoding line in %s: %w", filepath.Base(path), err)
		}
		out = append(out, v)
	}
	return out, nil
}
