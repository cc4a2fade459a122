package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	// Database drivers, matched to the teacher's
	// pkg/memory/session_service_sql.go blank-import set (trimmed to the
	// two dialects this adapter supports; MySQL is not part of the
	// configured storage_driver surface — see DESIGN.md).
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kadirpekel/persona-core/pkg/model"
	"github.com/kadirpekel/persona-core/pkg/profile"
)

// SQLStore implements Store over database/sql, supporting "postgres" and
// "sqlite" dialects, schema initialized idempotently with CREATE TABLE IF
// NOT EXISTS, grounded on the teacher's SQLSessionService.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

const createSchemaSQL = `
CREATE TABLE IF NOT EXISTS bots (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    basic_info TEXT,
    big_five TEXT,
    persona TEXT,
    character_sidewrite TEXT,
    backlog_tasks TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    bot_id TEXT NOT NULL,
    external_id TEXT NOT NULL,
    basic_info TEXT,
    current_stage TEXT NOT NULL,
    dimensions TEXT,
    mood TEXT,
    inferred_profile TEXT,
    assets TEXT,
    spt_info TEXT,
    conversation_summary TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_bot_external ON users(bot_id, external_id);

CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    meta TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_user_id ON messages(user_id, created_at);

CREATE TABLE IF NOT EXISTS transcripts (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    session_id TEXT,
    thread_id TEXT,
    turn_index INTEGER,
    user_text TEXT,
    bot_text TEXT,
    entities TEXT,
    topic TEXT,
    importance REAL,
    short_context TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transcripts_user_id ON transcripts(user_id, created_at);

CREATE TABLE IF NOT EXISTS derived_notes (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    transcript_id TEXT NOT NULL,
    note_type TEXT NOT NULL,
    content TEXT NOT NULL,
    importance REAL,
    source_pointer TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notes_user_id ON derived_notes(user_id, created_at);
`

// NewSQLStore opens db (already connected, driverName matching dialect) and
// initializes the schema.
func NewSQLStore(db *sql.DB, dialect string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("store: database connection is required")
	}
	switch dialect {
	case "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("store: unsupported dialect %q", dialect)
	}
	s := &SQLStore{db: db, dialect: dialect}
	if _, err := db.Exec(createSchemaSQL); err != nil {
		return nil, fmt.Errorf("store: initializing schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) LoadState(ctx context.Context, userExtID, botID string) (*model.State, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin load tx: %w", err)
	}
	defer tx.Rollback()

	bot, err := s.loadOrCreateBotTx(ctx, tx, botID)
	if err != nil {
		return nil, err
	}

	user, created, err := s.loadOrCreateUserTx(ctx, tx, botID, userExtID)
	if err != nil {
		return nil, err
	}
	if !created {
		user.Dimensions = BackfillDimensions(user.Dimensions, user.Dimensions)
	}

	messages, err := s.loadRecentMessagesTx(ctx, tx, user.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit load tx: %w", err)
	}

	return &model.State{Bot: *bot, User: *user, RecentMessages: messages}, nil
}

func (s *SQLStore) loadOrCreateBotTx(ctx context.Context, tx *sql.Tx, botID string) (*model.Bot, error) {
	row := tx.QueryRowContext(ctx, rebindQuery(s.dialect, `SELECT id, name, basic_info, big_five, persona, character_sidewrite, backlog_tasks, created_at FROM bots WHERE id = ?`), botID)
	var bot model.Bot
	var basicInfo, bigFive, persona, tasksJSON sql.NullString
	err := row.Scan(&bot.ID, &bot.Name, &basicInfo, &bigFive, &persona, &bot.CharacterSidewrite, &tasksJSON, &bot.CreatedAt)
	if err == nil {
		_ = json.Unmarshal([]byte(basicInfo.String), &bot.BasicInfo)
		_ = json.Unmarshal([]byte(bigFive.String), &bot.BigFive)
		_ = json.Unmarshal([]byte(persona.String), &bot.Persona)
		_ = json.Unmarshal([]byte(tasksJSON.String), &bot.BacklogTasks)
		return &bot, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("store: loading bot: %w", err)
	}

	basicInfoMap, bigFiveV, personaMap := profile.BotProfile(botID)
	bot = model.Bot{
		ID:        botID,
		Name:      fmt.Sprintf("%v", personaMap["name"]),
		BasicInfo: basicInfoMap,
		BigFive:   bigFiveV,
		Persona:   personaMap,
		CreatedAt: time.Now().UTC(),
	}
	basicJSON, _ := json.Marshal(bot.BasicInfo)
	bigFiveJSON, _ := json.Marshal(bot.BigFive)
	personaJSON, _ := json.Marshal(bot.Persona)
	tasksJSONOut, _ := json.Marshal(bot.BacklogTasks)

	_, err = tx.ExecContext(ctx,
		rebindQuery(s.dialect, `INSERT INTO bots (id, name, basic_info, big_five, persona, character_sidewrite, backlog_tasks, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		bot.ID, bot.Name, string(basicJSON), string(bigFiveJSON), string(personaJSON), bot.CharacterSidewrite, string(tasksJSONOut), bot.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: inserting bot: %w", err)
	}
	return &bot, nil
}

func (s *SQLStore) loadOrCreateUserTx(ctx context.Context, tx *sql.Tx, botID, externalID string) (*model.User, bool, error) {
	row := tx.QueryRowContext(ctx,
		rebindQuery(s.dialect, `SELECT id, bot_id, external_id, basic_info, current_stage, dimensions, mood, inferred_profile, assets, spt_info, conversation_summary, created_at, updated_at FROM users WHERE bot_id = ? AND external_id = ?`),
		botID, externalID)

	var user model.User
	var basicInfo, dims, mood, inferred, assets, spt sql.NullString
	err := row.Scan(&user.ID, &user.BotID, &user.ExternalID, &basicInfo, &user.CurrentStage, &dims, &mood, &inferred, &assets, &spt, &user.ConversationSummary, &user.CreatedAt, &user.UpdatedAt)
	if err == nil {
		_ = json.Unmarshal([]byte(basicInfo.String), &user.BasicInfo)
		_ = json.Unmarshal([]byte(dims.String), &user.Dimensions)
		_ = json.Unmarshal([]byte(mood.String), &user.Mood)
		_ = json.Unmarshal([]byte(inferred.String), &user.InferredProfile)
		_ = json.Unmarshal([]byte(assets.String), &user.Assets)
		_ = json.Unmarshal([]byte(spt.String), &user.SPT)
		return &user, false, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("store: loading user: %w", err)
	}

	basicInfoMap, inferredMap := profile.UserProfile(externalID)
	now := time.Now().UTC()
	user = model.User{
		ID:              uuid.NewString(),
		BotID:           botID,
		ExternalID:      externalID,
		BasicInfo:       basicInfoMap,
		CurrentStage:    model.StageInitiating,
		Dimensions:      model.DefaultDimensions(),
		Mood:            model.DefaultMood(),
		InferredProfile: inferredMap,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	basicJSON, _ := json.Marshal(user.BasicInfo)
	dimsJSON, _ := json.Marshal(user.Dimensions)
	moodJSON, _ := json.Marshal(user.Mood)
	inferredJSON, _ := json.Marshal(user.InferredProfile)
	assetsJSON, _ := json.Marshal(user.Assets)
	sptJSON, _ := json.Marshal(user.SPT)

	_, err = tx.ExecContext(ctx,
		rebindQuery(s.dialect, `INSERT INTO users (id, bot_id, external_id, basic_info, current_stage, dimensions, mood, inferred_profile, assets, spt_info, conversation_summary, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		user.ID, user.BotID, user.ExternalID, string(basicJSON), user.CurrentStage, string(dimsJSON), string(moodJSON), string(inferredJSON), string(assetsJSON), string(sptJSON), user.ConversationSummary, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("store: inserting user: %w", err)
	}
	return &user, true, nil
}

func (s *SQLStore) loadRecentMessagesTx(ctx context.Context, tx *sql.Tx, userID string) ([]model.Message, error) {
	rows, err := tx.QueryContext(ctx,
		rebindQuery(s.dialect, `SELECT id, user_id, role, content, meta, created_at FROM messages WHERE user_id = ? ORDER BY created_at DESC, role ASC, id DESC LIMIT ?`),
		userID, RecentMessageCap)
	if err != nil {
		return nil, fmt.Errorf("store: querying messages: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var m model.Message
		var meta sql.NullString
		if err := rows.Scan(&m.ID, &m.UserID, &m.Role, &m.Content, &meta, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scanning message: %w", err)
		}
		if meta.Valid {
			_ = json.Unmarshal([]byte(meta.String), &m.Meta)
		}
		messages = append(messages, m)
	}
	SortMessages(messages)
	return messages, rows.Err()
}

func (s *SQLStore) SaveTurn(ctx context.Context, userExtID, botID string, state *model.State, userText, aiText string, newMemory *NewMemory) ([]DimensionAudit, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin save tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	userMsg := model.Message{ID: uuid.NewString(), UserID: state.User.ID, Role: model.RoleUser, Content: userText, CreatedAt: now}
	aiMsg := model.Message{ID: uuid.NewString(), UserID: state.User.ID, Role: model.RoleAI, Content: aiText, CreatedAt: now.Add(time.Millisecond)}
	for _, m := range []model.Message{userMsg, aiMsg} {
		metaJSON, _ := json.Marshal(m.Meta)
		if _, err := tx.ExecContext(ctx,
			rebindQuery(s.dialect, `INSERT INTO messages (id, user_id, role, content, meta, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
			m.ID, m.UserID, m.Role, m.Content, string(metaJSON), m.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: inserting message: %w", err)
		}
	}

	row := tx.QueryRowContext(ctx, rebindQuery(s.dialect, `SELECT dimensions FROM users WHERE id = ?`), state.User.ID)
	var dimsJSON sql.NullString
	if err := row.Scan(&dimsJSON); err != nil {
		return nil, fmt.Errorf("store: loading pre-turn dimensions: %w", err)
	}
	var oldDims model.RelationshipDimensions
	_ = json.Unmarshal([]byte(dimsJSON.String), &oldDims)

	clamped, audits := ClampAllDimensions(oldDims, state.User.Dimensions)

	moodJSON, _ := json.Marshal(state.User.Mood)
	inferredJSON, _ := json.Marshal(state.User.InferredProfile)
	assetsJSON, _ := json.Marshal(state.User.Assets)
	sptJSON, _ := json.Marshal(state.User.SPT)
	clampedJSON, _ := json.Marshal(clamped)

	_, err = tx.ExecContext(ctx,
		rebindQuery(s.dialect, `UPDATE users SET current_stage = ?, dimensions = ?, mood = ?, inferred_profile = ?, assets = ?, spt_info = ?, conversation_summary = ?, updated_at = ? WHERE id = ?`),
		state.User.CurrentStage, string(clampedJSON), string(moodJSON), string(inferredJSON), string(assetsJSON), string(sptJSON), state.User.ConversationSummary, now, state.User.ID)
	if err != nil {
		return nil, fmt.Errorf("store: updating user: %w", err)
	}

	if newMemory != nil && newMemory.Transcript != nil {
		if _, err := s.insertTranscriptTx(ctx, tx, *newMemory.Transcript); err != nil {
			return nil, err
		}
		if err := s.insertNotesTx(ctx, tx, newMemory.Notes); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit save tx: %w", err)
	}
	return audits, nil
}

func (s *SQLStore) insertTranscriptTx(ctx context.Context, tx *sql.Tx, t model.Transcript) (string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	entitiesJSON, _ := json.Marshal(t.Entities)
	_, err := tx.ExecContext(ctx,
		rebindQuery(s.dialect, `INSERT INTO transcripts (id, user_id, session_id, thread_id, turn_index, user_text, bot_text, entities, topic, importance, short_context, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		t.ID, t.UserID, t.SessionID, t.ThreadID, t.TurnIndex, t.UserText, t.BotText, string(entitiesJSON), t.Topic, t.Importance, t.ShortContext, t.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("store: inserting transcript: %w", err)
	}
	return t.ID, nil
}

func (s *SQLStore) insertNotesTx(ctx context.Context, tx *sql.Tx, notes []model.DerivedNote) error {
	for _, n := range notes {
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = time.Now().UTC()
		}
		_, err := tx.ExecContext(ctx,
			rebindQuery(s.dialect, `INSERT INTO derived_notes (id, user_id, transcript_id, note_type, content, importance, source_pointer, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			n.ID, n.UserID, n.TranscriptID, n.NoteType, n.Content, n.Importance, n.SourcePointer, n.CreatedAt)
		if err != nil {
			return fmt.Errorf("store: inserting note: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) AppendTranscript(ctx context.Context, relationshipID string, t model.Transcript) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()
	t.UserID = relationshipID
	id, err := s.insertTranscriptTx(ctx, tx, t)
	if err != nil {
		return "", err
	}
	return id, tx.Commit()
}

func (s *SQLStore) AppendNotes(ctx context.Context, relationshipID, transcriptID string, notes []model.DerivedNote) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for i := range notes {
		notes[i].UserID = relationshipID
		notes[i].TranscriptID = transcriptID
	}
	if err := s.insertNotesTx(ctx, tx, notes); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) SearchTranscripts(ctx context.Context, relationshipID, query string, limit, scanLimit int) ([]model.Transcript, error) {
	if scanLimit <= 0 {
		scanLimit = DefaultScanLimit
	}
	rows, err := s.db.QueryContext(ctx,
		rebindQuery(s.dialect, `SELECT id, user_id, session_id, thread_id, turn_index, user_text, bot_text, entities, topic, importance, short_context, created_at FROM transcripts WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`),
		relationshipID, scanLimit)
	if err != nil {
		return nil, fmt.Errorf("store: querying transcripts: %w", err)
	}
	defer rows.Close()

	var transcripts []model.Transcript
	for rows.Next() {
		var t model.Transcript
		var entities sql.NullString
		if err := rows.Scan(&t.ID, &t.UserID, &t.SessionID, &t.ThreadID, &t.TurnIndex, &t.UserText, &t.BotText, &entities, &t.Topic, &t.Importance, &t.ShortContext, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scanning transcript: %w", err)
		}
		if entities.Valid {
			_ = json.Unmarshal([]byte(entities.String), &t.Entities)
		}
		transcripts = append(transcripts, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return RankTranscripts(transcripts, query, limit), nil
}

func (s *SQLStore) SearchNotes(ctx context.Context, relationshipID, query string, limit, scanLimit int) ([]model.DerivedNote, error) {
	if scanLimit <= 0 {
		scanLimit = NotesScanLimit
	}
	rows, err := s.db.QueryContext(ctx,
		rebindQuery(s.dialect, `SELECT id, user_id, transcript_id, note_type, content, importance, source_pointer, created_at FROM derived_notes WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`),
		relationshipID, scanLimit)
	if err != nil {
		return nil, fmt.Errorf("store: querying notes: %w", err)
	}
	defer rows.Close()

	var notes []model.DerivedNote
	for rows.Next() {
		var n model.DerivedNote
		if err := rows.Scan(&n.ID, &n.UserID, &n.TranscriptID, &n.NoteType, &n.Content, &n.Importance, &n.SourcePointer, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scanning note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return RankNotes(notes, query, limit), nil
}

func (s *SQLStore) ClearAllMemoryFor(ctx context.Context, userExtID, botID string, resetProfile bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, rebindQuery(s.dialect, `SELECT id FROM users WHERE bot_id = ? AND external_id = ?`), botID, userExtID)
	var userID string
	if err := row.Scan(&userID); err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return fmt.Errorf("store: finding user to clear: %w", err)
	}

	for _, table := range []string{"messages", "transcripts", "derived_notes"} {
		if _, err := tx.ExecContext(ctx, rebindQuery(s.dialect, fmt.Sprintf(`DELETE FROM %s WHERE user_id = ?`, table)), userID); err != nil {
			return fmt.Errorf("store: clearing %s: %w", table, err)
		}
	}

	if resetProfile {
		if _, err := tx.ExecContext(ctx, rebindQuery(s.dialect, `DELETE FROM users WHERE id = ?`), userID); err != nil {
			return fmt.Errorf("store: resetting user: %w", err)
		}
	}

	return tx.Commit()
}

// rebindQuery rewrites ? placeholders to $1, $2, ... for postgres; sqlite
// uses ? natively.
func rebindQuery(dialect, query string) string {
	if dialect != "postgres" {
		return query
	}
	out := make([]byte, 0, len(query)+8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			out = append(out, []byte(fmt.Sprintf("$%d", n))...)
			continue
		}
		out = append(out, query[i])
	}
	return string(out)
}
