// Package ctxinherit persists session summaries to disk and resolves them
// into a synthetic system message at the start of a new session. Writers use
// whole-file replace (write temp, rename) so a reader never observes a
// partially-written file.
package ctxinherit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/contextkeep/contextkeep/types"
)

// SummaryType names the kind of content an InheritedSummary carries.
type SummaryType string

// Summary types.
const (
	SummaryFull         SummaryType = "full"
	SummaryTask         SummaryType = "task"
	SummaryDecisions    SummaryType = "decisions"
	SummaryCodeChanges  SummaryType = "code_changes"
)

// InheritType names the caller-facing filter category, mapped to one or more
// SummaryType values via inheritTypeMapping.
type InheritType string

// Inherit types a caller can request.
const (
	InheritSummary      InheritType = "summary"
	InheritDecisions    InheritType = "decisions"
	InheritCodeState    InheritType = "code_state"
	InheritPendingTasks InheritType = "pending_tasks"
)

var inheritTypeMapping = map[InheritType][]SummaryType{
	InheritSummary:      {SummaryFull, SummaryTask},
	InheritDecisions:    {SummaryDecisions},
	InheritCodeState:    {SummaryCodeChanges},
	InheritPendingTasks: {SummaryTask},
}

// Source selects how resolveInheritance picks its result.
type Source string

// Resolution sources.
const (
	SourceManual        Source = "manual"
	SourceLastSession   Source = "last_session"
	SourceProjectContext Source = "project_context"
)

// InheritedSummary is one persisted summary from a prior session.
type InheritedSummary struct {
	ID              string      `json:"id"`
	Content         string      `json:"content"`
	OriginalSession string      `json:"originalSession"`
	CreatedAt       time.Time   `json:"createdAt"`
	Type            SummaryType `json:"type"`
}

// InheritedContext is the result of a successful resolveInheritance call.
type InheritedContext struct {
	SourceSession string             `json:"sourceSession"`
	Summaries     []InheritedSummary `json:"summaries"`
}

// storedSessionData is the on-disk shape of session-<sanitizedId>.json.
type storedSessionData struct {
	SessionID   string             `json:"sessionId"`
	SavedAt     time.Time          `json:"savedAt"`
	ProjectPath string             `json:"projectPath,omitempty"`
	Summaries   []InheritedSummary `json:"summaries"`
	Metadata    map[string]any     `json:"metadata,omitempty"`
}

// sessionIndexEntry is one row of index.json.
type sessionIndexEntry struct {
	SessionID    string    `json:"sessionId"`
	SavedAt      time.Time `json:"savedAt"`
	ProjectPath  string    `json:"projectPath,omitempty"`
	SummaryCount int       `json:"summaryCount"`
}

// sessionIndex is the on-disk shape of index.json.
type sessionIndex struct {
	Version   int                 `json:"version"`
	UpdatedAt time.Time           `json:"updatedAt"`
	Sessions  []sessionIndexEntry `json:"sessions"`
}

// ProjectContext is the accumulated, per-project merge of decisions, code
// patterns, and task summaries across sessions.
type ProjectContext struct {
	ProjectPath   string    `json:"projectPath"`
	UpdatedAt     time.Time `json:"updatedAt"`
	Decisions     []string  `json:"decisions"`
	CodePatterns  []string  `json:"codePatterns"`
	TaskSummaries []string  `json:"taskSummaries"`
}

// maxIndexSessions and maxProjectContextItems are the caps spec'd in §4.8 and
// §6's on-disk layout.
const (
	maxIndexSessions       = 50
	maxProjectContextItems = 10
)

var invalidFilenameChar = regexp.MustCompile(`[^A-Za-z0-9_-]`)

func sanitizeSessionID(sessionID string) string {
	return "session-" + invalidFilenameChar.ReplaceAllString(sessionID, "_")
}

// Config configures a Store.
type Config struct {
	StorageDir           string
	Enabled              bool
	InheritTypes         []InheritType
	MaxInheritedSummaries int
	Source               Source
	Logger               func(msg string, args ...any)
}

func (c Config) normalized() Config {
	if c.MaxInheritedSummaries <= 0 {
		c.MaxInheritedSummaries = 10
	}
	if c.Source == "" {
		c.Source = SourceLastSession
	}
	if len(c.InheritTypes) == 0 {
		c.InheritTypes = []InheritType{InheritSummary, InheritDecisions, InheritCodeState, InheritPendingTasks}
	}
	if c.Logger == nil {
		c.Logger = func(string, ...any) {}
	}
	return c
}

// Store is the cross-session inheritance store: an on-disk index of prior
// session summaries plus a project-level accumulated-context file.
type Store struct {
	cfg Config
}

// NewStore creates an inheritance store rooted at cfg.StorageDir.
func NewStore(cfg Config) *Store {
	return &Store{cfg: cfg.normalized()}
}

func (s *Store) indexPath() string {
	return filepath.Join(s.cfg.StorageDir, "index.json")
}

func (s *Store) sessionPath(sessionID string) string {
	return filepath.Join(s.cfg.StorageDir, sanitizeSessionID(sessionID)+".json")
}

func (s *Store) projectContextPath() string {
	return filepath.Join(s.cfg.StorageDir, "project-context.json")
}

// writeFileAtomic writes data to a temp file in the same directory and
// renames it into place, so readers never observe a partial write.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// loadIndex reads index.json, returning a zero-value index if the file is
// absent or malformed (logged, not propagated — §7 InheritanceIOError).
func (s *Store) loadIndex() sessionIndex {
	raw, err := os.ReadFile(s.indexPath())
	if err != nil {
		if !os.IsNotExist(err) {
			s.cfg.Logger("ctxinherit: failed to read index", "error", err)
		}
		return sessionIndex{Version: 1}
	}
	var idx sessionIndex
	if err := json.Unmarshal(raw, &idx); err != nil {
		s.cfg.Logger("ctxinherit: malformed index", "error", err)
		return sessionIndex{Version: 1}
	}
	return idx
}

func (s *Store) saveIndex(idx sessionIndex) error {
	idx.Version = 1
	idx.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.indexPath(), data)
}

// LoadIndex exposes loadIndex per the spec's loadIndex() operation.
func (s *Store) LoadIndex() sessionIndex {
	return s.loadIndex()
}

// SaveSummaries filters summaries by the configured inheritTypes, truncates
// to maxInheritedSummaries, and persists them under sessionID. A filtered
// set of zero summaries is a no-op: no files are created. When disabled,
// SaveSummaries is always a no-op.
func (s *Store) SaveSummaries(sessionID string, summaries []InheritedSummary, projectPath string) error {
	if !s.cfg.Enabled {
		return nil
	}

	filtered := filterByInheritTypes(summaries, s.cfg.InheritTypes)
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) > s.cfg.MaxInheritedSummaries {
		filtered = filtered[:s.cfg.MaxInheritedSummaries]
	}

	now := time.Now()
	session := storedSessionData{
		SessionID:   sessionID,
		SavedAt:     now,
		ProjectPath: projectPath,
		Summaries:   filtered,
	}
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFileAtomic(s.sessionPath(sessionID), data); err != nil {
		return err
	}

	idx := s.loadIndex()
	entries := make([]sessionIndexEntry, 0, len(idx.Sessions)+1)
	for _, e := range idx.Sessions {
		if e.SessionID == sessionID {
			continue
		}
		entries = append(entries, e)
	}
	entries = append(entries, sessionIndexEntry{
		SessionID:    sessionID,
		SavedAt:      now,
		ProjectPath:  projectPath,
		SummaryCount: len(filtered),
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].SavedAt.After(entries[j].SavedAt) })

	var evicted []sessionIndexEntry
	if len(entries) > maxIndexSessions {
		evicted = entries[maxIndexSessions:]
		entries = entries[:maxIndexSessions]
	}

	if err := s.saveIndex(sessionIndex{Sessions: entries}); err != nil {
		return err
	}
	for _, e := range evicted {
		if err := os.Remove(s.sessionPath(e.SessionID)); err != nil && !os.IsNotExist(err) {
			s.cfg.Logger("ctxinherit: failed to remove evicted session file", "session", e.SessionID, "error", err)
		}
	}

	if err := s.updateProjectContext(projectPath, filtered); err != nil {
		s.cfg.Logger("ctxinherit: failed to update project context", "error", err)
	}

	return nil
}

func filterByInheritTypes(summaries []InheritedSummary, inheritTypes []InheritType) []InheritedSummary {
	allowed := make(map[SummaryType]bool)
	for _, it := range inheritTypes {
		for _, st := range inheritTypeMapping[it] {
			allowed[st] = true
		}
	}
	out := make([]InheritedSummary, 0, len(summaries))
	for _, sum := range summaries {
		if allowed[sum.Type] {
			out = append(out, sum)
		}
	}
	return out
}

func (s *Store) loadProjectContextMap() map[string]ProjectContext {
	raw, err := os.ReadFile(s.projectContextPath())
	if err != nil {
		return map[string]ProjectContext{}
	}
	var m map[string]ProjectContext
	if err := json.Unmarshal(raw, &m); err != nil {
		s.cfg.Logger("ctxinherit: malformed project context", "error", err)
		return map[string]ProjectContext{}
	}
	return m
}

// updateProjectContext merges fresh decisions and task summaries into the
// project-context file, deduplicating by content and capping each list at
// maxProjectContextItems newest.
func (s *Store) updateProjectContext(projectPath string, summaries []InheritedSummary) error {
	if projectPath == "" {
		return nil
	}

	m := s.loadProjectContextMap()
	existing := m[projectPath]
	existing.ProjectPath = projectPath

	for _, sum := range summaries {
		switch sum.Type {
		case SummaryDecisions:
			existing.Decisions = dedupPrepend(existing.Decisions, sum.Content, maxProjectContextItems)
		case SummaryTask:
			existing.TaskSummaries = dedupPrepend(existing.TaskSummaries, sum.Content, maxProjectContextItems)
		case SummaryCodeChanges:
			existing.CodePatterns = dedupPrepend(existing.CodePatterns, sum.Content, maxProjectContextItems)
		}
	}
	existing.UpdatedAt = time.Now()
	m[projectPath] = existing

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.projectContextPath(), data)
}

// dedupPrepend inserts content at the front (newest-first) unless already
// present, then caps the list at max entries.
func dedupPrepend(items []string, content string, max int) []string {
	for _, existing := range items {
		if existing == content {
			return items
		}
	}
	out := append([]string{content}, items...)
	if len(out) > max {
		out = out[:max]
	}
	return out
}

// ResolveInheritance dispatches by the configured source:
// manual always resolves to nil; last_session prefers the newest index
// entry matching projectPath (falling back to the newest overall);
// project_context reads the project-context file directly.
func (s *Store) ResolveInheritance(projectPath string) (*InheritedContext, error) {
	if !s.cfg.Enabled {
		return nil, nil
	}

	switch s.cfg.Source {
	case SourceManual:
		return nil, nil
	case SourceProjectContext:
		return s.resolveProjectContext(projectPath)
	case SourceLastSession:
		fallthrough
	default:
		return s.resolveLastSession(projectPath)
	}
}

func (s *Store) resolveLastSession(projectPath string) (*InheritedContext, error) {
	idx := s.loadIndex()
	if len(idx.Sessions) == 0 {
		return nil, nil
	}

	sorted := append([]sessionIndexEntry(nil), idx.Sessions...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SavedAt.After(sorted[j].SavedAt) })

	var chosen *sessionIndexEntry
	if projectPath != "" {
		for i := range sorted {
			if sorted[i].ProjectPath == projectPath {
				chosen = &sorted[i]
				break
			}
		}
	}
	if chosen == nil {
		chosen = &sorted[0]
	}

	raw, err := os.ReadFile(s.sessionPath(chosen.SessionID))
	if err != nil {
		s.cfg.Logger("ctxinherit: failed to read session file", "session", chosen.SessionID, "error", err)
		return nil, nil
	}
	var session storedSessionData
	if err := json.Unmarshal(raw, &session); err != nil {
		s.cfg.Logger("ctxinherit: malformed session file", "session", chosen.SessionID, "error", err)
		return nil, nil
	}

	return &InheritedContext{SourceSession: session.SessionID, Summaries: session.Summaries}, nil
}

func (s *Store) resolveProjectContext(projectPath string) (*InheritedContext, error) {
	if projectPath == "" {
		return nil, nil
	}
	m := s.loadProjectContextMap()
	pc, ok := m[projectPath]
	if !ok {
		return nil, nil
	}

	var summaries []InheritedSummary
	for _, d := range pc.Decisions {
		summaries = append(summaries, InheritedSummary{Content: d, Type: SummaryDecisions, CreatedAt: pc.UpdatedAt})
	}
	for _, t := range pc.TaskSummaries {
		summaries = append(summaries, InheritedSummary{Content: t, Type: SummaryTask, CreatedAt: pc.UpdatedAt})
	}
	for _, c := range pc.CodePatterns {
		summaries = append(summaries, InheritedSummary{Content: c, Type: SummaryCodeChanges, CreatedAt: pc.UpdatedAt})
	}
	if len(summaries) == 0 {
		return nil, nil
	}
	return &InheritedContext{SourceSession: projectPath, Summaries: summaries}, nil
}

// GetLastSessionInfo returns the newest session's id and save time, or ok=false
// if no sessions are recorded.
func (s *Store) GetLastSessionInfo() (sessionID string, savedAt time.Time, ok bool) {
	idx := s.loadIndex()
	if len(idx.Sessions) == 0 {
		return "", time.Time{}, false
	}
	newest := idx.Sessions[0]
	for _, e := range idx.Sessions[1:] {
		if e.SavedAt.After(newest.SavedAt) {
			newest = e
		}
	}
	return newest.SessionID, newest.SavedAt, true
}

// Cleanup removes index entries (and their session files) older than maxAge,
// returning the number removed. maxAge <= 0 is a no-op.
func (s *Store) Cleanup(maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}
	idx := s.loadIndex()
	cutoff := time.Now().Add(-maxAge)

	kept := make([]sessionIndexEntry, 0, len(idx.Sessions))
	removed := 0
	for _, e := range idx.Sessions {
		if e.SavedAt.Before(cutoff) {
			if err := os.Remove(s.sessionPath(e.SessionID)); err != nil && !os.IsNotExist(err) {
				s.cfg.Logger("ctxinherit: failed to remove expired session file", "session", e.SessionID, "error", err)
			}
			removed++
			continue
		}
		kept = append(kept, e)
	}
	if removed == 0 {
		return 0
	}
	if err := s.saveIndex(sessionIndex{Sessions: kept}); err != nil {
		s.cfg.Logger("ctxinherit: failed to persist index after cleanup", "error", err)
	}
	return removed
}

// FormatAsMessage groups an InheritedContext's summaries by type and renders
// a single system-role markdown message.
func FormatAsMessage(inherited InheritedContext) types.Message {
	var b strings.Builder
	b.WriteString("## Inherited Context from Previous Session\n\n")

	byType := make(map[SummaryType][]InheritedSummary)
	for _, sum := range inherited.Summaries {
		byType[sum.Type] = append(byType[sum.Type], sum)
	}

	writeSection := func(title string, st SummaryType) {
		items := byType[st]
		if len(items) == 0 {
			return
		}
		b.WriteString(fmt.Sprintf("### %s\n\n", title))
		for _, item := range items {
			b.WriteString(item.Content)
			b.WriteString("\n\n")
		}
	}

	writeSection("Session Summary", SummaryFull)
	writeSection("Key Decisions", SummaryDecisions)
	writeSection("Code Changes", SummaryCodeChanges)
	writeSection("Task Summary", SummaryTask)

	return types.Message{
		Role:      types.RoleSystem,
		Content:   strings.TrimRight(b.String(), "\n"),
		CreatedAt: time.Now(),
		Metadata: map[string]any{
			"isInherited":   true,
			"sourceSession": inherited.SourceSession,
		},
	}
}
