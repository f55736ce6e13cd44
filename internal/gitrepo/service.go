// Package gitrepo keeps one git repository per sheet and commits a JSON
// snapshot of the sheet on every save.
package gitrepo

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"sheets/api/internal/store"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const snapshotFile = "sheet.json"

var ErrNoHistory = errors.New("sheet has no history")

type Snapshot struct {
	Title   string            `json:"title"`
	Status  int               `json:"status"`
	Group   string            `json:"group,omitempty"`
	URL     string            `json:"url,omitempty"`
	Sources []json.RawMessage `json:"sources"`
}

func SnapshotOf(sheet store.Sheet) Snapshot {
	sources := sheet.Sources
	if sources == nil {
		sources = []json.RawMessage{}
	}
	return Snapshot{
		Title:   sheet.Title,
		Status:  sheet.Status,
		Group:   sheet.Group,
		URL:     sheet.URL,
		Sources: sources,
	}
}

type FieldChange struct {
	Field  string `json:"field"`
	Before string `json:"before"`
	After  string `json:"after"`
}

type Revision struct {
	Commit   store.CommitInfo `json:"commit"`
	Snapshot Snapshot         `json:"snapshot"`
	Changes  []FieldChange    `json:"changes"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[int64]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[int64]*sync.Mutex),
	}
}

// CommitSheet writes snap into the sheet's repository, creating the
// repository on first use.
func (s *Service) CommitSheet(sheetID int64, snap Snapshot, author, message string) (store.CommitInfo, error) {
	lock := s.sheetLock(sheetID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(sheetID)
	if err != nil {
		return store.CommitInfo{}, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.repoPath(sheetID), snapshotFile), append(payload, '\n'), 0o644); err != nil {
		return store.CommitInfo{}, fmt.Errorf("write %s: %w", snapshotFile, err)
	}
	if _, err := worktree.Add(snapshotFile); err != nil {
		return store.CommitInfo{}, fmt.Errorf("git add snapshot: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@sheets.local", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("commit snapshot: %w", err)
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

// History lists commits newest first. A sheet that was never committed has
// an empty history.
func (s *Service) History(sheetID int64, limit int) ([]store.CommitInfo, error) {
	lock := s.sheetLock(sheetID)
	lock.Lock()
	defer lock.Unlock()

	items := make([]store.CommitInfo, 0)
	repo, err := git.PlainOpen(s.repoPath(sheetID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return items, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}
	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// Revision loads the snapshot at hash together with the fields that changed
// relative to its parent commit.
func (s *Service) Revision(sheetID int64, hash string) (Revision, error) {
	lock := s.sheetLock(sheetID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(sheetID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return Revision{}, ErrNoHistory
	}
	if err != nil {
		return Revision{}, fmt.Errorf("open repo: %w", err)
	}

	resolved, err := resolveHash(repo, hash)
	if err != nil {
		return Revision{}, err
	}
	commitObj, err := repo.CommitObject(resolved)
	if err != nil {
		return Revision{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	snap, err := readSnapshot(commitObj)
	if err != nil {
		return Revision{}, err
	}

	var previous Snapshot
	if commitObj.NumParents() > 0 {
		parent, err := commitObj.Parent(0)
		if err != nil {
			return Revision{}, fmt.Errorf("read parent of %s: %w", hash, err)
		}
		if previous, err = readSnapshot(parent); err != nil {
			return Revision{}, err
		}
	}

	return Revision{
		Commit:   toCommitInfo(commitObj),
		Snapshot: snap,
		Changes:  DiffFields(previous, snap),
	}, nil
}

func (s *Service) repoPath(sheetID int64) string {
	return filepath.Join(s.baseDir, strconv.FormatInt(sheetID, 10))
}

func (s *Service) sheetLock(sheetID int64) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[sheetID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[sheetID] = lock
	return lock
}

func (s *Service) openOrInit(sheetID int64) (*git.Repository, error) {
	path := s.repoPath(sheetID)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInitWithOptions(path, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.Main},
	})
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	return repo, nil
}

func readSnapshot(commitObj *object.Commit) (Snapshot, error) {
	file, err := commitObj.File(snapshotFile)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load %s from commit: %w", snapshotFile, err)
	}
	contents, err := file.Contents()
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(contents), &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// DiffFields reports scalar fields verbatim and summarises the source list.
func DiffFields(from, to Snapshot) []FieldChange {
	result := make([]FieldChange, 0)
	add := func(field, before, after string) {
		if before != after {
			result = append(result, FieldChange{Field: field, Before: before, After: after})
		}
	}
	add("group", from.Group, to.Group)
	add("status", strconv.Itoa(from.Status), strconv.Itoa(to.Status))
	add("title", from.Title, to.Title)
	add("url", from.URL, to.URL)
	switch {
	case len(from.Sources) != len(to.Sources):
		add("sources", sourceCount(len(from.Sources)), sourceCount(len(to.Sources)))
	case !sameSources(from.Sources, to.Sources):
		result = append(result, FieldChange{Field: "sources", Before: "[edited]", After: "[edited]"})
	}
	return result
}

func sourceCount(n int) string {
	if n == 1 {
		return "1 source"
	}
	return strconv.Itoa(n) + " sources"
}

func sameSources(a, b []json.RawMessage) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !bytes.Equal(normalizeJSON(a[i]), normalizeJSON(b[i])) {
			return false
		}
	}
	return true
}

func normalizeJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return raw
	}
	normalized, err := json.Marshal(parsed)
	if err != nil {
		return raw
	}
	return normalized
}

func toCommitInfo(commitObj *object.Commit) store.CommitInfo {
	return store.CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
