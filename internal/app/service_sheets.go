package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"sheets/api/internal/export"
	"sheets/api/internal/gitrepo"
	"sheets/api/internal/rbac"
	"sheets/api/internal/search"
	"sheets/api/internal/store"
)

const (
	unknownAuthor = "Someone Mysterious"
	historyLimit  = 50
)

// sheetInput is the body of the json form field. Pointer fields distinguish
// "absent" from "zero" so updates only touch what was sent.
type sheetInput struct {
	ID      *int64            `json:"id"`
	Title   *string           `json:"title"`
	Status  *int              `json:"status"`
	Group   *string           `json:"group"`
	URL     *string           `json:"url"`
	Sources []json.RawMessage `json:"sources"`
}

// SheetList returns the publicly listed sheets, newest first.
func (s *Service) SheetList(ctx context.Context) (map[string]any, error) {
	sheets, err := s.store.ListSheetsByStatus(ctx, []int{int(rbac.StatusPublicView), int(rbac.StatusPublicEdit)})
	if err != nil {
		return nil, err
	}
	return map[string]any{"sheets": sheetListItems(sheets)}, nil
}

// UserSheetList returns the caller's own sheets other than topics.
func (s *Service) UserSheetList(ctx context.Context, session Session, userID int64) (map[string]any, error) {
	if !session.Authenticated() || session.UserID != userID {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", msgNotAuthorized, nil)
	}
	sheets, err := s.store.ListSheetsByOwner(ctx, userID, int(rbac.StatusTopic))
	if err != nil {
		return nil, err
	}
	return map[string]any{"sheets": sheetListItems(sheets)}, nil
}

func (s *Service) GetSheet(ctx context.Context, session Session, sheetID int64) (map[string]any, error) {
	sheet, err := s.viewableSheet(ctx, session, sheetID)
	if err != nil {
		return nil, err
	}
	payload := sheetPayload(sheet)
	payload["can_edit"] = rbac.CanEdit(sheet.Owner, rbac.Status(sheet.Status), session.Viewer())
	return payload, nil
}

// SaveSheet creates a sheet when the payload has no id and updates the
// existing one otherwise.
func (s *Service) SaveSheet(ctx context.Context, session Session, rawJSON string) (map[string]any, error) {
	if !session.Authenticated() {
		return nil, domainError(http.StatusUnauthorized, "LOGIN_REQUIRED", msgLoginToSave, nil)
	}
	if strings.TrimSpace(rawJSON) == "" {
		return nil, domainError(http.StatusBadRequest, "NO_JSON", msgNoJSON, nil)
	}
	var input sheetInput
	if err := json.Unmarshal([]byte(rawJSON), &input); err != nil {
		return nil, domainError(http.StatusBadRequest, "INVALID_JSON", "Invalid JSON given in post data.", nil)
	}

	var (
		saved   store.Sheet
		message string
		err     error
	)
	if input.ID != nil {
		saved, err = s.updateSheet(ctx, session, input)
		message = "Update sheet"
	} else {
		saved, err = s.createSheet(ctx, session, input)
		message = "Create sheet"
	}
	if err != nil {
		return nil, err
	}

	s.recordRevision(saved, session.UserName, message)
	return sheetPayload(saved), nil
}

func (s *Service) createSheet(ctx context.Context, session Session, input sheetInput) (store.Sheet, error) {
	sheet := store.Sheet{
		Owner:   session.UserID,
		Status:  int(rbac.StatusPrivate),
		Sources: input.Sources,
	}
	if input.Title != nil {
		sheet.Title = strings.TrimSpace(*input.Title)
	}
	if input.Status != nil {
		sheet.Status = *input.Status
	}
	if input.Group != nil {
		sheet.Group = strings.TrimSpace(*input.Group)
	}
	if input.URL != nil {
		sheet.URL = strings.TrimSpace(*input.URL)
	}
	if err := validateSharing(sheet, session); err != nil {
		return store.Sheet{}, err
	}
	return s.store.InsertSheet(ctx, sheet)
}

func (s *Service) updateSheet(ctx context.Context, session Session, input sheetInput) (store.Sheet, error) {
	existing, err := s.loadSheet(ctx, *input.ID)
	if err != nil {
		return store.Sheet{}, err
	}
	viewer := session.Viewer()
	if !rbac.CanEdit(existing.Owner, rbac.Status(existing.Status), viewer) {
		return store.Sheet{}, domainError(http.StatusForbidden, "FORBIDDEN", msgCannotEdit, nil)
	}

	merged := existing
	if input.Title != nil {
		merged.Title = strings.TrimSpace(*input.Title)
	}
	if input.Status != nil {
		merged.Status = *input.Status
	}
	if input.Group != nil {
		merged.Group = strings.TrimSpace(*input.Group)
	}
	if input.URL != nil {
		merged.URL = strings.TrimSpace(*input.URL)
	}
	sharingChanged := merged.Status != existing.Status || merged.Group != existing.Group || merged.URL != existing.URL
	if sharingChanged {
		if !rbac.IsOwner(existing.Owner, viewer) {
			return store.Sheet{}, domainError(http.StatusForbidden, "FORBIDDEN", msgOwnerSharing, nil)
		}
		if err := validateSharing(merged, session); err != nil {
			return store.Sheet{}, err
		}
	}
	// Sources are only written when submitted so a concurrent AddToSheet survives.
	merged.Sources = input.Sources
	return s.store.UpdateSheet(ctx, merged)
}

// validateSharing runs with the owner's session: a partner sheet must name a
// group its owner belongs to.
func validateSharing(sheet store.Sheet, owner Session) error {
	status := rbac.Status(sheet.Status)
	if !status.Valid() {
		return domainError(http.StatusBadRequest, "INVALID_STATUS", fmt.Sprintf("Unknown sheet status: %d", sheet.Status), nil)
	}
	if status == rbac.StatusPartner {
		if sheet.Group == "" {
			return domainError(http.StatusBadRequest, "GROUP_REQUIRED", "Partner sheets need a group.", nil)
		}
		if !owner.Viewer().InGroup(sheet.Group) {
			return domainError(http.StatusForbidden, "FORBIDDEN", fmt.Sprintf("You are not a member of %s.", sheet.Group), nil)
		}
	}
	return nil
}

// AddToSheet appends {"ref": ref} to the sheet's sources.
func (s *Service) AddToSheet(ctx context.Context, session Session, sheetID int64, ref string) (map[string]any, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, domainError(http.StatusBadRequest, "NO_REF", msgNoRef, nil)
	}
	if !session.Authenticated() {
		return nil, domainError(http.StatusUnauthorized, "LOGIN_REQUIRED", msgLoginToAdd, nil)
	}

	sheet, err := s.loadSheet(ctx, sheetID)
	if err != nil {
		return nil, err
	}
	if !rbac.CanEdit(sheet.Owner, rbac.Status(sheet.Status), session.Viewer()) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", msgCannotEdit, nil)
	}

	source, err := json.Marshal(map[string]string{"ref": ref})
	if err != nil {
		return nil, err
	}
	updated, err := s.store.AppendSource(ctx, sheetID, source)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errSheetNotFound(sheetID)
	}
	if err != nil {
		return nil, err
	}

	s.recordRevision(updated, session.UserName, "Add "+ref)
	return map[string]any{"status": "ok", "id": sheetID, "ref": ref}, nil
}

func (s *Service) History(ctx context.Context, session Session, sheetID int64) (map[string]any, error) {
	if _, err := s.viewableSheet(ctx, session, sheetID); err != nil {
		return nil, err
	}
	commits, err := s.git.History(sheetID, historyLimit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(commits))
	for _, commit := range commits {
		items = append(items, commitPayload(commit))
	}
	return map[string]any{"sheetId": sheetID, "commits": items}, nil
}

func (s *Service) Revision(ctx context.Context, session Session, sheetID int64, hash string) (map[string]any, error) {
	if _, err := s.viewableSheet(ctx, session, sheetID); err != nil {
		return nil, err
	}
	rev, err := s.git.Revision(sheetID, hash)
	if err != nil {
		if !errors.Is(err, gitrepo.ErrNoHistory) {
			log.Printf("history: sheet %d revision %s: %v", sheetID, hash, err)
		}
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("Couldn't find revision %s of sheet %d", hash, sheetID), nil)
	}
	return map[string]any{
		"sheetId": sheetID,
		"commit":  commitPayload(rev.Commit),
		"sheet":   rev.Snapshot,
		"changes": rev.Changes,
	}, nil
}

func (s *Service) Search(ctx context.Context, session Session, text string, limit, offset int) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}
	}
	return s.search.Search(ctx, search.Query{
		Text:     strings.TrimSpace(text),
		ViewerID: session.UserID,
		Limit:    limit,
		Offset:   offset,
	})
}

// ExportOutput carries either the rendered file or, when artifacts are
// uploaded, a link to it.
type ExportOutput struct {
	Result *export.Result
	URL    string
}

func (s *Service) Export(ctx context.Context, session Session, sheetID int64, formatValue string) (ExportOutput, error) {
	if s.exporter == nil {
		return ExportOutput{}, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export is not configured", nil)
	}
	format, err := export.ParseFormat(formatValue)
	if err != nil {
		return ExportOutput{}, domainError(http.StatusBadRequest, "INVALID_FORMAT", fmt.Sprintf("Unsupported export format: %s", formatValue), nil)
	}
	sheet, err := s.viewableSheet(ctx, session, sheetID)
	if err != nil {
		return ExportOutput{}, err
	}
	author, err := s.authorName(ctx, sheet.Owner)
	if err != nil {
		return ExportOutput{}, err
	}

	result, err := s.exporter.Export(ctx, export.Document{
		ID:        sheet.ID,
		Title:     displayTitle(sheet),
		Author:    author,
		Group:     sheet.Group,
		UpdatedAt: sheet.DateModified,
		Sources:   export.ParseSources(sheet.Sources),
	}, format)
	if errors.Is(err, export.ErrPDFDependencyMissing) {
		return ExportOutput{}, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF export is not available on this server", nil)
	}
	if err != nil {
		return ExportOutput{}, err
	}

	if s.artifacts == nil {
		return ExportOutput{Result: result}, nil
	}
	link, err := s.artifacts.Put(ctx, sheet.ID, result.Filename, result.MimeType, result.Data)
	if err != nil {
		return ExportOutput{}, err
	}
	return ExportOutput{Result: result, URL: link}, nil
}

// loadSheet maps a missing row to the not-found message.
func (s *Service) loadSheet(ctx context.Context, sheetID int64) (store.Sheet, error) {
	sheet, err := s.store.GetSheet(ctx, sheetID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Sheet{}, errSheetNotFound(sheetID)
	}
	return sheet, err
}

// viewableSheet loads a sheet and hides partner sheets from non-members.
func (s *Service) viewableSheet(ctx context.Context, session Session, sheetID int64) (store.Sheet, error) {
	sheet, err := s.loadSheet(ctx, sheetID)
	if err != nil {
		return store.Sheet{}, err
	}
	if !rbac.CanView(sheet.Owner, rbac.Status(sheet.Status), sheet.Group, session.Viewer()) {
		return store.Sheet{}, domainError(http.StatusForbidden, "FORBIDDEN", msgNotAuthorized, nil)
	}
	return sheet, nil
}

// authorName resolves the owner's display name, falling back when the user
// record is gone.
func (s *Service) authorName(ctx context.Context, ownerID int64) (string, error) {
	user, err := s.store.GetUserByID(ctx, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return unknownAuthor, nil
	}
	if err != nil {
		return "", err
	}
	return user.DisplayName(), nil
}

// recordRevision commits the snapshot and reindexes the sheet. Storage has
// already accepted the change, so failures here are only logged.
func (s *Service) recordRevision(sheet store.Sheet, author, message string) {
	if s.git != nil {
		if author == "" {
			author = unknownAuthor
		}
		if _, err := s.git.CommitSheet(sheet.ID, gitrepo.SnapshotOf(sheet), author, message); err != nil {
			log.Printf("history: commit sheet %d: %v", sheet.ID, err)
		}
	}
	if s.search != nil {
		s.search.IndexSheet(search.RecordFromSheet(sheet))
	}
}

func displayTitle(sheet store.Sheet) string {
	if strings.TrimSpace(sheet.Title) == "" {
		return fmt.Sprintf("Untitled (%d)", sheet.ID)
	}
	return sheet.Title
}

func sheetListItems(sheets []store.Sheet) []map[string]any {
	items := make([]map[string]any, 0, len(sheets))
	for _, sheet := range sheets {
		items = append(items, map[string]any{
			"id":       sheet.ID,
			"title":    displayTitle(sheet),
			"author":   sheet.Owner,
			"size":     len(sheet.Sources),
			"modified": sheet.DateModified.Format("01/02/2006"),
		})
	}
	return items
}

func sheetPayload(sheet store.Sheet) map[string]any {
	sources := sheet.Sources
	if sources == nil {
		sources = []json.RawMessage{}
	}
	return map[string]any{
		"id":           sheet.ID,
		"title":        sheet.Title,
		"owner":        sheet.Owner,
		"status":       sheet.Status,
		"group":        sheet.Group,
		"url":          sheet.URL,
		"sources":      sources,
		"dateCreated":  sheet.DateCreated.UTC().Format(time.RFC3339),
		"dateModified": sheet.DateModified.UTC().Format(time.RFC3339),
	}
}

func commitPayload(commit store.CommitInfo) map[string]any {
	return map[string]any{
		"hash":      commit.Hash,
		"message":   strings.TrimSpace(commit.Message),
		"author":    commit.Author,
		"createdAt": commit.CreatedAt.UTC().Format(time.RFC3339),
	}
}
