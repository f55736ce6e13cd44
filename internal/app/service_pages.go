package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"sheets/api/internal/rbac"
	"sheets/api/internal/store"
)

// SheetPage is everything the sheet editor template needs.
type SheetPage struct {
	SheetJSON    string
	Title        string
	CanEdit      bool
	NewSheet     bool
	Topic        bool
	Author       string
	OwnerGroups  []string
	SheetGroup   string
	ViewerGroups []string
}

type SheetSummary struct {
	ID       int64
	Title    string
	Author   string
	Size     int
	Modified time.Time
}

// ListPage backs the topic index, partner pages and the home page.
type ListPage struct {
	Title  string
	Status int
	Group  string
	Sheets []SheetSummary
	Mine   []SheetSummary
}

func (s *Service) NewSheetPage(session Session) SheetPage {
	groups := nonNilStrings(session.Groups)
	return SheetPage{
		SheetJSON:    "null",
		Title:        "New Source Sheet",
		CanEdit:      true,
		NewSheet:     true,
		OwnerGroups:  groups,
		ViewerGroups: groups,
	}
}

func (s *Service) SheetPage(ctx context.Context, session Session, sheetID int64) (SheetPage, error) {
	sheet, err := s.viewableSheet(ctx, session, sheetID)
	if err != nil {
		return SheetPage{}, err
	}
	page, err := s.sheetPage(ctx, session, sheet)
	if err != nil {
		return SheetPage{}, err
	}
	page.CanEdit = rbac.CanEdit(sheet.Owner, rbac.Status(sheet.Status), session.Viewer())
	if rbac.IsOwner(sheet.Owner, session.Viewer()) {
		page.OwnerGroups = nonNilStrings(session.Groups)
	}
	if rbac.Status(sheet.Status) == rbac.StatusPartner {
		page.SheetGroup = strings.ReplaceAll(sheet.Group, " ", "-")
	}
	return page, nil
}

// TopicPage renders a topic sheet by slug; any signed-in user may edit topics.
func (s *Service) TopicPage(ctx context.Context, session Session, slug string) (SheetPage, error) {
	sheet, err := s.store.GetSheetByURL(ctx, slug, int(rbac.StatusTopic))
	if errors.Is(err, sql.ErrNoRows) {
		return SheetPage{}, errTopicNotFound(slug)
	}
	if err != nil {
		return SheetPage{}, err
	}
	if rbac.Status(sheet.Status) != rbac.StatusTopic {
		return SheetPage{}, errTopicNotFound(slug)
	}
	page, err := s.sheetPage(ctx, session, sheet)
	if err != nil {
		return SheetPage{}, err
	}
	page.CanEdit = session.Authenticated()
	page.Topic = true
	return page, nil
}

func (s *Service) sheetPage(ctx context.Context, session Session, sheet store.Sheet) (SheetPage, error) {
	encoded, err := json.Marshal(sheetPayload(sheet))
	if err != nil {
		return SheetPage{}, err
	}
	author, err := s.authorName(ctx, sheet.Owner)
	if err != nil {
		return SheetPage{}, err
	}
	return SheetPage{
		SheetJSON:    string(encoded),
		Title:        displayTitle(sheet),
		Author:       author,
		OwnerGroups:  []string{},
		ViewerGroups: nonNilStrings(session.Groups),
	}, nil
}

func (s *Service) TopicsList(ctx context.Context) (ListPage, error) {
	sheets, err := s.store.ListTopicSheets(ctx, int(rbac.StatusTopic), "")
	if err != nil {
		return ListPage{}, err
	}
	summaries, err := s.summaries(ctx, sheets)
	if err != nil {
		return ListPage{}, err
	}
	return ListPage{
		Title:  "Torah Sources by Topic",
		Status: int(rbac.StatusTopic),
		Group:  "topics",
		Sheets: summaries,
	}, nil
}

// PartnerPage lists a group's partner sheets. It returns ErrLoginRequired for
// anonymous sessions and ErrNotMember when the group is unknown or the viewer
// is not in it.
func (s *Service) PartnerPage(ctx context.Context, session Session, partner string) (ListPage, error) {
	if !session.Authenticated() {
		return ListPage{}, ErrLoginRequired
	}
	group, err := s.store.GetGroupByName(ctx, partner)
	if errors.Is(err, sql.ErrNoRows) {
		return ListPage{}, ErrNotMember
	}
	if err != nil {
		return ListPage{}, err
	}
	if !session.Viewer().InGroup(group.Name) {
		return ListPage{}, ErrNotMember
	}

	sheets, err := s.store.ListTopicSheets(ctx, int(rbac.StatusPartner), group.Name)
	if err != nil {
		return ListPage{}, err
	}
	summaries, err := s.summaries(ctx, sheets)
	if err != nil {
		return ListPage{}, err
	}
	return ListPage{
		Title:  fmt.Sprintf("%s's Topics", group.Name),
		Status: int(rbac.StatusPartner),
		Group:  group.Name,
		Sheets: summaries,
	}, nil
}

func (s *Service) HomePage(ctx context.Context, session Session) (ListPage, error) {
	public, err := s.store.ListSheetsByStatus(ctx, []int{int(rbac.StatusPublicView), int(rbac.StatusPublicEdit)})
	if err != nil {
		return ListPage{}, err
	}
	page := ListPage{Title: "Source Sheets", Status: int(rbac.StatusPublicView)}
	if page.Sheets, err = s.summaries(ctx, public); err != nil {
		return ListPage{}, err
	}
	if session.Authenticated() {
		mine, err := s.store.ListSheetsByOwner(ctx, session.UserID, int(rbac.StatusTopic))
		if err != nil {
			return ListPage{}, err
		}
		if page.Mine, err = s.summaries(ctx, mine); err != nil {
			return ListPage{}, err
		}
	}
	return page, nil
}

// summaries resolves each distinct owner once.
func (s *Service) summaries(ctx context.Context, sheets []store.Sheet) ([]SheetSummary, error) {
	authors := make(map[int64]string)
	items := make([]SheetSummary, 0, len(sheets))
	for _, sheet := range sheets {
		name, ok := authors[sheet.Owner]
		if !ok {
			var err error
			if name, err = s.authorName(ctx, sheet.Owner); err != nil {
				return nil, err
			}
			authors[sheet.Owner] = name
		}
		items = append(items, SheetSummary{
			ID:       sheet.ID,
			Title:    displayTitle(sheet),
			Author:   name,
			Size:     len(sheet.Sources),
			Modified: sheet.DateModified,
		})
	}
	return items, nil
}

// PageErrorText is the plain-text body for a failed page lookup.
func PageErrorText(err error) (int, string) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Message
	}
	return http.StatusInternalServerError, "Server error"
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
