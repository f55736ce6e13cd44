package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"testing"

	"sheets/api/internal/rbac"
	"sheets/api/internal/store"
)

func TestSheetPageFallsBackToUnknownAuthor(t *testing.T) {
	fs := sheetStore(store.Sheet{ID: 3, Owner: 7, Status: int(rbac.StatusPublicView)})
	fs.getUserByIDFn = func(context.Context, int64) (store.User, error) {
		return store.User{}, sql.ErrNoRows
	}
	svc := newTestService(fs, &fakeGit{})

	page, err := svc.SheetPage(context.Background(), Session{}, 3)
	if err != nil {
		t.Fatalf("sheet page: %v", err)
	}
	if page.Author != "Someone Mysterious" {
		t.Fatalf("expected fallback author, got %q", page.Author)
	}
	if page.Title != "Untitled (3)" || page.CanEdit {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestSheetPageOwnerSeesGroups(t *testing.T) {
	fs := sheetStore(store.Sheet{ID: 3, Owner: 7, Status: int(rbac.StatusPartner), Group: "Beit Midrash"})
	svc := newTestService(fs, &fakeGit{})

	page, err := svc.SheetPage(context.Background(), sessionFor(7, "Beit Midrash"), 3)
	if err != nil {
		t.Fatalf("sheet page: %v", err)
	}
	if !page.CanEdit || len(page.OwnerGroups) != 1 {
		t.Fatalf("expected owner view, got %+v", page)
	}
	if page.SheetGroup != "Beit-Midrash" {
		t.Fatalf("expected dashed group, got %q", page.SheetGroup)
	}

	member, err := svc.SheetPage(context.Background(), sessionFor(9, "Beit Midrash"), 3)
	if err != nil {
		t.Fatalf("member page: %v", err)
	}
	if member.CanEdit || len(member.OwnerGroups) != 0 || len(member.ViewerGroups) != 1 {
		t.Fatalf("unexpected member view %+v", member)
	}
}

func TestTopicPageEditableWhenSignedIn(t *testing.T) {
	fs := &fakeStore{
		getSheetByURLFn: func(_ context.Context, slug string, status int) (store.Sheet, error) {
			if slug != "shabbat" || status != int(rbac.StatusTopic) {
				return store.Sheet{}, sql.ErrNoRows
			}
			return store.Sheet{ID: 4, Owner: 7, Status: int(rbac.StatusTopic), URL: slug, Title: "Shabbat"}, nil
		},
	}
	svc := newTestService(fs, &fakeGit{})

	page, err := svc.TopicPage(context.Background(), sessionFor(9), "shabbat")
	if err != nil {
		t.Fatalf("topic page: %v", err)
	}
	if !page.CanEdit || !page.Topic {
		t.Fatalf("expected editable topic, got %+v", page)
	}
	anon, err := svc.TopicPage(context.Background(), Session{}, "shabbat")
	if err != nil {
		t.Fatalf("anon topic page: %v", err)
	}
	if anon.CanEdit {
		t.Fatalf("expected anonymous topic to be read-only")
	}

	_, err = svc.TopicPage(context.Background(), Session{}, "missing")
	status, text := PageErrorText(err)
	if status != http.StatusNotFound || text != "Couldn't find topic: missing" {
		t.Fatalf("unexpected error %d %q", status, text)
	}
}

func TestTopicPageHidesSheetsThatAreNotTopics(t *testing.T) {
	sheets := map[string]store.Sheet{
		"members": {ID: 4, Owner: 7, Status: int(rbac.StatusPartner), Group: "Secret", URL: "members", Title: "Members only"},
		"drafts":  {ID: 5, Owner: 7, Status: int(rbac.StatusPrivate), URL: "drafts", Title: "Drafts"},
	}
	// The store ignores status here so the service check is exercised too.
	fs := &fakeStore{
		getSheetByURLFn: func(_ context.Context, slug string, _ int) (store.Sheet, error) {
			sheet, ok := sheets[slug]
			if !ok {
				return store.Sheet{}, sql.ErrNoRows
			}
			return sheet, nil
		},
	}
	svc := newTestService(fs, &fakeGit{})

	for slug := range sheets {
		for _, session := range []Session{{}, sessionFor(9)} {
			page, err := svc.TopicPage(context.Background(), session, slug)
			status, text := PageErrorText(err)
			if status != http.StatusNotFound || text != "Couldn't find topic: "+slug {
				t.Fatalf("slug %q: expected not found, got %d %q page=%+v", slug, status, text, page)
			}
		}
	}
}

func TestPartnerPageRedirectOutcomes(t *testing.T) {
	fs := &fakeStore{
		getGroupByNameFn: func(_ context.Context, name string) (store.Group, error) {
			if name != "Hillel" {
				return store.Group{}, sql.ErrNoRows
			}
			return store.Group{ID: 1, Name: name}, nil
		},
		listTopicSheetsFn: func(_ context.Context, status int, group string) ([]store.Sheet, error) {
			if status != int(rbac.StatusPartner) || group != "Hillel" {
				t.Fatalf("unexpected listing %d %q", status, group)
			}
			return []store.Sheet{{ID: 8, Owner: 7, Title: "Pirkei Avot"}}, nil
		},
	}
	svc := newTestService(fs, &fakeGit{})

	if _, err := svc.PartnerPage(context.Background(), Session{}, "Hillel"); !errors.Is(err, ErrLoginRequired) {
		t.Fatalf("expected ErrLoginRequired, got %v", err)
	}
	if _, err := svc.PartnerPage(context.Background(), sessionFor(9), "Hillel"); !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
	if _, err := svc.PartnerPage(context.Background(), sessionFor(9, "Hillel"), "Shammai"); !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember for unknown group, got %v", err)
	}

	page, err := svc.PartnerPage(context.Background(), sessionFor(9, "Hillel"), "Hillel")
	if err != nil {
		t.Fatalf("partner page: %v", err)
	}
	if page.Title != "Hillel's Topics" || len(page.Sheets) != 1 || page.Sheets[0].Author != "Avery Stone" {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestTopicsListResolvesEachAuthorOnce(t *testing.T) {
	lookups := 0
	fs := &fakeStore{
		listTopicSheetsFn: func(context.Context, int, string) ([]store.Sheet, error) {
			return []store.Sheet{{ID: 1, Owner: 7}, {ID: 2, Owner: 7}, {ID: 3, Owner: 8}}, nil
		},
		getUserByIDFn: func(_ context.Context, id int64) (store.User, error) {
			lookups++
			return store.User{ID: id, FirstName: "User", LastName: "Name"}, nil
		},
	}
	svc := newTestService(fs, &fakeGit{})

	page, err := svc.TopicsList(context.Background())
	if err != nil {
		t.Fatalf("topics: %v", err)
	}
	if page.Title != "Torah Sources by Topic" || page.Group != "topics" || len(page.Sheets) != 3 {
		t.Fatalf("unexpected page %+v", page)
	}
	if lookups != 2 {
		t.Fatalf("expected 2 author lookups, got %d", lookups)
	}
}

func TestHomePageIncludesOwnSheets(t *testing.T) {
	fs := &fakeStore{
		listSheetsByStatusFn: func(context.Context, []int) ([]store.Sheet, error) {
			return []store.Sheet{{ID: 1, Owner: 8}}, nil
		},
		listSheetsByOwnerFn: func(_ context.Context, owner int64, _ int) ([]store.Sheet, error) {
			return []store.Sheet{{ID: 2, Owner: owner}}, nil
		},
	}
	svc := newTestService(fs, &fakeGit{})

	anon, err := svc.HomePage(context.Background(), Session{})
	if err != nil {
		t.Fatalf("home: %v", err)
	}
	if len(anon.Sheets) != 1 || len(anon.Mine) != 0 {
		t.Fatalf("unexpected anonymous home %+v", anon)
	}
	mine, err := svc.HomePage(context.Background(), sessionFor(7))
	if err != nil {
		t.Fatalf("home: %v", err)
	}
	if len(mine.Mine) != 1 || mine.Mine[0].ID != 2 {
		t.Fatalf("unexpected own sheets %+v", mine.Mine)
	}
}

func TestNewSheetPageIsEditable(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeGit{})
	page := svc.NewSheetPage(sessionFor(7, "Hillel"))
	if !page.CanEdit || !page.NewSheet || page.SheetJSON != "null" {
		t.Fatalf("unexpected page %+v", page)
	}
	if len(page.OwnerGroups) != 1 || page.OwnerGroups[0] != "Hillel" {
		t.Fatalf("unexpected groups %v", page.OwnerGroups)
	}
}
