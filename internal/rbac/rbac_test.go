package rbac

import "testing"

func TestCanEdit(t *testing.T) {
	owner := Viewer{UserID: 1}
	other := Viewer{UserID: 2}
	anonymous := Viewer{}

	cases := []struct {
		name   string
		status Status
		viewer Viewer
		allow  bool
	}{
		{name: "owner private", status: StatusPrivate, viewer: owner, allow: true},
		{name: "other private", status: StatusPrivate, viewer: other, allow: false},
		{name: "other link view", status: StatusLinkView, viewer: other, allow: false},
		{name: "other link edit", status: StatusLinkEdit, viewer: other, allow: true},
		{name: "other public view", status: StatusPublicView, viewer: other, allow: false},
		{name: "other public edit", status: StatusPublicEdit, viewer: other, allow: true},
		{name: "other topic", status: StatusTopic, viewer: other, allow: false},
		{name: "other partner", status: StatusPartner, viewer: other, allow: false},
		{name: "anonymous public edit", status: StatusPublicEdit, viewer: anonymous, allow: true},
		{name: "anonymous private", status: StatusPrivate, viewer: anonymous, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanEdit(1, tc.status, tc.viewer); got != tc.allow {
				t.Fatalf("CanEdit(1, %d, %+v) = %v, want %v", tc.status, tc.viewer, got, tc.allow)
			}
		})
	}
}

func TestCanViewPartnerSheets(t *testing.T) {
	cases := []struct {
		name   string
		viewer Viewer
		allow  bool
	}{
		{name: "owner", viewer: Viewer{UserID: 1}, allow: true},
		{name: "member", viewer: Viewer{UserID: 2, Groups: []string{"Beit Midrash"}}, allow: true},
		{name: "non member", viewer: Viewer{UserID: 3, Groups: []string{"Other"}}, allow: false},
		{name: "anonymous", viewer: Viewer{}, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanView(1, StatusPartner, "Beit Midrash", tc.viewer); got != tc.allow {
				t.Fatalf("CanView() = %v, want %v", got, tc.allow)
			}
		})
	}

	if !CanView(1, StatusPrivate, "", Viewer{}) {
		t.Fatal("expected non-partner sheets to be viewable by link")
	}
}

func TestStatusClasses(t *testing.T) {
	if !StatusPublicView.Listed() || !StatusPublicEdit.Listed() || StatusLinkEdit.Listed() {
		t.Fatal("unexpected listed statuses")
	}
	if Status(7).Valid() || Status(-1).Valid() || !StatusPartner.Valid() {
		t.Fatal("unexpected status validity")
	}
}
