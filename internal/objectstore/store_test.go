package objectstore

import (
	"testing"
	"time"
)

func TestObjectKey(t *testing.T) {
	at := time.Date(2024, 5, 1, 13, 4, 5, 0, time.FixedZone("IDT", 3*60*60))
	got := ObjectKey(42, "Shabbat-Sources.pdf", at)
	want := "sheets/42/20240501T100405Z/Shabbat-Sources.pdf"
	if got != want {
		t.Fatalf("ObjectKey() = %q, want %q", got, want)
	}
}

func TestObjectKeyStripsDirectories(t *testing.T) {
	got := ObjectKey(7, "../../etc/passwd", time.Unix(0, 0))
	if got != "sheets/7/19700101T000000Z/passwd" {
		t.Fatalf("ObjectKey() = %q", got)
	}
}
