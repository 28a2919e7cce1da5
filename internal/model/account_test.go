package model

import (
	"testing"
	"time"
)

func TestStorageKey_Format(t *testing.T) {
	got := StorageKey("acct-1", DomainHomework)
	want := "acct-1-homework-storage"
	if got != want {
		t.Errorf("StorageKey = %q, want %q", got, want)
	}
}

func TestSession_Expired(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	// nilセッションは失効扱い
	var nilSession *Session
	if !nilSession.Expired(now) {
		t.Error("nil session should be expired")
	}

	// 期限前は有効
	valid := &Session{Token: "t", ExpiresAt: now.Add(time.Hour)}
	if valid.Expired(now) {
		t.Error("session before expiry should not be expired")
	}

	// 期限後は失効
	expired := &Session{Token: "t", ExpiresAt: now.Add(-time.Hour)}
	if !expired.Expired(now) {
		t.Error("session after expiry should be expired")
	}

	// 期限未設定は失効しない
	noExpiry := &Session{Token: "t"}
	if noExpiry.Expired(now) {
		t.Error("session without expiry should not expire")
	}
}

func TestPreferences_NotifyFor(t *testing.T) {
	// グローバルフラグとドメイン別フラグの両方が必要
	p := Preferences{
		NotificationsEnabled: true,
		NotifyDomains:        map[Domain]bool{DomainGrades: true, DomainNews: false},
	}
	if !p.NotifyFor(DomainGrades) {
		t.Error("grades notifications should be enabled")
	}
	if p.NotifyFor(DomainNews) {
		t.Error("news notifications should be disabled by domain flag")
	}
	if p.NotifyFor(DomainHomework) {
		t.Error("unset domain flag should disable notifications")
	}

	p.NotificationsEnabled = false
	if p.NotifyFor(DomainGrades) {
		t.Error("global flag off should disable all notifications")
	}
}

func TestAccount_DelegateFor(t *testing.T) {
	space := &Account{
		Service: ServiceMultiService,
		Delegates: map[Domain]string{
			DomainGrades: "acct-a",
			DomainNews:   "",
		},
	}

	if id, ok := space.DelegateFor(DomainGrades); !ok || id != "acct-a" {
		t.Errorf("DelegateFor(grades) = (%q, %v), want (acct-a, true)", id, ok)
	}

	// 空文字の委譲先は未設定と同じ
	if _, ok := space.DelegateFor(DomainNews); ok {
		t.Error("empty delegate should be treated as unset")
	}
	if _, ok := space.DelegateFor(DomainHomework); ok {
		t.Error("missing delegate should report unset")
	}
}

func TestAccount_RemoveDelegate(t *testing.T) {
	space := &Account{
		Service: ServiceMultiService,
		Delegates: map[Domain]string{
			DomainGrades:   "acct-a",
			DomainHomework: "acct-a",
			DomainNews:     "acct-b",
		},
		AssociatedIDs: []string{"acct-a", "acct-b"},
	}

	removed := space.RemoveDelegate("acct-a")
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if _, ok := space.Delegates[DomainGrades]; ok {
		t.Error("grades delegate should be removed")
	}
	if space.Delegates[DomainNews] != "acct-b" {
		t.Error("unrelated delegate should be kept")
	}
	if len(space.AssociatedIDs) != 1 || space.AssociatedIDs[0] != "acct-b" {
		t.Errorf("AssociatedIDs = %v, want [acct-b]", space.AssociatedIDs)
	}
}

func TestBackgroundDomains_FixedOrder(t *testing.T) {
	want := []Domain{
		DomainNews, DomainHomework, DomainGrades,
		DomainTimetable, DomainAttendance, DomainEvaluation,
	}
	got := BackgroundDomains()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("BackgroundDomains[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}
