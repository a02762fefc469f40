package syncer

import (
	"context"
	"testing"

	"mailbridge/models"
)

func TestEnableFromDisabled(t *testing.T) {
	service, store := newTestService(t, &fakeFactory{client: inboxClient(0)})
	ctx := context.Background()
	account := newTestAccount(t, store)

	if err := service.DisableSync(ctx, account.ID); err != nil {
		t.Fatalf("disable: %v", err)
	}
	got, _ := store.GetAccount(ctx, account.ID)
	if got.SyncState != models.SyncDisabled {
		t.Fatalf("expected DISABLED, got %s", got.SyncState)
	}

	if err := service.EnableSync(ctx, account.ID); err != nil {
		t.Fatalf("enable from DISABLED must succeed: %v", err)
	}
	got, _ = store.GetAccount(ctx, account.ID)
	if got.SyncState != models.SyncEnabled {
		t.Fatalf("expected ENABLED, got %s", got.SyncState)
	}
}

func TestEnableFromStoppedRequiresResolution(t *testing.T) {
	service, store := newTestService(t, &fakeFactory{client: inboxClient(0)})
	ctx := context.Background()
	account := newTestAccount(t, store)

	service.stopAccount(ctx, account.ID, "authentication expired")

	if err := service.EnableSync(ctx, account.ID); err != ErrStopUnresolved {
		t.Fatalf("expected ErrStopUnresolved, got %v", err)
	}
	got, _ := store.GetAccount(ctx, account.ID)
	if got.SyncState != models.SyncStopped {
		t.Fatalf("rejected enable must not change state, got %s", got.SyncState)
	}

	if err := service.ResolveStop(ctx, account.ID, `{"refresh_token":"fresh"}`); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	got, _ = store.GetAccount(ctx, account.ID)
	if got.SyncState != models.SyncEnabled {
		t.Fatalf("expected ENABLED after resolution, got %s", got.SyncState)
	}
	if got.Credentials != `{"refresh_token":"fresh"}` {
		t.Fatal("expected credentials rotated")
	}
	if got.SyncStateComment != "" {
		t.Fatalf("expected stop cause cleared, got %q", got.SyncStateComment)
	}
}

func TestEnableIdempotent(t *testing.T) {
	service, store := newTestService(t, &fakeFactory{client: inboxClient(0)})
	ctx := context.Background()
	account := newTestAccount(t, store)

	if err := service.EnableSync(ctx, account.ID); err != nil {
		t.Fatalf("enable on already enabled account: %v", err)
	}
}

func TestResolveStopOnActiveAccountRotatesCredentials(t *testing.T) {
	service, store := newTestService(t, &fakeFactory{client: inboxClient(0)})
	ctx := context.Background()
	account := newTestAccount(t, store)

	if err := service.ResolveStop(ctx, account.ID, `{"refresh_token":"rotated"}`); err != nil {
		t.Fatalf("resolve on enabled account: %v", err)
	}
	got, _ := store.GetAccount(ctx, account.ID)
	if got.SyncState != models.SyncEnabled {
		t.Fatalf("expected state untouched, got %s", got.SyncState)
	}
	if got.Credentials != `{"refresh_token":"rotated"}` {
		t.Fatal("expected credentials rotated")
	}
}

func TestStoppedAccountsSkippedByScheduler(t *testing.T) {
	service, store := newTestService(t, &fakeFactory{client: inboxClient(0)})
	ctx := context.Background()
	account := newTestAccount(t, store)

	service.stopAccount(ctx, account.ID, "authentication expired")

	accounts, err := store.SyncableAccounts(ctx)
	if err != nil {
		t.Fatalf("listing syncable accounts: %v", err)
	}
	for _, a := range accounts {
		if a.ID == account.ID {
			t.Fatal("stopped account must not be scheduled")
		}
	}
}
