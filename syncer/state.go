package syncer

import (
	"context"
	"errors"
	"fmt"

	"mailbridge/models"
)

// ErrStopUnresolved rejects re-enabling a stopped account whose stop cause
// has not been addressed. Handlers map it to a 403.
var ErrStopUnresolved = errors.New("sync is stopped and its cause is unresolved")

// checkEnable validates the transition into ENABLED. Leaving DISABLED is
// always allowed; leaving STOPPED requires the cause to have been resolved,
// forcing explicit remediation before sync resumes.
func checkEnable(a *models.Account) error {
	if a.SyncState == models.SyncStopped && !a.StopResolved {
		return ErrStopUnresolved
	}
	return nil
}

// EnableSync transitions an account into ENABLED. From DISABLED it always
// succeeds; from STOPPED it fails with ErrStopUnresolved until the stop
// cause has been resolved.
func (s *Service) EnableSync(ctx context.Context, accountID int64) error {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if account.SyncState == models.SyncEnabled {
		return nil
	}
	if err := checkEnable(account); err != nil {
		return err
	}
	if err := s.store.UpdateSyncState(ctx, accountID, models.SyncEnabled, ""); err != nil {
		return err
	}
	s.publish(Event{Type: EventSyncEnabled, AccountID: accountID})
	return nil
}

// DisableSync transitions an account into DISABLED. The transition is user
// initiated and allowed from any state.
func (s *Service) DisableSync(ctx context.Context, accountID int64) error {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if account.SyncState == models.SyncDisabled {
		return nil
	}
	if err := s.store.UpdateSyncState(ctx, accountID, models.SyncDisabled, ""); err != nil {
		return err
	}
	s.publish(Event{Type: EventSyncDisabled, AccountID: accountID})
	return nil
}

// stopAccount transitions an account into STOPPED with a cause comment. Only
// the sync service itself takes this transition, on unrecoverable failure.
func (s *Service) stopAccount(ctx context.Context, accountID int64, cause string) {
	if err := s.store.UpdateSyncState(ctx, accountID, models.SyncStopped, cause); err != nil {
		s.log.WithField("account", accountID).Error("recording stopped state: %v", err)
		return
	}
	s.publish(Event{Type: EventSyncStopped, AccountID: accountID, Detail: cause})
}

// ResolveStop records fresh credentials for a stopped account, marks its stop
// cause resolved, and re-enables sync. Calling it on an account that is not
// stopped just rotates the credentials.
func (s *Service) ResolveStop(ctx context.Context, accountID int64, credentials string) error {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}

	if credentials != "" {
		if err := s.store.UpdateCredentials(ctx, accountID, credentials); err != nil {
			return err
		}
	}

	if account.SyncState != models.SyncStopped {
		return nil
	}

	if err := s.store.MarkStopResolved(ctx, accountID); err != nil {
		return fmt.Errorf("resolving stop for account %d: %w", accountID, err)
	}
	return s.EnableSync(ctx, accountID)
}
