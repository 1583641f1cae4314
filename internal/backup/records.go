package backup

import (
	"context"

	apperrors "github.com/akshaybapat6365/dark-wallet/pkg/errors"
)

// RecordStore is raw access to the persisted state record.
type RecordStore interface {
	LoadRaw(ctx context.Context) (string, bool, error)
	SaveRaw(ctx context.Context, raw string) error
}

// Export seals the current state record. It fails with StorageError if
// there is nothing to back up yet.
func (c Codec) Export(ctx context.Context, rs RecordStore, password string) (string, error) {
	if err := checkPassword(password); err != nil {
		return "", err
	}
	raw, ok, err := rs.LoadRaw(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperrors.Storage("No wallet state to back up.", nil)
	}
	return c.Seal(password, raw)
}

// Import opens backupJSON and writes the recovered record verbatim. The
// existing record is left untouched when opening fails.
func (c Codec) Import(ctx context.Context, rs RecordStore, password, backupJSON string) error {
	raw, err := c.Open(password, backupJSON)
	if err != nil {
		return err
	}
	return rs.SaveRaw(ctx, raw)
}
