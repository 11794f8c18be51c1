package licensing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"chatello/gateway/pkg/telemetry/logging"
	"chatello/gateway/pkg/telemetry/metrics"
)

// Directory resolves license keys to active licenses.
type Directory struct {
	store   LicenseStore
	logger  *slog.Logger
	metrics *metrics.Collector
}

// NewDirectory creates a directory over store. logger and collector may be
// nil.
func NewDirectory(store LicenseStore, logger *slog.Logger, collector *metrics.Collector) *Directory {
	return &Directory{
		store:   store,
		logger:  logging.OrDefault(logger),
		metrics: collector,
	}
}

// CheckLicense decides whether l may be used at now without touching
// storage. expire is true when the caller must persist the transition to
// StatusExpired.
func CheckLicense(l *License, now time.Time) (expire bool, err error) {
	switch {
	case l.Status == StatusExpired:
		return false, ErrExpiredLicense
	case l.Status != StatusActive:
		return false, &StatusError{Status: l.Status}
	case l.Expired(now):
		return true, ErrExpiredLicense
	}
	return false, nil
}

// Lookup returns the license for key regardless of status.
func (d *Directory) Lookup(ctx context.Context, key string) (*License, error) {
	if key == "" {
		return nil, ErrInvalidLicense
	}
	return d.store.GetLicenseByKey(ctx, key)
}

// FindActiveLicense returns the license for key if it is usable at now.
//
// A license whose expiration has passed is flipped to StatusExpired as a side
// effect. The flip only applies to the status that was read, so it never
// overwrites a concurrent admin change. On success last_check is updated; a failure to do so is logged and
// does not fail the lookup.
func (d *Directory) FindActiveLicense(ctx context.Context, key string, now time.Time) (*License, error) {
	l, err := d.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}

	expire, err := CheckLicense(l, now)
	if expire {
		uerr := d.store.UpdateLicenseStatus(ctx, l.ID, l.Status, StatusExpired, now)
		switch {
		case errors.Is(uerr, ErrStatusConflict):
			d.logger.DebugContext(ctx, "license status changed before expiry flip", "license_id", l.ID)
		case uerr != nil:
			d.logger.ErrorContext(ctx, "failed to mark license expired",
				"license_id", l.ID,
				"error", uerr,
			)
		default:
			l.Status = StatusExpired
			d.metrics.RecordExpiration()
			d.logger.InfoContext(ctx, "license expired", "license_id", l.ID)
		}
	}
	if err != nil {
		return nil, err
	}

	if terr := d.store.TouchLastCheck(ctx, l.ID, now); terr != nil {
		d.logger.WarnContext(ctx, "failed to record license check",
			"license_id", l.ID,
			"error", terr,
		)
	} else {
		l.LastCheck = &now
	}

	return l, nil
}

// IsRejection reports whether err is one of the expected license rejections
// rather than an infrastructure failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrInvalidLicense) ||
		errors.Is(err, ErrInactiveLicense) ||
		errors.Is(err, ErrExpiredLicense)
}
