package storage

import "net/url"

// Location identifies which host in a HostConfiguration an attempt targets.
type Location int

const (
	// LocationPrimary targets HostConfiguration.Primary.
	LocationPrimary Location = iota
	// LocationSecondary targets HostConfiguration.Secondary.
	LocationSecondary
)

func (l Location) String() string {
	if l == LocationSecondary {
		return "secondary"
	}
	return "primary"
}

// HostConfiguration is the pair of URLs a Client dispatches requests
// against. At least one of Primary/Secondary must be set; which locations
// an operation may use is governed by RequestLocationMode.
type HostConfiguration struct {
	Primary   *url.URL
	Secondary *url.URL
}

// hostFor returns the configured host for loc, or nil if that location has
// no host (the pipeline turns a nil host into ErrMissingHostForLocation).
func (h HostConfiguration) hostFor(loc Location) *url.URL {
	if loc == LocationSecondary {
		return h.Secondary
	}
	return h.Primary
}

// validate enforces the Host Configuration invariant: at least one host
// must be present.
func (h HostConfiguration) validate() error {
	if h.Primary == nil && h.Secondary == nil {
		return newStorageError(ErrMissingHostForLocation, "host configuration has neither primary nor secondary host", nil)
	}
	return nil
}

// nextLocation computes the location an attempt should target, given the
// caller's LocationMode, the per-request RequestLocationMode, and the
// previous attempt's location (LocationPrimary for the first attempt).
//
// It returns ErrLocationConstraintViolation when RequestLocationMode
// conflicts with LocationMode (e.g. a secondary-only operation under
// LocationModePrimaryOnly).
func nextLocation(mode LocationMode, reqMode RequestLocationMode, prior Location, isFirstAttempt bool) (Location, error) {
	switch reqMode {
	case RequestLocationModePrimaryOnly:
		if mode == LocationModeSecondaryOnly {
			return 0, newStorageError(ErrLocationConstraintViolation, "operation requires primary location but locationMode is secondary-only", nil)
		}
		return LocationPrimary, nil
	case RequestLocationModeSecondaryOnly:
		if mode == LocationModePrimaryOnly {
			return 0, newStorageError(ErrLocationConstraintViolation, "operation requires secondary location but locationMode is primary-only", nil)
		}
		return LocationSecondary, nil
	}

	// RequestLocationModeEither: locationMode drives rotation.
	switch mode {
	case LocationModePrimaryOnly:
		return LocationPrimary, nil
	case LocationModeSecondaryOnly:
		return LocationSecondary, nil
	case LocationModePrimaryThenSecondary:
		if isFirstAttempt {
			return LocationPrimary, nil
		}
		// The retry policy already rotated ec.CurrentLocation (prior) via
		// RetryDecision.NextLocation before this attempt began; rotating
		// again here would flip it straight back to where it started.
		return prior, nil
	case LocationModeSecondaryThenPrimary:
		if isFirstAttempt {
			return LocationSecondary, nil
		}
		return prior, nil
	default:
		return LocationPrimary, nil
	}
}

func flip(loc Location) Location {
	if loc == LocationPrimary {
		return LocationSecondary
	}
	return LocationPrimary
}
