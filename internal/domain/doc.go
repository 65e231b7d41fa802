// Package domain models polar-coordinate weather radar volume scans and the
// quality-control transforms applied to them.
//
// # Volume Layout
//
// A volume is a set of named fields sharing one [ray, gate] shape. Field data
// is stored flat and row-major: gate g of ray r lives at index r*Gates+g.
// Sweeps are contiguous ray ranges described by inclusive start/end indices,
// one pair per elevation rotation, with a per-sweep Nyquist velocity.
//
// A missing (censored) gate is NaN in memory. Serialization sentinels such as
// the CfRadial-conventional -9999 are a codec concern; inside this package
// NaN never satisfies a threshold comparison, so already-censored gates can
// not re-trigger a mask and are never clamped.
//
// # Field Naming
//
// Radar vendors disagree on moment names. Filters that admit more than one
// convention try names in a fixed order:
//
//	reflectivity           →  DBZH (high cutoff) / DBZV (low cutoff)
//	cross_correlation_ratio →  RHOHV  →  correlation_coefficient
//	PHIDP                  →  specific_differential_phase
//
// When no candidate matches, the filter fails with [ErrFieldNotFound] naming
// every candidate tried. Single-name filters (Zdr, NCP, SNR) fail the same
// way on their one name.
//
// # Masking Contract
//
// Every noise filter computes a boolean mask from its driving field and sets
// mask-true gates to NaN in every field of the volume, mutating the volume in
// place. Successful steps are recorded in Meta.QCHistory and each filter
// reports how many gates it censored.
//
// # Dealiasing
//
// Region-based velocity unfolding is delegated to an injected [Dealiaser].
// [DealiasVelocity] only decides which sweeps go in (NEXRAD Level II volumes
// keep all sweeps and let the implementation infer per-sweep Nyquist
// velocities; other containers drop sweeps with no live velocity data and
// pass the caller's explicit Nyquist) and adds the unfolded result as a new
// field.
package domain
