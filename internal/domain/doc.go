// Package domain models road-segment traffic samples and the rainfall speed
// models calibrated from them.
//
// # Samples
//
// A [Sample] is one observation of a road link during a fixed traffic period:
//
//	depth   rainfall accumulated over the period, in millimetres (>= 0)
//	speed   mean link speed over the period, in miles per hour (> 0)
//	nature  the link's road nature, one of the six catalogue entries
//	road    street name, or classification for motorway links ("M25")
//	hour    0-23, from the lower bound of the traffic period
//	dow     0-6 with Sunday = 0, from the lower bound of the traffic period
//
// Speeds are derived upstream as 2.23694 * length_m / (journey_time_cs / 100),
// i.e. metres per second converted to miles per hour. Miles per hour is the
// native unit of every persisted model.
//
// # Day-binary collapse
//
// Model formulas do not see the weekday, only a weekend/weekday flag:
//
//	Sunday (0), Saturday (6)  -> 0
//	Monday..Friday (1-5)      -> 1
//
// See [DayBinary]. Callers always speak in the 0-6 domain.
//
// # Road natures
//
// The catalogue is fixed at six entries (see [DefaultNatures]). Calibration
// accepts only exact catalogue names; inference resolves caller strings to
// the closest entry by similarity ratio.
//
// # Persisted records
//
// One [RoadModelRecord] per road, keyed by the uppercased road identifier.
// Every nature entry is exactly one of [FittedModel] (candidate index plus
// parameters plus validation errors) or [FallbackAverage] (constant speed).
// The candidate index is the only link between a record and its formula, so
// records also carry the size of the candidate set that produced them.
//
// [AggregateStats] summarise selections across roads. They are derived data
// and can always be recomputed with [Aggregate].
package domain
