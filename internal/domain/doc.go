// Package domain models VIU-Hydromet weather station telemetry relayed over
// the Swarm satellite network.
//
// # Data Source
//
// Remote stations log one reading per hour on a datalogger and uplink them
// through a Swarm modem. The Swarm Hive API holds undelivered messages
// until they are fetched; each message carries a base64 payload that
// decodes to a single comma-separated ASCII line.
//
// # Message Conventions
//
// Single-reading stations (e.g. Mount Maya) pack one reading per message:
//
//	<code>,<seq>,<year>,<month>,<day>,<hour>,<v1>,...,<vN>
//
// Dual-reading stations (the Stephanie network) share one date across two
// hourly readings to halve airtime. Column 0 carries a station label
// ("S6", "S9") because several stations share one Swarm application:
//
//	<label>,<year>,<month>,<day>,<hh>h,<v1..vN>,<hh>h,<v1..vN>
//
// Hour fields on dual-reading stations carry a trailing "h" marker. The
// second reading of a day's last message is encoded under the previous
// day's date with hour "00"; the normalizer advances the calendar day by
// one when it sees that marker (midnight rollover).
//
// # Tiers
//
// Each station feeds two tables. The raw tier stores decoded values close
// to their wire encoding. The clean tier stores analysis-ready rows:
// unit-converted (m/s to km/h, gauge level to snow depth), enriched with
// the hydrological water year (starts October 1), and with the pipe-gauge
// precipitation increment computed against the preceding row.
//
// Values that cannot be produced (a sensor pending recalibration, a field
// missing from the wire format) are represented by absence and persisted
// as SQL NULL, never as a fabricated number.
//
// # Reconciliation
//
// The store is append-only. Every sync cycle reads the tail of the target
// table, locates the last persisted timestamp inside the freshly prepared
// batch, and appends only the records strictly after it. When no exact
// insertion point exists the cycle fails loudly rather than guess, since a
// wrong guess would put a gap or duplicate into the durable record. See
// [Reconcile] for the full state machine.
package domain
