// Package dose is the scheduling core: multi-phase schedules, the phase
// resolver, dose-slot identity, the taken ledger, the per-minute reminder
// matcher and the pending-list builder.
//
// Everything except Matcher.Tick and the Ledger is a pure function of its
// inputs. Persistence is reached only through the Store interface; the store
// is the single arbiter of the one-record-per-slot rule.
package dose
