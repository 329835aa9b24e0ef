// Package security provides static screening for shell-style database
// commands before they reach the evaluator.
//
// Components:
//   - Validator: classifies a raw command string against ordered rule sets
//     (structural sanity, injection signatures, mutating operations,
//     administrative operations, accepted grammar shapes). First match wins.
//   - SanitizeDocument: recursive structural sanitizer for filter/option
//     payloads supplied alongside a command.
//   - MaskURI: credential masking for connection strings in logs and errors.
//
// The validator and sanitizer are pure and stateless: they inspect text and
// values, raise typed rejections, and have no other side effects beyond
// diagnostic logging.
//
// This is a heuristic, defense-in-depth layer. The evaluator never executes
// command text as code (it maps a parsed chain onto a closed set of typed
// driver calls), so most injection shapes are unparseable rather than merely
// detected. The deny-list here exists to reject them early, with a named
// rule, before any network resource is consumed.
package security
