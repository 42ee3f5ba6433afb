// Package classifier turns a raw utterance into domain.Signals.
//
// Classification is table driven: a RuleSet maps each predicate to a Rule
// (keyword phrases, substrings, length threshold, optional pattern) and every
// rule is evaluated once per utterance. English and Hinglish keywords share the
// same tables; there is no language detection. The result is deterministic for
// a given (text, waypoint) pair.
package classifier
