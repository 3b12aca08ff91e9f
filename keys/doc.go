// Package keys parses author signing credentials and derives author
// addresses.
//
// Keys are supplied by the caller (environment or flag) and held in memory
// only. Nothing here stores, generates or exports keys.
package keys
