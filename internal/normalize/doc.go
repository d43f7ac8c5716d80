// Package normalize cleans raw directory fields before any comparison.
//
// Phones are parsed against one fixed numbering region and formatted E.164.
// Emails are validated syntactically and lower-cased. Names have every run
// of Unicode whitespace collapsed to a single ASCII space.
//
// A field that cannot be cleaned is dropped and reported as an Issue; the
// record itself survives. Only a record without an external id is rejected.
//
// Every function here is pure. A Normalizer may be shared by goroutines.
package normalize
