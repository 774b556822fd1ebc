// Package slug derives tenant slugs from display names and validates them.
//
//	slug.Make("Café Müller & Söhne")     // "cafe-muller-sohne"
//	slug.Make("Acme", slug.WithSuffix(4)) // "acme-x7k2"
//	slug.Valid("acme_eu")                 // true
//
// Slugs contain only lowercase ASCII letters, digits, "-" and "_", and are at
// most 63 characters so they fit in a DNS label.
package slug
