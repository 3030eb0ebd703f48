// Package resolver determines the owner of a collectible gift.
//
// Resolution tries the structured provider lookup first and falls back to
// scraping the gift's public page with an ordered table of extraction rules.
// Resolve never returns an error; every outcome is a Result with a Status.
package resolver
