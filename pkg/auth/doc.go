// Package auth stores provider credentials per named profile.
//
// The Manager tries the system keychain first, then an encrypted file in
// the user's config directory. Credentials supplied through GIFTPARSER_*
// environment variables are read-only and take precedence for the default
// profile.
package auth
