package provider

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// DefaultAPIBaseURL is the default address of the local provider gateway
	DefaultAPIBaseURL = "http://127.0.0.1:8081"

	// DefaultPageBaseURL is the public page host for collectible gifts
	DefaultPageBaseURL = "https://t.me/nft"

	// DefaultCollection is the collection slug scanned by default
	DefaultCollection = "LolPop"

	// DefaultUserAgent is sent with page fetches
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

	meEndpoint            = "/me"
	sendCodeEndpoint      = "/auth/sendCode"
	signInEndpoint        = "/auth/signIn"
	checkPasswordEndpoint = "/auth/checkPassword"
)

// MeURL constructs the URL that reports the signed-in identity
func MeURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + meEndpoint
}

// MessageURL constructs the structured lookup URL for one gift ID
func MessageURL(baseURL, channel string, id int64) string {
	return fmt.Sprintf("%s/channels/%s/messages/%d",
		strings.TrimRight(baseURL, "/"), url.PathEscape(channel), id)
}

// SendCodeURL constructs the login code request URL
func SendCodeURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + sendCodeEndpoint
}

// SignInURL constructs the code sign-in URL
func SignInURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + signInEndpoint
}

// CheckPasswordURL constructs the two-factor password URL
func CheckPasswordURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + checkPasswordEndpoint
}

// CanonicalPageURL constructs the public page URL of a gift,
// e.g. https://t.me/nft/LolPop-42
func CanonicalPageURL(pageBaseURL, collection string, id int64) string {
	return fmt.Sprintf("%s/%s-%d", strings.TrimRight(pageBaseURL, "/"), collection, id)
}

// IsValidCollection checks that a collection slug is safe to put in a URL path
func IsValidCollection(collection string) bool {
	if collection == "" || len(collection) > 64 {
		return false
	}

	for _, char := range collection {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '_') {
			return false
		}
	}

	return true
}

// SanitizeUsername strips a leading @ and trailing slashes or spaces
func SanitizeUsername(username string) string {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	return strings.TrimRight(username, "/ ")
}
