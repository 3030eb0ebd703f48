package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowSignInGuide explains where the API credentials come from and what
// the sign-in flow asks for
func ShowSignInGuide(w io.Writer) {
	rule := strings.Repeat("=", 72)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "GIFT PARSER SIGN-IN")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "The parser signs in to the provider as a regular account.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "STEP 1: Get an API ID and API hash")
	fmt.Fprintln(w, "   - Open https://my.telegram.org and log in with your phone number")
	fmt.Fprintln(w, "   - Go to 'API development tools' and create an application")
	fmt.Fprintln(w, "   - Copy the 'App api_id' and 'App api_hash' values")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "STEP 2: Enter your phone number in international format (+15551234567)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "STEP 3: Enter the login code the provider sends you")
	fmt.Fprintln(w, "   If two-step verification is on you will also be asked for the password.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "SECURITY WARNING:")
	fmt.Fprintln(w, "   The session token grants full access to the account.")
	fmt.Fprintln(w, "   It is kept in the system keychain or an encrypted file, never in the config.")
	fmt.Fprintln(w, "   Use a secondary account for bulk scans.")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
}
