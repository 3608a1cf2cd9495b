// Package identity generates best-effort sender identities for accounts
// that do not configure their own from address or display name.
package identity

import (
	"fmt"
	"strings"

	"github.com/brianvoe/gofakeit/v7"
)

// Random returns a generated email address at the given domain together
// with a matching display name. Uniqueness is not enforced; two accounts
// may end up with the same identity by chance.
func Random(domain string) (email string, name string) {
	first := gofakeit.FirstName()
	last := gofakeit.LastName()
	name = first + " " + last
	local := strings.ToLower(first) + "." + strings.ToLower(last)
	email = fmt.Sprintf("%s@%s", local, domain)
	return email, name
}
