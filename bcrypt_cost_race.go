//go:build race

package gabriel

import "golang.org/x/crypto/bcrypt"

// the race detector makes cost 12 too slow for the test suite
const defaultPasswordHashCost = bcrypt.MinCost
