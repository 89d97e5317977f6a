//go:build !race

package gabriel

const defaultPasswordHashCost = 12
