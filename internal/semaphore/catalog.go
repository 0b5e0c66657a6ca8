package semaphore

import (
	"fmt"
	"math/rand"
	"sort"
)

// Letter is one of the 26 flag-semaphore letters, "A" through "Z".
type Letter string

// instructions describes the required hand position for every letter.
var instructions = map[Letter]string{
	"A": "Right hand up, left hand to the side",
	"B": "Right hand up and out, left hand up",
	"C": "Right hand up and out, left hand to the side",
	"D": "Right hand up, left hand up and out",
	"E": "Right hand to the side, left hand up and out",
	"F": "Right hand to the side, left hand up",
	"G": "Right hand to the side, left hand to the side",
	"H": "Right hand down and out, left hand to the side",
	"I": "Right hand down, left hand to the side",
	"J": "Right hand up, left hand down",
	"K": "Right hand up and out, left hand down and out",
	"L": "Right hand up and out, left hand down",
	"M": "Right hand up, left hand down and out",
	"N": "Right hand to the side, left hand down and out",
	"O": "Right hand to the side, left hand down",
	"P": "Right hand up and out, left hand up and out",
	"Q": "Right hand up and out, left hand up",
	"R": "Right hand up, left hand up and out",
	"S": "Right hand to the side, left hand up and out",
	"T": "Right hand up, left hand up",
	"U": "Right hand up and out, left hand down and out",
	"V": "Right hand down and out, left hand up and out",
	"W": "Right hand down, left hand up",
	"X": "Right hand down and out, left hand down and out",
	"Y": "Right hand up and out, left hand down",
	"Z": "Right hand down, left hand up and out",
}

// Valid reports whether l is a letter in the catalog.
func Valid(l Letter) bool {
	_, ok := instructions[l]
	return ok
}

// Describe returns the hand-position instruction for l. It panics when l is
// not a catalog letter; callers are expected to only pass letters obtained
// from this package.
func Describe(l Letter) string {
	s, ok := instructions[l]
	if !ok {
		panic(fmt.Sprintf("semaphore: unknown letter %q", l))
	}
	return s
}

// Letters returns all catalog letters in alphabetical order.
func Letters() []Letter {
	out := make([]Letter, 0, len(instructions))
	for l := range instructions {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Random picks a letter uniformly at random. Consecutive calls may return
// the same letter.
func Random() Letter {
	return Letter('A' + rune(rand.Intn(26)))
}
