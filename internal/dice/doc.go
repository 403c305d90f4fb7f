// Package dice parses and rolls dice notation.
//
// A formula is a signed sequence of terms separated by + or -. Each term is
// a flat integer or NdM with an optional keep rule: khK keeps the highest K
// dice, klK keeps the lowest K. N defaults to 1.
//
//	2d6+3     two six-sided dice plus three
//	4d6kh3    four dice, keep the highest three
//	2d20kl1-1 disadvantage with a -1 modifier
//
// Randomness comes from an injectable Source so tests can script exact
// outcomes.
package dice
