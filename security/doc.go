// Package security seals credential material before it is written to the
// store. Sealed values are self-describing envelopes so keys can be rotated
// without rewriting existing rows.
package security
