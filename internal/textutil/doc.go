// Package textutil provides normalization and similarity helpers for short
// product names and transcript text.
//
// All helpers first compose Hangul syllables to NFC so that text decomposed
// into jamo by some subtitle tools compares equal to its composed form.
// Similarity is measured as Jaccard overlap, either over the set of runes in
// a compacted name or over whitespace-delimited tokens.
package textutil
