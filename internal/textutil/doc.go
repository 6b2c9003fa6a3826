// Package textutil holds small string helpers shared by the pipeline and the
// artifact writer: title sanitization for filenames and rune-safe truncation.
package textutil
