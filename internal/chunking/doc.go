// Package chunking pushes long text through a size-limited generator and
// reassembles the pieces.
//
// Split cuts text into chunks of at most ChunkChars runes, preferring
// paragraph breaks, then sentence ends, then whitespace. Prepare prefixes every
// chunk after the first with a short excerpt of its predecessor wrapped in a
// context marker. Process runs a generator over the prepared chunks, strips
// the marker from each answer and substitutes a deterministic formatter when a
// call fails. Stitch removes the context a generator echoed in front of its
// answer, never more than the context it was sent, joins the pieces and caps
// paragraph length. Answers that open with their own chunk text are kept
// whole, so repeated phrases in the source survive.
//
// All lengths are counted in runes of the input text.
package chunking
