// Package codec turns typed application values into the opaque byte strings
// held by the store. Scalars are written in their plain textual form so that
// numeric values stay usable by INCRBY; every other type goes through a
// structured Codec and an optional Compressor.
package codec
