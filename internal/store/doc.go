// Package store is the scientific data store used by every equalisation
// stage.
//
// A store file is a SQLite database holding named n-dimensional datasets
// under slash-separated group paths, plus attributes attached to groups or
// datasets. Datasets are split into chunks along one axis; each chunk is
// packed little-endian and compressed with zstd, so a slice along the chunk
// axis only touches the chunks it overlaps. Attribute values are CBOR.
//
// Writing a dataset replaces any previous dataset of the same name in a
// single transaction. There are no transactions spanning several datasets.
package store
