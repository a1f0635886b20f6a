// Package corpus supplies the text that chains are built from.
//
// A Source is either bounded (a file on disk, read until EOF) or interactive
// (a console stream that ends when the user types the `\end` sentinel). The
// Catalog maps the classic story names to their file names inside a corpus
// directory, so a batch run can be described by names alone.
//
// Sources are opened before any chain building starts. A missing or unreadable
// file is reported as ErrSourceUnavailable and the caller decides whether to
// skip it or abort.
package corpus
