// Package cas implements the content-addressed store for uploaded files.
//
// Every uploaded PDF and audio file is stored once under its SHA-256 digest,
// so re-uploading identical bytes never duplicates data on disk. The digest
// doubles as the content identity that keys transcript caching and job
// deduplication elsewhere in the system.
package cas
