package durable

import "errors"

// Error taxonomy of spec §7, beyond the ones already defined closer to
// their owning package (git2.ErrRepositoryClosed, git2.ErrDocumentNil,
// git2.ErrRefUpdateRejected, occ.VersionConflict).
var (
	ErrDocumentInvalid   = errors.New("durable: document invalid (nil or missing id)")
	ErrPathInvalid       = errors.New("durable: path invalid")
	ErrNotFound          = errors.New("durable: not found")
	ErrParseError        = errors.New("durable: parse error")
	ErrConfigError       = errors.New("durable: config error")
	ErrWalWriteFailed    = errors.New("durable: wal write failed")
	ErrWalParseError     = errors.New("durable: wal parse error")
	ErrIndexUpdateFailed = errors.New("durable: index update failed")
)
