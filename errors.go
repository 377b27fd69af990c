package gbadisasm

import "errors"

// Sentinel errors for the renderer's invariant assertions (spec §7):
// failures here are a bug in the analyzer, not in the input, so they're
// fatal and surfaced verbatim by the CLI via cli.Exit.
var (
	ErrDuplicateAddress  = errors.New("gbadisasm: duplicate label address")
	ErrUnprocessedLabel  = errors.New("gbadisasm: code label not processed before render")
	ErrUnalignedFunction = errors.New("gbadisasm: function label at unaligned address")
)
