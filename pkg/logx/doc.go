// Package logx configures vknotify's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller), on stderr so
//     stdout stays reserved for progress lines
//   - File output JSON-structured
package logx
