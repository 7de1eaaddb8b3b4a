// Package logx configures logchat's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Optional forward sink: logchat's own records at or above a minimum
//     level are decoded back into events and handed to an appender
package logx
